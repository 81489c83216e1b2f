package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Zereker/msgframe"
)

type fileConfig struct {
	Mode            string `toml:"mode"`
	Address         string `toml:"address"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	MaxMessageSize  int    `toml:"max_message_size"`
	ContentType     string `toml:"content_type"`
	ContentEncoding string `toml:"content_encoding"`
	MetricsAddress  string `toml:"metrics_address"`
	LogLevel        string `toml:"log_level"`
	Interval        string `toml:"interval"`
	Count           int    `toml:"count"`
}

type config struct {
	Mode            string
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageSize  int
	ContentType     string
	ContentEncoding string
	MetricsAddress  string
	LogLevel        string

	// Client only.
	Interval time.Duration
	Count    int
}

func defaultConfig() config {
	return config{
		Mode:            "server",
		Address:         msgframe.DefaultAddr,
		ContentType:     msgframe.DefaultContentType,
		ContentEncoding: msgframe.DefaultEncoding,
		LogLevel:        "info",
		Interval:        time.Second,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load pingpong config: %w", err)
	}

	if meta.IsDefined("mode") {
		cfg.Mode = strings.TrimSpace(raw.Mode)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}

	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}

	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}

	if meta.IsDefined("content_type") {
		cfg.ContentType = strings.TrimSpace(raw.ContentType)
	}

	if meta.IsDefined("content_encoding") {
		cfg.ContentEncoding = strings.TrimSpace(raw.ContentEncoding)
	}

	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Interval))
		if err != nil {
			return config{}, fmt.Errorf("parse interval: %w", err)
		}
		cfg.Interval = d
	}

	if meta.IsDefined("count") {
		cfg.Count = raw.Count
	}

	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch c.Mode {
	case "server", "client":
	default:
		return fmt.Errorf("mode must be server or client, got %q", c.Mode)
	}
	if c.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	return nil
}

// options converts the configuration into connection options.
func (c config) options() []msgframe.Option {
	defaults := msgframe.MessageDefaults{
		ContentType:     c.ContentType,
		ContentEncoding: c.ContentEncoding,
	}
	return []msgframe.Option{
		msgframe.SchemaOption(msgframe.StaticSchema{
			RequestDefaults:  defaults,
			ResponseDefaults: defaults,
			RequestContent:   msgframe.Content{"op": "ping"},
			ResponseContent:  msgframe.Content{"op": "pong"},

			RequestDefinition:  "op: str (ping), seq: int",
			ResponseDefinition: "op: str (pong or echo), seq: int, request: object",
		}),
		msgframe.ReadTimeoutOption(c.ReadTimeout),
		msgframe.WriteTimeoutOption(c.WriteTimeout),
		msgframe.MessageMaxSize(c.MaxMessageSize),
	}
}
