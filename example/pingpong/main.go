// Command pingpong runs a msgframe server that answers "ping" requests, or a
// client that sends them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/msgframe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pingpong: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file")
	mode := flag.String("mode", "", "server or client (overrides config)")
	addr := flag.String("addr", "", "host:port (overrides config)")
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			return err
		}
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *addr != "" {
		cfg.Address = *addr
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync() //nolint:errcheck
	logger := zapLogger{s: zl.Sugar()}

	opts := append(cfg.options(), msgframe.LoggerOption(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		metrics, err := msgframe.NewMetrics(reg, "pingpong")
		if err != nil {
			return err
		}
		opts = append(opts, msgframe.MetricsOption(metrics))

		srv := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		var err error
		if cfg.Mode == "server" {
			err = runServer(ctx, cfg, opts)
		} else {
			err = runClient(ctx, cfg, logger, opts)
		}
		stop()
		return err
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted")
		return nil
	}
	return err
}

func runServer(ctx context.Context, cfg config, opts []msgframe.Option) error {
	server, err := msgframe.Listen(cfg.Address, opts...)
	if err != nil {
		return err
	}

	return server.Serve(ctx, msgframe.ServiceFunc(serve))
}

// serve answers ping with pong and echoes anything else.
func serve(_ context.Context, req msgframe.Content) (msgframe.Content, error) {
	if req["op"] != "ping" {
		return msgframe.Content{"op": "echo", "request": map[string]any(req)}, nil
	}

	resp := msgframe.Content{"op": "pong"}
	if seq, ok := req["seq"]; ok {
		resp["seq"] = seq
	}
	return resp, nil
}

func runClient(ctx context.Context, cfg config, logger msgframe.Logger, opts []msgframe.Option) error {
	client, err := msgframe.Dial(ctx, cfg.Address, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	p := &pinger{interval: cfg.Interval, count: cfg.Count, logger: logger}
	return client.Run(ctx, p)
}

// pinger sends numbered pings until count is reached or the context ends.
type pinger struct {
	interval time.Duration
	count    int
	logger   msgframe.Logger
}

func (p *pinger) Drive(ctx context.Context, send msgframe.SendFunc) error {
	for seq := 1; p.count == 0 || seq <= p.count; seq++ {
		start := time.Now()
		resp, err := send(ctx, msgframe.Content{"op": "ping", "seq": seq})
		if err != nil {
			return err
		}
		p.logger.Info("response", "seq", resp["seq"], "op", resp["op"], "rtt", time.Since(start))

		if p.interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.interval):
			}
		}
	}
	return msgframe.ErrStop
}
