package msgframe

import (
	"time"
)

// ErrorAction defines what the server does after a connection error.
type ErrorAction int

const (
	// Disconnect drops the connection and waits for the next client.
	Disconnect ErrorAction = iota
	// Shutdown stops the server and returns the error from Serve.
	Shutdown
)

// Default configuration values.
const (
	// defaultReceiveSize is the size of a single socket read.
	defaultReceiveSize = 4096
	// defaultMaxContentLength is the largest accepted payload (1MB).
	defaultMaxContentLength = 1024 * 1024
)

// options holds the configuration shared by Conn, Server and Client.
type options struct {
	schema  Schema
	logger  Logger
	metrics *Metrics

	// onError is called by the server when serving a connection fails.
	onError func(error) ErrorAction

	receiveSize      int           // bytes requested per read
	maxContentLength int           // largest accepted payload
	readTimeout      time.Duration // per-read deadline, 0 disables
	writeTimeout     time.Duration // per-write deadline, 0 disables
}

// Option is a function that configures options.
type Option func(*options)

func newOptions(opt ...Option) (options, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return opts, checkOptions(&opts)
}

// checkOptions validates and sets default values for options.
func checkOptions(opts *options) error {
	if opts.schema == nil {
		opts.schema = DefaultSchema
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.onError == nil {
		opts.onError = func(error) ErrorAction { return Disconnect }
	}

	if opts.receiveSize <= 0 {
		opts.receiveSize = defaultReceiveSize
	}

	if opts.maxContentLength <= 0 {
		opts.maxContentLength = defaultMaxContentLength
	}

	for _, d := range []Direction{Request, Response} {
		defaults := opts.schema.Defaults(d)
		if _, err := lookupFormat(defaults.ContentType); err != nil {
			return err
		}
		if _, err := lookupEncoding(defaults.ContentEncoding); err != nil {
			return err
		}
	}

	return nil
}

// SchemaOption returns an Option that sets the message schema.
// If not set, DefaultSchema is used.
func SchemaOption(schema Schema) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records frame and connection
// statistics into m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// OnErrorOption returns an Option that sets the server error callback.
// The callback is invoked when serving a connection fails for any reason
// other than the peer closing it. Return Disconnect to wait for the next
// client, or Shutdown to stop the server.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// ReceiveSizeOption returns an Option that sets how many bytes a single
// socket read requests.
func ReceiveSizeOption(size int) Option {
	return func(o *options) {
		o.receiveSize = size
	}
}

// MessageMaxSize returns an Option that sets the largest payload a peer may
// announce. Larger messages fail with ErrMessageTooLarge.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxContentLength = size
	}
}

// ReadTimeoutOption returns an Option that bounds each socket read.
// Zero leaves reads unbounded.
func ReadTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// WriteTimeoutOption returns an Option that bounds each socket write.
// Zero leaves writes unbounded.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}
