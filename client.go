package msgframe

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// SendFunc sends one request and returns the response content.
type SendFunc func(ctx context.Context, request Content) (Content, error)

// Driver is the interface for the client's application logic.
// Drive is called once by Client.Run and should loop, producing requests,
// sending them through send and consuming the responses. Returning nil or
// ErrStop ends Run normally.
type Driver interface {
	Drive(ctx context.Context, send SendFunc) error
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, send SendFunc) error

// Drive calls f(ctx, send).
func (f DriverFunc) Drive(ctx context.Context, send SendFunc) error {
	return f(ctx, send)
}

// Client is a connection to a Server that issues one request at a time.
// It does not reconnect: once the server goes away every call fails.
type Client struct {
	conn   *Conn
	logger Logger
}

// Dial connects to an IPv4 server at addr. An empty address means DefaultAddr.
func Dial(ctx context.Context, addr string, opt ...Option) (*Client, error) {
	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}

	if addr == "" {
		addr = DefaultAddr
	}

	opts.logger.Info("connecting to server", "addr", addr)
	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	return newClient(raw, opts), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opt ...Option) (*Client, error) {
	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}
	return newClient(conn, opts), nil
}

func newClient(raw net.Conn, opts options) *Client {
	conn := newConnWithOptions(raw, ClientRole, opts)
	conn.logger.Info("connected", "local_addr", conn.LocalAddr())
	return &Client{conn: conn, logger: conn.logger}
}

// Send writes request and waits for the response. Nil request content is
// replaced by the schema's default request content.
func (c *Client) Send(ctx context.Context, request Content) (Content, error) {
	if err := c.conn.WriteMessage(ctx, request); err != nil {
		return nil, err
	}

	frame, err := c.conn.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	return frame.Content, nil
}

// Run hands Send to d and returns when d does. ErrStop is reported as nil;
// any other error, including ErrPeerClosed, is returned.
func (c *Client) Run(ctx context.Context, d Driver) error {
	err := d.Drive(ctx, c.Send)
	if errors.Is(err, ErrStop) {
		return nil
	}
	if err != nil {
		c.logger.Warn("client loop ended", "error", err)
	}
	return err
}

// Conn returns the underlying framed connection.
func (c *Client) Conn() *Conn {
	return c.conn
}

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	return c.conn.Close()
}
