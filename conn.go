// Package msgframe implements a framed request/response protocol over TCP.
//
// Every message is sent as a frame: a 2-byte big-endian length, a JSON
// metadata block of that length, and a payload whose size, format and text
// encoding are declared by the metadata. A Server answers one client at a
// time and waits for the next one when a client goes away; a Client issues
// one request at a time.
package msgframe

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Conn is one framed connection. It owns the socket, the receive
// accumulator (inside its Framer) and the send accumulator.
//
// A Conn is not safe for concurrent use: at most one ReadMessage and one
// WriteMessage may be in flight, and never at the same time.
type Conn struct {
	rawConn net.Conn
	id      string
	role    Role
	logger  Logger

	opts options

	framer  *Framer
	recvBuf []byte // scratch space for a single read
	sendBuf []byte // bytes queued but not yet written
	closed  atomic.Bool
}

// NewConn wraps conn. The role decides which schema direction is used for
// outgoing messages.
func NewConn(conn net.Conn, role Role, opt ...Option) (*Conn, error) {
	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}
	return newConnWithOptions(conn, role, opts), nil
}

func newConnWithOptions(c net.Conn, role Role, opts options) *Conn {
	id := uuid.NewString()
	cc := &Conn{
		rawConn: c,
		id:      id,
		role:    role,
		logger:  withFields(opts.logger, "conn_id", id, "role", role.String(), "remote_addr", c.RemoteAddr().String()),
		opts:    opts,
		framer:  NewFramer(opts.maxContentLength),
		recvBuf: make([]byte, opts.receiveSize),
	}
	opts.metrics.connectionOpened(role)
	return cc
}

// ID returns the identifier used in this connection's log entries.
func (c *Conn) ID() string {
	return c.id
}

// Role returns the role given at construction.
func (c *Conn) Role() Role {
	return c.role
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.rawConn.LocalAddr()
}

// Stage returns the decode stage of the inbound frame.
func (c *Conn) Stage() Stage {
	return c.framer.Stage()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ReadMessage blocks until a complete frame has been received and returns it.
// Decode progress is reset afterwards; bytes of a following frame stay
// buffered.
//
// Returns:
//   - ErrPeerClosed: the peer closed the connection (the Conn is now closed)
//   - *MalformedHeaderError, *DecodeError, ErrMessageTooLarge: the stream is
//     unusable and the connection should be closed
//   - ctx.Err(): the context was canceled while waiting
func (c *Conn) ReadMessage(ctx context.Context) (Frame, error) {
	stop := c.interruptOn(ctx)
	defer stop()

	for {
		frame, ok, err := c.framer.Advance()
		if err != nil {
			c.opts.metrics.observeError(err)
			return Frame{}, err
		}
		if ok {
			c.framer.Reset()
			c.opts.metrics.frameReceived()
			c.logger.Debug("frame received",
				"content_type", frame.Metadata.ContentType,
				"content_length", frame.Metadata.ContentLength)
			return frame, nil
		}

		if err = c.read(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Frame{}, ctxErr
			}
			c.opts.metrics.observeError(err)
			return Frame{}, err
		}
	}
}

// WriteMessage sends content using the schema defaults of the role's
// outbound direction. Nil content is replaced by the schema's default
// content. It blocks until the whole frame has been written.
func (c *Conn) WriteMessage(ctx context.Context, content Content) error {
	dir := c.role.Outbound()
	if content == nil {
		content = c.opts.schema.DefaultContent(dir)
	}
	return c.WriteFrame(ctx, c.opts.schema.Defaults(dir).Metadata(0), content)
}

// WriteFrame sends content described by md, overriding the schema defaults.
// md.ContentLength is computed from the encoded payload.
func (c *Conn) WriteFrame(ctx context.Context, md Metadata, content Content) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	buf, err := AppendFrame(c.sendBuf[:0], md, content)
	if err != nil {
		return err
	}
	c.sendBuf = buf

	stop := c.interruptOn(ctx)
	defer stop()

	for {
		done, err := c.flush(ctx)
		if err != nil {
			c.sendBuf = c.sendBuf[:0]
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.opts.metrics.observeError(err)
			return err
		}
		if done {
			c.opts.metrics.frameSent()
			c.logger.Debug("frame sent", "content_type", md.ContentType)
			return nil
		}
	}
}

// Close closes the underlying connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	c.logger.Info("connection closed")
	return c.rawConn.Close()
}

// read performs one socket read into the receive accumulator. A read that
// returns no data and no error is not a failure; the caller simply tries
// again.
func (c *Conn) read(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	_ = c.rawConn.SetReadDeadline(c.deadline(c.opts.readTimeout))
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := c.rawConn.Read(c.recvBuf)
	if n > 0 {
		c.framer.Feed(c.recvBuf[:n])
		c.opts.metrics.read(n)
	}

	if err != nil {
		if n > 0 && errors.Is(err, io.EOF) {
			// The next read reports the closure.
			return nil
		}
		if isPeerGone(err) {
			_ = c.Close()
			return errors.Wrapf(ErrPeerClosed, "read from %s", c.Addr())
		}
		return errors.Wrap(err, "read")
	}

	return nil
}

// flush writes as much of the send accumulator as the socket accepts and
// reports whether it has been drained.
func (c *Conn) flush(ctx context.Context) (bool, error) {
	if len(c.sendBuf) == 0 {
		return true, nil
	}

	_ = c.rawConn.SetWriteDeadline(c.deadline(c.opts.writeTimeout))
	if err := ctx.Err(); err != nil {
		return false, err
	}

	n, err := c.rawConn.Write(c.sendBuf)
	c.opts.metrics.wrote(n)
	c.sendBuf = append(c.sendBuf[:0], c.sendBuf[n:]...)

	if err != nil {
		if isPeerGone(err) {
			_ = c.Close()
			return false, errors.Wrapf(ErrPeerClosed, "write to %s", c.Addr())
		}
		return false, errors.Wrap(err, "write")
	}

	return len(c.sendBuf) == 0, nil
}

// deadline returns the absolute deadline for an I/O call bounded by
// timeout, or the zero time to clear a previous one.
func (c *Conn) deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// interruptOn unblocks pending socket I/O when ctx is done. The returned
// function must be called once the I/O has finished; it waits for an
// interrupt already in progress so that it cannot hit the next call.
func (c *Conn) interruptOn(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		_ = c.rawConn.SetDeadline(time.Now())
	})
	return func() {
		if !stop() {
			<-done
		}
	}
}

// isPeerGone reports whether err means the remote end has closed or reset
// the connection.
func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
