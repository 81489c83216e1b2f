package msgframe

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// DefaultAddr is the address used when none is configured.
const DefaultAddr = "127.0.0.1:65432"

// Service is the interface for the server's business logic.
// Serve is called once per request; the returned content is sent back as
// the response. A nil response sends the schema's default response content.
type Service interface {
	Serve(ctx context.Context, request Content) (Content, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context, request Content) (Content, error)

// Serve calls f(ctx, request).
func (f ServiceFunc) Serve(ctx context.Context, request Content) (Content, error) {
	return f(ctx, request)
}

// State is the lifecycle state of a Server.
type State int

const (
	// StateWaiting means the server is waiting for a client to connect.
	StateWaiting State = iota
	// StateServing means a client is connected and being served.
	StateServing
	// StateStopped means Serve has returned.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateServing:
		return "serving"
	default:
		return "stopped"
	}
}

// Server accepts one client at a time and answers its requests.
// When a client disconnects the server goes back to waiting for the next one.
type Server struct {
	listener *net.TCPListener
	logger   Logger
	opts     options

	mu       sync.Mutex
	state    State
	active   *Conn
	shutdown bool // set once Serve must stop
	closed   bool // set by Close

	closeOnce sync.Once
	closeErr  error
}

// New creates a server bound to addr.
// Returns an error if the address cannot be bound or the options are invalid.
func New(addr *net.TCPAddr, opt ...Option) (*Server, error) {
	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}

	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}

	return &Server{
		listener: listener,
		logger:   opts.logger,
		opts:     opts,
	}, nil
}

// Listen resolves an IPv4 host:port and creates a server bound to it.
// An empty address means DefaultAddr.
func Listen(addr string, opt ...Option) (*Server, error) {
	if addr == "" {
		addr = DefaultAddr
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", addr)
	}
	return New(tcpAddr, opt...)
}

// Serve runs the session loop until ctx is canceled, Close is called or the
// error callback returns Shutdown. Requests are passed to svc one at a time.
//
// Serve closes the active connection and the listener before returning.
// It returns ctx.Err() after cancellation and ErrServerClosed after Close.
func (s *Server) Serve(ctx context.Context, svc Service) error {
	s.logger.Info("server started", "addr", s.Addr())
	s.logger.Debug("message schema",
		"request", Describe(s.opts.schema, Request),
		"response", Describe(s.opts.schema, Response))

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(loopCtx)

	group.Go(func() error {
		<-groupCtx.Done()
		s.stop()
		return nil
	})

	group.Go(func() error {
		defer cancel()
		return s.serveLoop(groupCtx, svc)
	})

	err := group.Wait()

	s.mu.Lock()
	userClosed := s.closed
	s.mu.Unlock()

	closeErr := s.Close()
	s.setState(StateStopped)
	s.logger.Info("server stopped", "addr", s.Addr())

	switch {
	case err != nil:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case userClosed:
		return ErrServerClosed
	default:
		return closeErr
	}
}

// serveLoop alternates between waiting for a client and serving it.
func (s *Server) serveLoop(ctx context.Context, svc Service) error {
	for {
		s.setState(StateWaiting)
		s.logger.Info("waiting for connection", "addr", s.Addr())

		raw, err := s.listener.AcceptTCP()
		if err != nil {
			if s.isShutdown() {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return errors.Wrap(err, "accept")
		}

		_ = raw.SetNoDelay(true)
		conn := newConnWithOptions(raw, ServerRole, s.opts)
		if !s.setActive(conn) {
			_ = conn.Close()
			return nil
		}
		s.logger.Info("client connected", "conn_id", conn.ID(), "remote_addr", conn.Addr())

		err = s.serveConn(ctx, conn, svc)
		s.setActive(nil)
		_ = conn.Close()

		switch {
		case s.isShutdown() || ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrPeerClosed):
			s.logger.Info("client disconnected", "conn_id", conn.ID(), "remote_addr", conn.Addr())
		default:
			s.logger.Warn("connection error", "conn_id", conn.ID(), "remote_addr", conn.Addr(), "error", err)
			if s.opts.onError(err) == Shutdown {
				return err
			}
		}
	}
}

// serveConn runs the request/response cycle on one connection until it fails.
func (s *Server) serveConn(ctx context.Context, conn *Conn, svc Service) error {
	for {
		req, err := conn.ReadMessage(ctx)
		if err != nil {
			return err
		}

		resp, err := svc.Serve(ctx, req.Content)
		if err != nil {
			return errors.Wrap(err, "service")
		}

		if err = conn.WriteMessage(ctx, resp); err != nil {
			return err
		}
	}
}

// stop makes Serve return: it unblocks Accept and closes the active connection.
func (s *Server) stop() {
	s.mu.Lock()
	s.shutdown = true
	active := s.active
	s.mu.Unlock()

	// Set a deadline to unblock Accept
	_ = s.listener.SetDeadline(time.Now())
	if active != nil {
		_ = active.Close()
	}
}

// Close stops the server by closing the active connection and the listener.
// Any blocked Serve call returns ErrServerClosed. Safe to call multiple times.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		s.closed = true
		active := s.active
		s.mu.Unlock()

		var err error
		if active != nil {
			err = active.Close()
		}
		s.closeErr = multierr.Append(err, s.listener.Close())
	})
	return s.closeErr
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// setActive records the connection being served. It refuses a new
// connection once the server is shutting down.
func (s *Server) setActive(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c != nil && s.shutdown {
		return false
	}
	s.active = c
	if c != nil {
		s.state = StateServing
	}
	return true
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}
