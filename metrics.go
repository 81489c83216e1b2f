package msgframe

import (
	"net"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for framed connections.
// A nil *Metrics records nothing.
type Metrics struct {
	framesReceived prometheus.Counter
	framesSent     prometheus.Counter
	bytesReceived  prometheus.Counter
	bytesSent      prometheus.Counter
	connections    *prometheus.CounterVec
	errors         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Complete frames decoded from peers.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Frames fully written to peers.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "received_bytes_total",
			Help:      "Bytes read from sockets.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "sent_bytes_total",
			Help:      "Bytes written to sockets.",
		}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "opened_total",
			Help:      "Connections opened, by role.",
		}, []string{"role"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "errors_total",
			Help:      "Connection errors, by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.framesReceived, m.framesSent, m.bytesReceived, m.bytesSent, m.connections, m.errors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}

	return m, nil
}

func (m *Metrics) frameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) frameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) read(n int) {
	if m != nil && n > 0 {
		m.bytesReceived.Add(float64(n))
	}
}

func (m *Metrics) wrote(n int) {
	if m != nil && n > 0 {
		m.bytesSent.Add(float64(n))
	}
}

func (m *Metrics) connectionOpened(role Role) {
	if m != nil {
		m.connections.WithLabelValues(role.String()).Inc()
	}
}

func (m *Metrics) observeError(err error) {
	if m != nil && err != nil {
		m.errors.WithLabelValues(errorKind(err)).Inc()
	}
}

// errorKind maps err to a low-cardinality label value.
func errorKind(err error) string {
	var mh *MalformedHeaderError
	var de *DecodeError
	var ne net.Error
	switch {
	case errors.Is(err, ErrPeerClosed):
		return "peer_closed"
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, net.ErrClosed):
		return "closed"
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	case errors.As(err, &mh):
		return "malformed_header"
	case errors.As(err, &de):
		return "decode"
	case errors.Is(err, ErrMessageTooLarge):
		return "too_large"
	default:
		return "io"
	}
}
