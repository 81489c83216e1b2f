package msgframe

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by connection, server and client operations.
var (
	// ErrPeerClosed is returned when the remote end closes the connection.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrServerClosed is returned by Serve after Close has been called.
	ErrServerClosed = errors.New("server closed")
	// ErrMetadataTooLarge is returned when an encoded metadata block does not
	// fit in the 2-byte length prefix.
	ErrMetadataTooLarge = errors.New("metadata too large")
	// ErrMessageTooLarge is returned when a header announces a payload above
	// the configured limit.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrUnsupportedEncoding is returned for an unknown content-encoding name.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
	// ErrStop may be returned by a Driver to end Client.Run without error.
	ErrStop = errors.New("stop")
)

// MalformedHeaderError reports a metadata block that is missing a required
// key or carries a value of the wrong type.
type MalformedHeaderError struct {
	Key    string
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed header: %s %s", e.Key, e.Reason)
}

// DecodeError reports text that could not be parsed. Part is "metadata" or
// "content".
type DecodeError struct {
	Part string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Part, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err leaves the inbound stream in an unknown
// position, so the connection cannot be reused.
func IsFatal(err error) bool {
	var mh *MalformedHeaderError
	var de *DecodeError
	return errors.As(err, &mh) || errors.As(err, &de) || errors.Is(err, ErrMessageTooLarge)
}
