package msgframe

import (
	"github.com/pkg/errors"
)

// Stage is the decode progress of the frame currently being received.
type Stage int

const (
	// StageLengthPrefix waits for the 2-byte metadata length.
	StageLengthPrefix Stage = iota
	// StageMetadata waits for the metadata block.
	StageMetadata
	// StagePayload waits for content-length payload bytes.
	StagePayload
	// StageComplete holds a fully decoded frame.
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageLengthPrefix:
		return "length-prefix"
	case StageMetadata:
		return "metadata"
	case StagePayload:
		return "payload"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Framer turns an append-only byte stream into frames.
//
// Bytes are added with Feed and decoded with Advance. Each stage consumes
// bytes only once its full requirement is buffered, so Advance may be called
// any number of times between feeds. Bytes following a complete frame stay
// buffered for the next one.
type Framer struct {
	buf              []byte
	maxContentLength int

	stage          Stage
	metadataLength int
	metadata       Metadata
	content        Content
	err            error
}

// NewFramer returns a Framer. A positive maxContentLength rejects headers
// announcing larger payloads with ErrMessageTooLarge.
func NewFramer(maxContentLength int) *Framer {
	return &Framer{maxContentLength: maxContentLength}
}

// Feed appends received bytes to the accumulator.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Advance runs as many decode stages as the buffered bytes allow.
// It returns ok once a frame is complete; the frame stays available until
// Reset. A decode error is sticky until Discard.
func (f *Framer) Advance() (Frame, bool, error) {
	if f.err != nil {
		return Frame{}, false, f.err
	}

	for {
		switch f.stage {
		case StageLengthPrefix:
			if len(f.buf) < LengthPrefixSize {
				return Frame{}, false, nil
			}
			n, err := DecodeLength(f.buf[:LengthPrefixSize])
			if err != nil {
				return f.fail(err)
			}
			f.consume(LengthPrefixSize)
			f.metadataLength = n
			f.stage = StageMetadata

		case StageMetadata:
			if len(f.buf) < f.metadataLength {
				return Frame{}, false, nil
			}
			md, err := DecodeMetadata(f.buf[:f.metadataLength], MetadataEncoding)
			f.consume(f.metadataLength)
			if err != nil {
				return f.fail(err)
			}
			if f.maxContentLength > 0 && md.ContentLength > f.maxContentLength {
				return f.fail(errors.Wrapf(ErrMessageTooLarge, "content-length %d exceeds %d",
					md.ContentLength, f.maxContentLength))
			}
			f.metadata = md
			f.stage = StagePayload

		case StagePayload:
			n := f.metadata.ContentLength
			if len(f.buf) < n {
				return Frame{}, false, nil
			}
			c, err := DecodeContent(f.buf[:n], f.metadata.ContentType, f.metadata.ContentEncoding)
			f.consume(n)
			if err != nil {
				return f.fail(err)
			}
			f.content = c
			f.stage = StageComplete

		case StageComplete:
			return Frame{Metadata: f.metadata, Content: f.content}, true, nil
		}
	}
}

// Reset forgets the decode progress of the current frame. Buffered bytes
// that were not consumed are kept.
func (f *Framer) Reset() {
	f.stage = StageLengthPrefix
	f.metadataLength = 0
	f.metadata = Metadata{}
	f.content = nil
}

// Discard drops all buffered bytes, decode progress and any sticky error.
func (f *Framer) Discard() {
	f.buf = f.buf[:0]
	f.err = nil
	f.Reset()
}

// Stage returns the current decode stage.
func (f *Framer) Stage() Stage {
	return f.stage
}

// Buffered returns the number of received bytes not yet consumed.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func (f *Framer) consume(n int) {
	f.buf = append(f.buf[:0], f.buf[n:]...)
}

func (f *Framer) fail(err error) (Frame, bool, error) {
	f.err = err
	return Frame{}, false, err
}
