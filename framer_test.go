package msgframe

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestFrame(t *testing.T, c Content) []byte {
	t.Helper()
	b, err := EncodeFrame(Metadata{ContentType: "text/json", ContentEncoding: "utf-8"}, c)
	require.NoError(t, err)
	return b
}

func TestFramer_WholeFrame(t *testing.T) {
	f := NewFramer(0)
	f.Feed(encodeTestFrame(t, Content{"op": "ping"}))

	frame, ok, err := f.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Content{"op": "ping"}, frame.Content)
	assert.Equal(t, "text/json", frame.Metadata.ContentType)
	assert.Equal(t, StageComplete, f.Stage())
	assert.Equal(t, 0, f.Buffered())
}

func TestFramer_SingleByteChunks(t *testing.T) {
	content := Content{"op": "ping", "seq": 42.0, "body": "some longer text to span chunks"}
	wire := encodeTestFrame(t, content)

	f := NewFramer(0)
	for i, b := range wire {
		f.Feed([]byte{b})
		frame, ok, err := f.Advance()
		require.NoError(t, err)
		if i < len(wire)-1 {
			require.False(t, ok, "frame completed early at byte %d", i)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, content, frame.Content)
	}
}

func TestFramer_RandomChunks(t *testing.T) {
	content := Content{"op": "ping", "list": []any{"a", "b", "c"}}
	wire := encodeTestFrame(t, content)
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 50; round++ {
		f := NewFramer(0)
		var got Frame
		var done bool
		for off := 0; off < len(wire); {
			n := 1 + rng.Intn(7)
			if off+n > len(wire) {
				n = len(wire) - off
			}
			f.Feed(wire[off : off+n])
			off += n

			frame, ok, err := f.Advance()
			require.NoError(t, err)
			if ok {
				got, done = frame, true
			}
		}
		require.True(t, done)
		assert.Equal(t, content, got.Content)
	}
}

func TestFramer_StagesAdvanceOnlyWhenSatisfied(t *testing.T) {
	wire := encodeTestFrame(t, Content{"op": "ping"})
	metadataLength := int(wire[0])<<8 | int(wire[1])

	f := NewFramer(0)
	f.Feed(wire[:1])
	_, ok, err := f.Advance()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StageLengthPrefix, f.Stage())
	assert.Equal(t, 1, f.Buffered())

	f.Feed(wire[1 : LengthPrefixSize+metadataLength-1])
	_, _, err = f.Advance()
	require.NoError(t, err)
	assert.Equal(t, StageMetadata, f.Stage())

	f.Feed(wire[LengthPrefixSize+metadataLength-1 : LengthPrefixSize+metadataLength])
	_, _, err = f.Advance()
	require.NoError(t, err)
	assert.Equal(t, StagePayload, f.Stage())
	assert.Equal(t, 0, f.Buffered())
}

func TestFramer_RepeatedAdvanceIsIdempotent(t *testing.T) {
	wire := encodeTestFrame(t, Content{"op": "ping"})

	f := NewFramer(0)
	f.Feed(wire[:5])
	for i := 0; i < 3; i++ {
		_, ok, err := f.Advance()
		require.NoError(t, err)
		require.False(t, ok)
	}
	stage, buffered := f.Stage(), f.Buffered()
	_, _, _ = f.Advance()
	assert.Equal(t, stage, f.Stage())
	assert.Equal(t, buffered, f.Buffered())

	f.Feed(wire[5:])
	first, ok, err := f.Advance()
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := f.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestFramer_LeftoverBelongsToNextFrame(t *testing.T) {
	first := encodeTestFrame(t, Content{"seq": 1.0})
	second := encodeTestFrame(t, Content{"seq": 2.0})

	f := NewFramer(0)
	f.Feed(append(append([]byte{}, first...), second[:3]...))

	frame, ok, err := f.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Content{"seq": 1.0}, frame.Content)
	assert.Equal(t, 3, f.Buffered())

	f.Reset()
	assert.Equal(t, StageLengthPrefix, f.Stage())
	assert.Equal(t, 3, f.Buffered())

	f.Feed(second[3:])
	frame, ok, err = f.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Content{"seq": 2.0}, frame.Content)
	assert.Equal(t, 0, f.Buffered())
}

func TestFramer_ManyFramesInOneFeed(t *testing.T) {
	var wire []byte
	for i := 0; i < 10; i++ {
		wire = append(wire, encodeTestFrame(t, Content{"seq": float64(i)})...)
	}

	f := NewFramer(0)
	f.Feed(wire)
	for i := 0; i < 10; i++ {
		frame, ok, err := f.Advance()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(i), frame.Content["seq"])
		f.Reset()
	}
	assert.Equal(t, 0, f.Buffered())
}

func TestFramer_IsBigEndianPassThrough(t *testing.T) {
	wire, err := EncodeFrame(Metadata{IsBigEndian: true, ContentType: "text/json", ContentEncoding: "utf-8"}, Content{"a": "b"})
	require.NoError(t, err)

	f := NewFramer(0)
	f.Feed(wire)
	frame, ok, err := f.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, frame.Metadata.IsBigEndian)
	assert.Equal(t, Content{"a": "b"}, frame.Content)
}

func TestFramer_MissingKeyIsSticky(t *testing.T) {
	header := []byte(`{"is_big_endian":false,"content-type":"text/json","content-length":2}`)
	prefix, err := EncodeLength(len(header))
	require.NoError(t, err)

	f := NewFramer(0)
	f.Feed(append(append(prefix, header...), '{', '}'))

	_, ok, err := f.Advance()
	require.False(t, ok)
	var mh *MalformedHeaderError
	require.True(t, errors.As(err, &mh), "err=%v", err)
	assert.Equal(t, KeyContentEncoding, mh.Key)

	_, _, again := f.Advance()
	assert.Equal(t, err, again)

	f.Discard()
	assert.Equal(t, 0, f.Buffered())
	assert.Equal(t, StageLengthPrefix, f.Stage())
	_, ok, err = f.Advance()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFramer_MessageTooLarge(t *testing.T) {
	wire := encodeTestFrame(t, Content{"body": "0123456789012345678901234567890123456789"})

	f := NewFramer(16)
	f.Feed(wire)
	_, ok, err := f.Advance()
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrMessageTooLarge), "err=%v", err)
}

func TestFramer_EmptyJSONPayload(t *testing.T) {
	header, err := EncodeMetadata(Metadata{ContentType: "text/json", ContentEncoding: "utf-8", ContentLength: 0}, MetadataEncoding)
	require.NoError(t, err)
	prefix, err := EncodeLength(len(header))
	require.NoError(t, err)

	f := NewFramer(0)
	f.Feed(append(prefix, header...))
	_, ok, err := f.Advance()
	assert.False(t, ok)
	var de *DecodeError
	assert.True(t, errors.As(err, &de), "err=%v", err)
	assert.Equal(t, 0, f.Buffered())
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "length-prefix", StageLengthPrefix.String())
	assert.Equal(t, "metadata", StageMetadata.String())
	assert.Equal(t, "payload", StagePayload.String())
	assert.Equal(t, "complete", StageComplete.String())
	assert.Equal(t, "unknown", Stage(99).String())
}
