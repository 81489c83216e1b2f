package msgframe

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

const (
	// LengthPrefixSize is the size of the big-endian metadata length prefix.
	LengthPrefixSize = 2
	// MaxMetadataLength is the largest metadata block the prefix can describe.
	MaxMetadataLength = math.MaxUint16
	// MetadataEncoding is the fixed text encoding of the metadata block.
	MetadataEncoding = DefaultEncoding
)

// Metadata keys that every header must carry.
const (
	KeyIsBigEndian     = "is_big_endian"
	KeyContentType     = "content-type"
	KeyContentEncoding = "content-encoding"
	KeyContentLength   = "content-length"
)

var requiredKeys = []string{KeyIsBigEndian, KeyContentType, KeyContentEncoding, KeyContentLength}

// Metadata is the header that describes the payload following it.
//
// IsBigEndian is carried for compatibility with existing peers. It does not
// affect how the payload is decoded; byte order is implied by the text
// encoding.
type Metadata struct {
	IsBigEndian     bool   `json:"is_big_endian"`
	ContentType     string `json:"content-type"`
	ContentEncoding string `json:"content-encoding"`
	ContentLength   int    `json:"content-length"`
}

// EncodeLength returns the 2-byte big-endian prefix for a metadata block of n bytes.
func EncodeLength(n int) ([]byte, error) {
	if n < 0 || n > MaxMetadataLength {
		return nil, errors.Wrapf(ErrMetadataTooLarge, "%d bytes", n)
	}

	b := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint16(b, uint16(n))
	return b, nil
}

// DecodeLength is the inverse of EncodeLength.
func DecodeLength(b []byte) (int, error) {
	if len(b) != LengthPrefixSize {
		return 0, errors.Errorf("length prefix: want %d bytes, got %d", LengthPrefixSize, len(b))
	}
	return int(binary.BigEndian.Uint16(b)), nil
}

// EncodeMetadata serializes md as a JSON object in the given text encoding.
func EncodeMetadata(md Metadata, encoding string) ([]byte, error) {
	if md.ContentLength < 0 {
		return nil, &MalformedHeaderError{Key: KeyContentLength, Reason: "must not be negative"}
	}

	text, err := marshalJSON(md)
	if err != nil {
		return nil, errors.Wrap(err, "encode metadata")
	}
	return encodeText(text, encoding)
}

// DecodeMetadata parses a metadata block. A missing or mistyped required key
// yields a *MalformedHeaderError; unparseable text yields a *DecodeError.
func DecodeMetadata(raw []byte, encoding string) (Metadata, error) {
	text, err := decodeText(raw, encoding)
	if err != nil {
		return Metadata{}, &DecodeError{Part: "metadata", Err: err}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(text, &fields); err != nil {
		return Metadata{}, &DecodeError{Part: "metadata", Err: err}
	}

	for _, key := range requiredKeys {
		v, ok := fields[key]
		if !ok {
			return Metadata{}, &MalformedHeaderError{Key: key, Reason: "is missing"}
		}
		if bytes.Equal(v, []byte("null")) {
			return Metadata{}, &MalformedHeaderError{Key: key, Reason: "is null"}
		}
	}

	var md Metadata
	if err := json.Unmarshal(fields[KeyIsBigEndian], &md.IsBigEndian); err != nil {
		return Metadata{}, &MalformedHeaderError{Key: KeyIsBigEndian, Reason: "must be a boolean"}
	}
	if err := json.Unmarshal(fields[KeyContentType], &md.ContentType); err != nil {
		return Metadata{}, &MalformedHeaderError{Key: KeyContentType, Reason: "must be a string"}
	}
	if err := json.Unmarshal(fields[KeyContentEncoding], &md.ContentEncoding); err != nil {
		return Metadata{}, &MalformedHeaderError{Key: KeyContentEncoding, Reason: "must be a string"}
	}
	if err := json.Unmarshal(fields[KeyContentLength], &md.ContentLength); err != nil {
		return Metadata{}, &MalformedHeaderError{Key: KeyContentLength, Reason: "must be an integer"}
	}
	if md.ContentLength < 0 {
		return Metadata{}, &MalformedHeaderError{Key: KeyContentLength, Reason: "must not be negative"}
	}

	return md, nil
}

// marshalJSON encodes v without HTML escaping or a trailing newline.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
