package msgframe

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// DefaultContentType is the content type used when none is declared.
const DefaultContentType = "text/json"

// Content is the structured payload exchanged between client and server.
// Its shape is defined by the application, not by this package.
type Content map[string]any

// Format is the interface for payload serialization.
// Applications can register their own formats with RegisterFormat to support
// content types beyond the built-in JSON and TOML.
//
// Formats work on UTF-8 text; conversion to and from the declared
// content-encoding happens outside the format.
type Format interface {
	// Marshal serializes content into UTF-8 text.
	Marshal(c Content) ([]byte, error)
	// Unmarshal parses UTF-8 text into content.
	Unmarshal(text []byte) (Content, error)
}

var formats = struct {
	sync.RWMutex
	m map[string]Format
}{
	m: map[string]Format{
		"text/json":        jsonFormat{},
		"application/json": jsonFormat{},
		"text/toml":        tomlFormat{},
		"application/toml": tomlFormat{},
	},
}

// RegisterFormat makes f available for the given content type, replacing any
// previous registration.
func RegisterFormat(contentType string, f Format) {
	formats.Lock()
	defer formats.Unlock()
	formats.m[normalizeContentType(contentType)] = f
}

func lookupFormat(contentType string) (Format, error) {
	formats.RLock()
	defer formats.RUnlock()

	f, ok := formats.m[normalizeContentType(contentType)]
	if !ok {
		return nil, errors.Errorf("no format registered for content type %q", contentType)
	}
	return f, nil
}

// normalizeContentType lower-cases the media type and drops parameters.
func normalizeContentType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return DefaultContentType
	}
	return contentType
}

// EncodeContent serializes c with the format for contentType and converts
// the text into encoding.
func EncodeContent(c Content, contentType, encoding string) ([]byte, error) {
	f, err := lookupFormat(contentType)
	if err != nil {
		return nil, err
	}

	text, err := f.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode content")
	}
	return encodeText(text, encoding)
}

// DecodeContent is the inverse of EncodeContent. All failures are reported
// as *DecodeError.
func DecodeContent(raw []byte, contentType, encoding string) (Content, error) {
	f, err := lookupFormat(contentType)
	if err != nil {
		return nil, &DecodeError{Part: "content", Err: err}
	}

	text, err := decodeText(raw, encoding)
	if err != nil {
		return nil, &DecodeError{Part: "content", Err: err}
	}

	c, err := f.Unmarshal(text)
	if err != nil {
		return nil, &DecodeError{Part: "content", Err: err}
	}
	return c, nil
}

type jsonFormat struct{}

func (jsonFormat) Marshal(c Content) ([]byte, error) {
	return marshalJSON(c)
}

func (jsonFormat) Unmarshal(text []byte) (Content, error) {
	var c Content
	if err := json.Unmarshal(text, &c); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("content is not a mapping")
	}
	return c, nil
}

type tomlFormat struct{}

func (tomlFormat) Marshal(c Content) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(map[string]any(c)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (tomlFormat) Unmarshal(text []byte) (Content, error) {
	c := Content{}
	if _, err := toml.Decode(string(text), &c); err != nil {
		return nil, err
	}
	return c, nil
}
