package msgframe

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_RoundTripJSON(t *testing.T) {
	cases := []Content{
		{"op": "ping"},
		{},
		{"n": 3.5, "ok": true, "nested": map[string]any{"list": []any{"a", 1.0, false}}, "none": nil},
		{"text": "héllo wörld", "html": "<b>&</b>"},
	}

	for _, c := range cases {
		for _, enc := range []string{"utf-8", "UTF-16", "utf8"} {
			raw, err := EncodeContent(c, "text/json", enc)
			require.NoError(t, err)

			got, err := DecodeContent(raw, "text/json", enc)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		}
	}
}

func TestContent_RoundTripTOML(t *testing.T) {
	c := Content{"op": "ping", "count": int64(3), "tags": []any{"a", "b"}}

	raw, err := EncodeContent(c, "text/toml", "utf-8")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `op = "ping"`)

	got, err := DecodeContent(raw, "text/toml", "utf-8")
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestContent_Latin1(t *testing.T) {
	c := Content{"name": "café"}

	raw, err := EncodeContent(c, "text/json", "latin1")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "é", "latin1 bytes are not valid UTF-8")

	got, err := DecodeContent(raw, "text/json", "ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestEncodeContent_UnsupportedEncoding(t *testing.T) {
	_, err := EncodeContent(Content{"a": "b"}, "text/json", "klingon")
	assert.True(t, errors.Is(err, ErrUnsupportedEncoding), "err=%v", err)
}

func TestDecodeContent_Errors(t *testing.T) {
	cases := []struct {
		name        string
		raw         string
		contentType string
		encoding    string
	}{
		{"invalid json", `{"op":`, "text/json", "utf-8"},
		{"not an object", `[1,2]`, "text/json", "utf-8"},
		{"unknown type", `{}`, "image/png", "utf-8"},
		{"unknown encoding", `{}`, "text/json", "klingon"},
		{"invalid toml", `op = `, "text/toml", "utf-8"},
		{"null payload", `null`, "text/json", "utf-8"},
		{"invalid utf-8", "{\"a\":\"\xff\xfe\"}", "text/json", "utf-8"},
		{"invalid utf-8 label alias", "{\"a\":\"\xc3\"}", "text/json", "utf8"},
		{"non-ascii under ascii", "{\"a\":\"caf\xe9\"}", "text/json", "ascii"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeContent([]byte(tc.raw), tc.contentType, tc.encoding)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "err=%v", err)
			assert.Equal(t, "content", de.Part)
		})
	}
}

func TestNormalizeContentType(t *testing.T) {
	assert.Equal(t, "text/json", normalizeContentType(""))
	assert.Equal(t, "application/json", normalizeContentType(" Application/JSON; charset=utf-8"))
}

type upperFormat struct{}

func (upperFormat) Marshal(c Content) ([]byte, error) {
	return []byte(strings.ToUpper(c["v"].(string))), nil
}

func (upperFormat) Unmarshal(text []byte) (Content, error) {
	return Content{"v": string(text)}, nil
}

func TestRegisterFormat(t *testing.T) {
	RegisterFormat("text/x-upper", upperFormat{})

	raw, err := EncodeContent(Content{"v": "abc"}, "text/x-upper", "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(raw))

	got, err := DecodeContent(raw, "TEXT/X-UPPER", "utf-8")
	require.NoError(t, err)
	assert.Equal(t, Content{"v": "ABC"}, got)
}

func TestDecodeContent_InvalidTextIsReported(t *testing.T) {
	_, err := DecodeContent([]byte("{\"a\":\"\xff\xfe\"}"), "text/json", "utf-8")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidText), "err=%v", err)
	assert.True(t, IsFatal(err))
}

func TestEncodingAliases(t *testing.T) {
	c := Content{"name": "café"}

	raw, err := EncodeContent(c, "text/json", "latin-1")
	require.NoError(t, err)
	got, err := DecodeContent(raw, "text/json", "latin_1")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = EncodeContent(c, "text/json", "ascii")
	assert.Error(t, err, "é has no ascii encoding")

	got, err = DecodeContent([]byte(`{"name":"cafe"}`), "text/json", "ascii")
	require.NoError(t, err)
	assert.Equal(t, Content{"name": "cafe"}, got)
}
