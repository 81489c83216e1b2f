package msgframe

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DefaultEncoding is the text encoding used when none is declared.
const DefaultEncoding = "utf-8"

// ErrInvalidText is returned when bytes are not valid in their declared
// encoding.
var ErrInvalidText = errors.New("invalid text for encoding")

// encodingAliases maps common spellings that neither index resolves to
// the intended charset. The WHATWG index would otherwise read "ascii" as
// windows-1252.
var encodingAliases = map[string]string{
	"ascii":   "us-ascii",
	"latin-1": "iso-8859-1",
	"latin_1": "iso-8859-1",
	"utf_8":   "utf-8",
}

var charsets sync.Map // lower-cased name -> *charset

// charset is a resolved content-encoding.
type charset struct {
	enc       encoding.Encoding
	canonical string // IANA name, empty if unknown
}

// validate rejects input the decoder would otherwise patch with U+FFFD.
// Only the encodings where every invalid byte is detectable are checked.
func (cs *charset) validate(raw []byte) error {
	switch cs.canonical {
	case "UTF-8":
		if _, _, err := transform.Bytes(encoding.UTF8Validator, raw); err != nil {
			return errors.Wrap(ErrInvalidText, "utf-8")
		}
	case "US-ASCII":
		for i, b := range raw {
			if b > 0x7f {
				return errors.Wrapf(ErrInvalidText, "us-ascii: byte %#x at offset %d", b, i)
			}
		}
	}
	return nil
}

// lookupEncoding resolves a content-encoding name. IANA names are tried
// first, then the WHATWG labels, which accept spellings such as "utf8".
func lookupEncoding(name string) (encoding.Encoding, error) {
	cs, err := lookupCharset(name)
	if err != nil {
		return nil, err
	}
	return cs.enc, nil
}

func lookupCharset(name string) (*charset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultEncoding
	}

	if cs, ok := charsets.Load(key); ok {
		return cs.(*charset), nil
	}

	label := key
	if alias, ok := encodingAliases[key]; ok {
		label = alias
	}

	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(label)
		if err != nil {
			return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", name)
		}
	}

	cs := &charset{enc: enc}
	if canonical, err := ianaindex.IANA.Name(enc); err == nil {
		cs.canonical = strings.ToUpper(canonical)
	}

	charsets.Store(key, cs)
	return cs, nil
}

// encodeText converts UTF-8 text into the named encoding.
func encodeText(text []byte, name string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}

	out, err := enc.NewEncoder().Bytes(text)
	if err != nil {
		return nil, errors.Wrapf(err, "encode text as %s", name)
	}
	return out, nil
}

// decodeText converts text in the named encoding into UTF-8.
func decodeText(raw []byte, name string) ([]byte, error) {
	cs, err := lookupCharset(name)
	if err != nil {
		return nil, err
	}

	if err = cs.validate(raw); err != nil {
		return nil, errors.Wrapf(err, "decode text as %s", name)
	}

	out, err := cs.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode text as %s", name)
	}
	return out, nil
}
