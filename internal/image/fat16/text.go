package fat16

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DefaultEncoding is the text encoding used for OEM name and labels unless
// configured otherwise.
const DefaultEncoding = "utf-8"

// TextDecoder turns the raw bytes of a fixed-width text field into a string.
type TextDecoder struct {
	name string
	enc  encoding.Encoding
}

// NewTextDecoder resolves an IANA encoding name such as "utf-8", "IBM437",
// "ISO-8859-1" or "US-ASCII".
func NewTextDecoder(name string) (*TextDecoder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultEncoding
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported text encoding %q", name)
	}

	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = name
	}
	return &TextDecoder{name: canonical, enc: enc}, nil
}

// Name returns the canonical IANA name of the encoding.
func (d *TextDecoder) Name() string { return d.name }

// Decode converts b, rejecting bytes the encoding cannot represent. UTF-8 is
// validated strictly; single-byte code pages reject bytes they map to U+FFFD.
func (d *TextDecoder) Decode(b []byte) (string, error) {
	if strings.EqualFold(d.name, "UTF-8") {
		s, _, err := transform.Bytes(encoding.UTF8Validator, b)
		if err != nil {
			return "", err
		}
		return string(s), nil
	}

	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("bytes not representable in %s", d.name)
	}
	return string(out), nil
}
