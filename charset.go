package rnb

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// xmlDeclEncoding matches the encoding pseudo-attribute of an XML declaration.
var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*?\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// decodeDocument returns a text document as UTF-8. The source encoding is
// taken from a byte order mark or the XML declaration; documents that
// declare neither are UTF-8 already.
func decodeDocument(name string, data []byte) ([]byte, error) {
	var enc encoding.Encoding
	switch {
	case bytes.HasPrefix(data, utf16LEBOM), bytes.HasPrefix(data, utf16BEBOM):
		enc = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	default:
		data = stripBOM(data)
		m := xmlDeclEncoding.FindSubmatch(data)
		if m == nil {
			return data, nil
		}
		label := strings.ToLower(string(m[1]))
		if label == "utf-8" || label == "utf8" {
			return data, nil
		}
		var err error
		if enc, err = htmlindex.Get(label); err != nil {
			return nil, fmt.Errorf("rnb: %s declares unknown encoding %q: %w", name, label, ErrStructure)
		}
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("rnb: decode %s: %v: %w", name, err, ErrStructure)
	}
	return out, nil
}
