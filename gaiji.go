package rnb

import (
	"encoding/json"
	"fmt"
	"unicode/utf16"
)

// gaijiPath is the archive entry holding the gaiji substitution table.
const gaijiPath = "gaiji.json"

// GlyphTable maps gaiji image names to the text that replaces them.
// It is read-only after construction.
type GlyphTable struct {
	replacements map[string][]uint16
}

// NewGlyphTable builds a table from name → replacement pairs.
func NewGlyphTable(m map[string]string) *GlyphTable {
	t := &GlyphTable{replacements: make(map[string][]uint16, len(m))}
	for name, text := range m {
		t.replacements[name] = utf16.Encode([]rune(text))
	}
	return t
}

// LoadGlyphTable reads gaiji.json from the archive root. The file is a flat
// JSON object of name → replacement text. A missing file yields an empty table.
func LoadGlyphTable(a *Archive) (*GlyphTable, error) {
	f := a.findFile(gaijiPath)
	if f == nil {
		return NewGlyphTable(nil), nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil, fmt.Errorf("rnb: read %s: %w", gaijiPath, err)
	}

	var m map[string]string
	if err := json.Unmarshal(stripBOM(data), &m); err != nil {
		return nil, fmt.Errorf("rnb: parse %s: %v: %w", gaijiPath, err, ErrStructure)
	}
	return NewGlyphTable(m), nil
}

// Len returns the number of substitutions in the table.
func (t *GlyphTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.replacements)
}

// Lookup returns the replacement for the gaiji named by the final path
// segment of src. An empty replacement counts as missing.
func (t *GlyphTable) Lookup(src string) ([]uint16, bool) {
	if t == nil {
		return nil, false
	}
	r, ok := t.replacements[baseName(src)]
	if !ok || len(r) == 0 {
		return nil, false
	}
	return r, true
}
