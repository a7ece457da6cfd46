package rnb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"unicode/utf16"

	"golang.org/x/net/html"
)

// paragraphState is the paragraph half of the parser state: no open
// paragraph, an open text paragraph, or an image placement.
type paragraphState interface {
	isParagraphState()
}

type noParagraph struct{}

type openText struct {
	flags Flags
	text  []uint16
	ruby  []Ruby
}

type openImage struct {
	index uint8
}

func (noParagraph) isParagraphState() {}
func (*openText) isParagraphState()   {}
func (openImage) isParagraphState()   {}

// rubyState is the ruby half of the parser state. While a ruby group is
// open, start is the text offset the next reading begins at. reading is
// non-nil while the text of an <rt> is being collected.
type rubyState struct {
	pending bool
	start   int
	reading *Ruby
}

// markupParser turns the element and text events of one document into
// paragraphs. Each event method is one transition of the state machine.
type markupParser struct {
	document string
	glyphs   *GlyphTable
	images   *ImageCatalog

	paragraph  paragraphState
	ruby       rubyState
	paragraphs []Paragraph
}

func newMarkupParser(document string, glyphs *GlyphTable, images *ImageCatalog) *markupParser {
	return &markupParser{
		document:  document,
		glyphs:    glyphs,
		images:    images,
		paragraph: noParagraph{},
	}
}

// ParseDocument converts the markup of one text document into paragraphs,
// resolving gaiji against glyphs and illustrations against images. name
// identifies the document in errors.
func ParseDocument(name string, data []byte, glyphs *GlyphTable, images *ImageCatalog) ([]Paragraph, error) {
	data, err := decodeDocument(name, data)
	if err != nil {
		return nil, err
	}

	p := newMarkupParser(name, glyphs, images)
	z := html.NewTokenizer(bytes.NewReader(normalizeSelfClosingRawTags(data)))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("rnb: tokenize %s: %w", name, err)
			}
			return p.finish()

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			tag := localName(string(tn))
			var attrs []html.Attribute
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				attrs = append(attrs, html.Attribute{Key: string(key), Val: string(val)})
			}
			if err := p.startElement(tag, attrs); err != nil {
				return nil, err
			}
			if tt == html.SelfClosingTagToken {
				if err := p.endElement(tag); err != nil {
					return nil, err
				}
			}

		case html.EndTagToken:
			tn, _ := z.TagName()
			if err := p.endElement(localName(string(tn))); err != nil {
				return nil, err
			}

		case html.TextToken:
			p.text(string(z.Text()))
		}
	}
}

// startElement handles a start tag (and the start half of a self-closing tag).
func (p *markupParser) startElement(tag string, attrs []html.Attribute) error {
	switch tag {
	case "p":
		// Whatever is still open is replaced, not flushed.
		p.paragraph = &openText{flags: classFlags(attrValue(attrs, "class"))}
		p.ruby = rubyState{}

	case "ruby", "rb":
		if err := p.closeReading(); err != nil {
			return err
		}
		if t, ok := p.paragraph.(*openText); ok {
			p.ruby.pending = true
			p.ruby.start = len(t.text)
		}

	case "rt":
		if err := p.closeReading(); err != nil {
			return err
		}
		t, ok := p.paragraph.(*openText)
		if !ok || !p.ruby.pending {
			return nil
		}
		if p.ruby.start > math.MaxUint16 {
			return p.capacityError("ruby start offset", p.ruby.start, math.MaxUint16, t.text)
		}
		length := len(t.text) - p.ruby.start
		if length > math.MaxUint8 {
			return p.capacityError("ruby base length", length, math.MaxUint8, t.text[p.ruby.start:])
		}
		p.ruby.reading = &Ruby{Start: uint16(p.ruby.start), Length: uint8(length)}

	case "img":
		return p.img(attrs)

	case "image":
		src := attrValue(attrs, "href")
		index, ok := p.images.IndexOf(src)
		if !ok {
			return p.referenceError("image", src)
		}
		p.placeImage(index)
	}
	return nil
}

// endElement handles an end tag.
func (p *markupParser) endElement(tag string) error {
	switch tag {
	case "p":
		return p.flush()
	case "rt":
		return p.closeReading()
	case "ruby":
		if err := p.closeReading(); err != nil {
			return err
		}
		p.ruby = rubyState{}
	}
	return nil
}

// text handles character data.
func (p *markupParser) text(s string) {
	if p.ruby.reading != nil {
		p.ruby.reading.Reading = appendUTF16(p.ruby.reading.Reading, s)
		return
	}
	if t, ok := p.paragraph.(*openText); ok {
		t.text = appendUTF16(t.text, s)
	}
}

// img resolves an <img>: class "gaiji" substitutes text in place, anything
// else places an illustration. A gaiji always lands in the paragraph text,
// even inside <rt>.
func (p *markupParser) img(attrs []html.Attribute) error {
	src := attrValue(attrs, "src")
	if src == "" {
		return p.referenceError("img", "")
	}

	if attrValue(attrs, "class") == "gaiji" {
		replacement, ok := p.glyphs.Lookup(src)
		if !ok {
			return p.referenceError("gaiji", src)
		}
		if t, ok := p.paragraph.(*openText); ok {
			t.text = append(t.text, replacement...)
		}
		return nil
	}

	index, ok := p.images.IndexOf(src)
	if !ok {
		return p.referenceError("img", src)
	}
	p.placeImage(index)
	return nil
}

// placeImage replaces whatever paragraph is open with an image placement.
func (p *markupParser) placeImage(index uint8) {
	p.paragraph = openImage{index: index}
	p.ruby = rubyState{}
}

// closeReading completes the reading being collected, if any, and re-arms
// the ruby group at the current end of text.
func (p *markupParser) closeReading() error {
	r := p.ruby.reading
	if r == nil {
		return nil
	}
	p.ruby.reading = nil

	t, ok := p.paragraph.(*openText)
	if !ok {
		return nil
	}
	if len(r.Reading) > math.MaxUint8/2 {
		return p.capacityError("ruby reading length", len(r.Reading), math.MaxUint8/2, r.Reading)
	}
	t.ruby = append(t.ruby, *r)
	p.ruby.start = len(t.text)
	return nil
}

// flush completes the open paragraph, if any, and resets the state.
func (p *markupParser) flush() error {
	if err := p.closeReading(); err != nil {
		return err
	}
	switch s := p.paragraph.(type) {
	case *openText:
		p.paragraphs = append(p.paragraphs, TextParagraph{Text: s.text, Ruby: s.ruby, Flags: s.flags})
	case openImage:
		p.paragraphs = append(p.paragraphs, ImageParagraph{Index: s.index})
	}
	p.paragraph = noParagraph{}
	p.ruby = rubyState{}
	return nil
}

// finish flushes a paragraph left open at the end of the document.
func (p *markupParser) finish() ([]Paragraph, error) {
	if err := p.flush(); err != nil {
		return nil, err
	}
	return p.paragraphs, nil
}

func (p *markupParser) referenceError(kind, name string) error {
	return &ReferenceError{Kind: kind, Name: name, Document: p.document, Paragraph: len(p.paragraphs)}
}

func (p *markupParser) capacityError(what string, value, limit int, text []uint16) error {
	return &CapacityError{
		What:      what,
		Value:     value,
		Limit:     limit,
		Document:  p.document,
		Paragraph: len(p.paragraphs),
		Block:     -1,
		Text:      string(utf16.Decode(text)),
	}
}

// selfClosingRawTagPattern matches XHTML self-closing forms of elements the
// HTML tokenizer reads as raw text. Left alone, <title/> would swallow the
// rest of the document.
var selfClosingRawTagPattern = regexp.MustCompile(`(?is)<(script|style|title|textarea|iframe|noscript|noembed|noframes|xmp)\b([^>]*)/>`)

func normalizeSelfClosingRawTags(data []byte) []byte {
	if !selfClosingRawTagPattern.Match(data) {
		return data
	}
	return selfClosingRawTagPattern.ReplaceAll(data, []byte(`<$1$2></$1>`))
}

// classFlags derives paragraph flags from a class attribute. "bold" sets the
// bold bit. A "font-1…" class sets the large bit when it is a percentage
// (font-110per) or an em size beyond a single unit (font-1em30).
func classFlags(class string) Flags {
	var flags Flags
	for _, name := range strings.Fields(class) {
		if name == "bold" {
			flags |= FlagBold
			continue
		}
		if strings.HasPrefix(name, "font-1") {
			if strings.HasSuffix(name, "per") || len(name) > len("font-1em") {
				flags |= FlagLarge
			}
		}
	}
	return flags
}

// attrValue returns the value of the attribute whose local name is key.
func attrValue(attrs []html.Attribute, key string) string {
	for _, a := range attrs {
		if localName(a.Key) == key {
			return a.Val
		}
	}
	return ""
}

// localName strips a namespace prefix such as "xlink:" or "svg:".
func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// appendUTF16 appends the UTF-16 code units of s to dst.
func appendUTF16(dst []uint16, s string) []uint16 {
	for _, r := range s {
		dst = utf16.AppendRune(dst, r)
	}
	return dst
}
