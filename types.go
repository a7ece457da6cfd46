package rnb

// Flags hold paragraph-level formatting information.
type Flags uint8

const (
	// FlagBold displays the block with bold text.
	FlagBold Flags = 1 << 0

	// FlagLarge displays the block with larger text.
	FlagLarge Flags = 1 << 1

	// flagsMask covers every bit the container can carry for a text block.
	flagsMask = FlagBold | FlagLarge
)

// Bold reports whether the bold bit is set.
func (f Flags) Bold() bool { return f&FlagBold != 0 }

// Large reports whether the large-text bit is set.
func (f Flags) Large() bool { return f&FlagLarge != 0 }

// Ruby is a furigana reading attached to a run of text.
type Ruby struct {
	// Start is the offset, in UTF-16 code units, into the owning text where
	// this reading starts.
	Start uint16

	// Length is the number of UTF-16 code units of the owning text this
	// reading covers. Surrogate pairs count as two.
	Length uint8

	// Reading is the furigana text as UTF-16 code units.
	Reading []uint16
}

// Paragraph is one unit produced by the markup parser. It is either a
// TextParagraph or an ImageParagraph.
type Paragraph interface {
	isParagraph()
}

// TextParagraph is a run of text with its readings and formatting.
type TextParagraph struct {
	Text  []uint16
	Ruby  []Ruby
	Flags Flags
}

// ImageParagraph places an image from the catalog.
type ImageParagraph struct {
	Index uint8
}

func (TextParagraph) isParagraph()  {}
func (ImageParagraph) isParagraph() {}

// Block is the serialisable unit of the container: a merged run of text
// (TextBlock) or a single image reference (ImageBlock).
type Block interface {
	isBlock()
}

// TextBlock holds one or more merged text paragraphs.
type TextBlock struct {
	Text  []uint16
	Ruby  []Ruby
	Flags Flags
}

// ImageBlock references an image of the catalog by index.
type ImageBlock struct {
	Index uint8
}

func (TextBlock) isBlock()  {}
func (ImageBlock) isBlock() {}

// ImageEntry describes one embeddable raster asset in the source archive.
type ImageEntry struct {
	// Name is the final path segment of the archive entry.
	Name string

	// Size is the uncompressed length of the asset in bytes.
	Size uint32

	// file is the index of the entry in the archive's file list.
	file int
}
