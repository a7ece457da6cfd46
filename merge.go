package rnb

import "slices"

const (
	// maxMergedLength caps the combined UTF-16 length of the paragraphs
	// merged into one block, not counting the newlines joining them. The
	// format allows much longer text, but short blocks can be measured and
	// laid out by the renderer in one go.
	maxMergedLength = 127

	// maxMergedRuby caps the ruby span count of a block built by merging.
	maxMergedRuby = 127
)

// MergeParagraphs packs runs of unformatted text paragraphs into blocks,
// joining them with a newline while their combined text stays within
// maxMergedLength code units and their spans within maxMergedRuby.
// Formatted paragraphs and images always become blocks of their own.
func MergeParagraphs(paragraphs []Paragraph) []Block {
	blocks := make([]Block, 0, len(paragraphs))
	var pending *TextBlock

	flush := func() {
		if pending != nil {
			blocks = append(blocks, *pending)
			pending = nil
		}
	}

	for _, para := range paragraphs {
		switch p := para.(type) {
		case ImageParagraph:
			flush()
			blocks = append(blocks, ImageBlock{Index: p.Index})

		case TextParagraph:
			if p.Flags != 0 {
				flush()
				blocks = append(blocks, TextBlock{Text: p.Text, Ruby: p.Ruby, Flags: p.Flags})
				continue
			}

			if pending == nil {
				pending = &TextBlock{Text: slices.Clone(p.Text), Ruby: slices.Clone(p.Ruby)}
				continue
			}

			if len(pending.Text)+len(p.Text) > maxMergedLength ||
				len(pending.Ruby)+len(p.Ruby) > maxMergedRuby {
				flush()
				pending = &TextBlock{Text: slices.Clone(p.Text), Ruby: slices.Clone(p.Ruby)}
				continue
			}

			pending.Text = append(pending.Text, '\n')
			shift := uint16(len(pending.Text))
			pending.Text = append(pending.Text, p.Text...)
			for _, r := range p.Ruby {
				r.Start += shift
				pending.Ruby = append(pending.Ruby, r)
			}
		}
	}
	flush()

	return blocks
}
