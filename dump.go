package rnb

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf16"
)

// Dump writes a human-readable listing of a decoded container: the image
// table, then one entry per block with its flags, text and ruby spans.
func Dump(w io.Writer, c *Container) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "blocks: %d\n", len(c.Blocks))
	fmt.Fprintf(bw, "images: %d\n", len(c.Images))
	for i, img := range c.Images {
		fmt.Fprintf(bw, "image %d: offset=%d size=%d\n", i, img.Offset, img.Size)
	}

	for i, b := range c.Blocks {
		switch b := b.(type) {
		case ImageBlock:
			fmt.Fprintf(bw, "block %d: image %d\n", i, b.Index)
		case TextBlock:
			fmt.Fprintf(bw, "block %d: text bold=%t large=%t\n", i, b.Flags.Bold(), b.Flags.Large())
			if len(b.Text) == 0 {
				fmt.Fprintf(bw, "  (empty)\n")
				continue
			}
			fmt.Fprintf(bw, "  %s\n", string(utf16.Decode(b.Text)))
			for j, r := range b.Ruby {
				fmt.Fprintf(bw, "  ruby %d: start=%d length=%d %s\n", j, r.Start, r.Length, string(utf16.Decode(r.Reading)))
			}
		}
	}
	return bw.Flush()
}
