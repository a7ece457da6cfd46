package rnb

import (
	"encoding/binary"
	"fmt"
)

// ImageRef locates an image inside the image region of a container.
type ImageRef struct {
	Offset uint32
	Size   uint32
}

// Container is a decoded container.
type Container struct {
	Blocks []Block
	Images []ImageRef

	// ImageBase is the file offset of the image region.
	ImageBase int

	data []byte
}

// Image returns the bytes of image i.
func (c *Container) Image(i int) ([]byte, error) {
	if i < 0 || i >= len(c.Images) {
		return nil, fmt.Errorf("rnb: image %d of %d: %w", i, len(c.Images), ErrCorrupt)
	}
	ref := c.Images[i]
	start := c.ImageBase + int(ref.Offset)
	end := start + int(ref.Size)
	if end > len(c.data) {
		return nil, fmt.Errorf("rnb: image %d ends at %d past end of file %d: %w", i, end, len(c.data), ErrCorrupt)
	}
	return c.data[start:end], nil
}

// decoder reads little-endian fields and records the first failure.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) take(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	if d.pos+n > len(d.data) {
		d.err = fmt.Errorf("rnb: truncated %s at offset %d: %w", what, d.pos, ErrCorrupt)
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) u8(what string) uint8 {
	if b := d.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16(what string) uint16 {
	if b := d.take(2, what); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32(what string) uint32 {
	if b := d.take(4, what); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) utf16(n int, what string) []uint16 {
	if d.err == nil && n%2 != 0 {
		d.err = fmt.Errorf("rnb: odd %s byte length %d at offset %d: %w", what, n, d.pos, ErrCorrupt)
	}
	b := d.take(n, what)
	if len(b) == 0 {
		return nil
	}
	units := make([]uint16, n/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return units
}

// Decode parses a container produced by EncodeHeader and WriteImages.
func Decode(data []byte) (*Container, error) {
	d := &decoder{data: data}
	c := &Container{data: data}

	numBlocks := int(d.u16("block count"))
	numImages := int(d.u8("image count"))
	for i := 0; i < numImages && d.err == nil; i++ {
		c.Images = append(c.Images, ImageRef{
			Offset: d.u32("image offset"),
			Size:   d.u32("image size"),
		})
	}

	for i := 0; i < numBlocks && d.err == nil; i++ {
		b, err := d.block(i, numImages)
		if err != nil {
			return nil, err
		}
		c.Blocks = append(c.Blocks, b)
	}
	if d.err != nil {
		return nil, d.err
	}

	c.ImageBase = d.pos
	return c, nil
}

func (d *decoder) block(i, numImages int) (Block, error) {
	prefix := d.u16("block prefix")
	if d.err != nil {
		return nil, d.err
	}

	if prefix&imageTag != 0 {
		index := prefix &^ imageTag
		if int(index) >= numImages {
			return nil, fmt.Errorf("rnb: block %d references image %d of %d: %w", i, index, numImages, ErrCorrupt)
		}
		return ImageBlock{Index: uint8(index)}, nil
	}

	b := TextBlock{Flags: Flags(prefix >> flagsShift)}
	n := int(prefix & maxTextBytes)
	if n == 0 {
		return b, nil
	}
	b.Text = d.utf16(n, "block text")

	numRuby := int(d.u8("ruby count"))
	for j := 0; j < numRuby && d.err == nil; j++ {
		r := Ruby{
			Start:  d.u16("ruby start"),
			Length: d.u8("ruby length"),
		}
		r.Reading = d.utf16(int(d.u8("ruby reading length")), "ruby reading")
		b.Ruby = append(b.Ruby, r)
	}
	return b, d.err
}
