package rnb

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"unicode/utf16"

	"golang.org/x/sync/errgroup"
)

// Container layout, all integers little-endian:
//
//	u16 block count
//	u8  image count
//	    per image: u32 offset into the image region, u32 size
//	per block:
//	    u16 prefix
//	        bit 15 set: image block, low bits are the catalog index
//	        otherwise:  bits 13-14 flags, bits 0-12 text byte length
//	    text (UTF-16LE); when the text is empty nothing else follows
//	    u8 ruby count
//	        per span: u16 start, u8 length, u8 reading byte length, reading (UTF-16LE)
//	image region: every image's bytes at its offset
const (
	imageTag      = 1 << 15
	flagsShift    = 13
	maxTextBytes  = 1<<flagsShift - 1
	maxRubySpans  = math.MaxUint8
	maxReadingLen = math.MaxUint8
	maxBlocks     = math.MaxUint16
)

// EncodeHeader serialises the block count, the image table and all blocks:
// everything of the container except the image region, which starts right
// after the returned bytes.
func EncodeHeader(blocks []Block, images *ImageCatalog) ([]byte, error) {
	if len(blocks) > maxBlocks {
		return nil, &CapacityError{What: "block count", Value: len(blocks), Limit: maxBlocks, Block: -1}
	}
	if images.Len() > MaxImages {
		return nil, &CapacityError{What: "image count", Value: images.Len(), Limit: MaxImages, Block: -1}
	}

	offsets, err := images.Offsets()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 1<<18)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(blocks)))

	buf = append(buf, uint8(images.Len()))
	for i, e := range images.Entries() {
		buf = binary.LittleEndian.AppendUint32(buf, offsets[i])
		buf = binary.LittleEndian.AppendUint32(buf, e.Size)
	}

	for i, b := range blocks {
		buf, err = appendBlock(buf, i, b, images.Len())
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendBlock(buf []byte, i int, b Block, numImages int) ([]byte, error) {
	switch b := b.(type) {
	case ImageBlock:
		if int(b.Index) >= numImages {
			return nil, &EncodingError{What: "image index", Value: int(b.Index), Block: i}
		}
		return binary.LittleEndian.AppendUint16(buf, imageTag|uint16(b.Index)), nil

	case TextBlock:
		if b.Flags&^flagsMask != 0 {
			return nil, &EncodingError{What: "flags", Value: int(b.Flags), Block: i}
		}
		n := len(b.Text) * 2
		if n > maxTextBytes {
			return nil, &CapacityError{What: "text bytes", Value: n, Limit: maxTextBytes, Block: i, Text: string(utf16.Decode(b.Text))}
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(b.Flags)<<flagsShift|uint16(n))
		if n == 0 {
			return buf, nil
		}
		buf = appendUTF16LE(buf, b.Text)
		return appendRuby(buf, i, b)

	default:
		return nil, fmt.Errorf("rnb: block %d: unknown block type %T: %w", i, b, ErrEncoding)
	}
}

func appendRuby(buf []byte, i int, b TextBlock) ([]byte, error) {
	if len(b.Ruby) > maxRubySpans {
		return nil, &CapacityError{What: "ruby spans", Value: len(b.Ruby), Limit: maxRubySpans, Block: i, Text: string(utf16.Decode(b.Text))}
	}
	buf = append(buf, uint8(len(b.Ruby)))

	for _, r := range b.Ruby {
		n := len(r.Reading) * 2
		if n > maxReadingLen {
			return nil, &CapacityError{What: "ruby reading bytes", Value: n, Limit: maxReadingLen, Block: i, Text: string(utf16.Decode(r.Reading))}
		}
		buf = binary.LittleEndian.AppendUint16(buf, r.Start)
		buf = append(buf, r.Length, uint8(n))
		buf = appendUTF16LE(buf, r.Reading)
	}
	return buf, nil
}

func appendUTF16LE(buf []byte, units []uint16) []byte {
	for _, u := range units {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}
	return buf
}

// WriteImages copies every catalog image from the archive into out, each at
// base plus its precomputed offset. Up to workers transfers run at once
// (unbounded when workers <= 0), each through its own archive handle and
// writing only its own byte range, largest images first.
func WriteImages(a *Archive, out io.WriterAt, images *ImageCatalog, base int64, workers int) error {
	offsets, err := images.Offsets()
	if err != nil {
		return err
	}
	entries := images.Entries()

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(x, y int) int {
		return cmp.Compare(entries[y].Size, entries[x].Size)
	})

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, i := range order {
		g.Go(func() error {
			return transferImage(a, out, entries[i], base+int64(offsets[i]))
		})
	}
	return g.Wait()
}

func transferImage(a *Archive, out io.WriterAt, e ImageEntry, at int64) error {
	h, err := a.Handle()
	if err != nil {
		return err
	}
	defer h.Close()

	data, err := h.readEntry(e.file)
	if err != nil {
		return fmt.Errorf("read image %s: %w", e.Name, err)
	}
	if len(data) != int(e.Size) {
		return fmt.Errorf("rnb: image %s is %d bytes, catalog says %d: %w", e.Name, len(data), e.Size, ErrStructure)
	}
	if _, err := out.WriteAt(data, at); err != nil {
		return fmt.Errorf("rnb: write image %s: %w", e.Name, err)
	}
	return nil
}
