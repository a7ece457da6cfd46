package rnb

import (
	"fmt"
	"math"
	"strings"
)

// MaxImages is the largest catalog the container can describe: the image
// count is a single byte.
const MaxImages = math.MaxUint8

// imageSuffixes are the file name endings of embeddable raster assets.
var imageSuffixes = []string{"jpg", "jpeg", "png"}

// ImageCatalog lists the embeddable images of an archive. The position of
// an entry is its catalog index, used by image paragraphs and blocks.
type ImageCatalog struct {
	entries []ImageEntry
}

// NewImageCatalog builds a catalog from entries, in the given order.
func NewImageCatalog(entries ...ImageEntry) (*ImageCatalog, error) {
	if len(entries) > MaxImages {
		return nil, &CapacityError{What: "image count", Value: len(entries), Limit: MaxImages, Block: -1}
	}
	return &ImageCatalog{entries: append([]ImageEntry(nil), entries...)}, nil
}

// CatalogImages enumerates the JPEG and PNG entries of the archive in
// archive order.
func CatalogImages(a *Archive) (*ImageCatalog, error) {
	var entries []ImageEntry
	for i, f := range a.zip.File {
		if !isImageName(f.Name) {
			continue
		}
		if f.UncompressedSize64 > math.MaxUint32 {
			return nil, &CapacityError{What: "image size", Value: int(f.UncompressedSize64), Limit: math.MaxUint32, Block: -1, Text: f.Name}
		}
		entries = append(entries, ImageEntry{
			Name: baseName(f.Name),
			Size: uint32(f.UncompressedSize64),
			file: i,
		})
	}
	c, err := NewImageCatalog(entries...)
	if err != nil {
		return nil, fmt.Errorf("catalog images: %w", err)
	}
	return c, nil
}

// isImageName reports whether an archive entry name denotes a raster image.
// The suffix test is case-sensitive.
func isImageName(name string) bool {
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Len returns the number of images in the catalog.
func (c *ImageCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns a copy of the catalog entries in catalog order.
func (c *ImageCatalog) Entries() []ImageEntry {
	if c == nil {
		return nil
	}
	return append([]ImageEntry(nil), c.entries...)
}

// IndexOf returns the catalog index of the image named by the final path
// segment of src. Names are compared case-sensitively.
func (c *ImageCatalog) IndexOf(src string) (uint8, bool) {
	if c == nil {
		return 0, false
	}
	name := baseName(src)
	for i, e := range c.entries {
		if e.Name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// Offsets returns the start of every image relative to the image region,
// the exclusive prefix sum of the sizes in catalog order.
func (c *ImageCatalog) Offsets() ([]uint32, error) {
	offsets := make([]uint32, c.Len())
	var next uint64
	for i, e := range c.Entries() {
		if next > math.MaxUint32 {
			return nil, &CapacityError{What: "image offset", Value: int(next), Limit: math.MaxUint32, Block: -1, Text: e.Name}
		}
		offsets[i] = uint32(next)
		next += uint64(e.Size)
	}
	return offsets, nil
}

// totalSize returns the sum of all image sizes.
func (c *ImageCatalog) totalSize() int64 {
	var total int64
	for _, e := range c.Entries() {
		total += int64(e.Size)
	}
	return total
}
