package rnb

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/rnb/internal/logging"
)

// Extension is the file extension of containers.
const Extension = ".rnb"

// Options configure a conversion.
type Options struct {
	// Output is the container path. Empty means the input path with its
	// extension replaced by Extension.
	Output string

	// Workers bounds the number of documents parsed and images transferred
	// at once. Zero means runtime.GOMAXPROCS(0).
	Workers int

	// Logger receives progress records. Nil means the package default logger.
	Logger *slog.Logger
}

// Result describes a finished conversion.
type Result struct {
	Output     string
	Title      string
	Documents  int
	Paragraphs int
	Blocks     int
	Images     int
	Size       int64

	// Digest is the hex BLAKE3-256 of the container.
	Digest string
}

// OutputPath returns input with its extension replaced by Extension.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + Extension
}

// Convert reads the ePub at input and writes its container. Nothing is
// left at the output path unless the whole container was written.
func Convert(input string, opts Options) (*Result, error) {
	if opts.Output == "" {
		opts.Output = OutputPath(input)
	}
	a, err := OpenArchive(input)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return ConvertArchive(a, opts)
}

// ConvertArchive converts an opened archive. opts.Output must be set.
func ConvertArchive(a *Archive, opts Options) (*Result, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("rnb: no output path")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = logging.GetLogger()
	}
	for _, w := range a.Warnings() {
		log.Warn("archive warning", "warning", w)
	}

	pkg, err := ResolveDocuments(a)
	if err != nil {
		return nil, err
	}
	log.Debug("documents resolved", "package", pkg.Path, "title", pkg.Title, "documents", len(pkg.Documents))

	images, err := CatalogImages(a)
	if err != nil {
		return nil, err
	}
	glyphs, err := LoadGlyphTable(a)
	if err != nil {
		return nil, err
	}
	log.Debug("tables loaded", "images", images.Len(), "gaiji", glyphs.Len())

	paragraphs, err := ParseDocuments(a, pkg.Documents, glyphs, images, opts.Workers)
	if err != nil {
		return nil, err
	}
	blocks := MergeParagraphs(paragraphs)
	log.Debug("paragraphs merged", "paragraphs", len(paragraphs), "blocks", len(blocks))

	header, err := EncodeHeader(blocks, images)
	if err != nil {
		return nil, err
	}

	size, digest, err := writeContainer(a, opts.Output, header, images, opts.Workers)
	if err != nil {
		return nil, err
	}

	return &Result{
		Output:     opts.Output,
		Title:      pkg.Title,
		Documents:  len(pkg.Documents),
		Paragraphs: len(paragraphs),
		Blocks:     len(blocks),
		Images:     images.Len(),
		Size:       size,
		Digest:     digest,
	}, nil
}

// parsedDocument is the result of one parse worker, tagged with the
// position of its document.
type parsedDocument struct {
	index      int
	paragraphs []Paragraph
}

// ParseDocuments parses every document concurrently, each worker reading
// through its own archive handle, and returns all paragraphs in document
// order.
func ParseDocuments(a *Archive, documents []string, glyphs *GlyphTable, images *ImageCatalog, workers int) ([]Paragraph, error) {
	results := make(chan parsedDocument, len(documents))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, doc := range documents {
		g.Go(func() error {
			h, err := a.Handle()
			if err != nil {
				return err
			}
			defer h.Close()

			data, err := h.ReadFile(doc)
			if err != nil {
				return fmt.Errorf("read document %d: %w", i, err)
			}
			paragraphs, err := ParseDocument(doc, data, glyphs, images)
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			results <- parsedDocument{index: i, paragraphs: paragraphs}
			return nil
		})
	}
	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}

	parsed := make([]parsedDocument, 0, len(documents))
	total := 0
	for r := range results {
		parsed = append(parsed, r)
		total += len(r.paragraphs)
	}
	slices.SortFunc(parsed, func(x, y parsedDocument) int {
		return cmp.Compare(x.index, y.index)
	})

	paragraphs := make([]Paragraph, 0, total)
	for _, r := range parsed {
		paragraphs = append(paragraphs, r.paragraphs...)
	}
	return paragraphs, nil
}

// writeContainer writes header and images to a temporary file next to
// output and renames it into place once complete. It returns the size and
// BLAKE3 digest of the container.
func writeContainer(a *Archive, output string, header []byte, images *ImageCatalog, workers int) (size int64, digest string, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*.tmp")
	if err != nil {
		return 0, "", fmt.Errorf("rnb: create output: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return 0, "", fmt.Errorf("rnb: chmod output: %w", err)
	}
	if _, err = tmp.Write(header); err != nil {
		return 0, "", fmt.Errorf("rnb: write header: %w", err)
	}
	size = int64(len(header)) + images.totalSize()
	if err = tmp.Truncate(size); err != nil {
		return 0, "", fmt.Errorf("rnb: size output: %w", err)
	}
	if err = WriteImages(a, tmp, images, int64(len(header)), workers); err != nil {
		return 0, "", err
	}

	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return 0, "", fmt.Errorf("rnb: rewind output: %w", err)
	}
	h := blake3.New()
	if _, err = io.Copy(h, tmp); err != nil {
		return 0, "", fmt.Errorf("rnb: hash output: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("rnb: close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), output); err != nil {
		return 0, "", fmt.Errorf("rnb: finalize output: %w", err)
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}
