package rnb

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// Archive is random-access access to the entries of an ePub ZIP file.
// Use OpenArchive or NewArchive to create one.
//
// An Archive is not safe for concurrent use by multiple goroutines.
// Workers that read in parallel take their own handle with Handle.
type Archive struct {
	zip      *zip.Reader
	zipExact map[string]*zip.File // exact-match ZIP file index
	zipLower map[string]*zip.File // lowercase ZIP file index
	closer   io.Closer            // non-nil only when created via OpenArchive()
	reopen   func() (*zip.Reader, io.Closer, error)
	warnings []string
}

// OpenArchive opens an ePub file at the given path.
// The caller must call Close when done reading from the archive.
func OpenArchive(path string) (*Archive, error) {
	reopen := func() (*zip.Reader, io.Closer, error) {
		zrc, err := zip.OpenReader(path)
		if err != nil {
			return nil, nil, fmt.Errorf("rnb: open %s: %w", path, err)
		}
		return &zrc.Reader, zrc, nil
	}
	return initArchive(reopen)
}

// NewArchive creates an Archive from an io.ReaderAt with the given size.
// r must allow concurrent ReadAt calls, as io.ReaderAt requires.
// The caller is responsible for the lifetime of r.
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	reopen := func() (*zip.Reader, io.Closer, error) {
		zr, err := zip.NewReader(r, size)
		if err != nil {
			return nil, nil, fmt.Errorf("rnb: open zip: %w", err)
		}
		return zr, nil, nil
	}
	return initArchive(reopen)
}

// initArchive opens the first handle and rejects DRM-protected files.
func initArchive(reopen func() (*zip.Reader, io.Closer, error)) (*Archive, error) {
	a, err := openHandle(reopen)
	if err != nil {
		return nil, err
	}

	fontObfuscation, err := checkDRM(a.zip)
	if err != nil {
		a.Close()
		return nil, err
	}
	if fontObfuscation {
		a.warnings = append(a.warnings, "font obfuscation detected; fonts are not carried into the container")
	}
	return a, nil
}

func openHandle(reopen func() (*zip.Reader, io.Closer, error)) (*Archive, error) {
	zr, closer, err := reopen()
	if err != nil {
		return nil, err
	}
	a := &Archive{
		zip:    zr,
		closer: closer,
		reopen: reopen,
	}
	a.buildZipIndex()
	return a, nil
}

// Handle opens an independent handle on the same archive. Each parallel
// worker reads through its own handle and closes it when done.
func (a *Archive) Handle() (*Archive, error) {
	return openHandle(a.reopen)
}

// Close releases resources held by the Archive. Close is idempotent.
func (a *Archive) Close() error {
	if a.closer != nil {
		err := a.closer.Close()
		a.closer = nil
		return err
	}
	return nil
}

// Warnings returns the non-fatal warnings recorded while opening the archive.
func (a *Archive) Warnings() []string {
	return append([]string(nil), a.warnings...)
}

// ReadFile reads a file from the archive by its ZIP-internal path.
// The lookup is case-insensitive as a fallback.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f := a.findFile(name)
	if f == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return readZipFile(f)
}

// readEntry reads the entry at position i of the archive's file list.
func (a *Archive) readEntry(i int) ([]byte, error) {
	if i < 0 || i >= len(a.zip.File) {
		return nil, fmt.Errorf("entry %d: %w", i, ErrFileNotFound)
	}
	return readZipFile(a.zip.File[i])
}

// buildZipIndex builds exact-match and lowercase ZIP file indexes for O(1) lookups.
func (a *Archive) buildZipIndex() {
	a.zipExact = make(map[string]*zip.File, len(a.zip.File))
	a.zipLower = make(map[string]*zip.File, len(a.zip.File))
	for _, f := range a.zip.File {
		if _, exists := a.zipExact[f.Name]; !exists {
			a.zipExact[f.Name] = f
		}
		lower := strings.ToLower(f.Name)
		if _, exists := a.zipLower[lower]; !exists {
			a.zipLower[lower] = f
		}
	}
}

// findFile looks up a ZIP entry by path using the pre-built index.
// It tries an exact match first, then falls back to a case-insensitive match.
func (a *Archive) findFile(name string) *zip.File {
	if f, ok := a.zipExact[name]; ok {
		return f
	}
	if f, ok := a.zipLower[strings.ToLower(name)]; ok {
		return f
	}
	return nil
}
