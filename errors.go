package rnb

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the rnb package. Every failure of a
// conversion wraps exactly one of them.
var (
	// ErrStructure indicates the archive is not a usable ePub
	// (e.g., missing container.xml or package document, no text items).
	ErrStructure = errors.New("rnb: invalid ePub structure")

	// ErrDRMProtected indicates the ePub file is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP) and cannot be converted.
	ErrDRMProtected = errors.New("rnb: file is DRM protected")

	// ErrFileNotFound indicates the requested file does not exist
	// in the ePub archive.
	ErrFileNotFound = errors.New("rnb: file not found in archive")

	// ErrReference indicates an inline gaiji or image reference that
	// cannot be resolved against the loaded tables.
	ErrReference = errors.New("rnb: unresolved reference")

	// ErrCapacity indicates a value does not fit the container's field widths.
	ErrCapacity = errors.New("rnb: capacity exceeded")

	// ErrEncoding indicates a value would collide with reserved bits of the
	// container format.
	ErrEncoding = errors.New("rnb: encoding invariant violated")

	// ErrCorrupt indicates container bytes that cannot be decoded.
	ErrCorrupt = errors.New("rnb: corrupt container")
)

// ReferenceError reports an inline reference that could not be resolved.
type ReferenceError struct {
	Kind      string // "gaiji", "img" or "image"
	Name      string // referenced source, as written in the markup
	Document  string // archive path of the document being parsed
	Paragraph int    // index of the paragraph within the document
}

func (e *ReferenceError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("rnb: %s without source in %s (paragraph %d)", e.Kind, e.Document, e.Paragraph)
	}
	return fmt.Sprintf("rnb: %s %q not found in %s (paragraph %d)", e.Kind, e.Name, e.Document, e.Paragraph)
}

func (e *ReferenceError) Unwrap() error {
	return ErrReference
}

// CapacityError reports a value exceeding a field width of the container.
// Document/Paragraph locate parse-time failures; Block locates encode-time
// failures and is -1 otherwise.
type CapacityError struct {
	What      string
	Value     int
	Limit     int
	Document  string
	Paragraph int
	Block     int
	Text      string // decoded text of the offending unit, if any
}

func (e *CapacityError) Error() string {
	msg := fmt.Sprintf("rnb: %s %d exceeds limit %d", e.What, e.Value, e.Limit)
	switch {
	case e.Document != "":
		msg += fmt.Sprintf(" in %s (paragraph %d)", e.Document, e.Paragraph)
	case e.Block >= 0:
		msg += fmt.Sprintf(" in block %d", e.Block)
	}
	if e.Text != "" {
		msg += fmt.Sprintf(": %q", e.Text)
	}
	return msg
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacity
}

// EncodingError reports a value that would collide with reserved bits.
type EncodingError struct {
	What  string
	Value int
	Block int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("rnb: invalid %s %d in block %d", e.What, e.Value, e.Block)
}

func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}
