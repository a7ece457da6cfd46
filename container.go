package rnb

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// containerXML models the META-INF/container.xml file used to locate the OPF.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

// rootFile represents a single <rootfile> element inside container.xml.
type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

// packageMediaType is the media type of the OPF package document.
const packageMediaType = "application/oebps-package+xml"

// parseContainer locates container.xml (case-insensitive lookup) and
// returns the archive path of the package document it declares.
func parseContainer(zr *zip.Reader) (string, error) {
	f := findFileInsensitive(zr, containerPath)
	if f == nil {
		return "", fmt.Errorf("rnb: %s missing: %w", containerPath, ErrStructure)
	}
	return parseContainerXML(f)
}

// parseContainerXML reads and decodes a container.xml ZIP entry, returning
// the full-path of the package rootfile, or of the first rootfile when none
// declares the package media type.
func parseContainerXML(f *zip.File) (string, error) {
	data, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("rnb: read container.xml: %w", err)
	}

	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("rnb: parse container.xml: %v: %w", err, ErrStructure)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), packageMediaType) {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}

	if fallbackPath == "" {
		return "", fmt.Errorf("rnb: container.xml declares no rootfile full-path: %w", ErrStructure)
	}
	return fallbackPath, nil
}
