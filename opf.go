package rnb

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// xhtmlMediaType is the media type of manifest items that carry text.
const xhtmlMediaType = "application/xhtml+xml"

var (
	// manifestItems selects every manifest <item>, prefixed or not.
	manifestItems = xpath.MustCompile(`//*[local-name()='manifest']/*[local-name()='item']`)

	// titleElements selects dc:title elements of the package metadata.
	titleElements = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='title']`)
)

// PackageDocument is the reading plan taken from the OPF package document.
type PackageDocument struct {
	// Path is the archive path of the package document.
	Path string

	// Title is the first dc:title, if any.
	Title string

	// Documents lists the archive paths of the XHTML text documents in
	// manifest declaration order.
	Documents []string
}

// ResolveDocuments reads container.xml and the package document it points
// to, and returns the XHTML items of the manifest in declaration order.
// Spine order is not consulted.
func ResolveDocuments(a *Archive) (PackageDocument, error) {
	opfPath, err := parseContainer(a.zip)
	if err != nil {
		return PackageDocument{}, err
	}

	data, err := a.ReadFile(opfPath)
	if err != nil {
		return PackageDocument{}, fmt.Errorf("rnb: package document %s: %v: %w", opfPath, err, ErrStructure)
	}

	pkg, err := parsePackageDocument(data, opfPath)
	if err != nil {
		return PackageDocument{}, err
	}

	for _, doc := range pkg.Documents {
		if a.findFile(doc) == nil {
			return PackageDocument{}, fmt.Errorf("rnb: manifest item %s missing from archive: %w", doc, ErrStructure)
		}
	}
	return pkg, nil
}

// parsePackageDocument extracts the XHTML manifest items and title from OPF
// data located at opfPath.
func parsePackageDocument(data []byte, opfPath string) (PackageDocument, error) {
	data = preprocessHTMLEntities(stripBOM(data))

	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return PackageDocument{}, fmt.Errorf("rnb: parse package document %s: %v: %w", opfPath, err, ErrStructure)
	}

	pkg := PackageDocument{Path: opfPath}
	if n := xmlquery.QuerySelector(root, titleElements); n != nil {
		pkg.Title = strings.TrimSpace(n.InnerText())
	}

	for _, item := range xmlquery.QuerySelectorAll(root, manifestItems) {
		if item.SelectAttr("media-type") != xhtmlMediaType {
			continue
		}
		href := item.SelectAttr("href")
		doc := resolveRelativePath(opfPath, href)
		if doc == "" {
			return PackageDocument{}, fmt.Errorf("rnb: manifest item href %q escapes the archive: %w", href, ErrStructure)
		}
		pkg.Documents = append(pkg.Documents, doc)
	}

	if len(pkg.Documents) == 0 {
		return PackageDocument{}, fmt.Errorf("rnb: package document %s has no %s items: %w", opfPath, xhtmlMediaType, ErrStructure)
	}
	return pkg, nil
}

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. XML parsers do not recognise HTML named entities,
// so we convert them before parsing the package document.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo":  []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"bull": []byte("&#8226;"), "middot": []byte("&#183;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"auml": []byte("&#228;"), "ouml": []byte("&#246;"), "uuml": []byte("&#252;"),
	"times": []byte("&#215;"), "deg": []byte("&#176;"), "sect": []byte("&#167;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
}

// htmlEntityPattern matches the HTML named entities of entityNameToNumeric
// case-insensitively.
var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|bull|middot|` +
		`eacute|egrave|auml|ouml|uuml|times|deg|sect|laquo|raquo);`)

// preprocessHTMLEntities replaces common HTML named entities with their
// numeric character references so that the XML parser accepts the data.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}
