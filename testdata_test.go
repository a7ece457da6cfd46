package rnb

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// validContainerXML points at OEBPS/content.opf.
const validContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// testOPF returns a package document whose manifest lists the given hrefs
// as XHTML items, in order.
func testOPF(title string, hrefs ...string) string {
	var items strings.Builder
	for i, href := range hrefs {
		fmt.Fprintf(&items, "    <item id=\"item%d\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", i, href)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>%s</dc:title>
  </metadata>
  <manifest>
    <item id="css" href="style.css" media-type="text/css"/>
%s  </manifest>
  <spine/>
</package>`, title, items.String())
}

// testXHTML wraps body in a minimal XHTML document.
func testXHTML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title/><link rel="stylesheet" href="style.css"/></head>
<body>
` + body + `
</body>
</html>`
}

// testBookFiles returns a small book: two text documents, two images and a
// gaiji table.
func testBookFiles() map[string]string {
	return map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/content.opf":      testOPF("Test Book", "text/p-001.xhtml", "text/p-002.xhtml"),
		"OEBPS/style.css":        "p { margin: 0 }",
		"OEBPS/text/p-001.xhtml": testXHTML(`<p class="bold font-120per">第一章</p>
<p><ruby>漢字<rt>かんじ</rt></ruby>を読む</p>
<p>二行目<img class="gaiji" src="../image/gaiji-001.png" alt=""/></p>`),
		"OEBPS/text/p-002.xhtml": testXHTML(`<p><img src="../image/a.jpg" alt=""/></p>
<p>終わり</p>`),
		"OEBPS/image/a.jpg":         "JPEGDATA-a",
		"OEBPS/image/gaiji-001.png": "PNG",
		"gaiji.json":                `{"gaiji-001.png": "〓"}`,
	}
}

// writeTestZip writes files into a ZIP archive, mimetype first and the rest
// in lexical order, so that archive order is predictable.
func writeTestZip(t testing.TB, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	names := slices.Sorted(maps.Keys(files))
	if i := slices.Index(names, "mimetype"); i > 0 {
		names = append([]string{"mimetype"}, slices.Delete(names, i, i+1)...)
	}
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("writeTestZip: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("writeTestZip: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("writeTestZip: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestZip creates an in-memory ZIP archive from the provided files map
// (path → content) and returns a *zip.Reader over the resulting bytes.
func buildTestZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	data := writeTestZip(t, files)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestArchive opens an in-memory ePub as an Archive.
func buildTestArchive(t *testing.T, files map[string]string) *Archive {
	t.Helper()
	data := writeTestZip(t, files)
	a, err := NewArchive(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestArchive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// buildTestEPubFile writes an ePub archive to a temporary directory and
// returns the file path.
func buildTestEPubFile(t *testing.T, files map[string]string) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(fp, writeTestZip(t, files), 0644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// u16 encodes s as UTF-16 code units.
func u16(s string) []uint16 {
	return appendUTF16(nil, s)
}
