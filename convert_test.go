package rnb

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/zeebo/blake3"
)

func TestOutputPath(t *testing.T) {
	tests := map[string]string{
		"book.epub":          "book.rnb",
		"/tmp/a.b/book.epub": "/tmp/a.b/book.rnb",
		"noext":              "noext.rnb",
	}
	for in, want := range tests {
		if got := OutputPath(in); got != want {
			t.Errorf("OutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConvert(t *testing.T) {
	input := buildTestEPubFile(t, testBookFiles())

	res, err := Convert(input, Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	wantOutput := filepath.Join(filepath.Dir(input), "test.rnb")
	want := Result{
		Output:     wantOutput,
		Title:      "Test Book",
		Documents:  2,
		Paragraphs: 5,
		Blocks:     4,
		Images:     2,
		Size:       res.Size,
		Digest:     res.Digest,
	}
	if *res != want {
		t.Errorf("Result = %+v, want %+v", *res, want)
	}

	data, err := os.ReadFile(wantOutput)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", res.Size, len(data))
	}
	sum := blake3.Sum256(data)
	if got := hex.EncodeToString(sum[:]); res.Digest != got {
		t.Errorf("Digest = %s, want %s", res.Digest, got)
	}

	c, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantBlocks := []Block{
		TextBlock{Text: u16("第一章"), Flags: FlagBold | FlagLarge},
		TextBlock{
			Text: u16("漢字を読む\n二行目〓"),
			Ruby: []Ruby{{Start: 0, Length: 2, Reading: u16("かんじ")}},
		},
		ImageBlock{Index: 0},
		TextBlock{Text: u16("終わり")},
	}
	if !reflect.DeepEqual(c.Blocks, wantBlocks) {
		t.Errorf("Blocks = %#v, want %#v", c.Blocks, wantBlocks)
	}

	if len(c.Images) != 2 {
		t.Fatalf("got %d images, want 2", len(c.Images))
	}
	for i, want := range []string{"JPEGDATA-a", "PNG"} {
		img, err := c.Image(i)
		if err != nil {
			t.Fatalf("Image(%d): %v", i, err)
		}
		if string(img) != want {
			t.Errorf("Image(%d) = %q, want %q", i, img, want)
		}
	}
	if got := c.ImageBase + len("JPEGDATA-a") + len("PNG"); got != len(data) {
		t.Errorf("images end at %d, file is %d bytes", got, len(data))
	}

	info, err := os.Stat(wantOutput)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("output mode = %v, want 0644", perm)
	}
}

func TestConvert_DeterministicAcrossWorkers(t *testing.T) {
	files := testBookFiles()
	for i := range 20 {
		files[filepath.Join("OEBPS/image", string(rune('a'+i))+"x.png")] = string(bytes.Repeat([]byte{byte(i)}, 100+i))
	}
	input := buildTestEPubFile(t, files)
	dir := t.TempDir()

	var digests []string
	for _, workers := range []int{1, 4, 32} {
		res, err := Convert(input, Options{
			Output:  filepath.Join(dir, "out.rnb"),
			Workers: workers,
		})
		if err != nil {
			t.Fatalf("workers=%d: Convert: %v", workers, err)
		}
		digests = append(digests, res.Digest)
	}
	if digests[0] != digests[1] || digests[0] != digests[2] {
		t.Errorf("digests differ across worker counts: %v", digests)
	}
}

func TestConvert_FailureLeavesNoOutput(t *testing.T) {
	files := testBookFiles()
	delete(files, "gaiji.json")
	input := buildTestEPubFile(t, files)
	dir := filepath.Dir(input)

	_, err := Convert(input, Options{})
	if !errors.Is(err, ErrReference) {
		t.Fatalf("Convert error = %v, want ErrReference", err)
	}
	if !strings.Contains(err.Error(), "gaiji-001.png") {
		t.Errorf("error %q does not name the gaiji", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if !slices.Equal(names, []string{"test.epub"}) {
		t.Errorf("directory holds %v, want only test.epub", names)
	}
}

func TestConvert_FailureKeepsExistingOutput(t *testing.T) {
	files := testBookFiles()
	files["OEBPS/text/p-002.xhtml"] = testXHTML(`<p><img src="../image/missing.jpg"/></p>`)
	input := buildTestEPubFile(t, files)
	output := filepath.Join(t.TempDir(), "book.rnb")
	if err := os.WriteFile(output, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Convert(input, Options{Output: output}); !errors.Is(err, ErrReference) {
		t.Fatalf("Convert error = %v, want ErrReference", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "previous" {
		t.Errorf("output = %q, want the previous content", data)
	}
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(files map[string]string)
		wantErr error
	}{
		{"drm", func(f map[string]string) { f["META-INF/sinf.xml"] = "<x/>" }, ErrDRMProtected},
		{"no container", func(f map[string]string) { delete(f, "META-INF/container.xml") }, ErrStructure},
		{"capacity", func(f map[string]string) {
			reading := strings.Repeat("あ", 200)
			f["OEBPS/text/p-001.xhtml"] = testXHTML("<p><ruby>字<rt>" + reading + "</rt></ruby></p>")
		}, ErrCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := testBookFiles()
			tt.mutate(files)
			input := buildTestEPubFile(t, files)

			if _, err := Convert(input, Options{}); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Convert error = %v, want %v", err, tt.wantErr)
			}
			if _, err := os.Stat(OutputPath(input)); !os.IsNotExist(err) {
				t.Errorf("output should not exist, Stat error = %v", err)
			}
		})
	}
}

func TestConvertArchive_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	files := testBookFiles()
	files["META-INF/encryption.xml"] = encryptionXML(
		encryptedData("http://www.idpf.org/2008/embedding", "", "OEBPS/fonts/a.otf"),
	)
	a := buildTestArchive(t, files)

	_, err := ConvertArchive(a, Options{Output: filepath.Join(t.TempDir(), "out.rnb"), Logger: logger})
	if err != nil {
		t.Fatalf("ConvertArchive: %v", err)
	}

	out := buf.String()
	for _, msg := range []string{"archive warning", "documents resolved", "paragraphs merged"} {
		if !strings.Contains(out, msg) {
			t.Errorf("log output missing %q:\n%s", msg, out)
		}
	}
}

func TestConvertArchive_NoOutput(t *testing.T) {
	a := buildTestArchive(t, testBookFiles())
	if _, err := ConvertArchive(a, Options{}); err == nil {
		t.Error("ConvertArchive without an output path should fail")
	}
}

func TestParseDocuments_Order(t *testing.T) {
	files := testBookFiles()
	var docs []string
	for i := range 12 {
		name := filepath.Join("OEBPS/text", string(rune('a'+i))+".xhtml")
		files[name] = testXHTML("<p>" + string(rune('a'+i)) + "</p>")
		docs = append(docs, name)
	}
	a := buildTestArchive(t, files)

	paragraphs, err := ParseDocuments(a, docs, nil, nil, 3)
	if err != nil {
		t.Fatalf("ParseDocuments: %v", err)
	}
	if len(paragraphs) != 12 {
		t.Fatalf("got %d paragraphs, want 12", len(paragraphs))
	}
	for i, p := range paragraphs {
		if got, want := p.(TextParagraph).Text, u16(string(rune('a'+i))); !slices.Equal(got, want) {
			t.Errorf("paragraph %d = %v, want %v", i, got, want)
		}
	}
}

func TestParseDocuments_ErrorNamesDocument(t *testing.T) {
	files := testBookFiles()
	files["OEBPS/text/p-002.xhtml"] = testXHTML(`<p><img class="gaiji" src="unknown.png"/></p>`)
	a := buildTestArchive(t, files)

	_, err := ParseDocuments(a, []string{"OEBPS/text/p-001.xhtml", "OEBPS/text/p-002.xhtml"},
		NewGlyphTable(map[string]string{"gaiji-001.png": "〓"}), nil, 2)
	if !errors.Is(err, ErrReference) {
		t.Fatalf("ParseDocuments error = %v, want ErrReference", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "document 1") || !strings.Contains(msg, "p-002.xhtml") {
		t.Errorf("error %q does not locate the document", msg)
	}
	if n := strings.Count(msg, "rnb:"); n != 1 {
		t.Errorf("error %q carries the package prefix %d times, want once", msg, n)
	}
}

func TestCatalogImages_ErrorPrefix(t *testing.T) {
	files := testBookFiles()
	for i := range MaxImages + 1 {
		files[fmt.Sprintf("OEBPS/image/extra-%03d.png", i)] = "x"
	}
	a := buildTestArchive(t, files)

	_, err := CatalogImages(a)
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("CatalogImages error = %v, want ErrCapacity", err)
	}
	if n := strings.Count(err.Error(), "rnb:"); n != 1 {
		t.Errorf("error %q carries the package prefix %d times, want once", err, n)
	}
}
