// Package rnb converts ePub books into rnb containers, a compact binary
// format laid out for fast sequential reading by a small renderer.
//
// # Converting
//
// Use [Convert] to convert a file by path. The container is written next
// to the input with the [Extension] suffix unless [Options.Output] says
// otherwise:
//
//	res, err := rnb.Convert("book.epub", rnb.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Output, res.Blocks)
//
// Nothing is created at the output path unless the conversion succeeds.
//
// # Pipeline
//
// [ResolveDocuments] lists the XHTML items of the package manifest in
// declaration order. [ParseDocuments] parses them in parallel with
// [ParseDocument], which turns each document into [Paragraph] values:
// text with ruby (furigana) readings and bold/large flags, or image
// placements. Inline gaiji images are replaced by text from the archive's
// gaiji.json ([GlyphTable]); other images are looked up in the
// [ImageCatalog]. [MergeParagraphs] packs short unformatted paragraphs into
// [Block] values, and [EncodeHeader] and [WriteImages] produce the
// container bytes.
//
// # Reading containers
//
// [Decode] parses a container back into blocks and an image table;
// [Dump] prints it.
//
// # Error Handling
//
// Every failure is fatal and wraps one of the sentinel errors:
//   - [ErrStructure] – the archive is not a usable ePub
//   - [ErrDRMProtected] – the file is DRM encrypted
//   - [ErrFileNotFound] – a requested file is not in the archive
//   - [ErrReference] – a gaiji or image reference cannot be resolved ([ReferenceError])
//   - [ErrCapacity] – content exceeds a field width of the format ([CapacityError])
//   - [ErrEncoding] – a value collides with reserved bits ([EncodingError])
//   - [ErrCorrupt] – container bytes cannot be decoded
package rnb
