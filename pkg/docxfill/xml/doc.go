// Package xml provides byte-exact access to the XML parts of a DOCX package.
//
// A DOCX file is a ZIP archive of XML parts. The main body lives in
// word/document.xml; headers, footers, footnotes and endnotes live in their own
// parts, each with an optional relationships file under word/_rels/.
//
// Unlike a struct-based decoder, this package never re-serializes a part. It walks the
// token stream once and records the byte spans of every paragraph (w:p), run (w:r)
// and text node (w:t). Edits are expressed as byte splices against those spans, so
// every byte outside an edited run is preserved exactly, including namespace
// declarations, unknown extension elements and formatting properties.
//
// # Structure Organization
//
//   - package.go: Package (open, stage, commit) and raw zip entry handling
//   - parts.go: enumeration of text-bearing parts and root element detection
//   - tree.go: PartTree, Paragraph, Run and TextNode with their byte spans
//   - splice.go: Splice and text element rendering
//   - relationships.go: relationship and content type updates for new media
//   - drawing.go: inline picture markup for image insertion
//
// # Usage
//
//	pkg, err := xml.Open("letter.docx")
//	if err != nil {
//	    return err
//	}
//	for _, name := range pkg.TextParts() {
//	    tree, err := pkg.Part(name)
//	    ...
//	}
//
// Errors returned by this package wrap ErrCorrupt or ErrUnsupportedPart so the
// caller can classify them with errors.Is.
package xml
