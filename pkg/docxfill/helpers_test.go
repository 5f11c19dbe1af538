package docxfill

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	docxml "github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/xml"
)

const (
	testWordNS       = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	testContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	testRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
	testDocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/></Relationships>`
)

// para builds a paragraph from run markup.
func para(runs ...string) string {
	return "<w:p>" + strings.Join(runs, "") + "</w:p>"
}

// run builds a plain run.
func run(text string) string {
	return `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r>`
}

// styledRun builds a run with the given run properties.
func styledRun(props, text string) string {
	return `<w:r><w:rPr>` + props + `</w:rPr><w:t xml:space="preserve">` + text + `</w:t></w:r>`
}

func documentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + testWordNS + `><w:body>` + body + `<w:sectPr/></w:body></w:document>`
}

func headerXML(body string) string {
	return `<w:hdr ` + testWordNS + `>` + body + `</w:hdr>`
}

func footerXML(body string) string {
	return `<w:ftr ` + testWordNS + `>` + body + `</w:ftr>`
}

// createDOCXBytes builds a minimal package around a document body. Extra parts are
// added after the standard ones.
func createDOCXBytes(t *testing.T, body string, extra ...[2]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	add := func(name, content string) {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}

	add("[Content_Types].xml", testContentTypes)
	add("_rels/.rels", testRootRels)
	add("word/_rels/document.xml.rels", testDocumentRels)
	add("word/document.xml", documentXML(body))
	add("word/styles.xml", `<w:styles `+testWordNS+`/>`)
	for _, part := range extra {
		add(part[0], part[1])
	}

	require.NoError(t, w.Close())
	return buf.Bytes()
}

// writeDOCX writes a package into dir and returns its snapshot.
func writeDOCX(t *testing.T, dir, name, body string, extra ...[2]string) TemplateFile {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, createDOCXBytes(t, body, extra...), 0o644))
	file, err := TemplateFileFromPath(path)
	require.NoError(t, err)
	return file
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func readPart(t *testing.T, path, part string) string {
	t.Helper()
	pkg, err := docxml.Open(path)
	require.NoError(t, err)
	data, err := pkg.ReadPart(part)
	require.NoError(t, err)
	return string(data)
}

// paragraphTexts returns the logical text of every paragraph in a part.
func paragraphTexts(t *testing.T, path, part string) []string {
	t.Helper()
	pkg, err := docxml.Open(path)
	require.NoError(t, err)
	tree, err := pkg.Part(part)
	require.NoError(t, err)

	texts := make([]string, len(tree.Paragraphs))
	for i := range tree.Paragraphs {
		texts[i] = strings.Join(tree.Paragraphs[i].Fragments(), "")
	}
	return texts
}

// zipEntries returns the raw (compressed) bytes of every entry.
func zipEntries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.OpenRaw()
		require.NoError(t, err)
		raw, err := io.ReadAll(rc)
		require.NoError(t, err)
		entries[f.Name] = raw
	}
	return entries
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 4
	cfg.LogLevel = "off"
	return cfg
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	e, err := NewWithConfig(cfg, WithLogger(NewLogger(io.Discard, LogOff)))
	require.NoError(t, err)
	return e
}

// listDir returns the names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}
