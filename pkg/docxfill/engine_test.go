package docxfill

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentPart = "word/document.xml"

func TestReplaceScenario(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "letter.docx", para(run("Dear {{NAME}}, welcome to {{CITY}}.")))

	e := newTestEngine(t, func(c *Config) {
		c.Pattern = `\{\{.*?\}\}`
		c.Backup.Enabled = false
	})
	ctx := context.Background()

	scan, err := e.Scan(ctx, []TemplateFile{file})
	require.NoError(t, err)
	assert.Equal(t, []string{"NAME", "CITY"}, scan.Names())

	result, err := e.Replace(ctx, []TemplateFile{file}, TextMap(map[string]string{
		"NAME": "Alice",
		"CITY": "Prague",
	}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	assert.True(t, result.FullySuccessful())
	assert.Equal(t, 2, result.TotalReplacements)
	assert.True(t, result.Validation.IsValid())
	assert.Equal(t, []string{"Dear Alice, welcome to Prague."}, paragraphTexts(t, file.Path, documentPart))
	assert.NotEmpty(t, result.OperationID)
	assert.Equal(t, StateCleaned, result.Files[0].State)
}

func TestScanOccurrencesAddUp(t *testing.T) {
	dir := t.TempDir()
	files := []TemplateFile{
		writeDOCX(t, dir, "a.docx", para(run("{{A}} {{B}} {{A}}"))+para(run("{{A}}"))),
		writeDOCX(t, dir, "b.docx", para(run("{{B}}"), run("{{C}}"))),
		writeDOCX(t, dir, "c.docx", para(run("nothing here"))),
	}

	scan, err := newTestEngine(t).Scan(context.Background(), files)
	require.NoError(t, err)

	assert.True(t, scan.Success)
	assert.Equal(t, 3, scan.TotalFilesScanned)
	assert.Equal(t, 2, scan.FilesWithPlaceholders)
	assert.Equal(t, []string{"A", "B", "C"}, scan.Names())

	want := map[string]int{"A": 3, "B": 2, "C": 1}
	for _, p := range scan.Placeholders {
		sum := 0
		for _, loc := range p.Locations {
			sum += loc.Occurrences
		}
		assert.Equal(t, p.TotalOccurrences, sum, "occurrences of %s", p.Name)
		assert.Equal(t, want[p.Name], p.TotalOccurrences, "total of %s", p.Name)
		assert.Equal(t, DefaultPattern, p.Pattern)
	}

	a, _ := scan.Placeholder("A")
	require.Len(t, a.Locations, 1, "one location per file")
	assert.Equal(t, "a.docx", a.Locations[0].FileName)
	assert.Equal(t, "{{A}} {{B}} {{A}}", a.Locations[0].Context)
}

func TestScanIgnoresInputOrder(t *testing.T) {
	dir := t.TempDir()
	files := []TemplateFile{
		writeDOCX(t, dir, "1.docx", para(run("{{X}} {{Y}}"))),
		writeDOCX(t, dir, "2.docx", para(run("{{Z}} {{X}}"))),
		writeDOCX(t, dir, "3.docx", para(run("{{Y}}"))),
	}
	reversed := []TemplateFile{files[2], files[1], files[0], files[1]}

	e := newTestEngine(t)
	first, err := e.Scan(context.Background(), files)
	require.NoError(t, err)
	second, err := e.Scan(context.Background(), reversed)
	require.NoError(t, err)

	assert.Equal(t, first.Placeholders, second.Placeholders)
	assert.Equal(t, first.TotalFilesScanned, second.TotalFilesScanned, "duplicates are scanned once")
}

func TestScanAllTextParts(t *testing.T) {
	dir := t.TempDir()
	table := "<w:tbl><w:tr><w:tc>" + para(run("{{CELL}}")) + "</w:tc></w:tr></w:tbl>"
	file := writeDOCX(t, dir, "parts.docx", para(run("{{BODY}}"))+table,
		[2]string{"word/header1.xml", headerXML(para(run("{{HEAD}}")))},
		[2]string{"word/footer1.xml", footerXML(para(run("{{FOOT}}")))},
	)

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	scan, err := e.Scan(context.Background(), []TemplateFile{file})
	require.NoError(t, err)
	assert.Equal(t, []string{"BODY", "CELL", "HEAD", "FOOT"}, scan.Names())

	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{
		"BODY": "b", "CELL": "c", "HEAD": "h", "FOOT": "f",
	}), e.DefaultReplaceOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalReplacements)

	assert.Equal(t, []string{"b", "c"}, paragraphTexts(t, file.Path, documentPart))
	assert.Equal(t, []string{"h"}, paragraphTexts(t, file.Path, "word/header1.xml"))
	assert.Equal(t, []string{"f"}, paragraphTexts(t, file.Path, "word/footer1.xml"))
}

func TestScanReportsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeDOCX(t, dir, "good.docx", para(run("{{A}}")))
	brokenPath := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(brokenPath, []byte("not a zip"), 0o644))
	broken, err := TemplateFileFromPath(brokenPath)
	require.NoError(t, err)
	missing := TemplateFile{Path: filepath.Join(dir, "missing.docx"), Name: "missing.docx"}

	scan, err := newTestEngine(t).Scan(context.Background(), []TemplateFile{good, broken, missing})
	require.NoError(t, err)

	assert.True(t, scan.Success)
	assert.Equal(t, 1, scan.TotalFilesScanned)
	assert.Equal(t, 2, scan.FailedFiles)
	require.Len(t, scan.Errors, 2)
	assert.Equal(t, PackageCorrupt, KindOf(scan.Errors[0].Err))
	assert.Equal(t, FileNotFound, KindOf(scan.Errors[1].Err))
}

func TestReplaceSplitPlaceholderKeepsFirstRunFormatting(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "split.docx", para(
		styledRun("<w:b/>", "Dear {{NA"),
		styledRun("<w:i/>", "ME}}"),
		run(" and bye"),
	))

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"NAME": "Alice"}), e.DefaultReplaceOptions())
	require.NoError(t, err)
	require.True(t, result.FullySuccessful())

	doc := readPart(t, file.Path, documentPart)
	assert.Contains(t, doc, `<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">Dear Alice</w:t></w:r>`)
	assert.NotContains(t, doc, "<w:i/>", "the consumed run is removed")
	assert.Contains(t, doc, run(" and bye"), "untouched runs are byte-identical")
	assert.Equal(t, []string{"Dear Alice and bye"}, paragraphTexts(t, file.Path, documentPart))
}

func TestReplaceMultipleTextNodesInOneRun(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "nodes.docx", para(`<w:r><w:t>{{NA</w:t><w:t>ME}}!</w:t></w:r>`))

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	_, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"NAME": "Bob"}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bob!"}, paragraphTexts(t, file.Path, documentPart))
}

func TestReplacePreservesUntouchedContent(t *testing.T) {
	dir := t.TempDir()
	untouched := para(styledRun(`<w:color w:val="FF0000"/>`, "Keep me &amp; my formatting"))
	file := writeDOCX(t, dir, "keep.docx", untouched+para(run("Hello {{NAME}}")))
	before := zipEntries(t, readFile(t, file.Path))

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	_, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"NAME": "A & <B>"}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	after := zipEntries(t, readFile(t, file.Path))
	require.Len(t, after, len(before))
	for name, raw := range before {
		if name == documentPart {
			continue
		}
		assert.Equal(t, raw, after[name], "entry %s changed", name)
	}

	doc := readPart(t, file.Path, documentPart)
	assert.Contains(t, doc, untouched)
	assert.Contains(t, doc, "Hello A &amp; &lt;B&gt;")
	assert.Equal(t, []string{"Keep me & my formatting", "Hello A & <B>"}, paragraphTexts(t, file.Path, documentPart))

	rescan, err := e.Scan(context.Background(), []TemplateFile{file})
	require.NoError(t, err)
	assert.Empty(t, rescan.Placeholders)
}

func TestReplaceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "once.docx", para(run("{{NAME}}")))
	values := TextMap(map[string]string{"NAME": "Alice"})

	e := newTestEngine(t)
	first, err := e.Replace(context.Background(), []TemplateFile{file}, values, e.DefaultReplaceOptions())
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalReplacements)
	written := readFile(t, file.Path)

	second, err := e.Replace(context.Background(), []TemplateFile{file}, values, e.DefaultReplaceOptions())
	require.NoError(t, err)

	assert.True(t, second.FullySuccessful())
	assert.Zero(t, second.TotalReplacements)
	assert.Equal(t, written, readFile(t, file.Path))
	assert.Equal(t, []string{"once.docx"}, listDir(t, dir), "no backup is left behind")
}

func TestReplaceStrictValidationTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	a := writeDOCX(t, dir, "a.docx", para(run("{{A}}")))
	b := writeDOCX(t, dir, "b.docx", para(run("{{A}} {{B}}")))
	original := map[string][]byte{a.Path: readFile(t, a.Path), b.Path: readFile(t, b.Path)}

	e := newTestEngine(t)
	opts := e.DefaultReplaceOptions()
	opts.Strict = true

	result, err := e.Replace(context.Background(), []TemplateFile{a, b}, TextMap(map[string]string{"A": "1"}), opts)
	require.Error(t, err)
	assert.True(t, IsKind(err, UnmappedPlaceholder))

	require.NotNil(t, result)
	assert.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Validation.Unmapped(), 1)
	assert.Equal(t, "B", result.Validation.Unmapped()[0].Name)

	for path, data := range original {
		assert.Equal(t, data, readFile(t, path))
	}
	assert.ElementsMatch(t, []string{"a.docx", "b.docx"}, listDir(t, dir))
}

func TestReplaceLenientLeavesUnmapped(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "a.docx", para(run("{{A}} {{B}}")))

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"A": "1"}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	assert.True(t, result.FullySuccessful())
	assert.False(t, result.Validation.IsValid())
	assert.Equal(t, []string{"1 {{B}}"}, paragraphTexts(t, file.Path, documentPart))
}

func TestReplaceRollsBackFailedFile(t *testing.T) {
	dir := t.TempDir()
	bad := writeDOCX(t, dir, "bad.docx", para(run("{{NAME}}")))
	good := writeDOCX(t, dir, "good.docx", para(run("{{NAME}}")))
	original := readFile(t, bad.Path)

	e := newTestEngine(t)
	e.afterWrite = func(path string) error {
		if strings.HasSuffix(path, "bad.docx") {
			return errors.New("injected failure")
		}
		return nil
	}

	result, err := e.Replace(context.Background(), []TemplateFile{good, bad}, TextMap(map[string]string{"NAME": "Alice"}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	require.Len(t, result.Files, 2)

	badResult, goodResult := result.Files[0], result.Files[1]
	assert.Equal(t, bad.Path, badResult.File.Path)
	assert.False(t, badResult.Success)
	assert.Contains(t, badResult.Err.Error(), "injected failure")
	assert.Equal(t, StateCleaned, badResult.State)
	assert.Empty(t, badResult.BackupPath)
	assert.Equal(t, original, readFile(t, bad.Path), "restored byte for byte")

	assert.True(t, goodResult.Success)
	assert.Equal(t, []string{"Alice"}, paragraphTexts(t, good.Path, documentPart))

	assert.ElementsMatch(t, []string{"bad.docx", "good.docx"}, listDir(t, dir), "backups are cleaned up")
}

func TestReplaceRetainsBackups(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "a.docx", para(run("{{NAME}}")))
	original := readFile(t, file.Path)

	e := newTestEngine(t)
	opts := e.DefaultReplaceOptions()
	opts.Backup.Retain = true

	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"NAME": "x"}), opts)
	require.NoError(t, err)

	backup := result.Files[0].BackupPath
	assert.Equal(t, file.Path+".backup", backup)
	assert.Equal(t, original, readFile(t, backup))
}

func TestReplaceImage(t *testing.T) {
	dir := t.TempDir()
	data := testPNG(t, 4, 2)
	imagePath := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(imagePath, data, 0o644))
	file := writeDOCX(t, dir, "img.docx", para(styledRun("<w:b/>", "Logo: {{LOGO}}")))

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	result, err := e.Replace(context.Background(), []TemplateFile{file}, ReplacementMap{
		"LOGO": ImageValue(imagePath, 40, 0),
	}, e.DefaultReplaceOptions())
	require.NoError(t, err)
	require.True(t, result.FullySuccessful(), "%v", result.Files[0].Err)

	doc := readPart(t, file.Path, documentPart)
	assert.Contains(t, doc, `<w:t xml:space="preserve">Logo: </w:t><w:drawing>`)
	assert.Contains(t, doc, `<wp:extent cx="381000" cy="190500"/>`)
	assert.Contains(t, doc, `r:embed="rId2"`)
	assert.Contains(t, doc, `name="logo.png"`)

	rels := readPart(t, file.Path, "word/_rels/document.xml.rels")
	assert.Contains(t, rels, `Id="rId2"`)
	assert.Contains(t, rels, `Target="media/image1.png"`)

	types := readPart(t, file.Path, "[Content_Types].xml")
	assert.Contains(t, types, `<Default Extension="png" ContentType="image/png"/>`)

	assert.Equal(t, string(data), readPart(t, file.Path, "word/media/image1.png"))
}

func TestReplaceImageInHeaderAndBody(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "img.docx", para(run("{{LOGO}}")),
		[2]string{"word/header1.xml", headerXML(para(run("{{LOGO}}")))},
	)

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	result, err := e.Replace(context.Background(), []TemplateFile{file}, ReplacementMap{
		"LOGO": {Image: &ImageRef{Data: testPNG(t, 10, 10)}},
	}, e.DefaultReplaceOptions())
	require.NoError(t, err)
	require.True(t, result.FullySuccessful(), "%v", result.Files[0].Err)

	assert.Contains(t, readPart(t, file.Path, documentPart), `<wp:docPr id="1"`)
	assert.Contains(t, readPart(t, file.Path, "word/header1.xml"), `<wp:docPr id="2"`)

	// The header had no relationships part, so one was created for it.
	headerRels := readPart(t, file.Path, "word/_rels/header1.xml.rels")
	assert.Contains(t, headerRels, `Target="media/image2.png"`)
}

func TestReplaceLineBreaksAndTabs(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "lines.docx", para(run("Address: {{ADDR}}")))

	e := newTestEngine(t, func(c *Config) { c.Backup.Enabled = false })
	_, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{
		"ADDR": "Main St 1\nPrague\tCZ",
	}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	doc := readPart(t, file.Path, documentPart)
	assert.Contains(t, doc, `<w:t xml:space="preserve">Address: Main St 1</w:t><w:br/><w:t xml:space="preserve">Prague</w:t><w:tab/><w:t xml:space="preserve">CZ</w:t>`)
}

func TestReplaceCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "case.docx", para(run("{{Name}} / {{NAME}}")))

	e := newTestEngine(t, func(c *Config) {
		c.CaseSensitive = false
		c.Backup.Enabled = false
	})

	scan, err := e.Scan(context.Background(), []TemplateFile{file})
	require.NoError(t, err)
	require.Len(t, scan.Placeholders, 1)
	assert.Equal(t, "Name", scan.Placeholders[0].Name, "first spelling wins")
	assert.Equal(t, 2, scan.Placeholders[0].TotalOccurrences)

	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"name": "x"}), e.DefaultReplaceOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalReplacements)
	assert.True(t, result.Validation.IsValid())
	assert.Equal(t, []string{"x / x"}, paragraphTexts(t, file.Path, documentPart))

	other := writeDOCX(t, dir, "other.docx", para(run("{{NAME}}")))
	preview, err := e.Preview(context.Background(), []TemplateFile{other}, TextMap(map[string]string{"name": "y"}))
	require.NoError(t, err)
	require.Len(t, preview.Files[0].Changes, 1)
	assert.Equal(t, "NAME", preview.Files[0].Changes[0].Placeholder)
	assert.Equal(t, "name", preview.Files[0].Changes[0].Key, "the map spelling is reported")
}

func TestReplaceCancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	a := writeDOCX(t, dir, "a.docx", para(run("{{A}}")))
	b := writeDOCX(t, dir, "b.docx", para(run("{{A}}")))
	original := readFile(t, a.Path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t)
	result, err := e.Replace(ctx, []TemplateFile{a, b}, TextMap(map[string]string{"A": "1"}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	for _, f := range result.Files {
		assert.True(t, IsKind(f.Err, Cancelled), "got %v", f.Err)
		assert.Equal(t, StatePending, f.State)
	}
	assert.Equal(t, original, readFile(t, a.Path))
}

func TestReplaceCancelDuringFile(t *testing.T) {
	dir := t.TempDir()
	a := writeDOCX(t, dir, "a.docx", para(run("{{A}}")))
	b := writeDOCX(t, dir, "b.docx", para(run("{{A}}")))
	original := readFile(t, b.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := newTestEngine(t, func(c *Config) { c.MaxConcurrency = 1 })
	e.afterWrite = func(path string) error {
		cancel()
		return nil
	}

	result, err := e.Replace(ctx, []TemplateFile{b, a}, TextMap(map[string]string{"A": "1"}), e.DefaultReplaceOptions())
	require.NoError(t, err)
	require.Len(t, result.Files, 2)

	first, second := result.Files[0], result.Files[1]
	assert.True(t, first.Success, "the file in flight commits: %v", first.Err)
	assert.Equal(t, StateCleaned, first.State)
	assert.Equal(t, []string{"1"}, paragraphTexts(t, a.Path, documentPart))

	assert.False(t, second.Success)
	assert.True(t, IsKind(second.Err, Cancelled), "got %v", second.Err)
	assert.Equal(t, StatePending, second.State)
	assert.Equal(t, original, readFile(t, b.Path))

	assert.Equal(t, StatusPartial, result.Status)
	assert.ElementsMatch(t, []string{"a.docx", "b.docx"}, listDir(t, dir))
}

func TestReplaceHaltsOnCriticalError(t *testing.T) {
	dir := t.TempDir()
	files := []TemplateFile{
		writeDOCX(t, dir, "a.docx", para(run("{{A}}"))),
		writeDOCX(t, dir, "b.docx", para(run("{{A}}"))),
		writeDOCX(t, dir, "c.docx", para(run("{{A}}"))),
	}
	originals := make([][]byte, len(files))
	for i, f := range files {
		originals[i] = readFile(t, f.Path)
	}

	e := newTestEngine(t, func(c *Config) { c.MaxConcurrency = 1 })
	e.afterWrite = func(path string) error {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), syscall.ENOSPC)
	}

	result, err := e.Replace(context.Background(), files, TextMap(map[string]string{"A": "1"}), e.DefaultReplaceOptions())
	require.NoError(t, err)
	require.Len(t, result.Files, 3)
	assert.Equal(t, StatusFailed, result.Status)

	failed := result.Files[0]
	assert.True(t, IsCritical(failed.Err), "got %v", failed.Err)
	assert.Contains(t, failed.Err.Error(), "no space left on device")
	assert.Equal(t, StateCleaned, failed.State)

	for _, skipped := range result.Files[1:] {
		assert.True(t, IsKind(skipped.Err, Cancelled), "%s: got %v", skipped.File.Name, skipped.Err)
		assert.Contains(t, skipped.Err.Error(), "critical error")
		assert.Equal(t, StatePending, skipped.State)
	}
	for i, f := range files {
		assert.Equal(t, originals[i], readFile(t, f.Path), "%s is unchanged", f.Name)
	}
	assert.ElementsMatch(t, []string{"a.docx", "b.docx", "c.docx"}, listDir(t, dir))
}

func TestReplaceTimeout(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "slow.docx", para(run("{{A}}")))
	original := readFile(t, file.Path)

	e := newTestEngine(t, func(c *Config) { c.Timeout = time.Nanosecond })
	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"A": "1"}), e.DefaultReplaceOptions())
	require.NoError(t, err)
	require.Len(t, result.Files, 1)

	res := result.Files[0]
	assert.False(t, res.Success)
	assert.True(t, IsKind(res.Err, Timeout), "got %v", res.Err)
	assert.Equal(t, original, readFile(t, file.Path))
	assert.Equal(t, []string{"slow.docx"}, listDir(t, dir))
}

func TestPreviewDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "a.docx", para(run("Hi {{NAME}}")), [2]string{"word/footer1.xml", footerXML(para(run("{{NAME}}")))})
	original := readFile(t, file.Path)

	e := newTestEngine(t)
	preview, err := e.Preview(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"NAME": "Alice", "EXTRA": "?"}))
	require.NoError(t, err)

	assert.True(t, preview.DryRun)
	assert.Equal(t, 2, preview.TotalReplacements)
	require.Len(t, preview.Files, 1)
	assert.Equal(t, []PreviewChange{
		{Placeholder: "NAME", Part: documentPart, Before: "{{NAME}}", After: "Alice", Key: "NAME"},
		{Placeholder: "NAME", Part: "word/footer1.xml", Before: "{{NAME}}", After: "Alice", Key: "NAME"},
	}, preview.Files[0].Changes)
	require.Len(t, preview.Validation.Unused(), 1)
	assert.Equal(t, "EXTRA", preview.Validation.Unused()[0].Name)

	assert.Equal(t, original, readFile(t, file.Path))
	assert.Equal(t, []string{"a.docx"}, listDir(t, dir))
}

func TestReplaceDryRun(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "a.docx", para(run("{{NAME}}")))
	original := readFile(t, file.Path)

	e := newTestEngine(t)
	opts := e.DefaultReplaceOptions()
	opts.DryRun = true

	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"NAME": "x"}), opts)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.TotalReplacements)
	assert.Equal(t, original, readFile(t, file.Path))
}

func TestReplaceDryRunScansOnce(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "a.docx", para(run("{{NAME}}")))

	var logs bytes.Buffer
	e, err := NewWithConfig(testConfig(), WithLogger(NewLogger(&logs, LogDebug)))
	require.NoError(t, err)
	opts := e.DefaultReplaceOptions()
	opts.DryRun = true

	result, err := e.Replace(context.Background(), []TemplateFile{file}, TextMap(map[string]string{"NAME": "x"}), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalReplacements)
	assert.True(t, result.Validation.IsValid())
	assert.Equal(t, 1, strings.Count(logs.String(), "Scanned file"), "logs:\n%s", logs.String())
	assert.NotContains(t, logs.String(), "op=preview")
}

func TestReplaceInSingleFile(t *testing.T) {
	dir := t.TempDir()
	file := writeDOCX(t, dir, "a.docx", para(run("{{A}}")))

	e := newTestEngine(t)
	res := e.ReplaceInSingleFile(context.Background(), file, TextMap(map[string]string{"A": "done"}), e.DefaultReplaceOptions())
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Replacements)

	opts := e.DefaultReplaceOptions()
	opts.Strict = true
	other := writeDOCX(t, dir, "b.docx", para(run("{{B}}")))
	res = e.ReplaceInSingleFile(context.Background(), other, ReplacementMap{}, opts)
	assert.True(t, IsKind(res.Err, UnmappedPlaceholder))
	assert.False(t, res.Success)
}

func TestReplaceBrokenFileFailsAlone(t *testing.T) {
	dir := t.TempDir()
	good := writeDOCX(t, dir, "good.docx", para(run("{{A}}")))
	brokenPath := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(brokenPath, []byte("PK garbage"), 0o644))
	broken, err := TemplateFileFromPath(brokenPath)
	require.NoError(t, err)

	e := newTestEngine(t)
	result, err := e.Replace(context.Background(), []TemplateFile{good, broken}, TextMap(map[string]string{"A": "1"}), e.DefaultReplaceOptions())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, PackageCorrupt, KindOf(result.Files[0].Err))
	assert.Equal(t, StateCleaned, result.Files[0].State)
	assert.True(t, result.Files[1].Success)
}

func TestCreateBackups(t *testing.T) {
	dir := t.TempDir()
	a := writeDOCX(t, dir, "a.docx", para(run("{{A}}")))
	missing := TemplateFile{Path: filepath.Join(dir, "missing.docx")}

	result := newTestEngine(t).CreateBackups(context.Background(), []TemplateFile{a, missing})

	assert.False(t, result.Success())
	require.Len(t, result.Created, 1)
	assert.Equal(t, a.Path+".backup", result.Created[0].Backup)
	assert.Equal(t, readFile(t, a.Path), readFile(t, result.Created[0].Backup))
	require.Len(t, result.Failures, 1)
	assert.True(t, IsKind(result.Err(), FileNotFound))
}

func TestNewWithConfigRejectsInvalidConfig(t *testing.T) {
	_, err := NewWithConfig(&Config{Pattern: `(a)(b)`, CaseSensitive: true})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pattern", verr.Issues[0].Field)
}
