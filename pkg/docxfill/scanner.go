package docxfill

import (
	"context"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/index"
	docxml "github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/xml"
)

// textRef addresses one text node: Runs[run].Texts[text] of a paragraph.
type textRef struct {
	run  int
	text int
}

// match is one placeholder occurrence in a paragraph's logical text.
type match struct {
	start int
	end   int
	name  string
	key   string
}

// paragraphMatches holds the logical text of a paragraph and the matches found in it.
// Every text node is one unit of the index, so a run with several w:t children maps
// each of them separately.
type paragraphMatches struct {
	paragraph int
	text      *index.Text
	nodes     []textRef
	matches   []match
}

type partMatches struct {
	tree       *docxml.PartTree
	paragraphs []paragraphMatches
}

// indexParagraph flattens the text nodes of a paragraph.
func indexParagraph(p *docxml.Paragraph) (*index.Text, []textRef) {
	var (
		frags []string
		nodes []textRef
	)
	for ri := range p.Runs {
		for ti, t := range p.Runs[ri].Texts {
			frags = append(frags, t.Text)
			nodes = append(nodes, textRef{run: ri, text: ti})
		}
	}
	return index.Build(frags), nodes
}

// findMatches runs the pattern over every paragraph of every text-bearing part. Only
// paragraphs with at least one named match are returned.
func findMatches(pkg *docxml.Package, pattern *compiledPattern) ([]partMatches, error) {
	var parts []partMatches
	for _, name := range pkg.TextParts() {
		tree, err := pkg.Part(name)
		if err != nil {
			return nil, err
		}

		pm := partMatches{tree: tree}
		for pi := range tree.Paragraphs {
			text, nodes := indexParagraph(&tree.Paragraphs[pi])
			if text.Len() == 0 {
				continue
			}
			logical := text.String()

			var matches []match
			for _, loc := range pattern.re.FindAllStringSubmatchIndex(logical, -1) {
				if loc[0] == loc[1] {
					continue
				}
				n := pattern.name(logical, loc)
				if n == "" {
					continue
				}
				matches = append(matches, match{
					start: loc[0],
					end:   loc[1],
					name:  n,
					key:   nameKey(n, pattern.caseSensitive),
				})
			}
			if len(matches) > 0 {
				pm.paragraphs = append(pm.paragraphs, paragraphMatches{
					paragraph: pi,
					text:      text,
					nodes:     nodes,
					matches:   matches,
				})
			}
		}
		parts = append(parts, pm)
	}
	return parts, nil
}

// scannedName is the per-file aggregate of one placeholder.
type scannedName struct {
	key     string
	name    string
	count   int
	context string
}

type fileScan struct {
	file  TemplateFile
	names []scannedName
	err   error
}

type scanner struct {
	pattern       *compiledPattern
	contextRadius int
	concurrency   int
	log           *Logger
}

func (s *scanner) scanFile(file TemplateFile) (result fileScan) {
	result.file = file
	defer func() {
		if r := recover(); r != nil {
			result.err = classify("file scanning", file.Path, AccessNone, RecoverError(r))
		}
	}()

	pkg, err := docxml.Open(file.Path)
	if err != nil {
		result.err = classify("file reading", file.Path, AccessRead, err)
		return result
	}

	parts, err := findMatches(pkg, s.pattern)
	if err != nil {
		result.err = classify("file scanning", file.Path, AccessNone, err)
		return result
	}

	positions := make(map[string]int)
	for _, part := range parts {
		for _, pm := range part.paragraphs {
			logical := pm.text.String()
			for _, m := range pm.matches {
				if i, ok := positions[m.key]; ok {
					result.names[i].count++
					continue
				}
				positions[m.key] = len(result.names)
				result.names = append(result.names, scannedName{
					key:     m.key,
					name:    m.name,
					count:   1,
					context: contextSnippet(logical, m.start, m.end, s.contextRadius),
				})
			}
		}
	}
	return result
}

func (s *scanner) scan(ctx context.Context, files []TemplateFile) *PlaceholderScanResult {
	start := time.Now()
	files = sortFiles(files)

	scans := runBounded(len(files), s.concurrency,
		ctx.Err,
		func(i int) fileScan {
			fs := s.scanFile(files[i])
			s.log.WithField("file", files[i].Path).Debug("Scanned file: %d distinct placeholders", len(fs.names))
			return fs
		},
		func(i int, reason error) fileScan {
			return fileScan{file: files[i], err: classify("file scanning", files[i].Path, AccessNone, reason)}
		},
	)

	result := mergeScans(scans, s.pattern.source)
	result.Elapsed = time.Since(start)
	return result
}

// mergeScans folds per-file results, already in file order, into the batch result.
// A placeholder's position is its first occurrence in that order.
func mergeScans(scans []fileScan, pattern string) *PlaceholderScanResult {
	result := &PlaceholderScanResult{}
	positions := make(map[string]int)

	for _, fs := range scans {
		if fs.err != nil {
			result.FailedFiles++
			result.Errors = append(result.Errors, ScanError{
				FilePath: fs.file.Path,
				Message:  fs.err.Error(),
				Err:      fs.err,
			})
			continue
		}
		result.TotalFilesScanned++
		if len(fs.names) > 0 {
			result.FilesWithPlaceholders++
		}

		for _, sn := range fs.names {
			i, ok := positions[sn.key]
			if !ok {
				i = len(result.Placeholders)
				positions[sn.key] = i
				result.Placeholders = append(result.Placeholders, Placeholder{
					Name:    sn.name,
					Pattern: pattern,
				})
			}
			p := &result.Placeholders[i]
			p.TotalOccurrences += sn.count
			p.Locations = append(p.Locations, PlaceholderLocation{
				FilePath:    fs.file.Path,
				FileName:    fs.file.Name,
				Occurrences: sn.count,
				Context:     sn.context,
			})
		}
	}

	result.Success = len(scans) == 0 || result.TotalFilesScanned > 0
	return result
}

// sortFiles returns the files ordered by path with duplicates removed.
func sortFiles(files []TemplateFile) []TemplateFile {
	sorted := append([]TemplateFile(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	out := sorted[:0]
	for i, f := range sorted {
		if i > 0 && f.Path == sorted[i-1].Path {
			continue
		}
		out = append(out, f)
	}
	return out
}

// contextSnippet returns the match with up to radius characters on each side.
func contextSnippet(text string, start, end, radius int) string {
	from := start
	for n := 0; n < radius && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; n < radius && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	snippet := text[from:to]
	if from > 0 {
		snippet = "..." + snippet
	}
	if to < len(text) {
		snippet += "..."
	}
	return snippet
}
