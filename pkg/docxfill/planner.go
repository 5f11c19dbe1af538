package docxfill

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	docxml "github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/xml"
)

// EMUPerPixel is the number of English Metric Units in one pixel at 96 DPI.
const EMUPerPixel = 9525

// PixelsToEMU converts pixels to EMU.
func PixelsToEMU(px int) int64 {
	return int64(px) * EMUPerPixel
}

// EMUToPixels converts EMU to whole pixels, rounding down.
func EMUToPixels(emu int64) int {
	if emu < 0 {
		return -int((-emu + EMUPerPixel - 1) / EMUPerPixel)
	}
	return int(emu / EMUPerPixel)
}

// FilePlan is the set of edits for one file. It is computed from a package without
// modifying it.
type FilePlan struct {
	File         TemplateFile
	Parts        []PartPlan
	Replacements int
	Changes      []PreviewChange
	// Unmapped lists names that were found but left untouched, in document order.
	Unmapped []string
}

// PartPlan holds the edits of one part.
type PartPlan struct {
	Part     string
	Tree     *docxml.PartTree
	Edits    []TextEdit
	Removals []RunRef
	Images   []*ImageDirective
}

// RunRef addresses Paragraphs[Paragraph].Runs[Run].
type RunRef struct {
	Paragraph int
	Run       int
}

// TextEdit replaces the content of one text node.
type TextEdit struct {
	Paragraph int
	Run       int
	Text      int
	Pieces    []EditPiece
}

// EditPiece is one item written in place of a text node. Image is set for PieceMarkup.
type EditPiece struct {
	Kind  docxml.PieceKind
	Text  string
	Image *ImageDirective
}

// ImageDirective inserts one picture into the run that hosted the placeholder.
type ImageDirective struct {
	Placeholder string
	Part        string
	Paragraph   int
	Run         int
	Name        string
	Data        []byte
	ContentType string
	WidthPx     int
	HeightPx    int
	CX          int64
	CY          int64
}

type planner struct {
	pattern *compiledPattern
	values  *valueIndex
	strict  bool
	images  *imageLoader
}

// cut removes [from, to) of one index unit, optionally writing pieces in its place.
type cut struct {
	from   int
	to     int
	pieces []EditPiece
	host   bool
}

func (p *planner) planFile(file TemplateFile, pkg *docxml.Package) (*FilePlan, error) {
	parts, err := findMatches(pkg, p.pattern)
	if err != nil {
		return nil, classify("replacement planning", file.Path, AccessNone, err)
	}

	plan := &FilePlan{File: file}
	seenUnmapped := make(map[string]bool)

	for _, part := range parts {
		pp := PartPlan{Part: part.tree.Name, Tree: part.tree}

		for _, pm := range part.paragraphs {
			logical := pm.text.String()
			cuts := make(map[int][]cut)

			for _, m := range pm.matches {
				value, ok := p.values.lookup(m.key)
				if !ok {
					if p.strict {
						return nil, NewError(UnmappedPlaceholder, "replacement planning", file.Path,
							fmt.Errorf("no value for placeholder %q", m.name))
					}
					if !seenUnmapped[m.key] {
						seenUnmapped[m.key] = true
						plan.Unmapped = append(plan.Unmapped, m.name)
					}
					continue
				}

				segments := pm.text.Span(m.start, m.end)
				if len(segments) == 0 {
					continue
				}

				hostRun := pm.nodes[segments[0].Run].run
				pieces, err := p.replacementPieces(m.name, value, part.tree.Name, pm.paragraph, hostRun, &pp)
				if err != nil {
					return nil, classify("replacement planning", file.Path, AccessRead, err)
				}

				for i, seg := range segments {
					c := cut{from: seg.From, to: seg.To}
					if i == 0 {
						c.host = true
						c.pieces = pieces
					}
					cuts[seg.Run] = append(cuts[seg.Run], c)
				}

				plan.Replacements++
				plan.Changes = append(plan.Changes, PreviewChange{
					Placeholder: m.name,
					Key:         p.values.mapKey(m.key),
					Part:        part.tree.Name,
					Before:      logical[m.start:m.end],
					After:       value.String(),
				})
			}

			p.planParagraph(&pp, pm, cuts)
		}

		if len(pp.Edits) > 0 || len(pp.Removals) > 0 {
			plan.Parts = append(plan.Parts, pp)
		}
	}

	return plan, nil
}

// planParagraph turns the cuts of one paragraph into text edits and run removals. A
// run is removed when every text node in it was consumed, none hosts a replacement
// and it carries nothing but text.
func (p *planner) planParagraph(pp *PartPlan, pm paragraphMatches, cuts map[int][]cut) {
	if len(cuts) == 0 {
		return
	}
	para := &pp.Tree.Paragraphs[pm.paragraph]

	units := make([]int, 0, len(cuts))
	for u := range cuts {
		units = append(units, u)
	}
	sort.Ints(units)

	type runState struct {
		edits   []TextEdit
		keep    bool
		touched int
	}
	runs := make(map[int]*runState)
	var runOrder []int

	for _, u := range units {
		ref := pm.nodes[u]
		node := para.Runs[ref.run].Texts[ref.text]
		unitCuts := cuts[u]
		sort.SliceStable(unitCuts, func(i, j int) bool { return unitCuts[i].from < unitCuts[j].from })

		var pieces []EditPiece
		host := false
		pos := 0
		for _, c := range unitCuts {
			if c.from > pos {
				pieces = append(pieces, EditPiece{Kind: docxml.PieceText, Text: node.Text[pos:c.from]})
			}
			if c.host {
				host = true
				pieces = append(pieces, c.pieces...)
			}
			pos = c.to
		}
		if pos < len(node.Text) {
			pieces = append(pieces, EditPiece{Kind: docxml.PieceText, Text: node.Text[pos:]})
		}

		rs, ok := runs[ref.run]
		if !ok {
			rs = &runState{}
			runs[ref.run] = rs
			runOrder = append(runOrder, ref.run)
		}
		rs.touched++
		if host || len(pieces) > 0 {
			rs.keep = true
		}
		rs.edits = append(rs.edits, TextEdit{
			Paragraph: pm.paragraph,
			Run:       ref.run,
			Text:      ref.text,
			Pieces:    pieces,
		})
	}

	for _, ri := range runOrder {
		rs := runs[ri]
		run := &para.Runs[ri]
		if !rs.keep && !run.HasOtherContent && rs.touched == len(run.Texts) {
			pp.Removals = append(pp.Removals, RunRef{Paragraph: pm.paragraph, Run: ri})
			continue
		}
		pp.Edits = append(pp.Edits, rs.edits...)
	}
}

// replacementPieces renders a value as run content. Text keeps line breaks and tabs
// as Word elements; an image becomes a single piece bound to a new directive.
func (p *planner) replacementPieces(name string, value ReplacementValue, part string, paragraph, run int, pp *PartPlan) ([]EditPiece, error) {
	if value.Image == nil {
		return textPieces(value.Text), nil
	}

	img, err := p.images.load(value.Image)
	if err != nil {
		return nil, err
	}
	width, height := resolveDimensions(value.Image.Width, value.Image.Height, img.width, img.height)

	directive := &ImageDirective{
		Placeholder: name,
		Part:        part,
		Paragraph:   paragraph,
		Run:         run,
		Name:        imageName(name, value.Image),
		Data:        img.data,
		ContentType: img.contentType,
		WidthPx:     width,
		HeightPx:    height,
		CX:          PixelsToEMU(width),
		CY:          PixelsToEMU(height),
	}
	pp.Images = append(pp.Images, directive)
	return []EditPiece{{Kind: docxml.PieceMarkup, Image: directive}}, nil
}

func textPieces(text string) []EditPiece {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var pieces []EditPiece
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			pieces = append(pieces, EditPiece{Kind: docxml.PieceText, Text: sb.String()})
			sb.Reset()
		}
	}
	for _, r := range text {
		switch r {
		case '\n':
			flush()
			pieces = append(pieces, EditPiece{Kind: docxml.PieceBreak})
		case '\t':
			flush()
			pieces = append(pieces, EditPiece{Kind: docxml.PieceTab})
		default:
			sb.WriteRune(r)
		}
	}
	flush()
	return pieces
}

// resolveDimensions fills missing target dimensions from the native size.
func resolveDimensions(width, height, nativeWidth, nativeHeight int) (int, int) {
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0 && nativeWidth > 0:
		return width, (width*nativeHeight + nativeWidth/2) / nativeWidth
	case height > 0 && nativeHeight > 0:
		return (height*nativeWidth + nativeHeight/2) / nativeHeight, height
	default:
		return nativeWidth, nativeHeight
	}
}

func imageName(placeholder string, ref *ImageRef) string {
	if ref.Path != "" {
		return filepath.Base(ref.Path)
	}
	return placeholder
}

type loadedImage struct {
	data        []byte
	contentType string
	width       int
	height      int
}

// imageLoader reads each image file once per operation.
type imageLoader struct {
	mu    sync.Mutex
	cache map[string]*loadedImage
}

func newImageLoader() *imageLoader {
	return &imageLoader{cache: make(map[string]*loadedImage)}
}

func (l *imageLoader) load(ref *ImageRef) (*loadedImage, error) {
	if ref.Data != nil {
		return decodeImage(ref.Data, ref.Path)
	}
	if ref.Path == "" {
		return nil, fmt.Errorf("image reference has neither data nor path")
	}

	l.mu.Lock()
	if img, ok := l.cache[ref.Path]; ok {
		l.mu.Unlock()
		return img, nil
	}
	l.mu.Unlock()

	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, err
	}
	img, err := decodeImage(data, ref.Path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[ref.Path] = img
	l.mu.Unlock()
	return img, nil
}

func decodeImage(data []byte, name string) (*loadedImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", name, err)
	}

	var contentType string
	switch format {
	case "png":
		contentType = "image/png"
	case "jpeg":
		contentType = "image/jpeg"
	case "gif":
		contentType = "image/gif"
	default:
		return nil, fmt.Errorf("unsupported image format %q in %s", format, name)
	}

	return &loadedImage{
		data:        data,
		contentType: contentType,
		width:       cfg.Width,
		height:      cfg.Height,
	}, nil
}
