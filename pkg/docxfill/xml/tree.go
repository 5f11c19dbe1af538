package xml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// strictWordNamespace is the ISO 29500 strict variant of the main namespace.
const strictWordNamespace = "http://purl.oclc.org/ooxml/wordprocessingml/main"

// TextNode is one w:t element. Start/End cover the whole element; InnerStart/InnerEnd
// cover its character content and are equal for a self-closing element.
type TextNode struct {
	Start       int
	End         int
	InnerStart  int
	InnerEnd    int
	SelfClosing bool
	Text        string
}

// Run is one w:r element with its direct w:t children in document order.
type Run struct {
	Start int
	End   int
	// Prefix is the namespace prefix used on the run element, usually "w".
	Prefix string
	Texts  []TextNode
	// HasOtherContent is set when the run carries anything besides properties and text
	// (tabs, breaks, drawings, field characters). Such runs are never removed.
	HasOtherContent bool
}

// Text returns the concatenated text of the run's w:t children.
func (r *Run) Text() string {
	if len(r.Texts) == 1 {
		return r.Texts[0].Text
	}
	var sb strings.Builder
	for _, t := range r.Texts {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Paragraph is one w:p element. Runs nested in hyperlinks, insertions or smart tags
// belong to the paragraph; runs of a nested paragraph (text boxes) do not.
type Paragraph struct {
	Start int
	End   int
	Runs  []Run
}

// Fragments returns the text of each run, one entry per run.
func (p *Paragraph) Fragments() []string {
	frags := make([]string, len(p.Runs))
	for i := range p.Runs {
		frags[i] = p.Runs[i].Text()
	}
	return frags
}

// PartTree is the parsed paragraph/run structure of one part.
type PartTree struct {
	Name       string
	Kind       PartKind
	Data       []byte
	Paragraphs []Paragraph
}

type frameKind int

const (
	frameOther frameKind = iota
	frameParagraph
	frameRun
	frameText
)

type frame struct {
	kind  frameKind
	para  int
	run   int
	depth int
}

type paraState struct {
	para    int
	openRun int
	runDep  int
}

func isWordElement(name xml.Name, local string) bool {
	return name.Local == local && (name.Space == WordNamespace || name.Space == strictWordNamespace)
}

// ParsePart walks the token stream of a part and records paragraph, run and text
// spans. The part must be a well-formed document, header, footer, footnotes or
// endnotes part.
func ParsePart(name string, data []byte) (*PartTree, error) {
	tree := &PartTree{Name: name, Data: data}
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var (
		stack     []frame
		paras     []paraState
		textBuf   strings.Builder
		depth     int
		sawRoot   bool
		paragraph = func(idx int) *Paragraph { return &tree.Paragraphs[idx] }
	)

	for {
		startOffset := int(decoder.InputOffset())
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
		}
		endOffset := int(decoder.InputOffset())

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			if !sawRoot {
				sawRoot = true
				kind, ok := rootKinds[t.Name.Local]
				if !ok || (t.Name.Space != WordNamespace && t.Name.Space != strictWordNamespace) {
					return nil, fmt.Errorf("%w: %s has root element %q", ErrUnsupportedPart, name, t.Name.Local)
				}
				tree.Kind = kind
				stack = append(stack, frame{kind: frameOther, depth: depth})
				continue
			}

			f := frame{kind: frameOther, depth: depth}
			var top *paraState
			if len(paras) > 0 {
				top = &paras[len(paras)-1]
			}

			// Any direct child of an open run other than rPr and t is extra content.
			if top != nil && top.openRun >= 0 && depth == top.runDep+1 {
				run := &paragraph(top.para).Runs[top.openRun]
				if !isWordElement(t.Name, "rPr") && !isWordElement(t.Name, "t") {
					run.HasOtherContent = true
				}
			}

			switch {
			case isWordElement(t.Name, "p"):
				tree.Paragraphs = append(tree.Paragraphs, Paragraph{Start: startOffset, End: -1})
				idx := len(tree.Paragraphs) - 1
				paras = append(paras, paraState{para: idx, openRun: -1})
				f.kind = frameParagraph
				f.para = idx

			case isWordElement(t.Name, "r") && top != nil && top.openRun < 0:
				p := paragraph(top.para)
				p.Runs = append(p.Runs, Run{
					Start:  startOffset,
					End:    -1,
					Prefix: elementPrefix(data, startOffset),
				})
				top.openRun = len(p.Runs) - 1
				top.runDep = depth
				f.kind = frameRun
				f.para = top.para
				f.run = top.openRun

			case isWordElement(t.Name, "t") && top != nil && top.openRun >= 0 && depth == top.runDep+1:
				run := &paragraph(top.para).Runs[top.openRun]
				node := TextNode{Start: startOffset, End: -1, InnerStart: endOffset}
				node.SelfClosing = selfClosing(data, endOffset)
				run.Texts = append(run.Texts, node)
				textBuf.Reset()
				f.kind = frameText
				f.para = top.para
				f.run = top.openRun
			}
			stack = append(stack, f)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: %s: unbalanced end element %q", ErrCorrupt, name, t.Name.Local)
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			depth--

			switch f.kind {
			case frameParagraph:
				paragraph(f.para).End = endOffset
				paras = paras[:len(paras)-1]
			case frameRun:
				paragraph(f.para).Runs[f.run].End = endOffset
				paras[len(paras)-1].openRun = -1
			case frameText:
				run := &paragraph(f.para).Runs[f.run]
				node := &run.Texts[len(run.Texts)-1]
				node.End = endOffset
				if node.SelfClosing {
					node.InnerEnd = node.InnerStart
				} else {
					node.InnerEnd = startOffset
				}
				node.Text = textBuf.String()
				textBuf.Reset()
			}

		case xml.CharData:
			if len(stack) > 0 && stack[len(stack)-1].kind == frameText {
				textBuf.Write(t)
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: %s has no root element", ErrCorrupt, name)
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: %s: unexpected end of part", ErrCorrupt, name)
	}
	return tree, nil
}

// CheckWellFormed parses data completely and reports the first syntax error.
func CheckWellFormed(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
}

// selfClosing reports whether the start tag ending at offset end is written as "/>".
func selfClosing(data []byte, end int) bool {
	return end >= 2 && end <= len(data) && data[end-2] == '/' && data[end-1] == '>'
}

// elementPrefix returns the namespace prefix of the start tag at offset start.
func elementPrefix(data []byte, start int) string {
	if start >= len(data) || data[start] != '<' {
		return "w"
	}
	i := start + 1
	j := i
	for j < len(data) {
		c := data[j]
		if c == ' ' || c == '>' || c == '/' || c == '\t' || c == '\n' || c == '\r' {
			break
		}
		j++
	}
	qualified := string(data[i:j])
	if colon := strings.IndexByte(qualified, ':'); colon >= 0 {
		return qualified[:colon]
	}
	return ""
}
