package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
)

// Splice replaces data[Start:End] with Data.
type Splice struct {
	Start int
	End   int
	Data  []byte
}

// ApplySplices applies non-overlapping splices to data and returns a new slice.
// The input is never modified.
func ApplySplices(data []byte, splices []Splice) ([]byte, error) {
	ordered := append([]Splice(nil), splices...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var out bytes.Buffer
	out.Grow(len(data))
	pos := 0
	for _, s := range ordered {
		if s.Start < pos || s.End < s.Start || s.End > len(data) {
			return nil, fmt.Errorf("invalid splice [%d,%d) at position %d", s.Start, s.End, pos)
		}
		out.Write(data[pos:s.Start])
		out.Write(s.Data)
		pos = s.End
	}
	out.Write(data[pos:])
	return out.Bytes(), nil
}

// PieceKind is the kind of content written into a run.
type PieceKind int

const (
	PieceText PieceKind = iota
	PieceBreak
	PieceTab
	PieceMarkup
)

// Piece is one item of run content produced by an edit.
type Piece struct {
	Kind   PieceKind
	Text   string
	Markup []byte
}

// RenderText renders pieces in place of the text node. Text pieces are written into
// copies of the node's own start tag, so its attributes survive; breaks, tabs and raw
// markup close the current text element and are written as siblings inside the run.
func RenderText(data []byte, node TextNode, pieces []Piece) []byte {
	prefix := elementPrefix(data, node.Start)
	qualify := func(local string) string {
		if prefix == "" {
			return local
		}
		return prefix + ":" + local
	}

	open := textStartTag(data, node)
	closeTag := []byte("</" + qualify("t") + ">")

	var out bytes.Buffer
	inText := false
	wroteText := false
	startText := func() {
		if !inText {
			out.Write(open)
			inText = true
			wroteText = true
		}
	}
	endText := func() {
		if inText {
			out.Write(closeTag)
			inText = false
		}
	}

	for _, piece := range pieces {
		switch piece.Kind {
		case PieceText:
			if piece.Text == "" {
				continue
			}
			startText()
			_ = xml.EscapeText(&out, []byte(piece.Text))
		case PieceBreak:
			endText()
			out.WriteString("<" + qualify("br") + "/>")
		case PieceTab:
			endText()
			out.WriteString("<" + qualify("tab") + "/>")
		case PieceMarkup:
			endText()
			out.Write(piece.Markup)
		}
	}
	endText()

	if !wroteText && out.Len() == 0 {
		out.Write(open)
		out.Write(closeTag)
	}
	return out.Bytes()
}

// textStartTag returns the node's start tag as a non-self-closing tag carrying
// xml:space="preserve".
func textStartTag(data []byte, node TextNode) []byte {
	tag := append([]byte(nil), data[node.Start:node.InnerStart]...)
	if node.SelfClosing {
		tag = append(tag[:len(tag)-2], '>')
	}
	if !bytes.Contains(tag, []byte("xml:space")) {
		end := len(tag) - 1
		for end > 0 && (tag[end-1] == ' ' || tag[end-1] == '\t' || tag[end-1] == '\n' || tag[end-1] == '\r') {
			end--
		}
		rebuilt := make([]byte, 0, len(tag)+24)
		rebuilt = append(rebuilt, tag[:end]...)
		rebuilt = append(rebuilt, ` xml:space="preserve">`...)
		tag = rebuilt
	}
	return tag
}
