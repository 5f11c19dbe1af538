package xml

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var docPrIDPattern = regexp.MustCompile(`<(?:[A-Za-z0-9_]+:)?docPr\b[^>]*?\bid="(\d+)"`)

// Drawing describes one inline picture.
type Drawing struct {
	RelID string
	ID    int
	Name  string
	// CX and CY are the extent in EMU.
	CX int64
	CY int64
}

// NextDrawingID returns a docPr id not used by any text-bearing part of the package.
func (p *Package) NextDrawingID() (int, error) {
	p.mu.Lock()
	last := p.lastDrawingID
	p.mu.Unlock()

	if last == 0 {
		for _, name := range p.TextParts() {
			if !p.HasPart(name) {
				continue
			}
			content, err := p.ReadPart(name)
			if err != nil {
				return 0, err
			}
			for _, m := range docPrIDPattern.FindAllSubmatch(content, -1) {
				if id, err := strconv.Atoi(string(m[1])); err == nil && id > last {
					last = id
				}
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastDrawingID > last {
		last = p.lastDrawingID
	}
	p.lastDrawingID = last + 1
	return p.lastDrawingID, nil
}

// Markup renders the drawing as a w:drawing element using the given WordprocessingML
// prefix. The DrawingML namespaces are declared locally, so the markup is valid in any
// part regardless of the declarations on its root element.
func (d Drawing) Markup(prefix string) []byte {
	w := func(local string) string {
		if prefix == "" {
			return local
		}
		return prefix + ":" + local
	}

	var b strings.Builder
	b.WriteString("<" + w("drawing") + ">")
	fmt.Fprintf(&b, `<wp:inline distT="0" distB="0" distL="0" distR="0" xmlns:wp="%s">`,
		"http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing")
	fmt.Fprintf(&b, `<wp:extent cx="%d" cy="%d"/>`, d.CX, d.CY)
	fmt.Fprintf(&b, `<wp:docPr id="%d" name="%s"/>`, d.ID, escapeAttr(d.Name))
	b.WriteString(`<wp:cNvGraphicFramePr><a:graphicFrameLocks xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" noChangeAspect="1"/></wp:cNvGraphicFramePr>`)
	b.WriteString(`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`)
	b.WriteString(`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`)
	b.WriteString(`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`)
	fmt.Fprintf(&b, `<pic:nvPicPr><pic:cNvPr id="0" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`, escapeAttr(d.Name))
	fmt.Fprintf(&b, `<pic:blipFill><a:blip r:embed="%s" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`, d.RelID)
	fmt.Fprintf(&b, `<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`, d.CX, d.CY)
	b.WriteString(`</pic:pic></a:graphicData></a:graphic></wp:inline>`)
	b.WriteString("</" + w("drawing") + ">")
	return []byte(b.String())
}

func escapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
