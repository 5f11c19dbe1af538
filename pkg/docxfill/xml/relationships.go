package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"
)

const (
	relationshipsNamespace = "http://schemas.openxmlformats.org/package/2006/relationships"
	imageRelationshipType  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// Relationship is one entry of a part's relationships file.
type Relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// Relationships is the root of a .rels part.
type Relationships struct {
	XMLName      xml.Name       `xml:"Relationships"`
	Relationship []Relationship `xml:"Relationship"`
}

type contentTypes struct {
	XMLName  xml.Name             `xml:"Types"`
	Defaults []contentTypeDefault `xml:"Default"`
}

type contentTypeDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// RelationshipsPartName returns the relationships part for owner, for example
// word/_rels/document.xml.rels for word/document.xml.
func RelationshipsPartName(owner string) string {
	return path.Join(path.Dir(owner), "_rels", path.Base(owner)+".rels")
}

// Relationships returns the parsed relationships of owner. A part without a
// relationships file has none.
func (p *Package) Relationships(owner string) (*Relationships, error) {
	name := RelationshipsPartName(owner)
	if !p.HasPart(name) {
		return &Relationships{}, nil
	}
	content, err := p.ReadPart(name)
	if err != nil {
		return nil, err
	}
	var rels Relationships
	if err := xml.Unmarshal(content, &rels); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrCorrupt, name, err)
	}
	return &rels, nil
}

// AddImage stores data as a new media part, registers an image relationship from owner
// to it and makes sure the package declares a content type for its extension. The
// returned relationship id can be used as r:embed inside owner.
func (p *Package) AddImage(owner string, data []byte, contentType string) (string, error) {
	ext := imageExtension(contentType)
	if ext == "" {
		return "", fmt.Errorf("unsupported image type: %s", contentType)
	}

	mediaName := p.nextMediaName(ext)
	target := strings.TrimPrefix(mediaName, path.Dir(owner)+"/")

	rels, err := p.Relationships(owner)
	if err != nil {
		return "", err
	}
	relID := getNextRelationshipID(rels)

	relsName := RelationshipsPartName(owner)
	entry := fmt.Sprintf(`<Relationship Id="%s" Type="%s" Target="%s"/>`, relID, imageRelationshipType, target)

	var relsContent []byte
	if p.HasPart(relsName) {
		existing, err := p.ReadPart(relsName)
		if err != nil {
			return "", err
		}
		relsContent, err = insertBeforeClose(existing, "Relationships", entry)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, relsName, err)
		}
	} else {
		relsContent = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
			`<Relationships xmlns="` + relationshipsNamespace + `">` + entry + `</Relationships>`)
	}

	if err := p.ensureContentType(ext, contentType); err != nil {
		return "", err
	}

	p.StagePart(mediaName, data)
	p.StagePart(relsName, relsContent)
	return relID, nil
}

// ensureContentType adds a Default entry for ext unless one exists.
func (p *Package) ensureContentType(ext, contentType string) error {
	content, err := p.ReadPart(ContentTypesPart)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var types contentTypes
	if err := xml.Unmarshal(content, &types); err != nil {
		return fmt.Errorf("%w: failed to parse %s: %v", ErrCorrupt, ContentTypesPart, err)
	}
	for _, d := range types.Defaults {
		if strings.EqualFold(d.Extension, ext) {
			return nil
		}
	}
	entry := fmt.Sprintf(`<Default Extension="%s" ContentType="%s"/>`, ext, contentType)
	updated, err := insertBeforeClose(content, "Types", entry)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, ContentTypesPart, err)
	}
	p.StagePart(ContentTypesPart, updated)
	return nil
}

func (p *Package) nextMediaName(ext string) string {
	for i := 1; ; i++ {
		name := fmt.Sprintf("word/media/image%d.%s", i, ext)
		if !p.HasPart(name) {
			return name
		}
	}
}

// getNextRelationshipID generates the next available relationship ID
func getNextRelationshipID(rels *Relationships) string {
	maxID := 0

	for _, rel := range rels.Relationship {
		if strings.HasPrefix(rel.ID, "rId") {
			idStr := rel.ID[3:]
			if id, err := strconv.Atoi(idStr); err == nil && id > maxID {
				maxID = id
			}
		}
	}

	return fmt.Sprintf("rId%d", maxID+1)
}

// insertBeforeClose inserts entry right before the last closing tag of the root element.
func insertBeforeClose(content []byte, root, entry string) ([]byte, error) {
	closing := []byte("</" + root + ">")
	idx := bytes.LastIndex(content, closing)
	if idx < 0 {
		// A root without children may be written as <Types .../>.
		selfClose := bytes.LastIndex(content, []byte("/>"))
		open := bytes.Index(content, []byte("<"+root))
		if open < 0 || selfClose < open {
			return nil, fmt.Errorf("missing </%s>", root)
		}
		out := make([]byte, 0, len(content)+len(entry)+len(closing))
		out = append(out, content[:selfClose]...)
		out = append(out, '>')
		out = append(out, entry...)
		out = append(out, closing...)
		out = append(out, content[selfClose+2:]...)
		return out, nil
	}
	out := make([]byte, 0, len(content)+len(entry))
	out = append(out, content[:idx]...)
	out = append(out, entry...)
	out = append(out, content[idx:]...)
	return out, nil
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpeg"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	default:
		return ""
	}
}
