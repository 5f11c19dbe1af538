package xml

import (
	"regexp"
	"sort"
	"strconv"
)

// WordprocessingML main namespace.
const WordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// PartKind identifies the content model of a text-bearing part.
type PartKind int

const (
	PartUnknown PartKind = iota
	PartDocument
	PartHeader
	PartFooter
	PartFootnotes
	PartEndnotes
)

func (k PartKind) String() string {
	switch k {
	case PartDocument:
		return "document"
	case PartHeader:
		return "header"
	case PartFooter:
		return "footer"
	case PartFootnotes:
		return "footnotes"
	case PartEndnotes:
		return "endnotes"
	default:
		return "unknown"
	}
}

var (
	headerPartPattern = regexp.MustCompile(`^word/header(\d*)\.xml$`)
	footerPartPattern = regexp.MustCompile(`^word/footer(\d*)\.xml$`)
	notesPartPattern  = regexp.MustCompile(`^word/(footnotes|endnotes)\.xml$`)
)

// rootKinds maps the local name of a part's root element to its kind.
var rootKinds = map[string]PartKind{
	"document":  PartDocument,
	"hdr":       PartHeader,
	"ftr":       PartFooter,
	"footnotes": PartFootnotes,
	"endnotes":  PartEndnotes,
}

// TextParts returns the names of every text-bearing part: the main document first,
// then headers, footers, footnotes and endnotes, each group in numeric order.
func (p *Package) TextParts() []string {
	var headers, footers, notes []string
	for name := range p.Parts {
		switch {
		case headerPartPattern.MatchString(name):
			headers = append(headers, name)
		case footerPartPattern.MatchString(name):
			footers = append(footers, name)
		case notesPartPattern.MatchString(name):
			notes = append(notes, name)
		}
	}

	sortNumbered(headers, headerPartPattern)
	sortNumbered(footers, footerPartPattern)
	sort.Strings(notes)

	parts := make([]string, 0, 1+len(headers)+len(footers)+len(notes))
	parts = append(parts, mainDocumentPart)
	parts = append(parts, headers...)
	parts = append(parts, footers...)
	parts = append(parts, notes...)
	return parts
}

// sortNumbered orders header2.xml before header10.xml.
func sortNumbered(names []string, pattern *regexp.Regexp) {
	number := func(name string) int {
		m := pattern.FindStringSubmatch(name)
		if len(m) < 2 || m[1] == "" {
			return 0
		}
		n, _ := strconv.Atoi(m[1])
		return n
	}
	sort.Slice(names, func(i, j int) bool {
		ni, nj := number(names[i]), number(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}
