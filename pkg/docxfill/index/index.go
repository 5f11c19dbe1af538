package index

import (
	"sort"
	"strings"
)

// Text is the logical text of one paragraph.
type Text struct {
	value   string
	starts  []int
	lengths []int
}

// Position is a location inside one run.
type Position struct {
	Run    int
	Offset int
}

// Segment is the part of one run covered by a logical range. Whole is set when the
// range covers the entire run text.
type Segment struct {
	Run   int
	From  int
	To    int
	Whole bool
}

// Build flattens fragments, one per run, into a Text.
func Build(fragments []string) *Text {
	t := &Text{
		starts:  make([]int, len(fragments)),
		lengths: make([]int, len(fragments)),
	}

	var sb strings.Builder
	offset := 0
	for i, frag := range fragments {
		t.starts[i] = offset
		t.lengths[i] = len(frag)
		offset += len(frag)
		sb.WriteString(frag)
	}
	t.value = sb.String()
	return t
}

// String returns the flattened text.
func (t *Text) String() string { return t.value }

// Len returns the length of the flattened text in bytes.
func (t *Text) Len() int { return len(t.value) }

// Locate maps a logical offset to the run holding that byte. The end offset maps to
// the end of the last run with text. Run is -1 when the offset is out of range or the
// paragraph has no text.
func (t *Text) Locate(offset int) Position {
	if offset < 0 || offset > len(t.value) || len(t.value) == 0 {
		return Position{Run: -1}
	}
	if offset == len(t.value) {
		for i := len(t.lengths) - 1; i >= 0; i-- {
			if t.lengths[i] > 0 {
				return Position{Run: i, Offset: t.lengths[i]}
			}
		}
	}

	// First run whose end lies beyond offset; zero-length runs never qualify.
	i := sort.Search(len(t.starts), func(i int) bool {
		return t.starts[i]+t.lengths[i] > offset
	})
	return Position{Run: i, Offset: offset - t.starts[i]}
}

// Span returns the run segments covering [start, end), in run order. Runs without
// text inside the range are skipped.
func (t *Text) Span(start, end int) []Segment {
	if start < 0 {
		start = 0
	}
	if end > len(t.value) {
		end = len(t.value)
	}
	if start >= end {
		return nil
	}

	first := t.Locate(start)
	var segments []Segment
	for i := first.Run; i < len(t.starts) && t.starts[i] < end; i++ {
		if t.lengths[i] == 0 {
			continue
		}
		runStart := t.starts[i]
		runEnd := runStart + t.lengths[i]
		from := max(start, runStart) - runStart
		to := min(end, runEnd) - runStart
		segments = append(segments, Segment{
			Run:   i,
			From:  from,
			To:    to,
			Whole: from == 0 && to == t.lengths[i],
		})
	}
	return segments
}
