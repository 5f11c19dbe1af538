// Package index maps a paragraph's logical text back to the runs it came from.
//
// Word splits text into runs wherever formatting, proofing marks or editing history
// change, so a token such as {{NAME}} is often stored as "{{NA" in one run and "ME}}"
// in the next. Build flattens the run texts of one paragraph into a single string and
// keeps the cumulative start offset of every run, so a match found in the flattened
// string can be mapped back to per-run segments with Locate and Span.
//
// Offsets are byte offsets into the UTF-8 string, the same unit regexp reports.
// Runs without text keep their index but own no offsets.
//
// Like the other helper packages, index holds no state beyond the Text value and does
// not depend on the package that parses runs; callers pass plain strings.
//
//	text := index.Build([]string{"Dear {{NA", "ME}}", ","})
//	segs := text.Span(5, 13)
//	// segs: {Run: 0, From: 5, To: 9}, {Run: 1, From: 0, To: 4, Whole: true}
package index
