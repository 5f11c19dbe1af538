package docxfill

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// IssueKind classifies a replacement validation issue.
type IssueKind int

const (
	// IssueUnmapped is a placeholder found in the files without a value in the map.
	IssueUnmapped IssueKind = iota
	// IssueUnused is a map entry that matches no placeholder.
	IssueUnused
)

func (k IssueKind) String() string {
	if k == IssueUnused {
		return "unused"
	}
	return "unmapped"
}

// ReplacementIssue is one problem found by Validate.
type ReplacementIssue struct {
	Kind    IssueKind
	Name    string
	Message string
	// Suggestion is the closest unused map key for an unmapped placeholder.
	Suggestion string
}

// ReplacementValidationResult lists every issue between a scan and a replacement map.
type ReplacementValidationResult struct {
	Issues []ReplacementIssue
}

// IsValid reports whether the map covers exactly the placeholders found.
func (r *ReplacementValidationResult) IsValid() bool {
	return len(r.Issues) == 0
}

// Unmapped returns the issues for placeholders without a value.
func (r *ReplacementValidationResult) Unmapped() []ReplacementIssue {
	return r.filter(IssueUnmapped)
}

// Unused returns the issues for map keys that match nothing.
func (r *ReplacementValidationResult) Unused() []ReplacementIssue {
	return r.filter(IssueUnused)
}

func (r *ReplacementValidationResult) filter(kind IssueKind) []ReplacementIssue {
	var out []ReplacementIssue
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}

// Err returns an UnmappedPlaceholder error naming every unmapped placeholder, or nil.
func (r *ReplacementValidationResult) Err() error {
	unmapped := r.Unmapped()
	if len(unmapped) == 0 {
		return nil
	}
	names := make([]string, len(unmapped))
	for i, issue := range unmapped {
		names[i] = issue.Name
	}
	return NewError(UnmappedPlaceholder, "replacement validation", "",
		fmt.Errorf("%d placeholders have no value: %s", len(names), strings.Join(names, ", ")))
}

// validateMapping compares the placeholders of a scan with the keys of a map. Every
// issue is collected; unmapped issues come first in scan order, then unused keys in
// key order.
func validateMapping(scan *PlaceholderScanResult, m ReplacementMap, caseSensitive bool) *ReplacementValidationResult {
	result := &ReplacementValidationResult{}
	values := newValueIndex(m, caseSensitive)

	found := make(map[string]bool)
	var unmapped []string
	if scan != nil {
		for _, p := range scan.Placeholders {
			key := nameKey(p.Name, caseSensitive)
			found[key] = true
			if _, ok := values.lookup(key); !ok {
				unmapped = append(unmapped, p.Name)
			}
		}
	}

	var unused []string
	for name := range m {
		if !found[nameKey(name, caseSensitive)] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)

	for _, name := range unmapped {
		issue := ReplacementIssue{
			Kind:    IssueUnmapped,
			Name:    name,
			Message: fmt.Sprintf("placeholder %q has no replacement value", name),
		}
		if suggestion := suggest(name, unused); suggestion != "" {
			issue.Suggestion = suggestion
			issue.Message += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		result.Issues = append(result.Issues, issue)
	}

	for _, name := range unused {
		result.Issues = append(result.Issues, ReplacementIssue{
			Kind:    IssueUnused,
			Name:    name,
			Message: fmt.Sprintf("replacement %q matches no placeholder", name),
		})
	}
	return result
}

// suggest returns the candidate closest to name. A candidate qualifies when either
// string is a fuzzy subsequence of the other.
func suggest(name string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	if matches := fuzzy.Find(name, candidates); len(matches) > 0 {
		return matches[0].Str
	}

	best, bestScore := "", 0
	for _, candidate := range candidates {
		matches := fuzzy.Find(candidate, []string{name})
		if len(matches) == 0 {
			continue
		}
		if best == "" || matches[0].Score > bestScore {
			best, bestScore = candidate, matches[0].Score
		}
	}
	return best
}
