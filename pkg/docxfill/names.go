package docxfill

import (
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// nameKey returns the identity of a placeholder name. Case-insensitive keys are NFC
// normalized and case folded, so "Straße", "STRASSE" and "strasse" share one key.
func nameKey(name string, caseSensitive bool) string {
	if caseSensitive {
		return name
	}
	// A Caser is stateful; each call gets its own.
	return cases.Fold().String(norm.NFC.String(name))
}

// valueIndex resolves placeholder names against a ReplacementMap.
type valueIndex struct {
	caseSensitive bool
	values        map[string]ReplacementValue
	keys          map[string]string
}

func newValueIndex(m ReplacementMap, caseSensitive bool) *valueIndex {
	idx := &valueIndex{
		caseSensitive: caseSensitive,
		values:        make(map[string]ReplacementValue, len(m)),
		keys:          make(map[string]string, len(m)),
	}

	// Map keys are visited in sorted order so the first spelling wins deterministically
	// when two keys fold together.
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := nameKey(name, caseSensitive)
		if _, exists := idx.values[key]; exists {
			continue
		}
		idx.values[key] = m[name]
		idx.keys[key] = name
	}
	return idx
}

// lookup returns the value for a placeholder key.
func (v *valueIndex) lookup(key string) (ReplacementValue, bool) {
	value, ok := v.values[key]
	return value, ok
}

// mapKey returns the map key spelling that serves key.
func (v *valueIndex) mapKey(key string) string {
	return v.keys[key]
}
