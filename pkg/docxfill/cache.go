package docxfill

import (
	"container/list"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// compiledPattern is a placeholder expression ready for matching.
type compiledPattern struct {
	source        string
	caseSensitive bool
	re            *regexp.Regexp
	// group is 1 when the expression captures the name, 0 when the whole match is used.
	group int
}

// PatternCache keeps recently compiled placeholder expressions.
type PatternCache struct {
	mu      sync.Mutex
	entries map[string]*patternEntry
	lru     *list.List
	maxSize int
}

type patternEntry struct {
	key     string
	pattern *compiledPattern
	element *list.Element
}

// NewPatternCache creates a cache holding at most maxSize expressions. 0 disables caching.
func NewPatternCache(maxSize int) *PatternCache {
	return &PatternCache{
		entries: make(map[string]*patternEntry),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// Compile returns the compiled form of pattern, compiling it on first use.
func (pc *PatternCache) Compile(pattern string, caseSensitive bool) (*compiledPattern, error) {
	key := fmt.Sprintf("%t\x00%s", caseSensitive, pattern)

	pc.mu.Lock()
	if entry, ok := pc.entries[key]; ok {
		pc.lru.MoveToFront(entry.element)
		pc.mu.Unlock()
		return entry.pattern, nil
	}
	pc.mu.Unlock()

	compiled, err := newCompiledPattern(pattern, caseSensitive)
	if err != nil {
		return nil, err
	}
	if pc.maxSize == 0 {
		return compiled, nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if entry, ok := pc.entries[key]; ok {
		pc.lru.MoveToFront(entry.element)
		return entry.pattern, nil
	}

	if pc.lru.Len() >= pc.maxSize {
		oldest := pc.lru.Back()
		if oldest != nil {
			oldEntry := oldest.Value.(*patternEntry)
			delete(pc.entries, oldEntry.key)
			pc.lru.Remove(oldest)
		}
	}

	entry := &patternEntry{key: key, pattern: compiled}
	entry.element = pc.lru.PushFront(entry)
	pc.entries[key] = entry
	return compiled, nil
}

// Size returns the current number of cached expressions
func (pc *PatternCache) Size() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.entries)
}

// Clear removes all cached expressions
func (pc *PatternCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries = make(map[string]*patternEntry)
	pc.lru = list.New()
}

var defaultPatternCache = NewPatternCache(32)

func compilePattern(pattern string, caseSensitive bool) (*compiledPattern, error) {
	return defaultPatternCache.Compile(pattern, caseSensitive)
}

func newCompiledPattern(pattern string, caseSensitive bool) (*compiledPattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, NewError(InvalidPattern, "pattern compilation", "", fmt.Errorf("pattern is empty"))
	}

	source := pattern
	if !caseSensitive {
		source = "(?i)" + pattern
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, NewError(InvalidPattern, "pattern compilation", "", err)
	}

	groups := re.NumSubexp()
	if groups > 1 {
		return nil, NewError(InvalidPattern, "pattern compilation", "",
			fmt.Errorf("pattern %q has %d capturing groups, at most one is allowed", pattern, groups))
	}

	return &compiledPattern{
		source:        pattern,
		caseSensitive: caseSensitive,
		re:            re,
		group:         groups,
	}, nil
}

// name extracts the placeholder name from a match returned by FindAllStringSubmatchIndex.
// Without a capturing group the delimiters around the match are stripped. An empty
// result means the match carries no usable name.
func (p *compiledPattern) name(text string, loc []int) string {
	if p.group == 1 {
		if loc[2] < 0 {
			return ""
		}
		return strings.TrimSpace(text[loc[2]:loc[3]])
	}
	return stripDelimiters(text[loc[0]:loc[1]])
}

// stripDelimiters removes leading and trailing punctuation and whitespace, turning
// "{{NAME}}", "${NAME}" or "[[ NAME ]]" into "NAME".
func stripDelimiters(token string) string {
	return strings.TrimFunc(token, func(r rune) bool {
		switch r {
		case '{', '}', '[', ']', '(', ')', '<', '>', '$', '%', '#', '@', '!', '|', '~', '*', ' ', '\t':
			return true
		}
		return false
	})
}
