// Package pathmatch ranks path-scoped layers against file paths.
//
// Patterns are glob expressions compiled once at snapshot build time with
// '/' as the separator, so '*' never crosses a directory boundary while
// '**' does. Match results are ordered by specificity: more literal path
// segments first, then longer literal prefix, then lexicographically
// smaller pattern. The ordering is a pure function of the pattern text, so
// match output is reproducible across processes.
package pathmatch

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// wildcardChars are the glob metacharacters recognised by gobwas/glob.
const wildcardChars = "*?[{"

type compiledPattern struct {
	pattern string
	g       glob.Glob
	// literalSegments counts path segments containing no wildcard.
	literalSegments int
	// literalPrefix is the run of leading characters before the first
	// wildcard character.
	literalPrefix string
}

// Matcher matches file paths against a fixed set of glob patterns.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	patterns []compiledPattern
}

// New compiles the given patterns. A pattern that fails to compile is a
// construction error; malformed globs are rejected at load time, never at
// match time. Duplicate patterns are collapsed.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	seen := make(map[string]bool, len(patterns))
	for _, pattern := range patterns {
		if seen[pattern] {
			continue
		}
		seen[pattern] = true
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("pathmatch: invalid pattern %q: %w", pattern, err)
		}
		m.patterns = append(m.patterns, compiledPattern{
			pattern:         pattern,
			g:               g,
			literalSegments: countLiteralSegments(pattern),
			literalPrefix:   literalPrefix(pattern),
		})
	}
	return m, nil
}

// Match returns the patterns matching filePath, most specific first.
// A path matching no patterns yields nil.
func (m *Matcher) Match(filePath string) []string {
	cleaned := path.Clean(strings.ReplaceAll(filePath, "\\", "/"))
	var matched []compiledPattern
	for _, p := range m.patterns {
		if p.g.Match(cleaned) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return moreSpecific(matched[i], matched[j])
	})
	out := make([]string, len(matched))
	for i, p := range matched {
		out[i] = p.pattern
	}
	return out
}

// moreSpecific implements the deterministic specificity ordering.
func moreSpecific(a, b compiledPattern) bool {
	if a.literalSegments != b.literalSegments {
		return a.literalSegments > b.literalSegments
	}
	if len(a.literalPrefix) != len(b.literalPrefix) {
		return len(a.literalPrefix) > len(b.literalPrefix)
	}
	return a.pattern < b.pattern
}

func countLiteralSegments(pattern string) int {
	count := 0
	for _, seg := range strings.Split(pattern, "/") {
		if seg != "" && !strings.ContainsAny(seg, wildcardChars) {
			count++
		}
	}
	return count
}

func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, wildcardChars); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
