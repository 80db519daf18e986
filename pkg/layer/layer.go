package layer

import (
	"fmt"
	"time"
)

// Scope identifies the level of the context hierarchy a layer belongs to.
// Scopes are ordered from least to most specific: global, domain, project,
// path, feature.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeDomain  Scope = "domain"
	ScopeProject Scope = "project"
	ScopePath    Scope = "path"
	ScopeFeature Scope = "feature"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeDomain, ScopeProject, ScopePath, ScopeFeature:
		return true
	}
	return false
}

// Kind classifies the content of a section.
type Kind string

const (
	// KindContext holds key→value facts describing current state.
	KindContext Kind = "context"
	// KindMemory holds timestamped historical records. Memory is additive:
	// it is never overridden across layers, only concatenated and archived.
	KindMemory Kind = "memory"
	// KindInstruction holds key→value directives. Merge semantics are
	// identical to context.
	KindInstruction Kind = "instruction"
)

// Valid reports whether k is a known section kind.
func (k Kind) Valid() bool {
	switch k {
	case KindContext, KindMemory, KindInstruction:
		return true
	}
	return false
}

// Entry is a single unit of content owned by exactly one section.
// For context and instruction sections Key names the fact and Value carries
// it; for memory sections Key is empty and Value is the record text.
type Entry struct {
	ID        string
	Key       string
	Value     string
	CreatedAt time.Time
	Pinned    bool
	// Priority orders context/instruction entries for budget trimming.
	// Lower values are kept longer. The loader assigns the insertion index
	// when a document does not set one explicitly.
	Priority        int
	EstimatedTokens int
}

// Section is an ordered run of entries of one kind.
type Section struct {
	Kind    Kind
	Entries []Entry
}

// TokenCost returns the summed estimated token cost of the section.
func (s Section) TokenCost() int {
	total := 0
	for _, e := range s.Entries {
		total += e.EstimatedTokens
	}
	return total
}

// Layer is a scoped bundle of sections. Layers are immutable once a
// snapshot is built; the store hands out shared pointers and nothing may
// mutate them afterwards.
type Layer struct {
	Scope        Scope
	Key          string
	Sections     []Section
	LastModified time.Time
	Pinned       bool
	// ContentHash is an xxhash over the canonical serialization of the
	// layer's content, computed at load time. Two layers with equal hashes
	// contribute identically to any bundle.
	ContentHash uint64
}

// Ref returns the stable provenance name of the layer, e.g.
// "project:backend-api". The global layer is always "global".
func (l *Layer) Ref() string {
	if l.Scope == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return fmt.Sprintf("%s:%s", l.Scope, l.Key)
}

// TokenCost returns the summed token cost of the given kinds, or of all
// sections when no kinds are passed.
func (l *Layer) TokenCost(kinds ...Kind) int {
	total := 0
	for _, s := range l.Sections {
		if len(kinds) == 0 || kindIn(s.Kind, kinds) {
			total += s.TokenCost()
		}
	}
	return total
}

// Section returns the first section of the given kind and whether one exists.
func (l *Layer) Section(kind Kind) (Section, bool) {
	for _, s := range l.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

func kindIn(k Kind, kinds []Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a single layer:
// a known scope, a key for every non-global scope, known section kinds,
// and non-negative token estimates.
func (l *Layer) Validate() error {
	if !l.Scope.Valid() {
		return fmt.Errorf("layer: unknown scope %q", l.Scope)
	}
	if l.Scope != ScopeGlobal && l.Key == "" {
		return fmt.Errorf("layer: %s layer missing key", l.Scope)
	}
	for _, s := range l.Sections {
		if !s.Kind.Valid() {
			return fmt.Errorf("layer %s: unknown section kind %q", l.Ref(), s.Kind)
		}
		for _, e := range s.Entries {
			if e.EstimatedTokens < 0 {
				return fmt.Errorf("layer %s: entry %s has negative token estimate", l.Ref(), e.ID)
			}
			if s.Kind != KindMemory && e.Key == "" {
				return fmt.Errorf("layer %s: %s entry %s missing key", l.Ref(), s.Kind, e.ID)
			}
		}
	}
	return nil
}
