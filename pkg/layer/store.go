package layer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/strata/pkg/pathmatch"
	"github.com/entrhq/strata/pkg/tokenizer"
)

// Snapshot is an immutable, fully-indexed view of every layer loaded from
// one Reload. Resolutions run against exactly one snapshot end-to-end, so
// a concurrent reload can never produce a torn read across layers.
type Snapshot struct {
	id        string
	hash      uint64
	createdAt time.Time

	global   *Layer
	domains  map[string]*Layer
	projects map[string]*Layer
	features map[string]*Layer
	// paths maps a glob pattern to the layers keyed by it. Patterns need
	// not be unique; duplicates are ordered by content hash so chain
	// construction stays reproducible.
	paths   map[string][]*Layer
	matcher *pathmatch.Matcher

	warnings []string
}

// ID returns the snapshot's unique identifier.
func (s *Snapshot) ID() string { return s.id }

// Hash returns the combined content hash of every layer in the snapshot.
func (s *Snapshot) Hash() uint64 { return s.hash }

// CreatedAt returns when the snapshot was built.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Warnings returns load warnings recorded in relaxed mode, one per skipped
// or degraded document.
func (s *Snapshot) Warnings() []string {
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Global returns the global layer, or false when the snapshot has none.
func (s *Snapshot) Global() (*Layer, bool) {
	return s.global, s.global != nil
}

// Domain looks up a domain layer by name.
func (s *Snapshot) Domain(name string) (*Layer, bool) {
	l, ok := s.domains[name]
	return l, ok
}

// Project looks up a project layer by name.
func (s *Snapshot) Project(name string) (*Layer, bool) {
	l, ok := s.projects[name]
	return l, ok
}

// Feature looks up a feature layer by name.
func (s *Snapshot) Feature(name string) (*Layer, bool) {
	l, ok := s.features[name]
	return l, ok
}

// PathLayers returns the layers keyed by the given glob pattern.
func (s *Snapshot) PathLayers(pattern string) []*Layer {
	return s.paths[pattern]
}

// Match returns the path-layer patterns matching filePath, most specific
// first. An empty file path matches nothing.
func (s *Snapshot) Match(filePath string) []string {
	if filePath == "" || s.matcher == nil {
		return nil
	}
	return s.matcher.Match(filePath)
}

// LayerCount returns the total number of layers in the snapshot.
func (s *Snapshot) LayerCount() int {
	n := len(s.domains) + len(s.projects) + len(s.features)
	if s.global != nil {
		n++
	}
	for _, layers := range s.paths {
		n += len(layers)
	}
	return n
}

// StoreOptions configures snapshot building.
type StoreOptions struct {
	// Strict makes any structural validation failure fail the whole
	// reload. When false (relaxed mode) bad documents are skipped and
	// recorded as snapshot warnings.
	Strict bool
	// Tokenizer fills in missing per-entry token estimates at load time.
	// A nil Tokenizer falls back to tokenizer.New().
	Tokenizer *tokenizer.Tokenizer
}

// Store owns the current snapshot and swaps it atomically on reload.
// Reads through Snapshot never block on an in-progress reload.
type Store struct {
	snap atomic.Pointer[Snapshot]
	opts StoreOptions
}

// NewStore creates a store holding an empty snapshot. An empty snapshot has
// no global layer, so resolutions against it fail until the first Reload.
func NewStore(opts StoreOptions) *Store {
	if opts.Tokenizer == nil {
		opts.Tokenizer = tokenizer.New()
	}
	s := &Store{opts: opts}
	s.snap.Store(emptySnapshot())
	return s
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		domains:   map[string]*Layer{},
		projects:  map[string]*Layer{},
		features:  map[string]*Layer{},
		paths:     map[string][]*Layer{},
	}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Reload builds a new snapshot from the source and swaps it in atomically.
// In strict mode the first structural failure aborts the reload and the
// previous snapshot stays in place untouched.
func (s *Store) Reload(ctx context.Context, src Source) (*Snapshot, error) {
	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.build(docs)
	if err != nil {
		return nil, err
	}
	s.snap.Store(snap)
	return snap, nil
}

func (s *Store) build(docs []RawDocument) (*Snapshot, error) {
	snap := emptySnapshot()

	var all []*Layer
	var patterns []string
	for _, raw := range docs {
		l, err := s.buildLayer(raw)
		if err != nil {
			if s.opts.Strict {
				return nil, err
			}
			snap.warnings = append(snap.warnings, err.Error())
			slog.Debug("layer: skipping invalid document", "path", raw.Path, "err", err)
			continue
		}
		if err := snap.index(l); err != nil {
			if s.opts.Strict {
				return nil, &LoadError{Path: raw.Path, Key: l.Key, Reason: err.Error()}
			}
			snap.warnings = append(snap.warnings, err.Error())
			slog.Debug("layer: skipping conflicting document", "path", raw.Path, "err", err)
			continue
		}
		all = append(all, l)
		if l.Scope == ScopePath {
			patterns = append(patterns, l.Key)
		}
	}

	matcher, err := pathmatch.New(patterns)
	if err != nil {
		// Patterns are validated per layer in buildLayer, so a compile
		// failure here indicates a pathmatch/glob version mismatch.
		return nil, &LoadError{Reason: "pattern compilation", Err: err}
	}
	snap.matcher = matcher

	if snap.global == nil {
		snap.warnings = append(snap.warnings, "no global layer loaded")
	}
	for _, layers := range snap.paths {
		sort.Slice(layers, func(i, j int) bool {
			return layers[i].ContentHash < layers[j].ContentHash
		})
	}
	snap.hash = snapshotHash(all)
	return snap, nil
}

// buildLayer parses and validates one document and materializes the layer,
// filling entry defaults (IDs, timestamps, priorities, token estimates).
func (s *Store) buildLayer(raw RawDocument) (*Layer, error) {
	doc, err := Parse(raw.Data)
	if err != nil {
		return nil, &LoadError{Path: raw.Path, Reason: "parse", Err: err}
	}

	lastModified := doc.LastModified
	if lastModified.IsZero() {
		lastModified = raw.ModTime
	}

	l := &Layer{
		Scope:        Scope(doc.Scope),
		Key:          doc.Key,
		Pinned:       doc.Pinned,
		LastModified: lastModified,
	}
	if l.Scope == ScopeGlobal && l.Key == "" {
		l.Key = string(ScopeGlobal)
	}

	sections := doc.Sections
	if len(sections) == 0 && doc.Body != "" {
		// A bare markdown body becomes a single context fact.
		sections = []DocSection{{
			Kind:    string(KindContext),
			Entries: []DocEntry{{Key: "overview", Value: doc.Body}},
		}}
	}
	for si, ds := range sections {
		sec := Section{Kind: Kind(ds.Kind)}
		for i, de := range ds.Entries {
			e := Entry{
				ID:     de.ID,
				Key:    de.Key,
				Value:  de.Value,
				Pinned: de.Pinned,
			}
			if e.ID == "" {
				// Derived, not random: the ID feeds the content hash, so
				// identical documents must produce identical IDs.
				e.ID = deriveEntryID(raw.Path, si, i)
			}
			if de.CreatedAt != nil {
				e.CreatedAt = *de.CreatedAt
			} else {
				e.CreatedAt = lastModified
			}
			if de.Priority != nil {
				e.Priority = *de.Priority
			} else {
				e.Priority = i
			}
			if de.EstimatedTokens != nil {
				e.EstimatedTokens = *de.EstimatedTokens
			} else {
				e.EstimatedTokens = s.opts.Tokenizer.Count(e.Key + " " + e.Value)
			}
			sec.Entries = append(sec.Entries, e)
		}
		l.Sections = append(l.Sections, sec)
	}

	if err := l.Validate(); err != nil {
		return nil, &LoadError{Path: raw.Path, Key: l.Key, Reason: "validate", Err: err}
	}
	if l.Scope == ScopePath {
		if _, err := pathmatch.New([]string{l.Key}); err != nil {
			return nil, &LoadError{Path: raw.Path, Key: l.Key, Reason: "invalid glob", Err: err}
		}
	}
	l.ContentHash = contentHash(l)
	return l, nil
}

// index places a layer into the snapshot maps, rejecting duplicate keys in
// every scope except path.
func (snap *Snapshot) index(l *Layer) error {
	switch l.Scope {
	case ScopeGlobal:
		if snap.global != nil {
			return fmt.Errorf("layer: duplicate global layer %q", l.Key)
		}
		snap.global = l
	case ScopeDomain:
		if _, exists := snap.domains[l.Key]; exists {
			return fmt.Errorf("layer: duplicate domain layer %q", l.Key)
		}
		snap.domains[l.Key] = l
	case ScopeProject:
		if _, exists := snap.projects[l.Key]; exists {
			return fmt.Errorf("layer: duplicate project layer %q", l.Key)
		}
		snap.projects[l.Key] = l
	case ScopeFeature:
		if _, exists := snap.features[l.Key]; exists {
			return fmt.Errorf("layer: duplicate feature layer %q", l.Key)
		}
		snap.features[l.Key] = l
	case ScopePath:
		snap.paths[l.Key] = append(snap.paths[l.Key], l)
	default:
		return fmt.Errorf("layer: unknown scope %q", l.Scope)
	}
	return nil
}
