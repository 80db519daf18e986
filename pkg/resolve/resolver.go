// Package resolve builds and merges the layer chain for one request.
//
// The chain is assembled in fixed scope order (global, domain, project,
// path matches, feature) and merged under "most specific wins": for every
// context/instruction key contributed by more than one layer, the most
// specific layer's value wins and the losing values are retained with a
// superseded-by annotation. Memory entries are never merged, only
// concatenated with provenance. Resolution is a pure function of the
// snapshot and the request; it performs no I/O.
package resolve

import (
	"fmt"
	"time"

	"github.com/entrhq/strata/pkg/archive"
	"github.com/entrhq/strata/pkg/budget"
	"github.com/entrhq/strata/pkg/layer"
)

// MissingMandatoryLayerError reports a resolution against a snapshot that
// lacks an always-required layer. Only the global layer is mandatory;
// requesting an absent domain/project/feature is not an error.
type MissingMandatoryLayerError struct {
	Scope layer.Scope
}

func (e *MissingMandatoryLayerError) Error() string {
	return fmt.Sprintf("resolve: mandatory %s layer missing from snapshot", e.Scope)
}

// Options configures a resolver.
type Options struct {
	// RetentionDays is the archival threshold for memory entries.
	// Non-positive disables archival.
	RetentionDays int
	// FillOrder overrides the budget allocator's scope fill order.
	FillOrder []layer.Scope
}

// Resolver resolves requests against layer snapshots.
type Resolver struct {
	retentionDays int
	alloc         *budget.Allocator
}

// New creates a resolver.
func New(opts Options) *Resolver {
	return &Resolver{
		retentionDays: opts.RetentionDays,
		alloc:         budget.New(opts.FillOrder...),
	}
}

// Resolve builds the candidate chain, archives stale memory, fits the
// result to the request budget, and merges facts specific-wins.
func (r *Resolver) Resolve(snap *layer.Snapshot, req Request) (*Bundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	chain, err := r.buildChain(snap, req)
	if err != nil {
		return nil, err
	}

	candidates := make([]budget.Candidate, 0, len(chain))
	for _, l := range chain {
		candidates = append(candidates, budget.Candidate{
			Layer:    l,
			Sections: archive.FilterSections(l.Sections, asOf, r.retentionDays),
		})
	}

	res, err := r.alloc.Allocate(candidates, req.BudgetTokens)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		SnapshotID:   snap.ID(),
		SnapshotHash: snap.Hash(),
		TotalTokens:  res.TotalTokens,
		Truncated:    res.Truncated,
	}
	for _, alloc := range res.Chain {
		b.Chain = append(b.Chain, ChainEntry{
			Ref:              alloc.Layer.Ref(),
			Scope:            alloc.Layer.Scope,
			Key:              alloc.Layer.Key,
			SectionsIncluded: alloc.SectionsIncluded,
			EntriesTrimmed:   alloc.EntriesTrimmed,
			Tokens:           alloc.Tokens,
		})
		for _, sec := range alloc.Sections {
			if sec.Kind != layer.KindMemory {
				continue
			}
			for _, e := range sec.Entries {
				b.Memory = append(b.Memory, MemoryRecord{
					ID:        e.ID,
					Value:     e.Value,
					CreatedAt: e.CreatedAt,
					Pinned:    e.Pinned,
					Tokens:    e.EstimatedTokens,
					Source:    alloc.Layer.Ref(),
				})
			}
		}
	}
	b.Facts, b.Superseded = mergeFacts(res.Chain)
	return b, nil
}

// buildChain selects the applicable layers in presentation order: global,
// domain, project, path matches most-specific-first, feature. A named
// layer absent from the store is simply skipped.
func (r *Resolver) buildChain(snap *layer.Snapshot, req Request) ([]*layer.Layer, error) {
	global, ok := snap.Global()
	if !ok {
		return nil, &MissingMandatoryLayerError{Scope: layer.ScopeGlobal}
	}
	chain := []*layer.Layer{global}
	if req.Domain != "" {
		if l, ok := snap.Domain(req.Domain); ok {
			chain = append(chain, l)
		}
	}
	if req.Project != "" {
		if l, ok := snap.Project(req.Project); ok {
			chain = append(chain, l)
		}
	}
	for _, pattern := range snap.Match(req.FilePath) {
		chain = append(chain, snap.PathLayers(pattern)...)
	}
	if req.Feature != "" {
		if l, ok := snap.Feature(req.Feature); ok {
			chain = append(chain, l)
		}
	}
	return chain, nil
}

// factOccurrence is one (key, value) contribution observed during merge.
type factOccurrence struct {
	key    string
	kind   layer.Kind
	value  string
	source string
}

// mergeFacts performs the specific-wins key merge over the surviving
// chain. The chain lists path layers most-specific-first, so for override
// purposes the path run is walked in reverse: the most specific path match
// must not be overridden by a less specific one.
func mergeFacts(chain []budget.Allocation) (map[string]Fact, []SupersededFact) {
	ordered := overrideOrder(chain)

	occurrences := make(map[string][]factOccurrence)
	var keyOrder []string
	for _, alloc := range ordered {
		for _, sec := range alloc.Sections {
			if sec.Kind == layer.KindMemory {
				continue
			}
			for _, e := range sec.Entries {
				if _, seen := occurrences[e.Key]; !seen {
					keyOrder = append(keyOrder, e.Key)
				}
				occurrences[e.Key] = append(occurrences[e.Key], factOccurrence{
					key:    e.Key,
					kind:   sec.Kind,
					value:  e.Value,
					source: alloc.Layer.Ref(),
				})
			}
		}
	}

	facts := make(map[string]Fact, len(occurrences))
	var superseded []SupersededFact
	for _, key := range keyOrder {
		occ := occurrences[key]
		winner := occ[len(occ)-1]
		facts[key] = Fact{Kind: winner.kind, Value: winner.value, Source: winner.source}
		for _, o := range occ[:len(occ)-1] {
			superseded = append(superseded, SupersededFact{
				Key:          o.key,
				Kind:         o.kind,
				Value:        o.value,
				Source:       o.source,
				SupersededBy: winner.source,
			})
		}
	}
	return facts, superseded
}

// overrideOrder rewrites the presentation chain into merge order: the path
// run reversed in place so later positions are strictly more specific.
func overrideOrder(chain []budget.Allocation) []budget.Allocation {
	out := make([]budget.Allocation, 0, len(chain))
	var pathRun []budget.Allocation
	flush := func() {
		for i := len(pathRun) - 1; i >= 0; i-- {
			out = append(out, pathRun[i])
		}
		pathRun = pathRun[:0]
	}
	for _, alloc := range chain {
		if alloc.Layer.Scope == layer.ScopePath {
			pathRun = append(pathRun, alloc)
			continue
		}
		flush()
		out = append(out, alloc)
	}
	flush()
	return out
}
