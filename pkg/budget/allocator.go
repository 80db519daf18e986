// Package budget trims a candidate layer chain to fit a token budget.
//
// The allocator is a greedy, deterministic, priority-ordered packing, not
// an optimal one: predictability (same inputs, same trimming) matters more
// than squeezing in a marginally better-fitting combination. The global
// layer's context and instruction sections form a mandatory floor that is
// never trimmed; if the floor alone exceeds the budget, allocation fails
// outright rather than returning a bundle that violates the caller's cap.
package budget

import (
	"fmt"
	"sort"

	"github.com/entrhq/strata/pkg/layer"
)

// ExceededError reports that the mandatory floor alone exceeds the budget.
// It carries the floor size so the caller can raise the budget.
type ExceededError struct {
	Required  int
	Available int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget: mandatory floor %d tokens exceeds budget %d", e.Required, e.Available)
}

// Candidate is one chain position entering allocation: the layer for
// provenance plus its working sections (already archive-filtered).
type Candidate struct {
	Layer    *layer.Layer
	Sections []layer.Section
}

// Allocation is one chain position surviving allocation.
type Allocation struct {
	Layer            *layer.Layer
	Sections         []layer.Section
	SectionsIncluded []layer.Kind
	EntriesTrimmed   int
	Tokens           int
}

// Result is the outcome of one allocation pass.
type Result struct {
	Chain       []Allocation
	TotalTokens int
	// Truncated is set when any entry was dropped or any layer was
	// entirely omitted because of the budget. It is a signal, not an
	// error: a truncated bundle is still a successful resolution.
	Truncated bool
}

// DefaultFillOrder fills most specific scopes first, on the assumption
// that they are most relevant to the immediate task.
var DefaultFillOrder = []layer.Scope{
	layer.ScopeFeature,
	layer.ScopePath,
	layer.ScopeProject,
	layer.ScopeDomain,
}

// Allocator distributes a token budget across a candidate chain.
type Allocator struct {
	fillOrder []layer.Scope
}

// New creates an allocator. An empty fillOrder uses DefaultFillOrder;
// callers may override it to re-prioritize scopes. A partial override is
// completed with the missing scopes in default order, so no scope is ever
// silently skipped during allocation.
func New(fillOrder ...layer.Scope) *Allocator {
	if len(fillOrder) == 0 {
		return &Allocator{fillOrder: DefaultFillOrder}
	}
	order := make([]layer.Scope, 0, len(DefaultFillOrder))
	seen := make(map[layer.Scope]bool, len(fillOrder))
	for _, s := range fillOrder {
		if !seen[s] {
			order = append(order, s)
			seen[s] = true
		}
	}
	for _, s := range DefaultFillOrder {
		if !seen[s] {
			order = append(order, s)
		}
	}
	return &Allocator{fillOrder: order}
}

// Allocate trims the chain to fit budgetTokens. The chain must be in
// resolution order (global first); relative order within a scope is
// preserved, so path layers fill most-specific-first. Global memory is
// filled last, after every other scope.
func (a *Allocator) Allocate(chain []Candidate, budgetTokens int) (Result, error) {
	var global *Candidate
	for i := range chain {
		if chain[i].Layer.Scope == layer.ScopeGlobal {
			global = &chain[i]
			break
		}
	}

	floor := 0
	if global != nil {
		floor = sectionsCost(global.Sections, layer.KindContext, layer.KindInstruction)
	}
	if floor > budgetTokens {
		return Result{}, &ExceededError{Required: floor, Available: budgetTokens}
	}
	remaining := budgetTokens - floor

	kept := make(map[*layer.Layer]*Allocation, len(chain))
	truncated := false

	// The mandatory floor is admitted before anything else.
	if global != nil {
		floorSections := sectionsOfKind(global.Sections, layer.KindContext, layer.KindInstruction)
		kept[global.Layer] = &Allocation{
			Layer:    global.Layer,
			Sections: floorSections,
			Tokens:   floor,
		}
	}

	for _, scope := range a.fillOrder {
		for i := range chain {
			c := &chain[i]
			if c.Layer.Scope != scope {
				continue
			}
			sections, dropped, cost, fit := trimToFit(c.Sections, remaining)
			if !fit {
				// Entirely dropped: even its pinned entries cannot fit.
				truncated = true
				continue
			}
			if dropped > 0 {
				truncated = true
				if countEntries(sections) == 0 {
					// Trimmed to nothing is the same as dropped.
					continue
				}
			}
			remaining -= cost
			kept[c.Layer] = &Allocation{
				Layer:          c.Layer,
				Sections:       sections,
				EntriesTrimmed: dropped,
				Tokens:         cost,
			}
		}
	}

	// Global memory is the least specific trimmable content and fills last.
	if global != nil {
		memSections := sectionsOfKind(global.Sections, layer.KindMemory)
		if len(memSections) > 0 {
			sections, dropped, cost, fit := trimToFit(memSections, remaining)
			alloc := kept[global.Layer]
			if fit {
				alloc.Sections = append(alloc.Sections, sections...)
				alloc.Tokens += cost
				alloc.EntriesTrimmed += dropped
				remaining -= cost
				if dropped > 0 {
					truncated = true
				}
			} else {
				alloc.EntriesTrimmed += countEntries(memSections)
				truncated = true
			}
		}
	}

	res := Result{Truncated: truncated}
	for i := range chain {
		alloc, ok := kept[chain[i].Layer]
		if !ok {
			continue
		}
		alloc.Sections = orderSections(chain[i].Sections, alloc.Sections)
		for _, sec := range alloc.Sections {
			if len(sec.Entries) > 0 {
				alloc.SectionsIncluded = append(alloc.SectionsIncluded, sec.Kind)
			}
		}
		res.Chain = append(res.Chain, *alloc)
		res.TotalTokens += alloc.Tokens
	}
	return res, nil
}

// trimToFit drops entries from sections until their cost is at most limit.
// Drop order: oldest unpinned memory entries first, then unpinned
// context/instruction entries with the weakest priority. Pinned entries
// are exempt from trimming; if the pinned remainder still exceeds the
// limit the layer cannot fit and fit=false is returned.
func trimToFit(sections []layer.Section, limit int) (out []layer.Section, dropped, cost int, fit bool) {
	cost = sectionsCost(sections)
	if cost <= limit {
		return cloneSections(sections), 0, cost, true
	}

	type ref struct{ section, entry int }
	var memDrops, factDrops []ref
	for si, sec := range sections {
		for ei, e := range sec.Entries {
			if e.Pinned {
				continue
			}
			if sec.Kind == layer.KindMemory {
				memDrops = append(memDrops, ref{si, ei})
			} else {
				factDrops = append(factDrops, ref{si, ei})
			}
		}
	}
	// Oldest memory first; stable on document order for equal timestamps.
	sort.SliceStable(memDrops, func(i, j int) bool {
		a := sections[memDrops[i].section].Entries[memDrops[i].entry]
		b := sections[memDrops[j].section].Entries[memDrops[j].entry]
		return a.CreatedAt.Before(b.CreatedAt)
	})
	// Weakest priority (largest value) first; later entries break ties.
	sort.SliceStable(factDrops, func(i, j int) bool {
		a := sections[factDrops[i].section].Entries[factDrops[i].entry]
		b := sections[factDrops[j].section].Entries[factDrops[j].entry]
		return a.Priority > b.Priority
	})

	removed := make(map[ref]bool)
	for _, r := range append(memDrops, factDrops...) {
		if cost <= limit {
			break
		}
		removed[r] = true
		cost -= sections[r.section].Entries[r.entry].EstimatedTokens
		dropped++
	}
	if cost > limit {
		return nil, 0, 0, false
	}

	out = make([]layer.Section, 0, len(sections))
	for si, sec := range sections {
		trimmed := layer.Section{Kind: sec.Kind}
		for ei, e := range sec.Entries {
			if !removed[ref{si, ei}] {
				trimmed.Entries = append(trimmed.Entries, e)
			}
		}
		out = append(out, trimmed)
	}
	return out, dropped, cost, true
}

func sectionsCost(sections []layer.Section, kinds ...layer.Kind) int {
	total := 0
	for _, sec := range sectionsOfKind(sections, kinds...) {
		total += sec.TokenCost()
	}
	return total
}

// sectionsOfKind returns the sections matching kinds, or all sections when
// no kinds are passed. Returned sections share entry slices with the input
// and must not be mutated.
func sectionsOfKind(sections []layer.Section, kinds ...layer.Kind) []layer.Section {
	if len(kinds) == 0 {
		return sections
	}
	var out []layer.Section
	for _, sec := range sections {
		for _, k := range kinds {
			if sec.Kind == k {
				out = append(out, sec)
				break
			}
		}
	}
	return out
}

func cloneSections(sections []layer.Section) []layer.Section {
	out := make([]layer.Section, len(sections))
	for i, sec := range sections {
		entries := make([]layer.Entry, len(sec.Entries))
		copy(entries, sec.Entries)
		out[i] = layer.Section{Kind: sec.Kind, Entries: entries}
	}
	return out
}

func countEntries(sections []layer.Section) int {
	n := 0
	for _, sec := range sections {
		n += len(sec.Entries)
	}
	return n
}

// orderSections re-sorts kept sections into the original document order so
// the allocation's section sequence is independent of fill internals.
func orderSections(original, kept []layer.Section) []layer.Section {
	pos := make(map[layer.Kind]int, len(original))
	for i, sec := range original {
		if _, ok := pos[sec.Kind]; !ok {
			pos[sec.Kind] = i
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return pos[kept[i].Kind] < pos[kept[j].Kind]
	})
	return kept
}
