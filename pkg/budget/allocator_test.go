package budget

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/strata/pkg/layer"
)

// contextLayer builds a layer whose context section splits totalTokens
// across n equally sized entries with insertion-order priorities.
func contextLayer(scope layer.Scope, key string, totalTokens, n int) *layer.Layer {
	sec := layer.Section{Kind: layer.KindContext}
	for i := 0; i < n; i++ {
		sec.Entries = append(sec.Entries, layer.Entry{
			ID:              fmt.Sprintf("%s-%d", key, i),
			Key:             fmt.Sprintf("fact-%d", i),
			Value:           "v",
			Priority:        i,
			EstimatedTokens: totalTokens / n,
		})
	}
	return &layer.Layer{Scope: scope, Key: key, Sections: []layer.Section{sec}}
}

func candidates(layers ...*layer.Layer) []Candidate {
	out := make([]Candidate, 0, len(layers))
	for _, l := range layers {
		out = append(out, Candidate{Layer: l, Sections: l.Sections})
	}
	return out
}

func TestAllocate_EverythingFits(t *testing.T) {
	chain := candidates(
		contextLayer(layer.ScopeGlobal, "global", 1000, 2),
		contextLayer(layer.ScopeDomain, "backend", 500, 1),
	)

	res, err := New().Allocate(chain, 2000)
	require.NoError(t, err)

	assert.Equal(t, 1500, res.TotalTokens)
	assert.False(t, res.Truncated)
	require.Len(t, res.Chain, 2)
	assert.Equal(t, "global", res.Chain[0].Layer.Key)
	assert.Zero(t, res.Chain[0].EntriesTrimmed)
}

func TestAllocate_FloorExceedsBudget(t *testing.T) {
	chain := candidates(contextLayer(layer.ScopeGlobal, "global", 2000, 2))

	_, err := New().Allocate(chain, 1500)
	require.Error(t, err)

	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2000, exceeded.Required)
	assert.Equal(t, 1500, exceeded.Available)
}

// TestAllocate_SpecificityScenario is the reference trimming scenario:
// Global=2000, Domain=3000, Project=2500, Path=1500 against a 5000 budget.
// Path and Global survive whole, Project is trimmed, Domain is dropped.
func TestAllocate_SpecificityScenario(t *testing.T) {
	chain := candidates(
		contextLayer(layer.ScopeGlobal, "global", 2000, 4),
		contextLayer(layer.ScopeDomain, "backend", 3000, 6),
		contextLayer(layer.ScopeProject, "backend-api", 2500, 5),
		contextLayer(layer.ScopePath, "src/handlers/**", 1500, 3),
	)

	res, err := New().Allocate(chain, 5000)
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, 5000, res.TotalTokens)

	byKey := map[string]Allocation{}
	for _, a := range res.Chain {
		byKey[a.Layer.Key] = a
	}

	// Global floor and the most specific layer are retained in full.
	require.Contains(t, byKey, "global")
	assert.Zero(t, byKey["global"].EntriesTrimmed)
	assert.Equal(t, 2000, byKey["global"].Tokens)

	require.Contains(t, byKey, "src/handlers/**")
	assert.Zero(t, byKey["src/handlers/**"].EntriesTrimmed)
	assert.Equal(t, 1500, byKey["src/handlers/**"].Tokens)

	// Project fills the remaining 1500, trimmed less than Domain, which
	// is dropped entirely.
	require.Contains(t, byKey, "backend-api")
	assert.Equal(t, 1500, byKey["backend-api"].Tokens)
	assert.Equal(t, 2, byKey["backend-api"].EntriesTrimmed)

	assert.NotContains(t, byKey, "backend")
}

func TestAllocate_TrimsOldestUnpinnedMemoryFirst(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	l := &layer.Layer{
		Scope: layer.ScopeProject,
		Key:   "api",
		Sections: []layer.Section{
			{Kind: layer.KindContext, Entries: []layer.Entry{
				{ID: "fact", Key: "k", Value: "v", EstimatedTokens: 100},
			}},
			{Kind: layer.KindMemory, Entries: []layer.Entry{
				{ID: "oldest", CreatedAt: now.AddDate(0, 0, -30), EstimatedTokens: 100},
				{ID: "old-pinned", CreatedAt: now.AddDate(0, 0, -20), Pinned: true, EstimatedTokens: 100},
				{ID: "recent", CreatedAt: now.AddDate(0, 0, -1), EstimatedTokens: 100},
			}},
		},
	}
	global := contextLayer(layer.ScopeGlobal, "global", 100, 1)

	// Budget fits the floor plus 300 of the project's 400.
	res, err := New().Allocate(candidates(global, l), 400)
	require.NoError(t, err)
	assert.True(t, res.Truncated)

	var project Allocation
	for _, a := range res.Chain {
		if a.Layer.Key == "api" {
			project = a
		}
	}
	require.NotNil(t, project.Layer)
	assert.Equal(t, 1, project.EntriesTrimmed)

	var memIDs []string
	for _, sec := range project.Sections {
		if sec.Kind == layer.KindMemory {
			for _, e := range sec.Entries {
				memIDs = append(memIDs, e.ID)
			}
		}
	}
	// The oldest unpinned entry goes first; the pinned one stays even
	// though it is older than "recent".
	assert.Equal(t, []string{"old-pinned", "recent"}, memIDs)
}

func TestAllocate_TrimsWeakestPriorityFactsAfterMemory(t *testing.T) {
	l := &layer.Layer{
		Scope: layer.ScopeDomain,
		Key:   "backend",
		Sections: []layer.Section{
			{Kind: layer.KindContext, Entries: []layer.Entry{
				{ID: "keep", Key: "important", Value: "v", Priority: 0, EstimatedTokens: 100},
				{ID: "drop", Key: "minor", Value: "v", Priority: 9, EstimatedTokens: 100},
			}},
			{Kind: layer.KindMemory, Entries: []layer.Entry{
				{ID: "mem", CreatedAt: time.Unix(0, 0), EstimatedTokens: 100},
			}},
		},
	}
	global := contextLayer(layer.ScopeGlobal, "global", 100, 1)

	res, err := New().Allocate(candidates(global, l), 200)
	require.NoError(t, err)
	assert.True(t, res.Truncated)

	var domain Allocation
	for _, a := range res.Chain {
		if a.Layer.Key == "backend" {
			domain = a
		}
	}
	require.NotNil(t, domain.Layer)
	assert.Equal(t, 2, domain.EntriesTrimmed)

	sec := domain.Sections[0]
	require.Equal(t, layer.KindContext, sec.Kind)
	require.Len(t, sec.Entries, 1)
	assert.Equal(t, "keep", sec.Entries[0].ID)
	assert.Equal(t, []layer.Kind{layer.KindContext}, domain.SectionsIncluded)
}

func TestAllocate_GlobalMemoryFillsLast(t *testing.T) {
	global := &layer.Layer{
		Scope: layer.ScopeGlobal,
		Key:   "global",
		Sections: []layer.Section{
			{Kind: layer.KindContext, Entries: []layer.Entry{
				{ID: "g", Key: "org", Value: "v", EstimatedTokens: 100},
			}},
			{Kind: layer.KindMemory, Entries: []layer.Entry{
				{ID: "gmem", CreatedAt: time.Unix(0, 0), EstimatedTokens: 100},
			}},
		},
	}
	feature := contextLayer(layer.ScopeFeature, "auth", 100, 1)

	// Floor 100 + feature 100 exhausts the budget; global memory is cut.
	res, err := New().Allocate(candidates(global, feature), 200)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 200, res.TotalTokens)

	require.Equal(t, "global", res.Chain[0].Layer.Key)
	assert.Equal(t, 1, res.Chain[0].EntriesTrimmed)
	assert.Equal(t, []layer.Kind{layer.KindContext}, res.Chain[0].SectionsIncluded)
}

func TestAllocate_FillOrderOverride(t *testing.T) {
	global := contextLayer(layer.ScopeGlobal, "global", 100, 1)
	domain := contextLayer(layer.ScopeDomain, "backend", 100, 1)
	feature := contextLayer(layer.ScopeFeature, "auth", 100, 1)

	// With domain prioritized ahead of feature, the feature layer is the
	// one dropped when only one fits.
	res, err := New(layer.ScopeDomain, layer.ScopeFeature).
		Allocate(candidates(global, domain, feature), 200)
	require.NoError(t, err)

	keys := []string{}
	for _, a := range res.Chain {
		keys = append(keys, a.Layer.Key)
	}
	assert.Equal(t, []string{"global", "backend"}, keys)
	assert.True(t, res.Truncated)
}

func TestAllocate_PartialFillOrderStillVisitsEveryScope(t *testing.T) {
	global := contextLayer(layer.ScopeGlobal, "global", 100, 1)
	domain := contextLayer(layer.ScopeDomain, "backend", 100, 1)
	project := contextLayer(layer.ScopeProject, "backend-api", 100, 1)
	feature := contextLayer(layer.ScopeFeature, "auth", 100, 1)

	// An override naming only two scopes is completed in default order, so
	// project and domain layers still get the leftover budget.
	res, err := New(layer.ScopeFeature, layer.ScopePath).
		Allocate(candidates(global, domain, project, feature), 1000)
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, 400, res.TotalTokens)

	keys := []string{}
	for _, a := range res.Chain {
		keys = append(keys, a.Layer.Key)
	}
	assert.Equal(t, []string{"global", "backend", "backend-api", "auth"}, keys)
}

func TestAllocate_Deterministic(t *testing.T) {
	chain := candidates(
		contextLayer(layer.ScopeGlobal, "global", 2000, 4),
		contextLayer(layer.ScopeDomain, "backend", 3000, 6),
		contextLayer(layer.ScopeProject, "backend-api", 2500, 5),
		contextLayer(layer.ScopePath, "src/**", 1500, 3),
	)

	first, err := New().Allocate(chain, 5000)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New().Allocate(chain, 5000)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
