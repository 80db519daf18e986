package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/strata/pkg/layer"
)

var asOf = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func memEntry(id string, ageDays int, pinned bool) layer.Entry {
	return layer.Entry{
		ID:        id,
		Value:     "note " + id,
		CreatedAt: asOf.AddDate(0, 0, -ageDays),
		Pinned:    pinned,
	}
}

func TestFilterEntries(t *testing.T) {
	tests := []struct {
		name          string
		entries       []layer.Entry
		retentionDays int
		wantIDs       []string
	}{
		{
			name:          "old unpinned entry dropped",
			entries:       []layer.Entry{memEntry("a", 200, false)},
			retentionDays: 180,
			wantIDs:       []string{},
		},
		{
			name:          "old pinned entry kept",
			entries:       []layer.Entry{memEntry("a", 200, true)},
			retentionDays: 180,
			wantIDs:       []string{"a"},
		},
		{
			name:          "recent entry kept",
			entries:       []layer.Entry{memEntry("a", 30, false)},
			retentionDays: 180,
			wantIDs:       []string{"a"},
		},
		{
			name:          "entry exactly at threshold kept",
			entries:       []layer.Entry{memEntry("a", 180, false)},
			retentionDays: 180,
			wantIDs:       []string{"a"},
		},
		{
			name: "mixed ages",
			entries: []layer.Entry{
				memEntry("old", 365, false),
				memEntry("pinned-old", 365, true),
				memEntry("fresh", 1, false),
			},
			retentionDays: 180,
			wantIDs:       []string{"pinned-old", "fresh"},
		},
		{
			name:          "non-positive retention disables archival",
			entries:       []layer.Entry{memEntry("ancient", 10000, false)},
			retentionDays: 0,
			wantIDs:       []string{"ancient"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterEntries(tt.entries, asOf, tt.retentionDays)
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestFilterSection_NonMemoryUntouched(t *testing.T) {
	sec := layer.Section{
		Kind: layer.KindContext,
		Entries: []layer.Entry{
			{ID: "fact", Key: "style", Value: "tabs", CreatedAt: asOf.AddDate(-10, 0, 0)},
		},
	}
	got := FilterSection(sec, asOf, 1)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "fact", got.Entries[0].ID)
}

func TestFilter_PureFunction(t *testing.T) {
	entries := []layer.Entry{
		memEntry("a", 200, false),
		memEntry("b", 10, false),
	}
	first := FilterEntries(entries, asOf, 180)
	second := FilterEntries(entries, asOf, 180)
	assert.Equal(t, first, second)
	// Input is not mutated.
	assert.Len(t, entries, 2)
}
