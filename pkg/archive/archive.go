// Package archive implements the retention filter for memory entries.
//
// The filter is a pure function of (entries, asOf, retentionDays): it keeps
// no hidden state, so the same inputs always produce the same output and it
// can be tested in isolation. Context and instruction entries are never
// archived; they represent current-state facts, not history.
package archive

import (
	"time"

	"github.com/entrhq/strata/pkg/layer"
)

// FilterEntries drops memory entries older than the retention threshold
// unless pinned. A non-positive retentionDays disables archival entirely.
func FilterEntries(entries []layer.Entry, asOf time.Time, retentionDays int) []layer.Entry {
	if retentionDays <= 0 {
		return entries
	}
	cutoff := asOf.AddDate(0, 0, -retentionDays)
	out := make([]layer.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Pinned || !e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// FilterSection applies FilterEntries to memory sections and returns every
// other kind unchanged.
func FilterSection(sec layer.Section, asOf time.Time, retentionDays int) layer.Section {
	if sec.Kind != layer.KindMemory {
		return sec
	}
	return layer.Section{
		Kind:    sec.Kind,
		Entries: FilterEntries(sec.Entries, asOf, retentionDays),
	}
}

// FilterSections applies FilterSection across a slice of sections.
func FilterSections(sections []layer.Section, asOf time.Time, retentionDays int) []layer.Section {
	out := make([]layer.Section, 0, len(sections))
	for _, sec := range sections {
		out = append(out, FilterSection(sec, asOf, retentionDays))
	}
	return out
}
