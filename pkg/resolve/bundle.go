package resolve

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/strata/pkg/layer"
)

// Fact is the winning value for one context/instruction key after the
// specific-wins merge.
type Fact struct {
	Kind   layer.Kind `yaml:"kind"`
	Value  string     `yaml:"value"`
	Source string     `yaml:"source"`
}

// SupersededFact is a value that lost the merge. It is retained so callers
// can show provenance without losing history.
type SupersededFact struct {
	Key          string     `yaml:"key"`
	Kind         layer.Kind `yaml:"kind"`
	Value        string     `yaml:"value"`
	Source       string     `yaml:"source"`
	SupersededBy string     `yaml:"superseded_by"`
}

// MemoryRecord is one memory entry tagged with its provenance layer.
// Memory is historical and additive, so it is concatenated across the
// chain rather than merged.
type MemoryRecord struct {
	ID        string    `yaml:"id"`
	Value     string    `yaml:"value"`
	CreatedAt time.Time `yaml:"created_at"`
	Pinned    bool      `yaml:"pinned,omitempty"`
	Tokens    int       `yaml:"tokens"`
	Source    string    `yaml:"source"`
}

// ChainEntry describes one layer's contribution to the bundle.
type ChainEntry struct {
	Ref              string       `yaml:"ref"`
	Scope            layer.Scope  `yaml:"scope"`
	Key              string       `yaml:"key"`
	SectionsIncluded []layer.Kind `yaml:"sections_included,omitempty"`
	EntriesTrimmed   int          `yaml:"entries_trimmed,omitempty"`
	Tokens           int          `yaml:"tokens"`
}

// Bundle is the merged, budget-fitted output of one resolution.
type Bundle struct {
	SnapshotID   string           `yaml:"snapshot_id"`
	SnapshotHash uint64           `yaml:"snapshot_hash"`
	Chain        []ChainEntry     `yaml:"chain"`
	Facts        map[string]Fact  `yaml:"facts"`
	Superseded   []SupersededFact `yaml:"superseded,omitempty"`
	Memory       []MemoryRecord   `yaml:"memory,omitempty"`
	TotalTokens  int              `yaml:"total_tokens"`
	Truncated    bool             `yaml:"truncated"`
}

// Canonical renders the bundle to a deterministic byte form: chain in
// order, facts sorted by key, memory in chain order. Re-resolving an
// unchanged chain must reproduce identical bytes.
func (b *Bundle) Canonical() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "snapshot %016x\n", b.SnapshotHash)
	fmt.Fprintf(&sb, "tokens %d truncated %t\n", b.TotalTokens, b.Truncated)
	for _, c := range b.Chain {
		fmt.Fprintf(&sb, "chain %s trimmed=%d tokens=%d kinds=", c.Ref, c.EntriesTrimmed, c.Tokens)
		for i, k := range c.SectionsIncluded {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(string(k))
		}
		sb.WriteByte('\n')
	}
	keys := make([]string, 0, len(b.Facts))
	for k := range b.Facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := b.Facts[k]
		fmt.Fprintf(&sb, "fact %s %s=%q source=%s\n", f.Kind, k, f.Value, f.Source)
	}
	for _, s := range b.Superseded {
		fmt.Fprintf(&sb, "superseded %s %s=%q source=%s by=%s\n", s.Kind, s.Key, s.Value, s.Source, s.SupersededBy)
	}
	for _, m := range b.Memory {
		fmt.Fprintf(&sb, "memory %s %q at=%d pinned=%t source=%s\n",
			m.ID, m.Value, m.CreatedAt.UTC().UnixNano(), m.Pinned, m.Source)
	}
	return []byte(sb.String())
}
