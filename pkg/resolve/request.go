package resolve

import (
	"fmt"
	"strings"
	"time"
)

// Request carries the coordinates of one resolution: the task's file path
// and the named domain/project/feature layers to consider, plus the token
// budget the bundle must fit.
type Request struct {
	// FilePath selects path-scoped layers. Empty means no path layer is
	// considered.
	FilePath string
	Domain   string
	Project  string
	Feature  string
	// TaskType is carried for callers and cache signatures; the engine
	// does not interpret it.
	TaskType string
	// BudgetTokens is the hard cap on bundle size. Must be positive.
	BudgetTokens int
	// AsOf anchors the archival cutoff. The engine fills in the current
	// time when zero; it is part of the cache signature so bundles never
	// go stale relative to the retention threshold.
	AsOf time.Time
}

// Validate checks request constraints.
func (r Request) Validate() error {
	if r.BudgetTokens <= 0 {
		return fmt.Errorf("resolve: budget must be positive, got %d", r.BudgetTokens)
	}
	return nil
}

// Signature returns the canonical string form of the request, used as the
// cache key component. Two requests with equal signatures resolve
// identically against the same snapshot.
func (r Request) Signature() string {
	var sb strings.Builder
	sb.WriteString("file=")
	sb.WriteString(r.FilePath)
	sb.WriteString("|domain=")
	sb.WriteString(r.Domain)
	sb.WriteString("|project=")
	sb.WriteString(r.Project)
	sb.WriteString("|feature=")
	sb.WriteString(r.Feature)
	sb.WriteString("|task=")
	sb.WriteString(r.TaskType)
	fmt.Fprintf(&sb, "|budget=%d", r.BudgetTokens)
	fmt.Fprintf(&sb, "|asof=%d", r.AsOf.UTC().UnixNano())
	return sb.String()
}
