package layer

import (
	"fmt"
)

// LoadError reports a document that failed structural validation during a
// reload. In strict mode a single LoadError fails the whole reload; in
// relaxed mode the offending layer is skipped and the error is recorded as
// a snapshot warning.
type LoadError struct {
	Path   string // source path of the offending document, if known
	Key    string // layer key, if it could be determined
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	where := e.Key
	if where == "" {
		where = e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("layer: load %s: %s: %v", where, e.Reason, e.Err)
	}
	return fmt.Sprintf("layer: load %s: %s", where, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }
