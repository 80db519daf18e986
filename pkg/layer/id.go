package layer

import (
	"crypto/rand"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// deriveEntryID builds a stable identifier for an entry whose document does
// not declare one, keyed by the document path and the entry's position.
// Reloading identical documents must yield identical entry IDs, since the
// ID participates in the layer content hash.
func deriveEntryID(path string, section, index int) string {
	d := xxhash.New()
	hashString(d, path)
	hashInt(d, int64(section))
	hashInt(d, int64(index))
	return fmt.Sprintf("ent_%016x", d.Sum64())
}

// NewEntryID generates a unique identifier for an entry created
// programmatically rather than loaded from a document.
func NewEntryID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// The OS crypto source failing is not a recoverable state.
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant bits
	return fmt.Sprintf("ent_%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
