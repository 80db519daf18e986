package layer

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

// hashString writes a length-prefixed string into the digest so that
// adjacent fields cannot collide by concatenation.
func hashString(d *xxhash.Digest, s string) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
	_, _ = d.Write(lenBuf[:])
	_, _ = d.WriteString(s)
}

func hashInt(d *xxhash.Digest, v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, _ = d.Write(buf[:])
}

func hashBool(d *xxhash.Digest, b bool) {
	if b {
		_, _ = d.Write([]byte{1})
	} else {
		_, _ = d.Write([]byte{0})
	}
}

func hashTime(d *xxhash.Digest, t time.Time) {
	hashInt(d, t.UTC().UnixNano())
}

// contentHash computes the canonical hash of a layer's content. Metadata
// that does not affect resolution output (LastModified) is excluded so a
// touch without a content change does not invalidate cached bundles.
func contentHash(l *Layer) uint64 {
	d := xxhash.New()
	hashString(d, string(l.Scope))
	hashString(d, l.Key)
	hashBool(d, l.Pinned)
	for _, s := range l.Sections {
		hashString(d, string(s.Kind))
		for _, e := range s.Entries {
			hashString(d, e.ID)
			hashString(d, e.Key)
			hashString(d, e.Value)
			hashTime(d, e.CreatedAt)
			hashBool(d, e.Pinned)
			hashInt(d, int64(e.Priority))
			hashInt(d, int64(e.EstimatedTokens))
		}
	}
	return d.Sum64()
}

// snapshotHash combines the content hashes of every layer in a snapshot
// into a single hash, independent of load order.
func snapshotHash(layers []*Layer) uint64 {
	hashes := make([]uint64, 0, len(layers))
	for _, l := range layers {
		hashes = append(hashes, l.ContentHash)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	d := xxhash.New()
	var buf [8]byte
	for _, h := range hashes {
		binary.LittleEndian.PutUint64(buf[:], h)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
