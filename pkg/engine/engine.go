// Package engine composes the layer store, resolver, and bundle cache into
// the engine's public API: Resolve and Reload.
//
// Resolved bundles are memoized keyed by the request signature plus the
// snapshot hash, so a snapshot swap implicitly invalidates every cached
// bundle; there is no wall-clock expiry. Concurrent identical requests
// collapse into a single computation via singleflight, while requests with
// different keys never block on each other.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/cespare/xxhash/v2"

	"github.com/entrhq/strata/pkg/layer"
	"github.com/entrhq/strata/pkg/logging"
	"github.com/entrhq/strata/pkg/resolve"
	"github.com/entrhq/strata/pkg/tokenizer"
)

const defaultCacheSize = 512

// Options is the engine configuration surface.
type Options struct {
	// RetentionDays is the memory archival threshold. Non-positive
	// disables archival.
	RetentionDays int
	// StrictLoad makes Reload fail on the first invalid document instead
	// of skipping it with a warning.
	StrictLoad bool
	// CacheSize bounds the bundle LRU. Non-positive uses the default.
	CacheSize int
	// FillOrder overrides the budget allocator's scope priority.
	FillOrder []layer.Scope
}

// Stats is a point-in-time view of cache behaviour.
type Stats struct {
	Hits   int64
	Misses int64
	// Shared counts callers that received a result computed by another
	// in-flight caller with the same key.
	Shared int64
}

// Engine is the hierarchical context resolution engine. It is safe for
// concurrent use by many callers; the only mutation is the atomic snapshot
// swap performed by Reload.
type Engine struct {
	store    *layer.Store
	resolver *resolve.Resolver
	cache    *lru.Cache[uint64, *resolve.Bundle]
	group    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64

	log *logging.Logger
}

// New creates an engine with an empty snapshot. Call Reload before the
// first Resolve.
func New(opts Options) (*Engine, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[uint64, *resolve.Bundle](size)
	if err != nil {
		return nil, fmt.Errorf("engine: cache init: %w", err)
	}
	log, _ := logging.NewLogger("engine")
	return &Engine{
		store: layer.NewStore(layer.StoreOptions{
			Strict:    opts.StrictLoad,
			Tokenizer: tokenizer.New(),
		}),
		resolver: resolve.New(resolve.Options{
			RetentionDays: opts.RetentionDays,
			FillOrder:     opts.FillOrder,
		}),
		cache: cache,
		log:   log,
	}, nil
}

// Reload builds a new snapshot from the source, swaps it in, and purges
// the bundle cache. Returns the new snapshot's ID. On failure the previous
// snapshot stays in place and keeps serving reads.
func (e *Engine) Reload(ctx context.Context, src layer.Source) (string, error) {
	snap, err := e.store.Reload(ctx, src)
	if err != nil {
		return "", err
	}
	// Stale-snapshot entries can never be hit again (the snapshot hash is
	// part of the key), but purging keeps them from occupying capacity.
	e.cache.Purge()
	for _, w := range snap.Warnings() {
		e.log.Warnf("load warning: %s", w)
	}
	e.log.Infof("snapshot %s loaded: %d layers, hash %016x",
		snap.ID(), snap.LayerCount(), snap.Hash())
	return snap.ID(), nil
}

// Snapshot returns the current layer snapshot.
func (e *Engine) Snapshot() *layer.Snapshot {
	return e.store.Snapshot()
}

// Resolve returns the bundle for the request, from cache when possible.
// A request with a zero AsOf is anchored to the current time before the
// cache key is computed.
func (e *Engine) Resolve(ctx context.Context, req resolve.Request) (*resolve.Bundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now()
	}

	// One consistent snapshot end-to-end: the key and the resolution both
	// use this pointer, never the store's current value.
	snap := e.store.Snapshot()
	key := cacheKey(req, snap.Hash())

	if b, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		return b, nil
	}

	v, err, sharedCall := e.group.Do(fmt.Sprintf("%016x", key), func() (interface{}, error) {
		b, err := e.resolver.Resolve(snap, req)
		if err != nil {
			return nil, err
		}
		e.cache.Add(key, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if sharedCall {
		e.shared.Add(1)
	} else {
		e.misses.Add(1)
	}
	return v.(*resolve.Bundle), nil
}

// Stats returns cache hit/miss/shared counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Hits:   e.hits.Load(),
		Misses: e.misses.Load(),
		Shared: e.shared.Load(),
	}
}

func cacheKey(req resolve.Request, snapHash uint64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(req.Signature())
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(snapHash >> (8 * i))
	}
	_, _ = d.Write(buf[:])
	return d.Sum64()
}
