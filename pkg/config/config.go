// Package config holds the engine's file-backed configuration: the
// archival retention threshold, load validation mode, bundle cache size,
// and budget fill-order overrides.
package config

import (
	"fmt"

	"github.com/entrhq/strata/pkg/engine"
	"github.com/entrhq/strata/pkg/layer"
)

const (
	// DefaultRetentionDays keeps six months of memory before archival.
	DefaultRetentionDays = 180
	// DefaultCacheSize bounds the bundle LRU.
	DefaultCacheSize = 512
)

// Config is the persisted engine configuration.
type Config struct {
	// RetentionDays is the memory archival threshold in days. Zero or
	// negative disables archival.
	RetentionDays int `json:"retention_days"`
	// StrictLoad fails a reload on the first invalid document instead of
	// skipping it with a warning.
	StrictLoad bool `json:"strict_load"`
	// CacheSize is the maximum number of cached bundles.
	CacheSize int `json:"cache_size"`
	// FillOrder optionally overrides the budget allocator's scope
	// priority. Entries must be distinct scope names other than "global";
	// scopes left out are appended in default order by the allocator.
	FillOrder []string `json:"fill_order,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RetentionDays: DefaultRetentionDays,
		CacheSize:     DefaultCacheSize,
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if c.CacheSize < 0 {
		return fmt.Errorf("config: cache_size must not be negative")
	}
	seen := make(map[layer.Scope]bool, len(c.FillOrder))
	for _, s := range c.FillOrder {
		scope := layer.Scope(s)
		if !scope.Valid() {
			return fmt.Errorf("config: unknown scope %q in fill_order", s)
		}
		if scope == layer.ScopeGlobal {
			return fmt.Errorf("config: global cannot appear in fill_order, it is always the floor")
		}
		if seen[scope] {
			return fmt.Errorf("config: duplicate scope %q in fill_order", s)
		}
		seen[scope] = true
	}
	return nil
}

// EngineOptions converts the config into engine options.
func (c Config) EngineOptions() engine.Options {
	var fillOrder []layer.Scope
	for _, s := range c.FillOrder {
		fillOrder = append(fillOrder, layer.Scope(s))
	}
	return engine.Options{
		RetentionDays: c.RetentionDays,
		StrictLoad:    c.StrictLoad,
		CacheSize:     c.CacheSize,
		FillOrder:     fillOrder,
	}
}
