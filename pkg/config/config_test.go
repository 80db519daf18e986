package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/strata/pkg/layer"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, DefaultCacheSize, cfg.CacheSize)
	assert.False(t, cfg.StrictLoad)
	assert.Empty(t, cfg.FillOrder)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		err  string
	}{
		{
			name: "negative cache size",
			mut:  func(c *Config) { c.CacheSize = -1 },
			err:  "cache_size",
		},
		{
			name: "unknown scope in fill order",
			mut:  func(c *Config) { c.FillOrder = []string{"galaxy"} },
			err:  "unknown scope",
		},
		{
			name: "global in fill order",
			mut:  func(c *Config) { c.FillOrder = []string{"global"} },
			err:  "always the floor",
		},
		{
			name: "duplicate scope in fill order",
			mut:  func(c *Config) { c.FillOrder = []string{"feature", "path", "feature"} },
			err:  "duplicate scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata", "config.json")
	want := Config{
		RetentionDays: 90,
		StrictLoad:    true,
		CacheSize:     64,
		FillOrder:     []string{"path", "feature", "project", "domain"},
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// No stray temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestEngineOptions(t *testing.T) {
	cfg := Config{
		RetentionDays: 30,
		StrictLoad:    true,
		CacheSize:     16,
		FillOrder:     []string{"feature", "path"},
	}
	opts := cfg.EngineOptions()
	assert.Equal(t, 30, opts.RetentionDays)
	assert.True(t, opts.StrictLoad)
	assert.Equal(t, 16, opts.CacheSize)
	assert.Equal(t, []layer.Scope{layer.ScopeFeature, layer.ScopePath}, opts.FillOrder)
}
