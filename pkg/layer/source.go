package layer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// RawDocument is one unparsed context document produced by a Source.
type RawDocument struct {
	Path    string
	Data    []byte
	ModTime time.Time
}

// Source produces the raw documents a snapshot is built from. Sources are
// only consulted during Reload; resolution never touches them.
type Source interface {
	Documents(ctx context.Context) ([]RawDocument, error)
}

// DirSource reads every .md file under a root directory, recursively.
// It is backed by afero so loads can run against an in-memory filesystem
// in tests.
type DirSource struct {
	fs   afero.Fs
	root string
}

// NewDirSource creates a source over the given filesystem and root.
func NewDirSource(fsys afero.Fs, root string) *DirSource {
	return &DirSource{fs: fsys, root: root}
}

// NewOsDirSource creates a source over the host filesystem.
func NewOsDirSource(root string) *DirSource {
	return NewDirSource(afero.NewOsFs(), root)
}

// Documents walks the root and returns all .md documents sorted by path,
// so duplicate-key conflicts are resolved deterministically downstream.
func (d *DirSource) Documents(ctx context.Context) ([]RawDocument, error) {
	var docs []RawDocument
	err := afero.Walk(d.fs, d.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		data, err := afero.ReadFile(d.fs, path)
		if err != nil {
			return fmt.Errorf("layer: read %s: %w", path, err)
		}
		docs = append(docs, RawDocument{Path: path, Data: data, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("layer: walk %s: %w", d.root, err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// StaticSource serves a fixed set of documents. Useful for tests and for
// callers that assemble documents from somewhere other than a filesystem.
type StaticSource []RawDocument

// Documents returns the documents sorted by path.
func (s StaticSource) Documents(_ context.Context) ([]RawDocument, error) {
	docs := make([]RawDocument, len(s))
	copy(docs, s)
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}
