// Package layout manages a single daemon's persistent-state directory.
//
// A daemon owns exactly two on-disk trees under one root, per spec.md §6
// ("Persisted state"):
//
//	<root>/
//	  meta.db   (the metadata KV engine's bbolt file)
//	  data/     (the chunk tree: data/<encoded-path>/<chunk-id>)
//
// Both are expected to be wiped between jobs; Reset does that.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	metaFileName = "meta.db"
	dataDirName  = "data"
)

// Layout locates a daemon's meta-dir and data-dir under a single root.
type Layout struct {
	root string
}

// New creates a Layout rooted at root. root is not created or inspected.
func New(root string) Layout {
	return Layout{root: root}
}

// Root returns the daemon's root directory.
func (l Layout) Root() string {
	return l.root
}

// MetaPath returns the path to the metadata KV engine's backing file.
func (l Layout) MetaPath() string {
	return filepath.Join(l.root, metaFileName)
}

// DataDir returns the root of the chunk tree.
func (l Layout) DataDir() string {
	return filepath.Join(l.root, dataDirName)
}

// EnsureExists creates root and the data directory (and parents) if they
// don't already exist.
func (l Layout) EnsureExists() error {
	if err := os.MkdirAll(l.DataDir(), 0o750); err != nil {
		return fmt.Errorf("create data directory %s: %w", l.DataDir(), err)
	}
	return nil
}

// Reset wipes the meta file and the entire chunk tree, then recreates the
// data directory. Call this between job runs — GekkoFS namespaces are
// ephemeral and never expected to outlive a single job (spec.md §6, §1
// Non-goals: "durable storage across job lifetimes" is explicitly excluded).
func (l Layout) Reset() error {
	if err := os.Remove(l.MetaPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove meta file %s: %w", l.MetaPath(), err)
	}
	if err := os.RemoveAll(l.DataDir()); err != nil {
		return fmt.Errorf("remove data directory %s: %w", l.DataDir(), err)
	}
	return l.EnsureExists()
}
