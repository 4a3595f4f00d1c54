// Canonical path computation and directory bootstrap.
//
// Layout performs no I/O beyond mkdir and existence checks, and takes
// no locks. Its output is stable across process restarts: callers may
// cache the strings it returns.
package zds

import (
	"os"
	"path/filepath"
)

// Layout computes the canonical paths under a root directory.
type Layout struct {
	root string
}

// NewLayout returns a Layout rooted at the given absolute or relative
// path. The path is not canonicalized here; callers that need a stable
// key (e.g. Root's process-wide memoization table) should resolve it
// with filepath.Abs/EvalSymlinks themselves.
func NewLayout(root string) Layout {
	return Layout{root: root}
}

// RootPath returns the root directory itself.
func (l Layout) RootPath() string { return l.root }

// CollectionsDir returns <root>/collections.
func (l Layout) CollectionsDir() string {
	return filepath.Join(l.root, "collections")
}

// LockFile returns <root>/collections/.write.lock.
func (l Layout) LockFile() string {
	return filepath.Join(l.CollectionsDir(), ".write.lock")
}

// RootManifestPath returns the optional <root>/zds.json.
func (l Layout) RootManifestPath() string {
	return filepath.Join(l.root, "zds.json")
}

// CollectionDir returns <root>/collections/<name>.
func (l Layout) CollectionDir(name string) string {
	return filepath.Join(l.CollectionsDir(), name)
}

// MetaDir returns <root>/collections/<name>/meta.
func (l Layout) MetaDir(name string) string {
	return filepath.Join(l.CollectionDir(name), "meta")
}

// LogPath returns <root>/collections/<name>/meta/data.jsonl.
func (l Layout) LogPath(name string) string {
	return filepath.Join(l.MetaDir(name), "data.jsonl")
}

// ManifestPath returns <root>/collections/<name>/meta/manifest.json.
func (l Layout) ManifestPath(name string) string {
	return filepath.Join(l.MetaDir(name), "manifest.json")
}

// IndexPath returns <root>/collections/<name>/meta/index.bin.
func (l Layout) IndexPath(name string) string {
	return filepath.Join(l.MetaDir(name), "index.bin")
}

// DocsDir returns <root>/collections/<name>/docs, the optional
// per-document mirror.
func (l Layout) DocsDir(name string) string {
	return filepath.Join(l.CollectionDir(name), "docs")
}

// DocPath returns <root>/collections/<name>/docs/<id>.json.
func (l Layout) DocPath(name, id string) string {
	return filepath.Join(l.DocsDir(name), id+".json")
}

// InitRoot ensures collections/ exists under the root. Idempotent.
func (l Layout) InitRoot() error {
	if err := os.MkdirAll(l.CollectionsDir(), 0o755); err != nil {
		return wrapIo("init root", err)
	}
	return nil
}

// InitCollection ensures the collection's meta subtree exists, and its
// docs/ directory when perDoc is true. Idempotent.
func (l Layout) InitCollection(name string, perDoc bool) error {
	if err := os.MkdirAll(l.MetaDir(name), 0o755); err != nil {
		return wrapIo("init collection", err)
	}
	if perDoc {
		if err := os.MkdirAll(l.DocsDir(name), 0o755); err != nil {
			return wrapIo("init collection docs", err)
		}
	}
	f, err := os.OpenFile(l.LogPath(name), os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return wrapIo("init collection log", err)
	}
	if err := f.Close(); err != nil {
		return wrapIo("init collection log", err)
	}
	return nil
}

// Validate fails with InvalidPath when collections/ is missing.
func (l Layout) Validate() error {
	info, err := os.Stat(l.CollectionsDir())
	if err != nil || !info.IsDir() {
		return ErrInvalidPath
	}
	return nil
}

// ValidateCollection fails with InvalidPath when the collection's log
// file is missing.
func (l Layout) ValidateCollection(name string) error {
	info, err := os.Stat(l.LogPath(name))
	if err != nil || info.IsDir() {
		return ErrInvalidPath
	}
	return nil
}

// CollectionExists probes for the collection's subtree.
func (l Layout) CollectionExists(name string) bool {
	return l.ValidateCollection(name) == nil
}

// ListCollections lists immediate subdirectories of collections/.
func (l Layout) ListCollections() ([]string, error) {
	entries, err := os.ReadDir(l.CollectionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapIo("list collections", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
