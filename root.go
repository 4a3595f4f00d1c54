// Root: ownership of directory-level resources, multi-process safety,
// and vending of collection stores.
package zds

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RootMode selects whether a Root takes the exclusive writer lock.
type RootMode int

const (
	ModeReadWrite RootMode = iota
	ModeReadOnly
)

// RootOptions configures Open.
type RootOptions struct {
	Mode   RootMode
	Config Config
	Logger *slog.Logger
}

// Root is an opened root directory. Collection stores vended from it
// share its lock state; Close flushes and invalidates every store it
// vended.
type Root struct {
	path   string
	mode   RootMode
	config Config
	logger *slog.Logger

	lockFile *os.File
	lock     *fileLock

	mu          sync.Mutex
	collections map[string]*Collection
	manifest    RootManifest
	closed      bool
}

// registry is the process-wide table of open roots, keyed by canonical
// path and mode, so two Opens of the same path in one process share a
// single instance instead of racing independent locks.
var (
	registryMu sync.Mutex
	registry   = map[string]*Root{}
)

func registryKey(canonical string, mode RootMode) string {
	if mode == ModeReadOnly {
		return canonical + "\x00ro"
	}
	return canonical + "\x00rw"
}

// Open opens or creates a root directory. Read-write opens acquire an
// exclusive advisory lock on collections/.write.lock; on contention
// Open fails with ErrAlreadyLocked. Subsequent opens of the same
// canonical path and mode within this process return the existing
// instance.
func Open(path string, opts RootOptions) (*Root, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, wrapIo("resolve root path", err)
	}

	key := registryKey(canonical, opts.Mode)
	registryMu.Lock()
	if r, ok := registry[key]; ok {
		registryMu.Unlock()
		return r, nil
	}
	registryMu.Unlock()

	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	opts.Config = opts.Config.applyDefaults()

	layout := NewLayout(canonical)
	if err := layout.InitRoot(); err != nil {
		return nil, err
	}

	rootManifest, err := loadRootManifest(layout.RootManifestPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		rootManifest = RootManifest{
			Name:        filepath.Base(canonical),
			CreatedAt:   time.Now().UTC(),
			Collections: map[string]CollectionStats{},
		}
	}

	r := &Root{
		path:        canonical,
		mode:        opts.Mode,
		config:      opts.Config,
		logger:      opts.Logger,
		collections: make(map[string]*Collection),
		manifest:    rootManifest,
	}

	if opts.Mode == ModeReadWrite {
		lf, err := os.OpenFile(layout.LockFile(), os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, wrapIo("open lock file", err)
		}
		fl := &fileLock{f: lf}
		if err := fl.TryLock(LockExclusive); err != nil {
			lf.Close()
			return nil, ErrAlreadyLocked
		}
		desc := newLockDescriptor()
		if err := writeLockDescriptor(layout.LockFile(), desc); err != nil {
			fl.Unlock()
			lf.Close()
			return nil, err
		}
		r.lockFile = lf
		r.lock = fl
		r.logger.Info("root lock acquired", "path", canonical, "session", desc.Session)
	}

	registryMu.Lock()
	registry[key] = r
	registryMu.Unlock()

	r.logger.Info("root opened", "path", canonical, "mode", opts.Mode)
	return r, nil
}

// layout returns this root's path builder.
func (r *Root) layout() Layout { return NewLayout(r.path) }

// Collection lazily creates and returns a shared handle to the named
// collection. Repeated calls with the same name return the same
// *Collection for the lifetime of the root.
func (r *Root) Collection(name string, opts CollectionOptions) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrInvalidState
	}
	if c, ok := r.collections[name]; ok {
		return c, nil
	}

	opts.ReadOnly = opts.ReadOnly || r.mode == ModeReadOnly
	if opts.Batch.MaxOps == 0 {
		opts.Batch = r.config.Batch
	}
	if opts.MaxRecordSize == 0 {
		opts.MaxRecordSize = r.config.MaxRecordSize
	}
	if !opts.SyncWrites {
		opts.SyncWrites = r.config.SyncWrites
	}
	if !opts.Strict {
		opts.Strict = r.config.Strict
	}
	if opts.Logger == nil {
		opts.Logger = r.logger
	}

	c, err := openCollection(r.layout(), name, opts)
	if err != nil {
		return nil, err
	}
	r.collections[name] = c
	return c, nil
}

// ListCollections lists immediate subdirectories of collections/.
func (r *Root) ListCollections() ([]string, error) {
	return r.layout().ListCollections()
}

// CollectionExists probes for the collection's subtree.
func (r *Root) CollectionExists(name string) bool {
	return r.layout().CollectionExists(name)
}

// Path returns the root's canonical directory.
func (r *Root) Path() string { return r.path }

// Close flushes every vended writer store, releases the advisory lock,
// removes the lock-file descriptor, and evicts the instance from the
// process-wide table. Using collections vended from this root
// afterward fails with InvalidState.
func (r *Root) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}

	var firstErr error
	if r.manifest.Collections == nil {
		r.manifest.Collections = map[string]CollectionStats{}
	}
	for name, c := range r.collections {
		r.manifest.Collections[name] = CollectionStats{DocCount: c.Len()}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.collections = nil

	if r.mode == ModeReadWrite {
		if err := saveRootManifest(r.layout().RootManifestPath(), r.manifest); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.lock.setFile(nil)
		os.Remove(r.layout().LockFile())
		if err := r.lockFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	registryMu.Lock()
	delete(registry, registryKey(r.path, r.mode))
	registryMu.Unlock()

	r.closed = true
	r.logger.Info("root closed", "path", r.path)
	return firstErr
}
