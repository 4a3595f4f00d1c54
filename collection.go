// Collection store: the user-facing CRUD surface over one collection's
// log and index. Composes the binary index (zdx.go) with the
// append-only log and its memory-mapped read path (log.go,
// mmap_unix.go/mmap_windows.go).
//
// A store opened read-only never appends; its mmap and index snapshot
// are taken at open time. RefreshMmap re-maps the log to its current
// length; the index snapshot is reloaded from disk only by the refresh
// that Watch triggers. A store
// opened read-write owns a logWriter and participates in the root's
// writer lock for its lifetime (enforced by Root, not by Collection
// itself).
package zds

import (
	"io"
	"iter"
	"log/slog"
	"os"
	"sync"
)

// StorageMode selects between the two storage layouts a collection may
// use. They are mutually exclusive per collection and chosen at open
// time; the log+index layout is authoritative whenever both exist.
type StorageMode int

const (
	// ModeLog stores and serves documents purely through the append-only
	// log plus binary index.
	ModeLog StorageMode = iota
	// ModePerDocument additionally mirrors every record to an individual
	// file under docs/ and serves Get from that mirror (Scan still reads
	// the log), trading
	// write throughput for a filesystem tree a human or text-diff tool
	// can browse directly.
	ModePerDocument
)

// CollectionOptions configures a newly opened collection store.
type CollectionOptions struct {
	Mode          StorageMode
	Strict        bool
	ReadOnly      bool
	Batch         BatchConfig
	MaxRecordSize int64
	SyncWrites    bool
	Logger        *slog.Logger
}

func (o CollectionOptions) withDefaults() CollectionOptions {
	d := DefaultConfig()
	if o.Batch.MaxOps == 0 {
		o.Batch = d.Batch
	}
	if o.MaxRecordSize == 0 {
		o.MaxRecordSize = d.MaxRecordSize
	}
	if o.Logger == nil {
		o.Logger = discardLogger()
	}
	return o
}

// Collection is the opened handle to one collection's log and index.
type Collection struct {
	name   string
	layout Layout
	opts   CollectionOptions

	mu       sync.RWMutex
	index    *zdxIndex
	logw     *logWriter // nil when opened read-only
	readf    *os.File
	mm       *mmapRegion
	manifest CollectionManifest

	pending   *pendingBatch
	hasShape  bool
	shapeHash uint64

	logger *slog.Logger
	closed bool

	watchStop func()
}

// openCollection opens (creating lazily) the named collection under
// layout. Every mode appends to the log; the docs/ mirror directory is
// created, and written by Put, only in ModePerDocument.
func openCollection(layout Layout, name string, opts CollectionOptions) (*Collection, error) {
	opts = opts.withDefaults()

	if err := layout.InitCollection(name, opts.Mode == ModePerDocument); err != nil {
		return nil, err
	}

	manifestPath := layout.ManifestPath(name)
	manifest, err := loadCollectionManifest(manifestPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		manifest = newCollectionManifest(name, opts.Strict, opts.Mode == ModePerDocument)
		if !opts.ReadOnly {
			if err := saveCollectionManifest(manifestPath, manifest); err != nil {
				return nil, err
			}
		}
	}

	logPath := layout.LogPath(name)
	idx, err := loadZdx(layout.IndexPath(name))
	rebuilt := false
	if err != nil {
		if !os.IsNotExist(err) {
			// Present but corrupted: fatal, regardless of read-only mode.
			// A caller that wants to recover removes index.bin and retries,
			// which turns this into the missing-file branch below.
			return nil, ErrCorruptedIndex
		}
		idx, err = rebuildZdx(logPath)
		if err != nil {
			return nil, err
		}
		rebuilt = true
	}

	readf, err := os.Open(logPath)
	if err != nil {
		return nil, wrapIo("open log for reading", err)
	}

	var logw *logWriter
	if !opts.ReadOnly {
		logw, err = openLogWriter(logPath)
		if err != nil {
			readf.Close()
			return nil, err
		}
	}

	var persistedEnd int64
	if logw != nil {
		persistedEnd = logw.size()
	} else if info, serr := readf.Stat(); serr == nil {
		persistedEnd = info.Size()
	}

	mm, err := openMmap(readf, persistedEnd)
	if err != nil {
		readf.Close()
		if logw != nil {
			logw.close()
		}
		return nil, err
	}

	c := &Collection{
		name:      name,
		layout:    layout,
		opts:      opts,
		index:     idx,
		logw:      logw,
		readf:     readf,
		mm:        mm,
		manifest:  manifest,
		hasShape:  manifest.HasShape,
		shapeHash: manifest.ShapeHash,
		logger:    opts.Logger,
	}
	if !opts.ReadOnly {
		c.pending = newPendingBatch(opts.Batch)
	}

	if rebuilt {
		c.logger.Info("index rebuilt from log", "collection", name, "docs", idx.len())
		if !opts.ReadOnly {
			if err := saveZdx(layout.IndexPath(name), idx); err != nil {
				c.Close()
				return nil, err
			}
		}
	}

	// manifest.json carries its own record of whether a shape has been
	// captured, but it can be absent (deleted alongside a lost index) or
	// stale relative to the log it sits next to. When strict mode is on
	// and the manifest did not already have a shape recorded, derive one
	// from any live document rather than let the next Put silently
	// capture a shape that might contradict everything already stored.
	if manifest.Strict && !c.hasShape && idx.len() > 0 {
		if err := c.deriveShapeFromLiveDocument(); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// deriveShapeFromLiveDocument hashes an arbitrary live document's shape
// and, for a writable collection, persists it to the manifest so a
// strict-mode collection reopened after its manifest's shape fields
// were lost still enforces the shape already committed to the log.
func (c *Collection) deriveShapeFromLiveDocument() error {
	for _, id := range c.index.ids() {
		doc, err := c.Get(id)
		if err != nil {
			continue
		}
		c.hasShape = true
		c.shapeHash = shapeHash(doc)
		if c.logw != nil {
			c.manifest.HasShape = true
			c.manifest.ShapeHash = c.shapeHash
			return saveCollectionManifest(c.layout.ManifestPath(c.name), c.manifest)
		}
		return nil
	}
	return nil
}

// Put creates or updates a document. The key passed here is
// authoritative: the document's "_id" field is overwritten to match it
// before serialization, so a mismatched payload id never causes a
// silent divergence between the key and the stored record.
func (c *Collection) Put(id string, doc map[string]any) error {
	if err := validateID(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrInvalidState
	}
	if c.logw == nil {
		return ErrInvalidState
	}

	if doc == nil {
		doc = map[string]any{}
	}
	doc["_id"] = id

	capturingShape := false
	var h uint64
	if c.manifest.Strict {
		h = shapeHash(doc)
		if !c.hasShape {
			capturingShape = true
		} else if h != c.shapeHash {
			return ErrSchemaMismatch
		}
	}

	line, err := jsonMarshal(doc)
	if err != nil {
		return wrapJson("marshal document", err)
	}
	if int64(len(line)) > c.opts.MaxRecordSize {
		return ErrRecordTooLarge
	}

	offset, length, err := c.logw.append(line, c.opts.SyncWrites)
	if err != nil {
		return err
	}
	c.index.put(id, uint64(offset), uint32(length))

	if capturingShape {
		c.hasShape = true
		c.shapeHash = h
		c.manifest.HasShape = true
		c.manifest.ShapeHash = c.shapeHash
		if err := saveCollectionManifest(c.layout.ManifestPath(c.name), c.manifest); err != nil {
			return err
		}
	}

	if c.opts.Mode == ModePerDocument {
		if err := os.WriteFile(c.layout.DocPath(c.name, id), line, 0o644); err != nil {
			return wrapIo("write per-document mirror", err)
		}
	}

	c.pending.record(len(line) + 1)
	if c.pending.shouldFlush() {
		return c.flushLocked()
	}
	return nil
}

// Get returns the document whose "_id" equals id.
func (c *Collection) Get(id string) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrInvalidState
	}
	e, ok := c.index.get(id)
	if !ok {
		return nil, ErrDocumentNotFound
	}

	var raw []byte
	var err error
	if c.opts.Mode == ModePerDocument {
		raw, err = os.ReadFile(c.layout.DocPath(c.name, id))
		if err != nil {
			return nil, wrapIo("read per-document mirror", err)
		}
	} else {
		raw, err = c.readRecord(e)
		if err != nil {
			return nil, err
		}
	}

	var doc map[string]any
	if err := jsonUnmarshal(raw, &doc); err != nil {
		return nil, wrapJson("decode document", err)
	}
	return doc, nil
}

// readRecord slices the mmap when the record falls within the mapped
// region, falling back to a direct read for bytes appended since the
// last refresh.
func (c *Collection) readRecord(e zdxEntry) ([]byte, error) {
	end := int64(e.Offset) + int64(e.Length)
	if c.mm != nil && end <= c.mm.len() {
		return c.mm.slice(int64(e.Offset), int(e.Length)), nil
	}
	return readAt(c.readf, int64(e.Offset), int(e.Length))
}

// Delete removes a document from the index. Per the append-only
// invariant, the log itself is left untouched.
func (c *Collection) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrInvalidState
	}
	if c.logw == nil {
		return ErrInvalidState
	}
	if !c.index.contains(id) {
		return ErrDocumentNotFound
	}
	c.index.delete(id)
	if c.opts.Mode == ModePerDocument {
		os.Remove(c.layout.DocPath(c.name, id))
	}
	return nil
}

// Exists reports whether id is currently reachable via the index.
func (c *Collection) Exists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.contains(id)
}

// Len returns the count of live identifiers.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.len()
}

// ListIDs returns a snapshot of current identifiers.
func (c *Collection) ListIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.ids()
}

// ScanPredicate matches a single top-level field by equality.
type ScanPredicate struct {
	Field string
	Value any
}

// ScanOptions configures Scan.
type ScanOptions struct {
	Predicate  *ScanPredicate
	Projection []string
}

// Scan yields every live document in log-append order. It is a finite,
// restartable iterator: each call to Scan walks the log fresh.
func (c *Collection) Scan(opts ScanOptions) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		c.mu.RLock()
		defer c.mu.RUnlock()

		live := c.index // RLock is held for the whole scan, so no Put or Delete can change it meanwhile

		maxLine := int(c.opts.MaxRecordSize)
		err := scanLines(c.readf, 0, c.persistedEndLocked(), maxLine, func(offset int64, line []byte) bool {
			var doc map[string]any
			if uerr := jsonUnmarshal(line, &doc); uerr != nil {
				return yield(nil, wrapJson("decode scanned line", uerr))
			}
			id, _ := doc["_id"].(string)
			if id == "" {
				return true // malformed or partial line, skip
			}
			e, ok := live.get(id)
			if !ok || int64(e.Offset) != offset {
				return true // shadowed by a later overwrite or deleted
			}
			if opts.Predicate != nil {
				v, ok := doc[opts.Predicate.Field]
				if !ok || v != opts.Predicate.Value {
					return true
				}
			}
			if len(opts.Projection) > 0 {
				doc = project(doc, opts.Projection)
			}
			return yield(doc, nil)
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

func project(doc map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// ScanRaw returns the entire log as an opaque byte buffer. It reads
// through a SectionReader rather than seeking c.readf directly, since
// RLock permits concurrent callers (ScanRaw against ScanRaw, or
// against Get/Scan) that would otherwise race on the file's shared
// offset.
func (c *Collection) ScanRaw() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sr := io.NewSectionReader(c.readf, 0, c.persistedEndLocked())
	data, err := io.ReadAll(sr)
	if err != nil {
		return nil, wrapIo("read log", err)
	}
	return data, nil
}

func (c *Collection) persistedEndLocked() int64 {
	if c.logw != nil {
		return c.logw.size()
	}
	if c.mm != nil {
		return c.mm.len()
	}
	info, err := c.readf.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Flush fsyncs the log and atomically persists the index. Appended
// bytes are already in the log file, but are fsynced before this only
// when SyncWrites is set.
func (c *Collection) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Collection) flushLocked() error {
	if c.logw == nil {
		return nil
	}
	if err := c.logw.sync(); err != nil {
		return err
	}
	if err := saveZdx(c.layout.IndexPath(c.name), c.index); err != nil {
		return err
	}
	c.manifest.DocCount = c.index.len()
	if err := saveCollectionManifest(c.layout.ManifestPath(c.name), c.manifest); err != nil {
		return err
	}
	if c.pending != nil {
		c.pending.reset()
	}
	return c.refreshMmapLocked()
}

// RefreshMmap re-maps the log to cover bytes appended externally since
// the last open or refresh.
func (c *Collection) RefreshMmap() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshMmapLocked()
}

func (c *Collection) refreshMmapLocked() error {
	end := c.persistedEndLocked()
	if c.logw == nil {
		// A reader's persisted end is its current mapping's length; take
		// the file's size instead so the new mapping covers the growth.
		info, err := c.readf.Stat()
		if err != nil {
			return wrapIo("stat log", err)
		}
		end = info.Size()
	}
	if c.mm != nil {
		if err := c.mm.unmap(); err != nil {
			return err
		}
	}
	mm, err := openMmap(c.readf, end)
	if err != nil {
		return err
	}
	c.mm = mm
	return nil
}

// refreshLocked re-maps the log and, for a read-only handle, reloads
// the index from disk. A writer never needs the reload half: its
// index is always the authoritative in-memory copy.
func (c *Collection) refreshLocked() error {
	if c.logw == nil {
		idx, err := loadZdx(c.layout.IndexPath(c.name))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if err == nil {
			c.index = idx
		}
	}
	return c.refreshMmapLocked()
}

// Close flushes (if writable) and releases the collection's handles.
// Using the collection after Close fails with InvalidState.
func (c *Collection) Close() error {
	c.mu.Lock()
	stop := c.watchStop
	c.watchStop = nil
	c.mu.Unlock()
	if stop != nil {
		// Stopped with the mutex released: the watch goroutine's event
		// handler needs to acquire it to finish draining.
		stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	var firstErr error
	if c.logw != nil {
		if err := c.flushLocked(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := c.logw.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.mm != nil {
		c.mm.unmap()
	}
	if err := c.readf.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.closed = true
	return firstErr
}
