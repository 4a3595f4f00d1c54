// Optional, cancellable filesystem watch letting a read-only
// collection learn about a writer's flush without polling.
//
// Per the engine's background-task constraint, this is opt-in,
// cancellable via context, and never holds Collection's mutex while
// blocked on fsnotify's channel receive.
package zds

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch starts a goroutine that refreshes the mmap and index whenever
// the collection's log or index file changes on disk, until ctx is
// canceled or StopWatch is called. Calling Watch a second time before
// stopping the first is an error.
//
// The watch targets the collection's meta directory rather than the
// two files directly: saveZdx replaces index.bin via rename, which
// swaps the watched inode out from under a watch on the file path
// itself. Watching the containing directory survives that swap.
func (c *Collection) Watch(ctx context.Context) error {
	c.mu.Lock()
	if c.watchStop != nil {
		c.mu.Unlock()
		return ErrInvalidState
	}
	metaDir := c.layout.MetaDir(c.name)
	c.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return wrapIo("start watch", err)
	}
	if err := w.Add(metaDir); err != nil {
		w.Close()
		return wrapIo("watch collection meta dir", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				c.mu.Lock()
				if !c.closed {
					c.refreshLocked()
				}
				c.mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	c.mu.Lock()
	c.watchStop = func() {
		cancel()
		<-done
	}
	c.mu.Unlock()
	return nil
}

// StopWatch cancels a watch started by Watch. No-op if none is active.
func (c *Collection) StopWatch() {
	c.mu.Lock()
	stop := c.watchStop
	c.watchStop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}
