// OS-level file locking for cross-process coordination.
//
// fileLock wraps flock(2) / LockFileEx with a mutex that guards the
// file handle's lifetime. The mutex is held for the entire duration of
// the flock syscall so that Fd() cannot race with Close() on the same
// *os.File.
//
// Callers use setFile(nil) before closing the underlying file. This
// blocks until any in-flight flock completes, then makes subsequent
// Lock/Unlock calls no-ops. After reopening, setFile(f) restores normal
// operation.
package zds

import (
	"os"
	"sync"
)

// LockMode selects shared (read) or exclusive (write) locking.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// fileLock coordinates OS-level file locks with safe handle teardown.
type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

// Lock acquires a shared or exclusive flock. Returns nil immediately if
// the handle has been cleared via setFile(nil).
func (l *fileLock) Lock(mode LockMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.lock(mode)
}

// TryLock attempts a non-blocking flock, returning ErrAlreadyLocked on
// contention instead of blocking.
func (l *fileLock) TryLock(mode LockMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.tryLock(mode)
}

// Unlock releases the flock. Returns nil immediately if the handle has
// been cleared via setFile(nil).
func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the underlying file handle. Passing nil drains any
// in-flight flock and disables further locking.
func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
