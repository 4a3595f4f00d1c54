package zds

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileLockTryLockContention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".write.lock")

	f1, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	defer f1.Close()
	l1 := &fileLock{f: f1}
	if err := l1.TryLock(LockExclusive); err != nil {
		t.Fatalf("first TryLock should succeed: %v", err)
	}

	f2, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open 2: %v", err)
	}
	defer f2.Close()
	l2 := &fileLock{f: f2}
	if err := l2.TryLock(LockExclusive); err != ErrAlreadyLocked {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}

	if err := l1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := l2.TryLock(LockExclusive); err != nil {
		t.Fatalf("second TryLock should succeed after release: %v", err)
	}
}

func TestFileLockSetFileNilIsNoOp(t *testing.T) {
	l := &fileLock{}
	if err := l.Lock(LockExclusive); err != nil {
		t.Fatalf("Lock on a lock with no file should be a no-op, got %v", err)
	}
	if err := l.TryLock(LockExclusive); err != nil {
		t.Fatalf("TryLock on a lock with no file should be a no-op, got %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock on a lock with no file should be a no-op, got %v", err)
	}
}

func TestLockDescriptorEncodeParseRoundTrip(t *testing.T) {
	d := newLockDescriptor()
	parsed, err := parseLockDescriptor(d.encode())
	if err != nil {
		t.Fatalf("parseLockDescriptor: %v", err)
	}
	if parsed.PID != d.PID {
		t.Errorf("PID mismatch: got %d want %d", parsed.PID, d.PID)
	}
	if parsed.Session != d.Session {
		t.Errorf("Session mismatch: got %q want %q", parsed.Session, d.Session)
	}
}
