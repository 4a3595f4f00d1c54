//go:build unix || linux || darwin

package zds

import (
	"errors"
	"syscall"
)

func (l *fileLock) lock(mode LockMode) error {
	op := syscall.LOCK_SH
	if mode == LockExclusive {
		op = syscall.LOCK_EX
	}
	// Blocking behavior: no LOCK_NB.
	return syscall.Flock(int(l.f.Fd()), op)
}

func (l *fileLock) tryLock(mode LockMode) error {
	op := syscall.LOCK_SH | syscall.LOCK_NB
	if mode == LockExclusive {
		op = syscall.LOCK_EX | syscall.LOCK_NB
	}
	err := syscall.Flock(int(l.f.Fd()), op)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return ErrAlreadyLocked
	}
	return err
}

func (l *fileLock) unlock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
