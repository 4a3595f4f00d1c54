//go:build windows

package zds

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001
)

func (l *fileLock) lock(mode LockMode) error {
	var flags uint32
	if mode == LockExclusive {
		flags |= lockfileExclusiveLock
	}
	return lockFileEx(l.f, flags)
}

func (l *fileLock) tryLock(mode LockMode) error {
	var flags uint32 = lockfileFailImmediately
	if mode == LockExclusive {
		flags |= lockfileExclusiveLock
	}
	if err := lockFileEx(l.f, flags); err != nil {
		return ErrAlreadyLocked
	}
	return nil
}

func lockFileEx(f *os.File, flags uint32) error {
	h := syscall.Handle(f.Fd())
	var overlapped syscall.Overlapped
	r1, _, err := procLockFileEx.Call(
		uintptr(h),
		uintptr(flags),
		0,
		0xFFFFFFFF,
		0xFFFFFFFF,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		return err
	}
	return nil
}

func (l *fileLock) unlock() error {
	h := syscall.Handle(l.f.Fd())
	var overlapped syscall.Overlapped
	r1, _, err := procUnlockFileEx.Call(
		uintptr(h),
		0,
		0xFFFFFFFF,
		0xFFFFFFFF,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		return err
	}
	return nil
}
