//go:build unix || linux || darwin

// Memory-mapped read path, Unix implementation.
package zds

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapRegion is a read-only memory mapping of a log file, bounded by
// the persisted length captured at the last open or refresh.
type mmapRegion struct {
	data []byte
}

// openMmap maps the first length bytes of f read-only. A length of 0
// yields an empty region without calling mmap.
func openMmap(f *os.File, length int64) (*mmapRegion, error) {
	if length == 0 {
		return &mmapRegion{data: nil}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, wrapIo("mmap", err)
	}
	return &mmapRegion{data: data}, nil
}

func (m *mmapRegion) slice(offset int64, length int) []byte {
	if m.data == nil {
		return nil
	}
	return m.data[offset : offset+int64(length)]
}

func (m *mmapRegion) len() int64 {
	return int64(len(m.data))
}

func (m *mmapRegion) unmap() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return wrapIo("munmap", err)
	}
	m.data = nil
	return nil
}
