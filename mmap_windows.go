//go:build windows

// Memory-mapped read path, Windows fallback. Windows file mapping
// requires a distinct syscall surface (CreateFileMapping/MapViewOfFile)
// that golang.org/x/sys does not wrap as conveniently as Unix mmap, so
// this fallback reads the bounded region into a regular heap buffer.
// Callers see the same mmapRegion API either way.
package zds

import (
	"io"
	"os"
)

type mmapRegion struct {
	data []byte
}

func openMmap(f *os.File, length int64) (*mmapRegion, error) {
	if length == 0 {
		return &mmapRegion{data: nil}, nil
	}
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, wrapIo("read region", err)
	}
	return &mmapRegion{data: buf}, nil
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
	m.data = nil
	return nil
}
