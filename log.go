// Append-only log primitives.
//
// Every record is a single JSON line terminated by 0x0A. append writes
// at the tracked tail and returns the record's offset and length;
// readAt uses positional ReadAt and scanLines reads through an
// io.SectionReader, so concurrent readers sharing one *os.File never
// race on a shared seek position.
package zds

import (
	"bufio"
	"io"
	"os"
)

// logWriter tracks the append offset of one collection's log file and
// serializes writes against it. The zero value is not usable; use
// openLogWriter.
type logWriter struct {
	f    *os.File
	tail int64
}

func openLogWriter(path string) (*logWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, wrapIo("open log", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapIo("stat log", err)
	}
	return &logWriter{f: f, tail: info.Size()}, nil
}

// append writes one JSON-encoded line at the current tail and advances
// it. Returns the offset the line starts at and its length excluding
// the terminator.
func (lw *logWriter) append(line []byte, sync bool) (offset int64, length int, err error) {
	offset = lw.tail
	buf := make([]byte, len(line)+1)
	copy(buf, line)
	buf[len(line)] = '\n'

	if _, err = lw.f.WriteAt(buf, offset); err != nil {
		return 0, 0, wrapIo("append log", err)
	}
	lw.tail += int64(len(buf))

	if sync {
		if err = lw.f.Sync(); err != nil {
			return 0, 0, wrapIo("sync log", err)
		}
	}
	return offset, len(line), nil
}

func (lw *logWriter) sync() error {
	if err := lw.f.Sync(); err != nil {
		return wrapIo("sync log", err)
	}
	return nil
}

func (lw *logWriter) size() int64 {
	return lw.tail
}

func (lw *logWriter) close() error {
	return lw.f.Close()
}

// readAt reads exactly length bytes at offset, used once an index
// lookup has already supplied both coordinates.
func readAt(f *os.File, offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, wrapIo("read record", err)
	}
	return buf, nil
}

// scanLines invokes yield for every line in [start, end) of f, passing
// the line's offset and raw bytes. Stops early if yield returns false.
func scanLines(f *os.File, start, end int64, maxLine int, yield func(offset int64, line []byte) bool) error {
	if start >= end {
		return nil
	}
	section := io.NewSectionReader(f, start, end-start)
	scanner := bufio.NewScanner(section)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	offset := start
	for scanner.Scan() {
		line := scanner.Bytes()
		if !yield(offset, line) {
			return nil
		}
		offset += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		return wrapIo("scan log", err)
	}
	return nil
}
