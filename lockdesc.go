// Writer lock descriptor.
//
// The descriptor written into collections/.write.lock is diagnostic
// text, not part of the locking mechanism itself (the advisory flock
// is what actually excludes other writers). It lets an operator
// inspect a stale lock file and see who held it.
package zds

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/ksid"
)

// lockDescriptor is the diagnostic payload written into the lock file
// when a writer acquires the root lock.
type lockDescriptor struct {
	PID       int
	Host      string
	Timestamp time.Time
	Session   string
}

func newLockDescriptor() lockDescriptor {
	host, _ := os.Hostname()
	return lockDescriptor{
		PID:       os.Getpid(),
		Host:      host,
		Timestamp: time.Now().UTC(),
		Session:   ksid.NewID().String(),
	}
}

func (d lockDescriptor) encode() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", d.PID)
	fmt.Fprintf(&b, "hostname=%s\n", d.Host)
	fmt.Fprintf(&b, "timestamp=%s\n", d.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "session=%s\n", d.Session)
	return []byte(b.String())
}

func parseLockDescriptor(data []byte) (lockDescriptor, error) {
	var d lockDescriptor
	for _, line := range strings.Split(string(data), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "pid":
			d.PID, _ = strconv.Atoi(v)
		case "hostname":
			d.Host = v
		case "timestamp":
			d.Timestamp, _ = time.Parse(time.RFC3339, v)
		case "session":
			d.Session = v
		}
	}
	return d, nil
}

// writeLockDescriptor overwrites the lock file's contents with a fresh
// descriptor. Called once the advisory flock has been acquired, so the
// write itself never races with another writer.
func writeLockDescriptor(path string, d lockDescriptor) error {
	if err := os.WriteFile(path, d.encode(), 0o644); err != nil {
		return wrapIo("write lock descriptor", err)
	}
	return nil
}
