// Package zds provides an embeddable document store: JSON records are
// appended to a newline-delimited log file and located through a binary
// secondary index for O(1) keyed lookup. A root directory holds one or
// more named collections, each owning its own log, index, and metadata.
//
// Writers hold an exclusive OS-advisory lock on the root until the root
// is closed; readers never lock and may run alongside a
// writer or other readers, across processes. The log is never rewritten
// in place — overwrites and deletes only change what the index can
// reach, so the index can always be rebuilt from the log alone.
package zds
