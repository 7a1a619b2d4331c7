// Package indexedlog implements a line-oriented append log paired with an
// index file mapping a record's primary key to its line position.
//
// # Layout
//
// A Log consists of two text files:
//   - a log file (e.g. "cars.txt") holding one ';'-delimited record per line
//   - an index file (e.g. "cars_index.txt") holding "key;position" lines
//
// Position is the zero-based ordinal of a record's line within the log file,
// not a byte offset. Records are never removed, so positions stay valid; the
// only mutations are in-place rewrites of a single line.
//
// # Basic Usage
//
//	l := indexedlog.New("./data", "cars")
//	pos, err := l.Append("VIN1", []string{"VIN1", "1", "40000", "2024-01-01T00:00:00Z", "available"})
//	pos, err = l.LookupPosition("VIN1")
//	fields, err := l.ReadAt(pos)
//
// # Mutation
//
// RewriteAt reads the whole log into memory, mutates the target line and
// writes the file back via a temp-file rename. There is no partial in-place
// update. RenameKey additionally rewrites the index, fully sorted by key.
//
// # Concurrency
//
// A Log does no locking of its own. Callers that mutate must serialize access
// themselves; the position computed by Append is a read-then-write on the log
// file and races under concurrent writers.
package indexedlog
