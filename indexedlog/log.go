package indexedlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FieldSep separates fields within a record line and key from position
// within an index line. Field values must not contain it.
const FieldSep = ";"

// ErrNotFound is returned when a key is absent from the index or a position
// is past the end of the log.
var ErrNotFound = errors.New("not found")

// ParseError describes a malformed log or index line. It is distinct from
// ErrNotFound: scans may skip over it, point lookups must not.
type ParseError struct {
	Path     string
	Position int
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", filepath.Base(e.Path), e.Position, e.Reason)
}

// Log is a single append log plus its key index.
type Log struct {
	LogPath   string
	IndexPath string
}

// New returns a Log for entity name inside dir, e.g. New(dir, "cars") uses
// dir/cars.txt and dir/cars_index.txt. Files are created lazily on first
// append.
func New(dir, name string) *Log {
	return &Log{
		LogPath:   filepath.Join(dir, name+".txt"),
		IndexPath: filepath.Join(dir, name+"_index.txt"),
	}
}

// CheckFields rejects field values that would corrupt the line format.
func CheckFields(fields []string) error {
	for _, f := range fields {
		if strings.Contains(f, FieldSep) {
			return fmt.Errorf("field %q cannot contain %q", f, FieldSep)
		}
		if strings.ContainsAny(f, "\n\r") {
			return fmt.Errorf("field %q cannot contain newlines", f)
		}
	}
	return nil
}

func appendToFile(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	_, err = file.Write(data)
	if err != nil {
		file.Close()
		return err
	}
	err = file.Sync()
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// readLines returns all lines of path without trailing newlines.
// A missing file reads as empty.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// Count returns the number of records in the log.
func (l *Log) Count() (int, error) {
	lines, err := readLines(l.LogPath)
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

// Append writes a record to the end of the log and records (key, position)
// in the index. It returns the position assigned to the record.
//
// The position is the line count of the log at the time of the call, so
// concurrent appenders race; see the package comment.
func (l *Log) Append(key string, fields []string) (int, error) {
	if key == "" {
		return 0, fmt.Errorf("key is empty")
	}
	if err := CheckFields(fields); err != nil {
		return 0, err
	}
	if err := CheckFields([]string{key}); err != nil {
		return 0, err
	}

	pos, err := l.Count()
	if err != nil {
		return 0, err
	}
	line := strings.Join(fields, FieldSep) + "\n"
	if err := appendToFile(l.LogPath, []byte(line)); err != nil {
		return 0, err
	}
	idxLine := key + FieldSep + strconv.Itoa(pos) + "\n"
	if err := appendToFile(l.IndexPath, []byte(idxLine)); err != nil {
		return 0, err
	}
	return pos, nil
}

type indexEntry struct {
	key string
	pos int
}

func parseIndexLine(path string, lineNo int, line string) (indexEntry, error) {
	parts := strings.Split(line, FieldSep)
	if len(parts) != 2 {
		return indexEntry{}, &ParseError{Path: path, Position: lineNo, Reason: "invalid index line"}
	}
	pos, err := strconv.Atoi(parts[1])
	if err != nil || pos < 0 {
		return indexEntry{}, &ParseError{Path: path, Position: lineNo, Reason: "invalid position in index line"}
	}
	return indexEntry{key: parts[0], pos: pos}, nil
}

func (l *Log) readIndexEntries() ([]indexEntry, error) {
	lines, err := readLines(l.IndexPath)
	if err != nil {
		return nil, err
	}
	entries := make([]indexEntry, 0, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		e, err := parseIndexLine(l.IndexPath, i, line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Index loads the entire index file into a key -> position map. Every lookup
// pays this linear cost; there is no cached copy between calls.
func (l *Log) Index() (map[string]int, error) {
	entries, err := l.readIndexEntries()
	if err != nil {
		return nil, err
	}
	m := make(map[string]int, len(entries))
	for _, e := range entries {
		m[e.key] = e.pos
	}
	return m, nil
}

// LookupPosition returns the log position recorded for key, or ErrNotFound.
func (l *Log) LookupPosition(key string) (int, error) {
	idx, err := l.Index()
	if err != nil {
		return 0, err
	}
	pos, ok := idx[key]
	if !ok {
		return 0, fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	return pos, nil
}

// ReadAt returns the fields of the record at the given position. It scans
// the log forward to the requested ordinal; positions past the end of the
// log return ErrNotFound.
func (l *Log) ReadAt(pos int) ([]string, error) {
	lines, err := readLines(l.LogPath)
	if err != nil {
		return nil, err
	}
	if pos < 0 || pos >= len(lines) {
		return nil, fmt.Errorf("position %d: %w", pos, ErrNotFound)
	}
	return strings.Split(lines[pos], FieldSep), nil
}

// RewriteAt reads the whole log, applies mutate to the fields of the line at
// pos and writes the file back atomically. All other lines are preserved
// byte for byte. Returns the mutated fields.
func (l *Log) RewriteAt(pos int, mutate func(fields []string) ([]string, error)) ([]string, error) {
	lines, err := readLines(l.LogPath)
	if err != nil {
		return nil, err
	}
	if pos < 0 || pos >= len(lines) {
		return nil, fmt.Errorf("position %d: %w", pos, ErrNotFound)
	}
	fields, err := mutate(strings.Split(lines[pos], FieldSep))
	if err != nil {
		return nil, err
	}
	if err := CheckFields(fields); err != nil {
		return nil, err
	}
	lines[pos] = strings.Join(fields, FieldSep)
	if err := writeLinesAtomic(l.LogPath, lines); err != nil {
		return nil, err
	}
	return fields, nil
}

// RenameKey replaces oldKey with newKey in the index and rewrites the index
// file fully sorted by key. Positions are unchanged; the log file itself is
// not touched (rewrite the key field via RewriteAt separately).
//
// Append leaves the index in insertion order, so a rename is the only
// operation after which the index file is sorted.
func (l *Log) RenameKey(oldKey, newKey string) error {
	if err := CheckFields([]string{newKey}); err != nil {
		return err
	}
	entries, err := l.readIndexEntries()
	if err != nil {
		return err
	}
	found := false
	for i := range entries {
		if entries[i].key == oldKey {
			entries[i].key = newKey
			found = true
		}
	}
	if !found {
		return fmt.Errorf("key %q: %w", oldKey, ErrNotFound)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.key + FieldSep + strconv.Itoa(e.pos)
	}
	return writeLinesAtomic(l.IndexPath, lines)
}

// Scan calls fn for every record in log order with its position and raw
// fields. fn returning an error stops the scan.
func (l *Log) Scan(fn func(pos int, fields []string) error) error {
	lines, err := readLines(l.LogPath)
	if err != nil {
		return err
	}
	for i, line := range lines {
		if line == "" {
			continue
		}
		if err := fn(i, strings.Split(line, FieldSep)); err != nil {
			return err
		}
	}
	return nil
}
