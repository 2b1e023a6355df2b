// Package jsonldb provides thread-safe JSONL file storage.
//
// It offers Table[T] for generic type-safe row storage. Row types must
// implement the Row interface (Clone plus GetID). Table uses a read-write
// lock for concurrent access; reads hand out clones so callers can never
// mutate cached rows.
package jsonldb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

// Row is implemented by types stored in a Table.
type Row[T any] interface {
	Clone() T
	GetID() string
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string
	mu   sync.RWMutex

	rows []T
	byID map[string]int
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	table := &Table[T]{path: path}
	if err := table.load(); err != nil {
		return nil, err
	}
	return table, nil
}

// Path returns the backing file path.
func (t *Table[T]) Path() string {
	return t.path
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked()
}

func (t *Table[T]) loadLocked() error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = []T{}
			t.byID = map[string]int{}
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}

	t.rows = rows
	t.reindexLocked()
	return nil
}

func (t *Table[T]) reindexLocked() {
	t.byID = make(map[string]int, len(t.rows))
	for i, row := range t.rows {
		t.byID[row.GetID()] = i
	}
}

// Reload re-reads the table from disk, replacing the in-memory cache.
// Used when the file was modified out-of-band.
func (t *Table[T]) Reload() error {
	return t.load()
}

// Get returns a clone of the row with the given id, or the zero value if
// not found.
func (t *Table[T]) Get(id string) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.byID[id]; ok {
		return t.rows[i].Clone()
	}
	var zero T
	return zero
}

// Has reports whether a row with the given id exists.
func (t *Table[T]) Has(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byID[id]
	return ok
}

// All returns an iterator over clones of all rows.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
func (t *Table[T]) Append(row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.byID[row.GetID()]; dup {
		return fmt.Errorf("duplicate row id %q in %s", row.GetID(), t.path)
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	t.rows = append(t.rows, row)
	t.byID[row.GetID()] = len(t.rows) - 1
	return nil
}

// Update replaces the row with the same id and rewrites the file.
// Returns os.ErrNotExist if no such row exists.
func (t *Table[T]) Update(row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[row.GetID()]
	if !ok {
		return os.ErrNotExist
	}
	prev := t.rows[i]
	t.rows[i] = row
	if err := t.flushLocked(); err != nil {
		t.rows[i] = prev
		return err
	}
	return nil
}

// Delete removes the row with the given id and rewrites the file.
// Returns os.ErrNotExist if no such row exists.
func (t *Table[T]) Delete(id string) error {
	return t.DeleteMany([]string{id})
}

// DeleteMany removes all rows with the given ids and rewrites the file once.
// Returns os.ErrNotExist if any id does not exist; no row is removed then.
func (t *Table[T]) DeleteMany(ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := t.byID[id]; !ok {
			return os.ErrNotExist
		}
		drop[id] = struct{}{}
	}

	prev := t.rows
	kept := make([]T, 0, len(t.rows)-len(drop))
	for _, row := range t.rows {
		if _, gone := drop[row.GetID()]; !gone {
			kept = append(kept, row)
		}
	}
	t.rows = kept
	t.reindexLocked()
	if err := t.flushLocked(); err != nil {
		t.rows = prev
		t.reindexLocked()
		return err
	}
	return nil
}

// Replace replaces all rows with the provided slice and persists it.
func (t *Table[T]) Replace(rows []T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.rows
	t.rows = rows
	t.reindexLocked()
	if err := t.flushLocked(); err != nil {
		t.rows = prev
		t.reindexLocked()
		return err
	}
	return nil
}

// flushLocked rewrites the whole file from the in-memory rows.
// Writes to a temp file and renames so readers never observe a torn file.
func (t *Table[T]) flushLocked() error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}

	writer := bufio.NewWriter(f)
	for _, row := range t.rows {
		data, err := json.Marshal(row)
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to write row: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close table file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}
