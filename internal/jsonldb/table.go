package jsonldb

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/maruel/ksid"
)

// ErrRowNotFound is returned when a row with the requested ID does not exist.
var ErrRowNotFound = errors.New("row not found")

// Row is implemented by types stored in a Table.
type Row[T any] interface {
	// Clone returns a deep copy so callers never alias cached rows.
	Clone() T
	// GetID returns the row's unique identifier.
	GetID() ksid.ID
	// Validate checks row invariants before persisting.
	Validate() error
}

// TableObserver receives notifications about table mutations.
// Observers are invoked under the table's write lock, so they see mutations
// in order and must not call back into the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string

	mu        sync.RWMutex
	rows      []T
	byID      map[ksid.ID]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = nil
	t.byID = make(map[ksid.ID]int)

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		t.rows = append(t.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}

	// Sort by ID on load if out of order (handles clock drift, manual edits).
	sort.SliceStable(t.rows, func(i, j int) bool {
		return t.rows[i].GetID() < t.rows[j].GetID()
	})
	for i, row := range t.rows {
		t.byID[row.GetID()] = i
	}
	return nil
}

// AddObserver registers an observer and replays existing rows into it.
func (t *Table[T]) AddObserver(obs TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, obs)
	for _, row := range t.rows {
		obs.OnAppend(row)
	}
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID, or the zero value if absent.
func (t *Table[T]) Get(id ksid.ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero
	}
	return t.rows[i].Clone()
}

// All returns an iterator over clones of all rows in ID order.
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
	if err := row.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := row.GetID()
	if _, ok := t.byID[id]; ok {
		return fmt.Errorf("duplicate row id %s", id)
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
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}

	t.byID[id] = len(t.rows)
	t.rows = append(t.rows, row)
	for _, obs := range t.observers {
		obs.OnAppend(row)
	}
	return nil
}

// Modify atomically applies fn to a clone of the row and persists the result.
// The write lock is held for the whole read-modify-write cycle, so fn must be
// quick and must not call back into the table. Returns a clone of the updated
// row.
func (t *Table[T]) Modify(id ksid.ID, fn func(row T) error) (T, error) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return zero, ErrRowNotFound
	}
	prev := t.rows[i]
	curr := prev.Clone()
	if err := fn(curr); err != nil {
		return zero, err
	}
	if curr.GetID() != id {
		return zero, errors.New("row id cannot be changed")
	}
	if err := curr.Validate(); err != nil {
		return zero, err
	}

	t.rows[i] = curr
	if err := t.flushLocked(); err != nil {
		t.rows[i] = prev
		return zero, err
	}
	for _, obs := range t.observers {
		obs.OnUpdate(prev, curr)
	}
	return curr.Clone(), nil
}

// Delete removes the row with the given ID and persists the change.
func (t *Table[T]) Delete(id ksid.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return ErrRowNotFound
	}
	removed := t.rows[i]
	prevRows := t.rows
	rows := make([]T, 0, len(t.rows)-1)
	rows = append(rows, t.rows[:i]...)
	rows = append(rows, t.rows[i+1:]...)
	t.rows = rows
	delete(t.byID, id)
	for j := i; j < len(t.rows); j++ {
		t.byID[t.rows[j].GetID()] = j
	}
	if err := t.flushLocked(); err != nil {
		t.rows = prevRows
		for j, row := range t.rows {
			t.byID[row.GetID()] = j
		}
		return err
	}
	for _, obs := range t.observers {
		obs.OnDelete(removed)
	}
	return nil
}

// flushLocked rewrites the whole file. Caller must hold the write lock.
func (t *Table[T]) flushLocked() error {
	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	writer := bufio.NewWriter(f)
	for _, row := range t.rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}
