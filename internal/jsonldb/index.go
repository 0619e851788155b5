// Secondary indexes over tables, maintained through the observer hooks.

package jsonldb

import (
	"iter"
	"sync"

	"github.com/maruel/ksid"
)

// UniqueIndex maps a unique secondary key to its row, O(1).
//
// It is populated from the table's existing rows at construction and kept
// current through [TableObserver]. If the table already holds duplicate keys
// the most recently loaded row wins. Safe for concurrent use.
type UniqueIndex[K comparable, T Row[T]] struct {
	table   *Table[T]
	extract func(T) K

	mu  sync.RWMutex
	ids map[K]ksid.ID
}

// NewUniqueIndex builds a unique index on table, keyed by extract.
func NewUniqueIndex[K comparable, T Row[T]](table *Table[T], extract func(T) K) *UniqueIndex[K, T] {
	idx := &UniqueIndex[K, T]{
		table:   table,
		extract: extract,
		ids:     make(map[K]ksid.ID),
	}
	table.AddObserver(idx)
	return idx
}

// Get returns the row with the given key, or the zero value if absent.
func (idx *UniqueIndex[K, T]) Get(key K) T {
	idx.mu.RLock()
	id, ok := idx.ids[key]
	idx.mu.RUnlock()
	if !ok {
		var zero T
		return zero
	}
	return idx.table.Get(id)
}

// OnAppend implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnAppend(row T) {
	idx.mu.Lock()
	idx.ids[idx.extract(row)] = row.GetID()
	idx.mu.Unlock()
}

// OnUpdate implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnUpdate(prev, curr T) {
	before, after := idx.extract(prev), idx.extract(curr)
	idx.mu.Lock()
	if before != after {
		delete(idx.ids, before)
	}
	idx.ids[after] = curr.GetID()
	idx.mu.Unlock()
}

// OnDelete implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnDelete(row T) {
	idx.mu.Lock()
	delete(idx.ids, idx.extract(row))
	idx.mu.Unlock()
}

// Index maps a non-unique secondary key to its set of rows.
//
// Like [UniqueIndex] it is seeded at construction and maintained through
// [TableObserver]. Safe for concurrent use.
type Index[K comparable, T Row[T]] struct {
	table   *Table[T]
	extract func(T) K

	mu  sync.RWMutex
	ids map[K]map[ksid.ID]struct{}
}

// NewIndex builds a non-unique index on table, keyed by extract.
func NewIndex[K comparable, T Row[T]](table *Table[T], extract func(T) K) *Index[K, T] {
	idx := &Index[K, T]{
		table:   table,
		extract: extract,
		ids:     make(map[K]map[ksid.ID]struct{}),
	}
	table.AddObserver(idx)
	return idx
}

// Iter iterates over the rows matching key. The matching IDs are snapshotted
// up front so no lock is held while the caller's body runs; a row deleted
// after the snapshot is skipped.
func (idx *Index[K, T]) Iter(key K) iter.Seq[T] {
	return func(yield func(T) bool) {
		idx.mu.RLock()
		snapshot := make([]ksid.ID, 0, len(idx.ids[key]))
		for id := range idx.ids[key] {
			snapshot = append(snapshot, id)
		}
		idx.mu.RUnlock()

		var zero T
		for _, id := range snapshot {
			row := idx.table.Get(id)
			if any(row) == any(zero) {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}

func (idx *Index[K, T]) add(key K, id ksid.ID) {
	if idx.ids[key] == nil {
		idx.ids[key] = make(map[ksid.ID]struct{})
	}
	idx.ids[key][id] = struct{}{}
}

func (idx *Index[K, T]) remove(key K, id ksid.ID) {
	delete(idx.ids[key], id)
	if len(idx.ids[key]) == 0 {
		delete(idx.ids, key)
	}
}

// OnAppend implements [TableObserver].
func (idx *Index[K, T]) OnAppend(row T) {
	idx.mu.Lock()
	idx.add(idx.extract(row), row.GetID())
	idx.mu.Unlock()
}

// OnUpdate implements [TableObserver].
func (idx *Index[K, T]) OnUpdate(prev, curr T) {
	before, after := idx.extract(prev), idx.extract(curr)
	idx.mu.Lock()
	if before != after {
		idx.remove(before, curr.GetID())
	}
	idx.add(after, curr.GetID())
	idx.mu.Unlock()
}

// OnDelete implements [TableObserver].
func (idx *Index[K, T]) OnDelete(row T) {
	idx.mu.Lock()
	idx.remove(idx.extract(row), row.GetID())
	idx.mu.Unlock()
}
