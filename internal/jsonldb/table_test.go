package jsonldb

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/maruel/ksid"
)

type testRow struct {
	ID    ksid.ID `json:"id"`
	Name  string  `json:"name"`
	Count int64   `json:"count"`
}

func (r *testRow) Clone() *testRow {
	c := *r
	return &c
}

func (r *testRow) GetID() ksid.ID {
	return r.ID
}

func (r *testRow) Validate() error {
	if r.ID.IsZero() {
		return errors.New("id is required")
	}
	return nil
}

func newTestTable(t *testing.T) *Table[*testRow] {
	t.Helper()
	table, err := NewTable[*testRow](filepath.Join(t.TempDir(), "rows.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestTableAppendGet(t *testing.T) {
	table := newTestTable(t)

	row := &testRow{ID: ksid.NewID(), Name: "alpha"}
	if err := table.Append(row); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Expected 1 row, got %d", table.Len())
	}

	got := table.Get(row.ID)
	if got == nil {
		t.Fatal("Get returned nil for existing row")
	}
	if got.Name != "alpha" {
		t.Errorf("Expected name alpha, got %s", got.Name)
	}

	// Get must return a clone, not the cached row.
	got.Name = "mutated"
	if table.Get(row.ID).Name != "alpha" {
		t.Error("Get leaked a reference to the cached row")
	}

	if table.Get(ksid.NewID()) != nil {
		t.Error("Expected nil for unknown ID")
	}
}

func TestTableAppendDuplicateID(t *testing.T) {
	table := newTestTable(t)
	row := &testRow{ID: ksid.NewID(), Name: "a"}
	if err := table.Append(row); err != nil {
		t.Fatal(err)
	}
	if err := table.Append(&testRow{ID: row.ID, Name: "b"}); err == nil {
		t.Error("Expected error appending duplicate ID")
	}
}

func TestTableAppendInvalid(t *testing.T) {
	table := newTestTable(t)
	if err := table.Append(&testRow{Name: "no id"}); err == nil {
		t.Error("Expected validation error for row without ID")
	}
}

func TestTableModify(t *testing.T) {
	table := newTestTable(t)
	row := &testRow{ID: ksid.NewID(), Name: "before"}
	if err := table.Append(row); err != nil {
		t.Fatal(err)
	}

	updated, err := table.Modify(row.ID, func(r *testRow) error {
		r.Name = "after"
		return nil
	})
	if err != nil {
		t.Fatalf("Modify failed: %v", err)
	}
	if updated.Name != "after" {
		t.Errorf("Expected after, got %s", updated.Name)
	}
	if table.Get(row.ID).Name != "after" {
		t.Error("Modify did not persist to the cache")
	}

	// An error from fn must leave the row untouched.
	wantErr := errors.New("rejected")
	if _, err := table.Modify(row.ID, func(r *testRow) error {
		r.Name = "discarded"
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Expected rejection error, got %v", err)
	}
	if table.Get(row.ID).Name != "after" {
		t.Error("Failed Modify leaked a partial mutation")
	}

	if _, err := table.Modify(ksid.NewID(), func(r *testRow) error { return nil }); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("Expected ErrRowNotFound, got %v", err)
	}
}

func TestTableDelete(t *testing.T) {
	table := newTestTable(t)
	a := &testRow{ID: ksid.NewID(), Name: "a"}
	b := &testRow{ID: ksid.NewID(), Name: "b"}
	for _, r := range []*testRow{a, b} {
		if err := table.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	if err := table.Delete(a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if table.Get(a.ID) != nil {
		t.Error("Deleted row still retrievable")
	}
	if table.Get(b.ID) == nil {
		t.Error("Delete removed the wrong row")
	}
	if err := table.Delete(a.ID); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("Expected ErrRowNotFound, got %v", err)
	}
}

func TestTablePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatal(err)
	}
	row := &testRow{ID: ksid.NewID(), Name: "persisted", Count: 42}
	if err := table.Append(row); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Modify(row.ID, func(r *testRow) error {
		r.Count = 43
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatal(err)
	}
	got := reloaded.Get(row.ID)
	if got == nil {
		t.Fatal("Row lost after reload")
	}
	if got.Count != 43 {
		t.Errorf("Expected count 43 after reload, got %d", got.Count)
	}
}

func TestTableConcurrentModify(t *testing.T) {
	table := newTestTable(t)
	row := &testRow{ID: ksid.NewID(), Name: "counter"}
	if err := table.Append(row); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_, _ = table.Modify(row.ID, func(r *testRow) error {
					r.Count++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if got := table.Get(row.ID).Count; got != workers*perWorker {
		t.Errorf("Expected %d increments, got %d", workers*perWorker, got)
	}
}
