package jsonldb

import (
	"testing"

	"github.com/maruel/ksid"
)

func TestUniqueIndex(t *testing.T) {
	table := newTestTable(t)
	idx := NewUniqueIndex(table, func(r *testRow) string { return r.Name })

	row := &testRow{ID: ksid.NewID(), Name: "alpha"}
	if err := table.Append(row); err != nil {
		t.Fatal(err)
	}

	if got := idx.Get("alpha"); got == nil || got.ID != row.ID {
		t.Error("Index did not observe Append")
	}

	if _, err := table.Modify(row.ID, func(r *testRow) error {
		r.Name = "beta"
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if idx.Get("alpha") != nil {
		t.Error("Old key still resolves after Update")
	}
	if got := idx.Get("beta"); got == nil || got.ID != row.ID {
		t.Error("New key does not resolve after Update")
	}

	if err := table.Delete(row.ID); err != nil {
		t.Fatal(err)
	}
	if idx.Get("beta") != nil {
		t.Error("Key still resolves after Delete")
	}
}

func TestUniqueIndexReplaysExistingRows(t *testing.T) {
	table := newTestTable(t)
	row := &testRow{ID: ksid.NewID(), Name: "early"}
	if err := table.Append(row); err != nil {
		t.Fatal(err)
	}

	// Index created after the append must still see the row.
	idx := NewUniqueIndex(table, func(r *testRow) string { return r.Name })
	if idx.Get("early") == nil {
		t.Error("Index did not replay existing rows")
	}
}

func TestIndex(t *testing.T) {
	table := newTestTable(t)
	idx := NewIndex(table, func(r *testRow) int64 { return r.Count })

	a := &testRow{ID: ksid.NewID(), Name: "a", Count: 1}
	b := &testRow{ID: ksid.NewID(), Name: "b", Count: 1}
	c := &testRow{ID: ksid.NewID(), Name: "c", Count: 2}
	for _, r := range []*testRow{a, b, c} {
		if err := table.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	count := 0
	for range idx.Iter(1) {
		count++
	}
	if count != 2 {
		t.Errorf("Expected 2 rows with key 1, got %d", count)
	}

	if err := table.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	count = 0
	for range idx.Iter(1) {
		count++
	}
	if count != 1 {
		t.Errorf("Expected 1 row with key 1 after delete, got %d", count)
	}
}
