package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobforge/internal/jobrecord"
	"jobforge/internal/jobstore"
	"jobforge/internal/statemachine"
	"jobforge/internal/storage"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestRebuildPopulatesFromFilesystem(t *testing.T) {
	root := t.TempDir()
	layout := storage.New(root)
	if err := layout.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := jobstore.New(layout)

	for i, state := range []statemachine.State{statemachine.Initial, statemachine.Running, statemachine.Completed} {
		id := jobIDFor(i)
		dir := layout.JobDir(state, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		rec := jobrecord.New(id, time.Now().UTC(), nil)
		rec.State = state
		if err := store.WriteMetadata(dir, rec); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}
	}

	idx := newTestIndex(t)
	count, err := idx.Rebuild(context.Background(), store)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}

	rows, err := idx.Query(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows from query, got %d", len(rows))
	}
}

func TestRebuildIsIdempotentAndSafeToDelete(t *testing.T) {
	root := t.TempDir()
	layout := storage.New(root)
	if err := layout.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := jobstore.New(layout)
	dir := layout.JobDir(statemachine.Initial, "job1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	rec := jobrecord.New("job1", time.Now().UTC(), nil)
	if err := store.WriteMetadata(dir, rec); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	idx := newTestIndex(t)
	if _, err := idx.Rebuild(context.Background(), store); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if _, err := idx.Rebuild(context.Background(), store); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	rows, err := idx.Query(context.Background(), statemachine.Initial, 0, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row after repeated rebuild, got %d", len(rows))
	}
}

func TestQueryFiltersByState(t *testing.T) {
	root := t.TempDir()
	layout := storage.New(root)
	if err := layout.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := jobstore.New(layout)
	for i, state := range []statemachine.State{statemachine.Initial, statemachine.Initial, statemachine.Running} {
		id := jobIDFor(i)
		dir := layout.JobDir(state, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		rec := jobrecord.New(id, time.Now().UTC(), nil)
		rec.State = state
		if err := store.WriteMetadata(dir, rec); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}
	}
	idx := newTestIndex(t)
	if _, err := idx.Rebuild(context.Background(), store); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	rows, err := idx.Query(context.Background(), statemachine.Initial, 0, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 NEW rows, got %d", len(rows))
	}
}

func jobIDFor(i int) string {
	return "job" + string(rune('a'+i))
}
