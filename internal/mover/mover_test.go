package mover

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"jobforge/internal/jobrecord"
	"jobforge/internal/joberrors"
	"jobforge/internal/jobstore"
	"jobforge/internal/statemachine"
	"jobforge/internal/storage"
)

func newTestMover(t *testing.T) (*Mover, *storage.Layout, *jobstore.Store) {
	t.Helper()
	root := t.TempDir()
	layout := storage.New(root)
	if err := layout.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := jobstore.New(layout)
	return New(layout, store, nil), layout, store
}

func createJob(t *testing.T, layout *storage.Layout, store *jobstore.Store, id string) {
	t.Helper()
	dir := layout.JobDir(statemachine.Initial, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	rec := jobrecord.New(id, time.Now().UTC(), nil)
	if err := store.WriteMetadata(dir, rec); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
}

func TestMoveJobClaimsAndUpdatesMetadata(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")

	rec, err := m.MoveJob("job1", statemachine.Initial, statemachine.Claimed, statemachine.System)
	if err != nil {
		t.Fatalf("MoveJob: %v", err)
	}
	if rec.State != statemachine.Claimed {
		t.Fatalf("expected CLAIMED, got %s", rec.State)
	}
	if _, err := os.Stat(layout.JobDir(statemachine.Initial, "job1")); !os.IsNotExist(err) {
		t.Fatalf("expected job to be gone from NEW")
	}
	if _, err := os.Stat(layout.JobDir(statemachine.Claimed, "job1")); err != nil {
		t.Fatalf("expected job present in CLAIMED: %v", err)
	}
}

func TestMoveJobRejectsUnknownTransition(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")
	if _, err := m.MoveJob("job1", statemachine.Initial, statemachine.Running, statemachine.System); err == nil {
		t.Fatalf("expected rejection for unknown transition")
	}
}

func TestMoveJobFailsWhenSourceMissing(t *testing.T) {
	m, _, _ := newTestMover(t)
	if _, err := m.MoveJob("ghost", statemachine.Initial, statemachine.Claimed, statemachine.System); !errors.Is(err, joberrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMoveJobFailsWhenTargetAlreadyExists(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")
	if err := os.MkdirAll(layout.JobDir(statemachine.Claimed, "job1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := m.MoveJob("job1", statemachine.Initial, statemachine.Claimed, statemachine.System); !errors.Is(err, joberrors.ErrAlreadyExistsInTarget) {
		t.Fatalf("expected ErrAlreadyExistsInTarget, got %v", err)
	}
}

func TestMoveJobConcurrentClaimHasOneWinner(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")

	const racers = 2
	var wg sync.WaitGroup
	errs := make([]error, racers)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.MoveJob("job1", statemachine.Initial, statemachine.Claimed, statemachine.System)
		}(i)
	}
	wg.Wait()

	successes, failures := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, joberrors.ErrNotFound), errors.Is(err, joberrors.ErrAlreadyExistsInTarget):
			failures++
		default:
			t.Fatalf("expected loser to fail with ErrNotFound or ErrAlreadyExistsInTarget, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
	if failures != racers-1 {
		t.Fatalf("expected exactly %d losers classified as NotFoundInState/AlreadyExistsInTarget, got %d", racers-1, failures)
	}
}

func TestMoveJobIdempotentNoOpsWhenAlreadyInTarget(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")
	if _, err := m.MoveJob("job1", statemachine.Initial, statemachine.Claimed, statemachine.System); err != nil {
		t.Fatalf("MoveJob: %v", err)
	}
	rec, err := m.MoveJobIdempotent("job1", statemachine.Initial, statemachine.Claimed, statemachine.System)
	if err != nil {
		t.Fatalf("MoveJobIdempotent: %v", err)
	}
	if rec.State != statemachine.Claimed {
		t.Fatalf("expected CLAIMED, got %s", rec.State)
	}
}

func TestMoveJobIdempotentFailsOnUnexpectedState(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")
	if _, err := m.MoveJobIdempotent("job1", statemachine.Claimed, statemachine.Running, statemachine.System); err == nil {
		t.Fatalf("expected failure: job is in NEW, not CLAIMED")
	}
}

func TestReclaimReturnsExpiredLeaseToInitial(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")
	if _, err := m.MoveJob("job1", statemachine.Initial, statemachine.Claimed, statemachine.System); err != nil {
		t.Fatalf("claim: %v", err)
	}
	dir := layout.JobDir(statemachine.Claimed, "job1")
	rec, err := store.ReadMetadata(dir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	past := time.Now().UTC().Add(-time.Hour)
	rec.OwnerID = "worker-1"
	rec.LeaseExpiresAt = &past
	if err := store.WriteMetadata(dir, rec); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	reclaimed, err := m.Reclaim("job1")
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if reclaimed == nil {
		t.Fatalf("expected reclaim to move the job")
	}
	if reclaimed.State != statemachine.Initial {
		t.Fatalf("expected NEW, got %s", reclaimed.State)
	}
	if reclaimed.OwnerID != "" {
		t.Fatalf("expected ownerId cleared, got %q", reclaimed.OwnerID)
	}
}

func TestReclaimIsNoOpForValidLease(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")
	if _, err := m.MoveJob("job1", statemachine.Initial, statemachine.Claimed, statemachine.System); err != nil {
		t.Fatalf("claim: %v", err)
	}
	dir := layout.JobDir(statemachine.Claimed, "job1")
	rec, err := store.ReadMetadata(dir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	future := time.Now().UTC().Add(time.Hour)
	rec.LeaseExpiresAt = &future
	if err := store.WriteMetadata(dir, rec); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	reclaimed, err := m.Reclaim("job1")
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if reclaimed != nil {
		t.Fatalf("expected no-op for valid lease, got %+v", reclaimed)
	}
}

func TestReclaimIsNoOpForTerminalStates(t *testing.T) {
	m, layout, store := newTestMover(t)
	createJob(t, layout, store, "job1")

	reclaimed, err := m.Reclaim("job1")
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if reclaimed != nil {
		t.Fatalf("expected no-op for job already in NEW")
	}
	_ = layout
}
