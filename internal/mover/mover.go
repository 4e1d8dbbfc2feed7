// Package mover implements the Atomic Mover: the central primitive that
// performs the cross-directory rename which IS a job's state transition,
// validating against the state machine and updating metadata around it.
package mover

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"jobforge/internal/jobrecord"
	"jobforge/internal/joberrors"
	"jobforge/internal/jobstore"
	"jobforge/internal/statemachine"
	"jobforge/internal/storage"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Mover performs validated, atomic job state transitions.
type Mover struct {
	layout *storage.Layout
	store  *jobstore.Store
	now    Clock
}

// New constructs a Mover over layout and store. now defaults to time.Now.
func New(layout *storage.Layout, store *jobstore.Store, now Clock) *Mover {
	if now == nil {
		now = time.Now
	}
	return &Mover{layout: layout, store: store, now: now}
}

// ProbeSingleFilesystem verifies every state directory shares one device id,
// refusing to start when storageRoot spans multiple filesystems: a rename
// across a filesystem boundary is never atomic and would silently violate
// every invariant this package exists to enforce.
func ProbeSingleFilesystem(layout *storage.Layout) error {
	var reference *unix.Stat_t
	for _, state := range statemachine.States {
		var st unix.Stat_t
		if err := unix.Stat(layout.StateDir(state), &st); err != nil {
			return joberrors.Wrap(joberrors.ErrIO, "mover", "probeSingleFilesystem", layout.StateDir(state), err)
		}
		if reference == nil {
			reference = &st
			continue
		}
		if st.Dev != reference.Dev {
			return fmt.Errorf("%w: %s is not on the same filesystem as %s", joberrors.ErrNonAtomicFilesystem, layout.StateDir(state), layout.StateDir(statemachine.Initial))
		}
	}
	return nil
}

// MoveJob performs the central transition sequence:
//  1. validate the transition is legal for actor
//  2. verify the job currently sits where the caller expects (from)
//  3. verify the job is not already present in to
//  4. ensure the target state directory exists
//  5. rename the job folder from -> to
//  6. read metadata, update state and updatedAt, write metadata back
//  7. append a "from -> to by actor" line to the job log
//
// A rename failure that surfaces EXDEV is reported as ErrNonAtomicFilesystem
// rather than falling back to copy+delete, since a non-atomic fallback would
// let another actor observe (or race) a job that appears to exist nowhere.
func (m *Mover) MoveJob(jobID string, from, to statemachine.State, actor statemachine.Actor) (*jobrecord.Record, error) {
	if err := statemachine.Validate(from, to, actor); err != nil {
		return nil, err
	}

	srcDir := m.layout.JobDir(from, jobID)
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s not present in %s", joberrors.ErrNotFound, jobID, from)
	}

	dstDir := m.layout.JobDir(to, jobID)
	if _, err := os.Stat(dstDir); err == nil {
		return nil, fmt.Errorf("%w: %s already present in %s", joberrors.ErrAlreadyExistsInTarget, jobID, to)
	}
	if err := os.MkdirAll(m.layout.StateDir(to), 0o755); err != nil {
		return nil, joberrors.Wrap(joberrors.ErrIO, "mover", "moveJob", jobID, err)
	}

	if err := os.Rename(srcDir, dstDir); err != nil {
		if isCrossDevice(err) {
			return nil, joberrors.Wrap(joberrors.ErrNonAtomicFilesystem, "mover", "moveJob", jobID, err)
		}
		// Two actors racing the same from->to move both pass the checks
		// above before either renames; the loser's os.Rename fails not
		// because anything is wrong, but because the winner already moved
		// srcDir or already occupies dstDir. Re-stat to report that as the
		// documented NotFoundInState/AlreadyExistsInTarget outcome rather
		// than a generic IO error.
		if info, statErr := os.Stat(srcDir); statErr != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s not present in %s", joberrors.ErrNotFound, jobID, from)
		}
		if _, statErr := os.Stat(dstDir); statErr == nil {
			return nil, fmt.Errorf("%w: %s already present in %s", joberrors.ErrAlreadyExistsInTarget, jobID, to)
		}
		return nil, joberrors.Wrap(joberrors.ErrIO, "mover", "moveJob", jobID, err)
	}

	rec, err := m.store.ReadMetadata(dstDir)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	rec.State = to
	rec.Touch(now)
	if to == statemachine.Initial || to == statemachine.Failed {
		rec.OwnerID = ""
		rec.LeaseExpiresAt = nil
	}
	if err := m.store.WriteMetadata(dstDir, rec); err != nil {
		return nil, err
	}
	if err := m.store.AppendLog(dstDir, now, fmt.Sprintf("%s -> %s by %s", from, to, actor)); err != nil {
		return nil, err
	}
	return rec, nil
}

// MoveJobIdempotent reads the job's current metadata; if it is already in
// toState, it returns success without moving. If it is in some other state
// than expectedFrom, it fails with ErrInvalidTransition rather than
// silently forcing a move the caller did not ask for. Otherwise it
// delegates to MoveJob.
func (m *Mover) MoveJobIdempotent(jobID string, expectedFrom, toState statemachine.State, actor statemachine.Actor) (*jobrecord.Record, error) {
	current, dir, err := m.store.Locate(jobID)
	if err != nil {
		return nil, err
	}
	if current == toState {
		return m.store.ReadMetadata(dir)
	}
	if current != expectedFrom {
		return nil, fmt.Errorf("%w: %s is in %s, expected %s", joberrors.ErrInvalidTransition, jobID, current, expectedFrom)
	}
	return m.MoveJob(jobID, expectedFrom, toState, actor)
}

// Reclaim returns jobID from Claimed or Running back to Initial under actor
// System if its lease is absent or expired. It is a no-op, returning nil,
// nil, if the job is not in a reclaimable state or still holds a valid
// lease, so it is always safe to call concurrently with worker activity.
func (m *Mover) Reclaim(jobID string) (*jobrecord.Record, error) {
	current, dir, err := m.store.Locate(jobID)
	if err != nil {
		return nil, err
	}
	if current != statemachine.Claimed && current != statemachine.Running {
		return nil, nil
	}
	rec, err := m.store.ReadMetadata(dir)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if rec.LeaseExpiresAt != nil && rec.LeaseExpiresAt.After(now) {
		return nil, nil
	}
	moved, err := m.MoveJob(jobID, current, statemachine.Initial, statemachine.System)
	if err != nil {
		return nil, err
	}
	reason := "lease expired"
	if rec.LeaseExpiresAt == nil {
		reason = "lease absent"
	}
	if err := m.store.AppendLog(m.layout.JobDir(statemachine.Initial, jobID), now, fmt.Sprintf("reclaimed from %s: %s", current, reason)); err != nil {
		return nil, err
	}
	return moved, nil
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
