// Package stageworker generalizes a single pipeline stage's claim, begin,
// execute, complete-or-fail sequence into a reusable skeleton that every
// concrete stage handler plugs into.
package stageworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobforge/internal/jobrecord"
	"jobforge/internal/joberrors"
	"jobforge/internal/jobstore"
	"jobforge/internal/mover"
	"jobforge/internal/stage"
	"jobforge/internal/statemachine"
	"jobforge/internal/storage"
)

// Outcome reports how ProcessOne resolved a job, so the dispatcher can
// decide whether to enqueue the next stage or record a failure.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Worker drives one pipeline stage's handler through the claim/begin/
// execute/complete sequence described by the stage worker skeleton.
type Worker struct {
	StageName     string
	StageIndex    int // 1-based position in the configured pipeline
	Handler       stage.Handler
	Store         *jobstore.Store
	Mover         *mover.Mover
	Layout        *storage.Layout
	Logger        *slog.Logger
	LeaseDuration time.Duration
	Clock         func() time.Time
	PrevStageName string // empty for stage 1
}

func (w *Worker) actor() statemachine.Actor {
	return statemachine.NewStageWorker(w.StageIndex)
}

func (w *Worker) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// claimFrom is the state this stage's workers claim jobs out of: Initial
// for stage 1, Completed (the previous stage's finish line) otherwise.
func (w *Worker) claimFrom() statemachine.State {
	if w.StageIndex <= 1 {
		return statemachine.Initial
	}
	return statemachine.Completed
}

// ProcessOne runs jobID through this stage exactly once, following the
// claim -> begin -> execute -> complete/fail sequence. It tolerates being
// invoked on a job that is already past this stage or waiting on an
// unfinished prerequisite by returning OutcomeSkipped without error.
func (w *Worker) ProcessOne(ctx context.Context, jobID string) (Outcome, error) {
	state, jobDir, err := w.Store.Locate(jobID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("locate %s: %w", jobID, err)
	}

	rec, err := w.Store.ReadMetadata(jobDir)
	if err != nil {
		return OutcomeSkipped, err
	}

	if w.PrevStageName != "" && rec.StageState(w.PrevStageName) != jobrecord.StageComplete {
		return OutcomeSkipped, nil
	}
	if rec.StageState(w.StageName) == jobrecord.StageComplete {
		return OutcomeSkipped, nil
	}

	actor := w.actor()

	if state == w.claimFrom() {
		if _, err := w.Mover.MoveJob(jobID, w.claimFrom(), statemachine.Claimed, actor); err != nil {
			return OutcomeSkipped, err
		}
		state = statemachine.Claimed
		if err := w.setLease(jobID); err != nil {
			return OutcomeSkipped, err
		}
	}
	if state == statemachine.Claimed {
		if _, err := w.Mover.MoveJob(jobID, statemachine.Claimed, statemachine.Running, actor); err != nil {
			return OutcomeSkipped, err
		}
	}

	runningDir := w.jobDirIn(statemachine.Running, jobID)
	rec, err = w.Store.ReadMetadata(runningDir)
	if err != nil {
		return OutcomeSkipped, err
	}

	if err := w.Handler.Prepare(ctx, rec, runningDir); err != nil {
		return w.handleException(ctx, jobID, runningDir, rec, err)
	}

	result, execErr := w.Handler.Execute(ctx, rec, runningDir)
	if execErr != nil {
		var classifier joberrors.Classifier
		if errors.As(execErr, &classifier) {
			return w.handleStageFailure(jobID, runningDir, rec, classifier)
		}
		return w.handleException(ctx, jobID, runningDir, rec, execErr)
	}

	now := w.now().UTC()
	rec.SetStage(w.StageName, jobrecord.StageRecord{
		Status:     jobrecord.StageComplete,
		Provider:   result.Provider,
		Artifacts:  result.Artifacts,
		FinishedAt: &now,
	})
	if err := w.Store.WriteMetadata(runningDir, rec); err != nil {
		return OutcomeSkipped, err
	}
	if _, err := w.Mover.MoveJob(jobID, statemachine.Running, statemachine.Completed, actor); err != nil {
		return OutcomeSkipped, err
	}
	if err := w.Store.AppendLog(w.jobDirIn(statemachine.Completed, jobID), now, fmt.Sprintf("%s complete", w.StageName)); err != nil {
		w.logger().Warn("append completion log failed", slog.String("jobId", jobID), slog.Any("error", err))
	}
	return OutcomeCompleted, nil
}

func (w *Worker) handleStageFailure(jobID, jobDir string, rec *jobrecord.Record, classifier joberrors.Classifier) (Outcome, error) {
	now := w.now().UTC()
	message := classifier.Error()
	var provider string
	var se *joberrors.StageError
	if errors.As(error(classifier), &se) {
		provider = se.Provider
	}
	rec.SetStage(w.StageName, jobrecord.StageRecord{
		Status:     jobrecord.StageFailed,
		Reason:     classifier.ErrorKind(),
		Message:    message,
		Provider:   provider,
		FinishedAt: &now,
	})
	if err := w.Store.WriteMetadata(jobDir, rec); err != nil {
		return OutcomeSkipped, err
	}
	actor := w.actor()
	if _, err := w.Mover.MoveJob(jobID, statemachine.Running, statemachine.Failed, actor); err != nil {
		return OutcomeSkipped, err
	}
	if err := w.Store.AppendLog(w.jobDirIn(statemachine.Failed, jobID), now, fmt.Sprintf("%s failed: %s", w.StageName, message)); err != nil {
		w.logger().Warn("append failure log failed", slog.String("jobId", jobID), slog.Any("error", err))
	}
	return OutcomeFailed, nil
}

// handleException matches the skeleton's "on unexpected exception" branch:
// it logs, moves the job to Failed if it is still Running so the reclaimer
// does not need to wait out a lease for a job nobody is working on, and
// returns the error unchanged to the caller. The dispatcher logs it and does
// not retry.
func (w *Worker) handleException(ctx context.Context, jobID, jobDir string, rec *jobrecord.Record, cause error) (Outcome, error) {
	now := w.now().UTC()
	_ = w.Store.AppendLog(jobDir, now, fmt.Sprintf("[STAGE] ERROR: %v", cause))
	if state, _, err := w.Store.Locate(jobID); err == nil && state == statemachine.Running {
		_, _ = w.Mover.MoveJob(jobID, statemachine.Running, statemachine.Failed, w.actor())
	}
	return OutcomeSkipped, cause
}

func (w *Worker) setLease(jobID string) error {
	if w.LeaseDuration <= 0 {
		return nil
	}
	dir := w.jobDirIn(statemachine.Claimed, jobID)
	rec, err := w.Store.ReadMetadata(dir)
	if err != nil {
		return err
	}
	expires := w.now().UTC().Add(w.LeaseDuration)
	rec.OwnerID = string(w.actor())
	rec.LeaseExpiresAt = &expires
	return w.Store.WriteMetadata(dir, rec)
}

func (w *Worker) jobDirIn(state statemachine.State, jobID string) string {
	return w.Layout.JobDir(state, jobID)
}
