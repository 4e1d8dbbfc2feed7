// Package joberrors defines the core's error taxonomy: sentinel errors for
// invariant violations that must propagate unchanged, and a Wrap helper for
// attaching component/operation context, tagged with errors.Is-compatible
// markers.
package joberrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means a job id does not exist in any state directory.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition means the state machine rejected a move as an
	// unknown (from, to) pair. Surfaced: a programming or logic bug.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnauthorizedActor means the transition is known but this actor may
	// not perform it. Surfaced: a programming or logic bug.
	ErrUnauthorizedActor = errors.New("actor not authorized for transition")
	// ErrNonAtomicFilesystem means a rename failed with EXDEV or the startup
	// probe found the storage root spans multiple filesystems.
	ErrNonAtomicFilesystem = errors.New("storage root is not a single atomic-rename filesystem")
	// ErrAlreadyExistsInTarget means the target state directory already
	// contains a folder with this job id, violating global uniqueness.
	ErrAlreadyExistsInTarget = errors.New("job already exists in target state")
	// ErrCorrupt means metadata failed to parse. The job is quarantined in
	// place: listing still shows it, writes are refused until repaired.
	ErrCorrupt = errors.New("job metadata is corrupt")
	// ErrStagePreconditionNotMet means a stage was asked to process a job
	// that is missing a precondition its handler requires (e.g. an earlier
	// stage's artifact).
	ErrStagePreconditionNotMet = errors.New("stage precondition not met")
	// ErrStageWorkFailed classifies a stage's external work as a content
	// failure. Handled locally: the job is moved to Failed with the reason
	// recorded in its stage record, never surfaced as a bug.
	ErrStageWorkFailed = errors.New("stage work failed")
	// ErrIO wraps filesystem failures. The dispatcher logs a stage error
	// carrying it and does not retry the stage.
	ErrIO = errors.New("io error")
)

// Classifier lets a stage-content error opt into how the core treats it: the
// stage worker skeleton records a classified error's ErrorKind as the failed
// stage's reason and moves the job to Failed, without needing to know the
// stage's concrete error types. An unclassified error also moves the job to
// Failed, and is returned to the caller.
type Classifier interface {
	error
	ErrorKind() string
}

// StageError is a Classifier that records why a stage's work failed, and
// carries the fields the job's per-stage metadata record persists.
type StageError struct {
	Kind     string // short, non-sensitive classification code
	Message  string // human-readable, safe to display
	Provider string // optional: which external collaborator produced this
	Err      error  // optional: wrapped technical detail for logs only
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) ErrorKind() string { return e.Kind }

// Wrap builds an error tagged with marker (one of the sentinels above),
// including operation context.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "core failure"
	}
	return strings.Join(parts, ": ")
}
