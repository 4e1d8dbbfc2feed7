// Package storage defines the on-disk directory tree that IS the job state
// machine: which top-level directory holds a job's folder is the job's
// state. Nothing in this package caches a job's path across calls, because a
// job's path is not stable — the atomic mover renames it out from under any
// cached value.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"jobforge/internal/statemachine"
	"jobforge/internal/textutil"
)

// Layout resolves paths under a single storageRoot.
type Layout struct {
	root string
}

// New constructs a Layout rooted at root. The root is not created; call
// EnsureDirectories for that.
func New(root string) *Layout {
	return &Layout{root: filepath.Clean(root)}
}

// Root returns the configured storage root.
func (l *Layout) Root() string {
	return l.root
}

// JobsRoot returns storageRoot/jobs.
func (l *Layout) JobsRoot() string {
	return filepath.Join(l.root, "jobs")
}

// StateDir returns storageRoot/jobs/{STATE}.
func (l *Layout) StateDir(state statemachine.State) string {
	return filepath.Join(l.JobsRoot(), string(state))
}

// JobDir returns the path a job folder occupies while in state, regardless
// of whether the folder currently exists there. Callers must re-derive this
// immediately before every filesystem operation; it is never valid to hold
// onto a JobDir value across a state transition.
func (l *Layout) JobDir(state statemachine.State, jobID string) string {
	return filepath.Join(l.StateDir(state), jobID)
}

// UploadsDir returns storageRoot/uploads, an opaque holding area for ingest
// inputs the core never inspects.
func (l *Layout) UploadsDir() string {
	return filepath.Join(l.root, "uploads")
}

// PackagedArtifactsDir returns storageRoot/artifactsPackaged, where finished
// session packages are written by the final pipeline stage.
func (l *Layout) PackagedArtifactsDir() string {
	return filepath.Join(l.root, "artifactsPackaged")
}

// PackagedArtifactPath returns the path a job's packaged artifact occupies,
// e.g. storageRoot/artifactsPackaged/{jobId}.zip.
func (l *Layout) PackagedArtifactPath(jobID string) string {
	return filepath.Join(l.PackagedArtifactsDir(), jobID+".zip")
}

// StageDir returns the subdirectory a stage's artifacts live under, inside
// the job's current folder.
func StageDir(jobDir, stageName string) string {
	return filepath.Join(jobDir, sanitizeSegment(stageName))
}

// MetadataPath returns the path to a job's metadata file inside jobDir.
func MetadataPath(jobDir string) string {
	return filepath.Join(jobDir, "metadata")
}

// LogDir returns the path to a job's log directory inside jobDir.
func LogDir(jobDir string) string {
	return filepath.Join(jobDir, "log")
}

// LogPath returns the path to a job's append-only log file inside jobDir.
func LogPath(jobDir string) string {
	return filepath.Join(LogDir(jobDir), "job.log")
}

// EnsureDirectories create-if-missing's every state directory plus the
// uploads and packaged-artifact holding areas. It is idempotent and safe to
// call on every startup, matching the Storage Layout contract that every
// state directory exists unconditionally.
func (l *Layout) EnsureDirectories() error {
	dirs := make([]string, 0, len(statemachine.States)+2)
	for _, s := range statemachine.States {
		dirs = append(dirs, l.StateDir(s))
	}
	dirs = append(dirs, l.UploadsDir(), l.PackagedArtifactsDir())
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func sanitizeSegment(value string) string {
	sanitized := textutil.SanitizeToken(value)
	if sanitized == "" || sanitized == "unknown" {
		return "stage"
	}
	return sanitized
}
