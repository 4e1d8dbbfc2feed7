// Package jobstore implements the Metadata Store: locating a job across
// state directories, reading and atomically overwriting its metadata,
// appending to its log, and enumerating jobs from filesystem truth.
package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"jobforge/internal/jobrecord"
	"jobforge/internal/joberrors"
	"jobforge/internal/statemachine"
	"jobforge/internal/storage"
)

// Store reads and writes job metadata against a storage.Layout. It performs
// no state transitions itself; the mover owns those and calls back into
// Store's WriteMetadata for the read-modify-write halves of a move.
type Store struct {
	layout *storage.Layout
}

// New constructs a Store rooted at layout.
func New(layout *storage.Layout) *Store {
	return &Store{layout: layout}
}

// Locate scans every state directory in turn and returns the state and job
// directory currently holding jobID. Scanning rather than caching is
// deliberate: a job's directory is not a stable fact between calls.
func (s *Store) Locate(jobID string) (statemachine.State, string, error) {
	for _, state := range statemachine.States {
		dir := s.layout.JobDir(state, jobID)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return state, dir, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", "", joberrors.Wrap(joberrors.ErrIO, "jobstore", "locate", jobID, err)
		}
	}
	return "", "", fmt.Errorf("%w: %s", joberrors.ErrNotFound, jobID)
}

// ReadMetadata reads and parses jobDir's metadata file. A parse failure is
// classified as ErrCorrupt: the job is left exactly where it is, still
// visible to listing, but no further writes are accepted until repaired.
func (s *Store) ReadMetadata(jobDir string) (*jobrecord.Record, error) {
	data, err := os.ReadFile(storage.MetadataPath(jobDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: metadata missing at %s", joberrors.ErrNotFound, jobDir)
		}
		return nil, joberrors.Wrap(joberrors.ErrIO, "jobstore", "readMetadata", jobDir, err)
	}
	var rec jobrecord.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, joberrors.Wrap(joberrors.ErrCorrupt, "jobstore", "readMetadata", jobDir, err)
	}
	return &rec, nil
}

// WriteMetadata serializes rec and writes it into jobDir via a
// write-then-rename within that same directory, so a reader never observes
// a partially written file: it sees either the previous version or the
// complete new one.
func (s *Store) WriteMetadata(jobDir string, rec *jobrecord.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	target := storage.MetadataPath(jobDir)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return joberrors.Wrap(joberrors.ErrIO, "jobstore", "writeMetadata", jobDir, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return joberrors.Wrap(joberrors.ErrIO, "jobstore", "writeMetadata", jobDir, err)
	}
	return nil
}

// AppendLog appends a single "[timestamp] message\n" line to jobDir's log
// file, creating the log directory and file if needed. OS-level append is
// atomic for writes this small, so concurrent appenders never interleave
// mid-line; a crash mid-write can at worst truncate the final line.
func (s *Store) AppendLog(jobDir string, now time.Time, message string) error {
	logDir := storage.LogDir(jobDir)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return joberrors.Wrap(joberrors.ErrIO, "jobstore", "appendLog", jobDir, err)
	}
	f, err := os.OpenFile(storage.LogPath(jobDir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return joberrors.Wrap(joberrors.ErrIO, "jobstore", "appendLog", jobDir, err)
	}
	defer f.Close()
	line := fmt.Sprintf("[%s] %s\n", now.UTC().Format(time.RFC3339Nano), message)
	if _, err := io.WriteString(f, line); err != nil {
		return joberrors.Wrap(joberrors.ErrIO, "jobstore", "appendLog", jobDir, err)
	}
	return nil
}

// ListByState lists the job ids currently present in the given state
// directory.
func (s *Store) ListByState(state statemachine.State) ([]string, error) {
	dir := s.layout.StateDir(state)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, joberrors.Wrap(joberrors.ErrIO, "jobstore", "listByState", dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Enumeration is one row of Enumerate's result.
type Enumeration struct {
	JobID    string
	State    statemachine.State
	Metadata *jobrecord.Record
}

// Enumerate walks every state directory and returns every job's metadata,
// sorted by createdAt descending, ties broken by jobId lexicographic order.
// A job whose metadata fails to parse is skipped rather than aborting the
// whole enumeration, since one corrupt job must not hide the rest.
func (s *Store) Enumerate() ([]Enumeration, error) {
	var out []Enumeration
	for _, state := range statemachine.States {
		dir := s.layout.StateDir(state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, joberrors.Wrap(joberrors.ErrIO, "jobstore", "enumerate", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			jobDir := filepath.Join(dir, e.Name())
			rec, err := s.ReadMetadata(jobDir)
			if err != nil {
				if errors.Is(err, joberrors.ErrCorrupt) {
					continue
				}
				return nil, err
			}
			out = append(out, Enumeration{JobID: e.Name(), State: state, Metadata: rec})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].Metadata.CreatedAt, out[j].Metadata.CreatedAt
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return out[i].JobID < out[j].JobID
	})
	return out, nil
}
