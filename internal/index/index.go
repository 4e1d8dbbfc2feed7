// Package index implements the Index Rebuilder: a derived, non-authoritative
// SQLite query index that mirrors job state for fast listing and is always
// safe to delete, since it is rebuilt byte-for-byte from filesystem truth on
// startup.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"jobforge/internal/jobstore"
	"jobforge/internal/statemachine"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Index wraps a SQLite-backed derived index of job metadata.
type Index struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the index database at path, applying WAL and
// busy-timeout pragmas the same way the store this package is grounded on
// does, and verifies (or creates) the schema.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	idx := &Index{db: db, path: path}
	if err := idx.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Rebuild truncates jobs_index and repopulates it from store's filesystem
// enumeration. It is called at startup, and is always safe: the index is
// never consulted to decide correctness, only to serve fast reads.
func (idx *Index) Rebuild(ctx context.Context, store *jobstore.Store) (int, error) {
	ctx = ensureContext(ctx)
	entries, err := store.Enumerate()
	if err != nil {
		return 0, fmt.Errorf("enumerate jobs for rebuild: %w", err)
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin rebuild tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM jobs_index"); err != nil {
		return 0, fmt.Errorf("truncate jobs_index: %w", err)
	}
	for _, e := range entries {
		if err := insertRow(ctx, tx, e); err != nil {
			return 0, fmt.Errorf("insert %s: %w", e.JobID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rebuild: %w", err)
	}
	return len(entries), nil
}

func insertRow(ctx context.Context, tx *sql.Tx, e jobstore.Enumeration) error {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var ownerID, leaseExpiresAt sql.NullString
	if e.Metadata.OwnerID != "" {
		ownerID = sql.NullString{String: e.Metadata.OwnerID, Valid: true}
	}
	if e.Metadata.LeaseExpiresAt != nil {
		leaseExpiresAt = sql.NullString{String: e.Metadata.LeaseExpiresAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs_index (job_id, state, owner_id, lease_expires_at, created_at, updated_at, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			state = excluded.state,
			owner_id = excluded.owner_id,
			lease_expires_at = excluded.lease_expires_at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			metadata_json = excluded.metadata_json`,
		e.JobID, string(e.State), ownerID, leaseExpiresAt,
		e.Metadata.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.Metadata.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(metaJSON),
	)
	return err
}

// Upsert best-effort updates a single job's row after a mutation, so the
// index stays close to current between rebuilds without requiring one.
// Callers must tolerate this failing silently in non-critical paths, since
// the index is never authoritative.
func (idx *Index) Upsert(ctx context.Context, e jobstore.Enumeration) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := idx.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := insertRow(ctx, tx, e); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Row is one entry of a Query result.
type Row struct {
	JobID     string
	State     statemachine.State
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Query lists indexed jobs, optionally filtered by state, sorted by
// createdAt descending with jobId as the tiebreaker, matching the Metadata
// Store's enumeration order.
func (idx *Index) Query(ctx context.Context, state statemachine.State, limit, offset int) ([]Row, error) {
	ctx = ensureContext(ctx)
	query := "SELECT job_id, state, owner_id, created_at, updated_at FROM jobs_index"
	args := []any{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, string(state))
	}
	query += " ORDER BY created_at DESC, job_id ASC"
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs_index: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var owner sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&r.JobID, &r.State, &owner, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan jobs_index row: %w", err)
		}
		r.OwnerID = owner.String
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
