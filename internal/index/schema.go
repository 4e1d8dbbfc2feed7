package index

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when jobs_index's
// shape changes; since the index is fully derived, a mismatch is resolved
// by dropping and rebuilding rather than migrating.
const schemaVersion = 1

// ErrSchemaMismatch indicates the index database's schema version doesn't
// match what this build expects.
var ErrSchemaMismatch = errors.New("index schema version mismatch")

func (idx *Index) initSchema(ctx context.Context) error {
	var tableExists int
	err := idx.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return idx.createSchema(ctx)
	}

	var version int
	if err := idx.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: index has version %d, expected %d (delete the index file to force a rebuild)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (idx *Index) createSchema(ctx context.Context) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
