package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// migrations are applied in order; index+1 is the resulting schema version.
var migrations = []string{
	// v1: blob buckets
	`
	CREATE TABLE IF NOT EXISTS blobs (
		bucket     TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (bucket, key)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,
	// v2: recency listing
	`
	CREATE INDEX IF NOT EXISTS idx_blobs_updated ON blobs(bucket, updated_at);
	`,
}

func (s *Store) migrate() error {
	// meta must exist before the version can be read
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migration v%d: begin: %w", version, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration v%d: %w", version, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', ?)`, strconv.Itoa(version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration v%d: commit: %w", version, err)
		}
		s.logger.Info().Int("version", version).Msg("applied migration")
	}
	return nil
}

// SchemaVersion returns the applied schema version (0 for a fresh database).
func (s *Store) SchemaVersion() (int, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid schema_version %q: %w", raw, err)
	}
	return v, nil
}
