// Package sqlite implements the knowledge store on an embedded SQLite
// engine (ncruces/go-sqlite3, pure Go via wazero).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// Store is the SQLite-backed storage implementation.
type Store struct {
	db         *sql.DB
	path       string
	lock       *flock.Flock
	ftsEnabled bool
	notify     func(uris ...string)
}

var _ storage.Storage = (*Store)(nil)

// New opens (or creates) the database at path, applies the schema, and
// detects FTS5 support. Pass ":memory:" for an ephemeral store.
//
// A file lock next to the database enforces the single-writer model: a
// second process fails fast instead of interleaving mutations.
func New(ctx context.Context, path string) (*Store, error) {
	s := &Store{path: path}

	if path != ":memory:" {
		s.lock = flock.New(path + ".lock")
		locked, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire database lock: %w", err)
		}
		if !locked {
			return nil, types.Dependencyf("database %s is locked by another process", path)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		s.unlock()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes all writers and keeps :memory: databases
	// on a single backing store.
	db.SetMaxOpenConns(1)
	s.db = db

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.ftsEnabled = s.initFTS(ctx)
	return s, nil
}

// initFTS probes for FTS5 support and, when present, creates the index
// and its synchronization triggers. Returns false on engines built
// without FTS5; lexical search then falls back to substring ranking.
func (s *Store) initFTS(ctx context.Context) bool {
	if _, err := s.db.ExecContext(ctx,
		"CREATE VIRTUAL TABLE IF NOT EXISTS fts_probe USING fts5(probe)"); err != nil {
		return false
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS fts_probe"); err != nil {
		return false
	}
	if _, err := s.db.ExecContext(ctx, ftsSchema); err != nil {
		return false
	}
	return true
}

// FTSEnabled reports whether the full-text index is active.
func (s *Store) FTSEnabled() bool { return s.ftsEnabled }

// SetNotifier installs the change-notification callback. It is invoked
// with affected resource URIs after each committed mutation.
func (s *Store) SetNotifier(fn func(uris ...string)) { s.notify = fn }

func (s *Store) notifyChanged(uris ...string) {
	if s.notify != nil {
		s.notify(uris...)
	}
}

// UnderlyingDB exposes the raw handle for extensions and tests.
func (s *Store) UnderlyingDB() *sql.DB { return s.db }

// Close releases the database and the file lock.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	s.unlock()
	return err
}

func (s *Store) unlock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// withTx runs fn inside a transaction. Rollback on error or panic,
// commit otherwise. All multi-row mutations go through here so callers
// never observe partial states.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Stats returns row counts and the number of not-yet-reverted transactions.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	var st storage.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entries WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM triples WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM aliases),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM transactions WHERE op != 'REVERT' AND reverted_by IS NULL),
			(SELECT COUNT(*) FROM ingestion_tasks)
	`).Scan(&st.Entries, &st.Triples, &st.Entities, &st.Aliases,
		&st.Transactions, &st.Undoable, &st.Tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return &st, nil
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// clampLimit applies the default and cap shared by all filtered queries.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// escapeLike escapes LIKE wildcard metacharacters so user input matches
// literally. Pair with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// nullStr converts an optional string for binding.
func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// nullFloat converts an optional float for binding.
func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func strFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func floatFromNull(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// expired reports whether a conflict-cache timestamp is past its TTL.
func expired(storedAt string, ttl time.Duration) bool {
	t, err := time.Parse(time.RFC3339Nano, storedAt)
	if err != nil {
		return true
	}
	return time.Since(t) > ttl
}
