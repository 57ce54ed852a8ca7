package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/untoldecay/MnemoLog/internal/types"
)

// conflictTTL bounds how long a pending conflict waits for resolution.
const conflictTTL = time.Hour

// SaveConflict persists a pending conflict under conflict:<id> with a
// wall-clock storedAt. Conflicts are session state, not knowledge: they
// bypass the transaction log.
func (s *Store) SaveConflict(ctx context.Context, c *types.ConflictInfo) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode conflict: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflict_cache (id, payload, stored_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at
	`, c.ConflictID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}
	return nil
}

// LoadConflict returns a pending conflict, or nil when absent. Reads past
// the TTL evict the row and return nil.
func (s *Store) LoadConflict(ctx context.Context, id string) (*types.ConflictInfo, error) {
	var payload, storedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, stored_at FROM conflict_cache WHERE id = ?`, id).
		Scan(&payload, &storedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict: %w", err)
	}
	if expired(storedAt, conflictTTL) {
		_ = s.RemoveConflict(ctx, id)
		return nil, nil
	}

	var c types.ConflictInfo
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("failed to decode conflict: %w", err)
	}
	return &c, nil
}

// RemoveConflict evicts a conflict after resolution.
func (s *Store) RemoveConflict(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conflict_cache WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove conflict: %w", err)
	}
	return nil
}
