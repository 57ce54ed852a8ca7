package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/untoldecay/MnemoLog/internal/idgen"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// Undo reverses the n most recent non-revert, not-yet-reverted
// transactions, newest first with (created_at desc, id desc) tie-breaking.
// Each reversal commits atomically: the inverse mutation, a REVERT row
// with swapped snapshots, and the reverted_by stamp on the original.
// Returns the ids of the reverted transactions.
func (s *Store) Undo(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		n = 1
	}
	targets, err := s.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE op != 'REVERT' AND reverted_by IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}

	reverted := []string{}
	for _, target := range targets {
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			// Idempotence: skip if another path stamped it meanwhile.
			var stamped sql.NullString
			if err := tx.QueryRowContext(ctx,
				`SELECT reverted_by FROM transactions WHERE id = ?`, target.ID).Scan(&stamped); err != nil {
				return fmt.Errorf("failed to re-check transaction: %w", err)
			}
			if stamped.Valid {
				return nil
			}

			if err := invert(ctx, tx, target); err != nil {
				return err
			}

			revertID := idgen.New()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (id, op, entity_type, entity_id, before_snapshot, after_snapshot, created_at)
				VALUES (?, 'REVERT', ?, ?, ?, ?, ?)
			`, revertID, string(target.EntityType), target.EntityID,
				rawOrNil(target.After), rawOrNil(target.Before), idgen.Now())
			if err != nil {
				return fmt.Errorf("failed to append revert transaction: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE transactions SET reverted_by = ? WHERE id = ?`, revertID, target.ID); err != nil {
				return fmt.Errorf("failed to stamp reverted_by: %w", err)
			}
			reverted = append(reverted, target.ID)
			return nil
		})
		if err != nil {
			return reverted, err
		}
	}
	if len(reverted) > 0 {
		s.notifyChanged("transactions")
	}
	return reverted, nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// invert applies the inverse of one transaction. Unknown operations are a
// no-op: the REVERT row is still recorded by the caller.
func invert(ctx context.Context, tx *sql.Tx, t *types.Transaction) error {
	switch t.Op {
	case types.OpCreate:
		return invertCreate(ctx, tx, t)
	case types.OpDelete:
		return invertDelete(ctx, tx, t)
	case types.OpUpdate:
		return invertUpdate(ctx, tx, t)
	case types.OpMerge:
		return invertMerge(ctx, tx, t)
	}
	return nil
}

func invertCreate(ctx context.Context, tx *sql.Tx, t *types.Transaction) error {
	switch t.EntityType {
	case types.EntityEntry:
		now := idgen.Now()
		_, err := tx.ExecContext(ctx,
			`UPDATE entries SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, t.EntityID)
		return err
	case types.EntityTriple:
		_, err := tx.ExecContext(ctx,
			`UPDATE triples SET deleted_at = ? WHERE id = ?`, idgen.Now(), t.EntityID)
		return err
	case types.EntityEntity:
		// Entities have no soft delete; remove the row and its auto-alias.
		var snap entitySnapshot
		if err := json.Unmarshal(t.After, &snap); err != nil {
			return fmt.Errorf("failed to decode entity snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, t.EntityID); err != nil {
			return err
		}
		if snap.AutoAliasID != "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE id = ?`, snap.AutoAliasID); err != nil {
				return err
			}
		}
		return nil
	case types.EntityAliasKind:
		_, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE id = ?`, t.EntityID)
		return err
	}
	return nil
}

func invertDelete(ctx context.Context, tx *sql.Tx, t *types.Transaction) error {
	switch t.EntityType {
	case types.EntityEntry:
		var before types.Entry
		if err := json.Unmarshal(t.Before, &before); err != nil {
			return fmt.Errorf("failed to decode entry snapshot: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE entries SET deleted_at = NULL, updated_at = ? WHERE id = ?`,
			before.UpdatedAt, t.EntityID)
		return err
	case types.EntityTriple:
		_, err := tx.ExecContext(ctx,
			`UPDATE triples SET deleted_at = NULL WHERE id = ?`, t.EntityID)
		return err
	case types.EntityAliasKind:
		var before types.EntityAlias
		if err := json.Unmarshal(t.Before, &before); err != nil {
			return fmt.Errorf("failed to decode alias snapshot: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO aliases (id, alias, canonical_entity_id, created_at) VALUES (?, ?, ?, ?)`,
			before.ID, before.Alias, before.CanonicalEntityID, before.CreatedAt)
		return err
	case types.EntityEntity:
		var snap entitySnapshot
		if err := json.Unmarshal(t.Before, &snap); err != nil {
			return fmt.Errorf("failed to decode entity snapshot: %w", err)
		}
		if snap.Entity == nil {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO entities (id, name, created_at) VALUES (?, ?, ?)`,
			snap.Entity.ID, snap.Entity.Name, snap.Entity.CreatedAt)
		return err
	}
	return nil
}

func invertUpdate(ctx context.Context, tx *sql.Tx, t *types.Transaction) error {
	switch t.EntityType {
	case types.EntityEntry:
		var before types.Entry
		if err := json.Unmarshal(t.Before, &before); err != nil {
			return fmt.Errorf("failed to decode entry snapshot: %w", err)
		}
		// writeEntryFields restores updated_at from the snapshot as well.
		return writeEntryFields(ctx, tx, &before)
	case types.EntityTriple:
		var before types.Triple
		if err := json.Unmarshal(t.Before, &before); err != nil {
			return fmt.Errorf("failed to decode triple snapshot: %w", err)
		}
		return writeTripleFields(ctx, tx, &before)
	}
	return nil
}

// invertMerge reverses a merge using the stored per-row id lists. Only the
// recorded rows move back, so references that already belonged to the kept
// entity before the merge stay put.
func invertMerge(ctx context.Context, tx *sql.Tx, t *types.Transaction) error {
	var snap types.MergeSnapshot
	if err := json.Unmarshal(t.Before, &snap); err != nil {
		return fmt.Errorf("failed to decode merge snapshot: %w", err)
	}
	var result mergeResult
	if len(t.After) > 0 {
		if err := json.Unmarshal(t.After, &result); err != nil {
			return fmt.Errorf("failed to decode merge result: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO entities (id, name, created_at) VALUES (?, ?, ?)`,
		snap.MergeID, snap.MergeName, snap.MergeCreatedAt); err != nil {
		return fmt.Errorf("failed to recreate merged entity: %w", err)
	}
	if err := execIDs(ctx, tx, `UPDATE triples SET subject = ? WHERE id IN (%s)`,
		snap.MergeName, snap.SubjectTripleIDs); err != nil {
		return err
	}
	if err := execIDs(ctx, tx, `UPDATE triples SET object = ? WHERE id IN (%s)`,
		snap.MergeName, snap.ObjectTripleIDs); err != nil {
		return err
	}
	if err := execIDs(ctx, tx, `UPDATE entries SET canonical_entity_id = ? WHERE id IN (%s)`,
		snap.MergeID, snap.MergeEntryIDs); err != nil {
		return err
	}
	if err := execIDs(ctx, tx, `UPDATE aliases SET canonical_entity_id = ? WHERE id IN (%s)`,
		snap.MergeID, snap.MergeAliasIDs); err != nil {
		return err
	}
	if result.NewAliasID != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE id = ?`, result.NewAliasID); err != nil {
			return fmt.Errorf("failed to remove merge alias: %w", err)
		}
	}
	return nil
}
