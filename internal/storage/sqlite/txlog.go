package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/untoldecay/MnemoLog/internal/idgen"
	"github.com/untoldecay/MnemoLog/internal/types"
)

const txColumns = `id, op, entity_type, entity_id, before_snapshot, after_snapshot, reverted_by, created_at`

// insertTxRow appends one transaction-log row inside the caller's batch.
// Every mutation path calls this exactly once per mutated row so the log
// and the data always commit together.
func insertTxRow(ctx context.Context, tx *sql.Tx, op types.TxOp, entityType types.EntityType,
	entityID string, before, after any) (string, error) {

	encode := func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return string(b), nil
	}

	beforeJSON, err := encode(before)
	if err != nil {
		return "", err
	}
	afterJSON, err := encode(after)
	if err != nil {
		return "", err
	}

	id := idgen.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, op, entity_type, entity_id, before_snapshot, after_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, string(op), string(entityType), entityID, beforeJSON, afterJSON, idgen.Now())
	if err != nil {
		return "", fmt.Errorf("failed to append transaction: %w", err)
	}
	return id, nil
}

func scanTransaction(row rowScanner) (*types.Transaction, error) {
	var t types.Transaction
	var op, entityType string
	var before, after, revertedBy sql.NullString

	err := row.Scan(&t.ID, &op, &entityType, &t.EntityID, &before, &after, &revertedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Op = types.TxOp(op)
	t.EntityType = types.EntityType(entityType)
	if before.Valid {
		t.Before = json.RawMessage(before.String)
	}
	if after.Valid {
		t.After = json.RawMessage(after.String)
	}
	t.RevertedBy = strFromNull(revertedBy)
	return &t, nil
}

// History returns the most recent transactions, optionally filtered by
// entity type, newest first.
func (s *Store) History(ctx context.Context, limit int, entityType string) ([]*types.Transaction, error) {
	limit = clampLimit(limit)
	where := "1=1"
	args := []any{}
	if entityType != "" {
		where = "entity_type = ?"
		args = append(args, entityType)
	}
	args = append(args, limit)

	// #nosec G201 - clauses are assembled from fixed strings
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
		txColumns, where)
	return s.queryTransactions(ctx, query, args...)
}

// ListTransactions pages the log by id descending for the read resource.
func (s *Store) ListTransactions(ctx context.Context, limit int, afterID string) ([]*types.Transaction, error) {
	limit = clampLimit(limit)
	where := "1=1"
	args := []any{}
	if afterID != "" {
		where = "id < ?"
		args = append(args, afterID)
	}
	args = append(args, limit)

	// #nosec G201 - clauses are assembled from fixed strings
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY id DESC LIMIT ?`, txColumns, where)
	return s.queryTransactions(ctx, query, args...)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]*types.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []*types.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
