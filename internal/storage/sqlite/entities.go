package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/untoldecay/MnemoLog/internal/idgen"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// entitySnapshot is the CREATE-entity transaction payload. It records the
// auto-created alias so undo can remove both rows.
type entitySnapshot struct {
	Entity      *types.CanonicalEntity `json:"entity"`
	AutoAliasID string                 `json:"auto_alias_id"`
}

// mergeResult is the after-snapshot of a MERGE transaction.
type mergeResult struct {
	KeepID      string `json:"keep_id"`
	KeepName    string `json:"keep_name"`
	MergedCount int    `json:"merged_count"`
	// NewAliasID is the alias inserted to map the merged name onto the
	// kept entity, when one was needed. Undo deletes it.
	NewAliasID string `json:"new_alias_id,omitempty"`
}

// CreateEntity inserts the canonical row and the lowercased auto-alias in
// one batch, logged as a single CREATE of entity_type=entity.
func (s *Store) CreateEntity(ctx context.Context, name string) (*types.CanonicalEntity, error) {
	if name == "" {
		return nil, types.Validationf("entity name must not be empty")
	}

	e := &types.CanonicalEntity{
		ID:        idgen.New(),
		Name:      name,
		CreatedAt: idgen.Now(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities (id, name, created_at) VALUES (?, ?, ?)`,
			e.ID, e.Name, e.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert entity: %w", err)
		}
		aliasID, err := insertAlias(ctx, tx, strings.ToLower(name), e.ID)
		if err != nil {
			return err
		}
		_, err = insertTxRow(ctx, tx, types.OpCreate, types.EntityEntity, e.ID,
			nil, entitySnapshot{Entity: e, AutoAliasID: aliasID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifyChanged("entities/" + e.ID)
	return e, nil
}

func insertAlias(ctx context.Context, tx *sql.Tx, alias, entityID string) (string, error) {
	id := idgen.New()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO aliases (id, alias, canonical_entity_id, created_at) VALUES (?, ?, ?, ?)`,
		id, alias, entityID, idgen.Now())
	if err != nil {
		return "", fmt.Errorf("failed to insert alias: %w", err)
	}
	return id, nil
}

// GetEntity returns a canonical entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error) {
	var e types.CanonicalEntity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM entities WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("entity %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &e, nil
}

// AddAlias attaches a lowercased alias to an existing entity.
func (s *Store) AddAlias(ctx context.Context, entityID, alias string) (*types.EntityAlias, error) {
	if alias == "" {
		return nil, types.Validationf("alias must not be empty")
	}
	if _, err := s.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}

	a := &types.EntityAlias{
		Alias:             strings.ToLower(alias),
		CanonicalEntityID: entityID,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := insertAlias(ctx, tx, a.Alias, entityID)
		if err != nil {
			return err
		}
		a.ID = id
		a.CreatedAt = idgen.Now()
		_, err = insertTxRow(ctx, tx, types.OpCreate, types.EntityAliasKind, id, nil, a)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifyChanged("entities/" + entityID)
	return a, nil
}

// ResolveEntity maps a name to its canonical entity. The exact pass joins
// aliases on the lowercased name; the fuzzy pass falls back to a literal
// substring match on alias. Upsert paths pass exactOnly so fuzzy
// near-misses never collide.
func (s *Store) ResolveEntity(ctx context.Context, name string, exactOnly bool) (*types.CanonicalEntity, error) {
	normalized := strings.ToLower(name)

	var e types.CanonicalEntity
	err := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.created_at
		FROM aliases a JOIN entities e ON a.canonical_entity_id = e.id
		WHERE a.alias = ?
		ORDER BY a.created_at
		LIMIT 1
	`, normalized).Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err == nil {
		return &e, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to resolve entity: %w", err)
	}
	if exactOnly {
		return nil, nil
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.created_at
		FROM aliases a JOIN entities e ON a.canonical_entity_id = e.id
		WHERE a.alias LIKE ? ESCAPE '\'
		ORDER BY length(a.alias), a.created_at
		LIMIT 1
	`, "%"+escapeLike(normalized)+"%").Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entity (fuzzy): %w", err)
	}
	return &e, nil
}

// UpsertEntity resolves exactly, creating the entity when absent.
func (s *Store) UpsertEntity(ctx context.Context, name string) (*types.CanonicalEntity, bool, error) {
	if name == "" {
		return nil, false, types.Validationf("entity name must not be empty")
	}
	existing, err := s.ResolveEntity(ctx, name, true)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	created, err := s.CreateEntity(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// MergeEntities absorbs mergeID into keepID in one atomic batch:
// triples referencing the merged name are rewritten to the kept name,
// entries and aliases are reassigned, an alias for the merged name is
// ensured, and the merged entity row is deleted. The MERGE transaction's
// before-snapshot records every affected row id so undo is per-row.
// Returns the number of distinct triples rewritten.
func (s *Store) MergeEntities(ctx context.Context, keepID, mergeID string) (int, error) {
	if keepID == mergeID {
		return 0, types.Validationf("cannot merge an entity with itself")
	}
	keep, err := s.GetEntity(ctx, keepID)
	if err != nil {
		return 0, err
	}
	merge, err := s.GetEntity(ctx, mergeID)
	if err != nil {
		return 0, err
	}

	var mergedCount int
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		snap := types.MergeSnapshot{
			KeepID:         keep.ID,
			KeepName:       keep.Name,
			MergeID:        merge.ID,
			MergeName:      merge.Name,
			MergeCreatedAt: merge.CreatedAt,
		}

		// 1. Collect affected row ids.
		var err error
		snap.SubjectTripleIDs, err = collectIDs(ctx, tx,
			`SELECT id FROM triples WHERE subject = ? AND deleted_at IS NULL`, merge.Name)
		if err != nil {
			return err
		}
		snap.ObjectTripleIDs, err = collectIDs(ctx, tx,
			`SELECT id FROM triples WHERE object = ? AND deleted_at IS NULL`, merge.Name)
		if err != nil {
			return err
		}
		snap.MergeEntryIDs, err = collectIDs(ctx, tx,
			`SELECT id FROM entries WHERE canonical_entity_id = ? AND deleted_at IS NULL`, merge.ID)
		if err != nil {
			return err
		}
		snap.MergeAliasIDs, err = collectIDs(ctx, tx,
			`SELECT id FROM aliases WHERE canonical_entity_id = ?`, merge.ID)
		if err != nil {
			return err
		}
		mergedCount = distinctCount(snap.SubjectTripleIDs, snap.ObjectTripleIDs)

		// 3. Rewrite triple references from the merged name to the kept name.
		if err := execIDs(ctx, tx, `UPDATE triples SET subject = ? WHERE id IN (%s)`,
			keep.Name, snap.SubjectTripleIDs); err != nil {
			return err
		}
		if err := execIDs(ctx, tx, `UPDATE triples SET object = ? WHERE id IN (%s)`,
			keep.Name, snap.ObjectTripleIDs); err != nil {
			return err
		}

		// 4-5. Reassign entries and aliases.
		if err := execIDs(ctx, tx, `UPDATE entries SET canonical_entity_id = ? WHERE id IN (%s)`,
			keep.ID, snap.MergeEntryIDs); err != nil {
			return err
		}
		if err := execIDs(ctx, tx, `UPDATE aliases SET canonical_entity_id = ? WHERE id IN (%s)`,
			keep.ID, snap.MergeAliasIDs); err != nil {
			return err
		}

		// 6. Ensure the merged name still resolves to the kept entity.
		result := mergeResult{KeepID: keep.ID, KeepName: keep.Name, MergedCount: mergedCount}
		mergedAlias := strings.ToLower(merge.Name)
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM aliases WHERE alias = ? AND canonical_entity_id = ?`,
			mergedAlias, keep.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check merged alias: %w", err)
		}
		if exists == 0 {
			aliasID, err := insertAlias(ctx, tx, mergedAlias, keep.ID)
			if err != nil {
				return err
			}
			result.NewAliasID = aliasID
		}

		// 7. Delete the merged canonical row.
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, merge.ID); err != nil {
			return fmt.Errorf("failed to delete merged entity: %w", err)
		}

		// 2 (ordering note: the log row commits with the batch, so snapshot
		// collection above and the append here are indistinguishable).
		_, err = insertTxRow(ctx, tx, types.OpMerge, types.EntityEntity, merge.ID, snap, result)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notifyChanged("entities/"+keepID, "entities/"+mergeID)
	return mergedCount, nil
}

func collectIDs(ctx context.Context, tx *sql.Tx, query string, arg any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to collect ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// execIDs runs an UPDATE template against an explicit id list. No-op for
// empty lists.
func execIDs(ctx context.Context, tx *sql.Tx, template string, value any, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, value)
	for _, id := range ids {
		args = append(args, id)
	}
	// #nosec G201 - template is a fixed string, ids bound as placeholders
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(template, placeholders), args...); err != nil {
		return fmt.Errorf("failed to update rows: %w", err)
	}
	return nil
}

func distinctCount(a, b []string) int {
	seen := make(map[string]bool, len(a)+len(b))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		seen[id] = true
	}
	return len(seen)
}
