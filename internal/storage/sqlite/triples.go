package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/untoldecay/MnemoLog/internal/idgen"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

const tripleColumns = `id, subject, predicate, object, source, actor, confidence,
	status, created_at, deleted_at`

func validateTriple(subject, predicate, object string) error {
	for _, field := range []struct{ name, value string }{
		{"subject", subject}, {"predicate", predicate}, {"object", object},
	} {
		if field.value == "" {
			return types.Validationf("%s must not be empty", field.name)
		}
		if len(field.value) > types.MaxTripleFieldLength {
			return types.Validationf("%s exceeds %d characters", field.name, types.MaxTripleFieldLength)
		}
	}
	return nil
}

// CreateTriple writes the row and its CREATE transaction atomically.
func (s *Store) CreateTriple(ctx context.Context, t *types.Triple) error {
	if err := validateTriple(t.Subject, t.Predicate, t.Object); err != nil {
		return err
	}
	if t.Confidence != nil && (*t.Confidence < 0 || *t.Confidence > 1) {
		return types.Validationf("confidence must be within [0,1]")
	}

	if t.ID == "" {
		t.ID = idgen.New()
	}
	t.CreatedAt = idgen.Now()
	if t.Status == "" {
		t.Status = types.StatusActive
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTriple(ctx, tx, t); err != nil {
			return err
		}
		_, err := insertTxRow(ctx, tx, types.OpCreate, types.EntityTriple, t.ID, nil, t)
		return err
	})
	if err != nil {
		return err
	}
	s.notifyChanged("triples/" + t.ID)
	return nil
}

func insertTriple(ctx context.Context, tx *sql.Tx, t *types.Triple) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO triples (`+tripleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Subject, t.Predicate, t.Object, nullStr(t.Source), nullStr(t.Actor),
		nullFloat(t.Confidence), t.Status, t.CreatedAt, nullStr(t.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert triple: %w", err)
	}
	return nil
}

func scanTriple(row rowScanner) (*types.Triple, error) {
	var t types.Triple
	var source, actor, deletedAt sql.NullString
	var confidence sql.NullFloat64

	err := row.Scan(&t.ID, &t.Subject, &t.Predicate, &t.Object, &source, &actor,
		&confidence, &t.Status, &t.CreatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	t.Source = strFromNull(source)
	t.Actor = strFromNull(actor)
	t.Confidence = floatFromNull(confidence)
	t.DeletedAt = strFromNull(deletedAt)
	return &t, nil
}

// GetTriple returns an active triple or not_found.
func (s *Store) GetTriple(ctx context.Context, id string) (*types.Triple, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tripleColumns+` FROM triples WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := scanTriple(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("triple %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get triple: %w", err)
	}
	return t, nil
}

func getTripleTx(ctx context.Context, tx *sql.Tx, id string) (*types.Triple, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+tripleColumns+` FROM triples WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := scanTriple(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("triple %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get triple: %w", err)
	}
	return t, nil
}

// UpdateTriple applies a field overlay like UpdateEntry.
func (s *Store) UpdateTriple(ctx context.Context, id string, updates map[string]any) (*types.Triple, error) {
	var updated *types.Triple
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTripleTx(ctx, tx, id)
		if err != nil {
			return err
		}
		next := *current
		if err := overlayTriple(&next, updates); err != nil {
			return err
		}
		if err := validateTriple(next.Subject, next.Predicate, next.Object); err != nil {
			return err
		}

		if err := writeTripleFields(ctx, tx, &next); err != nil {
			return err
		}
		if _, err := insertTxRow(ctx, tx, types.OpUpdate, types.EntityTriple, id, current, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyChanged("triples/" + id)
	return updated, nil
}

func overlayTriple(t *types.Triple, updates map[string]any) error {
	for key, raw := range updates {
		switch key {
		case "subject":
			v, ok := raw.(string)
			if !ok {
				return types.Validationf("subject must be a string")
			}
			t.Subject = v
		case "predicate":
			v, ok := raw.(string)
			if !ok {
				return types.Validationf("predicate must be a string")
			}
			t.Predicate = v
		case "object":
			v, ok := raw.(string)
			if !ok {
				return types.Validationf("object must be a string")
			}
			t.Object = v
		case "source":
			t.Source = toOptString(raw)
		case "actor":
			t.Actor = toOptString(raw)
		case "confidence":
			conf, err := toOptFloat(raw)
			if err != nil {
				return types.Validationf("confidence must be a number")
			}
			if conf != nil && (*conf < 0 || *conf > 1) {
				return types.Validationf("confidence must be within [0,1]")
			}
			t.Confidence = conf
		default:
			return types.Validationf("unknown triple field %q", key)
		}
	}
	return nil
}

func writeTripleFields(ctx context.Context, tx *sql.Tx, t *types.Triple) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE triples SET subject = ?, predicate = ?, object = ?, source = ?,
			actor = ?, confidence = ?, status = ?
		WHERE id = ?
	`, t.Subject, t.Predicate, t.Object, nullStr(t.Source), nullStr(t.Actor),
		nullFloat(t.Confidence), t.Status, t.ID)
	if err != nil {
		return fmt.Errorf("failed to write triple fields: %w", err)
	}
	return nil
}

// DeleteTriple soft-deletes with a DELETE transaction in the same batch.
func (s *Store) DeleteTriple(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTripleTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := insertTxRow(ctx, tx, types.OpDelete, types.EntityTriple, id, current, nil); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE triples SET deleted_at = ? WHERE id = ?`, idgen.Now(), id)
		if err != nil {
			return fmt.Errorf("failed to soft-delete triple: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifyChanged("triples/" + id)
	return nil
}

// UpsertTriple finds the active triple with matching subject+predicate and
// either updates its object and provenance or inserts a new row, atomically.
// Returns created=false when an existing triple was updated.
func (s *Store) UpsertTriple(ctx context.Context, t *types.Triple) (bool, error) {
	if err := validateTriple(t.Subject, t.Predicate, t.Object); err != nil {
		return false, err
	}

	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+tripleColumns+` FROM triples
			WHERE subject = ? AND predicate = ? AND deleted_at IS NULL
			LIMIT 1
		`, t.Subject, t.Predicate)
		existing, err := scanTriple(row)
		if err == sql.ErrNoRows {
			created = true
			t.ID = idgen.New()
			t.CreatedAt = idgen.Now()
			if t.Status == "" {
				t.Status = types.StatusActive
			}
			if err := insertTriple(ctx, tx, t); err != nil {
				return err
			}
			_, err := insertTxRow(ctx, tx, types.OpCreate, types.EntityTriple, t.ID, nil, t)
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to find triple for upsert: %w", err)
		}

		next := *existing
		next.Object = t.Object
		next.Source = t.Source
		next.Actor = t.Actor
		next.Confidence = t.Confidence
		if err := writeTripleFields(ctx, tx, &next); err != nil {
			return err
		}
		if _, err := insertTxRow(ctx, tx, types.OpUpdate, types.EntityTriple, next.ID, existing, &next); err != nil {
			return err
		}
		*t = next
		return nil
	})
	if err != nil {
		return false, err
	}
	s.notifyChanged("triples/" + t.ID)
	return created, nil
}

// QueryTriples applies literal substring filters on any of the three
// columns, limit-capped, newest first.
func (s *Store) QueryTriples(ctx context.Context, f storage.TripleFilter) ([]*types.Triple, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	for _, filter := range []struct{ col, val string }{
		{"subject", f.Subject}, {"predicate", f.Predicate}, {"object", f.Object},
	} {
		if filter.val != "" {
			where = append(where, filter.col+` LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(filter.val)+"%")
		}
	}
	args = append(args, clampLimit(f.Limit))

	// #nosec G201 - clauses are assembled from fixed strings
	query := fmt.Sprintf(`SELECT %s FROM triples WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
		tripleColumns, strings.Join(where, " AND "))
	return s.queryTriples(ctx, query, args...)
}

// ListTriples pages active triples by id descending.
func (s *Store) ListTriples(ctx context.Context, limit int, afterID string) ([]*types.Triple, error) {
	limit = clampLimit(limit)
	where := "deleted_at IS NULL"
	args := []any{}
	if afterID != "" {
		where += " AND id < ?"
		args = append(args, afterID)
	}
	args = append(args, limit)

	// #nosec G201 - clauses are assembled from fixed strings
	query := fmt.Sprintf(`SELECT %s FROM triples WHERE %s ORDER BY id DESC LIMIT ?`, tripleColumns, where)
	return s.queryTriples(ctx, query, args...)
}

// ActiveTriplesExact returns every active triple with exactly this
// subject and predicate, unpaged. Conflict detection scopes with this;
// substring queries page and could miss a contradicting row.
func (s *Store) ActiveTriplesExact(ctx context.Context, subject, predicate string) ([]*types.Triple, error) {
	// #nosec G201 - fixed clauses
	query := fmt.Sprintf(`
		SELECT %s FROM triples
		WHERE deleted_at IS NULL AND subject = ? AND predicate = ?
		ORDER BY created_at DESC, id DESC
	`, tripleColumns)
	return s.queryTriples(ctx, query, subject, predicate)
}

// ActiveTriplesForTerms returns active triples whose subject or object
// equals any of the terms. Single-hop graph expansion reads this.
func (s *Store) ActiveTriplesForTerms(ctx context.Context, terms []string) ([]*types.Triple, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(terms)), ",")
	args := make([]any, 0, len(terms)*2)
	for _, t := range terms {
		args = append(args, t)
	}
	for _, t := range terms {
		args = append(args, t)
	}

	// #nosec G201 - placeholders only
	query := fmt.Sprintf(`
		SELECT %s FROM triples
		WHERE deleted_at IS NULL AND (subject IN (%s) OR object IN (%s))
	`, tripleColumns, placeholders, placeholders)
	return s.queryTriples(ctx, query, args...)
}

func (s *Store) queryTriples(ctx context.Context, query string, args ...any) ([]*types.Triple, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var triples []*types.Triple
	for rows.Next() {
		t, err := scanTriple(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan triple: %w", err)
		}
		triples = append(triples, t)
	}
	return triples, rows.Err()
}
