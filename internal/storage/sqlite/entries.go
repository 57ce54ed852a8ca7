package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/untoldecay/MnemoLog/internal/idgen"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

const entryColumns = `id, topic, content, tags, source, actor, confidence,
	valid_from, valid_to, status, canonical_entity_id, created_at, updated_at, deleted_at`

func validateEntry(topic, content string) error {
	if topic == "" {
		return types.Validationf("topic must not be empty")
	}
	if len(topic) > types.MaxTopicLength {
		return types.Validationf("topic exceeds %d characters", types.MaxTopicLength)
	}
	if content == "" {
		return types.Validationf("content must not be empty")
	}
	if len(content) > types.MaxContentLength {
		return types.Validationf("content exceeds %d characters", types.MaxContentLength)
	}
	return nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

// CreateEntry validates, mints an id, and writes the row together with its
// CREATE transaction in one atomic batch.
func (s *Store) CreateEntry(ctx context.Context, e *types.Entry) error {
	if err := validateEntry(e.Topic, e.Content); err != nil {
		return err
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1) {
		return types.Validationf("confidence must be within [0,1]")
	}

	if e.ID == "" {
		e.ID = idgen.New()
	}
	now := idgen.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = types.StatusActive
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
		_, err := insertTxRow(ctx, tx, types.OpCreate, types.EntityEntry, e.ID, nil, e)
		return err
	})
	if err != nil {
		return err
	}
	s.notifyChanged("entries/" + e.ID)
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e *types.Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Topic, e.Content, encodeTags(e.Tags), nullStr(e.Source), nullStr(e.Actor),
		nullFloat(e.Confidence), nullStr(e.ValidFrom), nullStr(e.ValidTo), e.Status,
		nullStr(e.CanonicalEntityID), e.CreatedAt, e.UpdatedAt, nullStr(e.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*types.Entry, error) {
	var e types.Entry
	var tags string
	var source, actor, validFrom, validTo, canonical, deletedAt sql.NullString
	var confidence sql.NullFloat64

	err := row.Scan(&e.ID, &e.Topic, &e.Content, &tags, &source, &actor, &confidence,
		&validFrom, &validTo, &e.Status, &canonical, &e.CreatedAt, &e.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	e.Tags = decodeTags(tags)
	e.Source = strFromNull(source)
	e.Actor = strFromNull(actor)
	e.Confidence = floatFromNull(confidence)
	e.ValidFrom = strFromNull(validFrom)
	e.ValidTo = strFromNull(validTo)
	e.CanonicalEntityID = strFromNull(canonical)
	e.DeletedAt = strFromNull(deletedAt)
	return &e, nil
}

// GetEntry returns an active entry or a not_found error.
func (s *Store) GetEntry(ctx context.Context, id string) (*types.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ? AND deleted_at IS NULL`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("entry %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func getEntryTx(ctx context.Context, tx *sql.Tx, id string) (*types.Entry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ? AND deleted_at IS NULL`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("entry %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// UpdateEntry applies a field-level overlay: keys present with nil values
// override to null, absent keys preserve the current value. Returns the
// updated entry.
func (s *Store) UpdateEntry(ctx context.Context, id string, updates map[string]any) (*types.Entry, error) {
	var updated *types.Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getEntryTx(ctx, tx, id)
		if err != nil {
			return err
		}
		next := *current
		next.Tags = append([]string(nil), current.Tags...)
		if err := overlayEntry(&next, updates); err != nil {
			return err
		}
		if err := validateEntry(next.Topic, next.Content); err != nil {
			return err
		}
		next.UpdatedAt = idgen.Now()

		if err := writeEntryFields(ctx, tx, &next); err != nil {
			return err
		}
		if _, err := insertTxRow(ctx, tx, types.OpUpdate, types.EntityEntry, id, current, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyChanged("entries/" + id)
	return updated, nil
}

func overlayEntry(e *types.Entry, updates map[string]any) error {
	for key, raw := range updates {
		switch key {
		case "topic":
			v, ok := raw.(string)
			if !ok {
				return types.Validationf("topic must be a string")
			}
			e.Topic = v
		case "content":
			v, ok := raw.(string)
			if !ok {
				return types.Validationf("content must be a string")
			}
			e.Content = v
		case "tags":
			tags, err := toStringSlice(raw)
			if err != nil {
				return types.Validationf("tags must be a list of strings")
			}
			e.Tags = tags
		case "source":
			e.Source = toOptString(raw)
		case "actor":
			e.Actor = toOptString(raw)
		case "confidence":
			conf, err := toOptFloat(raw)
			if err != nil {
				return types.Validationf("confidence must be a number")
			}
			if conf != nil && (*conf < 0 || *conf > 1) {
				return types.Validationf("confidence must be within [0,1]")
			}
			e.Confidence = conf
		case "valid_from":
			e.ValidFrom = toOptString(raw)
		case "valid_to":
			e.ValidTo = toOptString(raw)
		case "canonical_entity_id":
			e.CanonicalEntityID = toOptString(raw)
		default:
			return types.Validationf("unknown entry field %q", key)
		}
	}
	return nil
}

func toStringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("not a string: %v", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported tags type %T", raw)
}

func toOptString(raw any) *string {
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		return &s
	}
	if p, ok := raw.(*string); ok {
		return p
	}
	return nil
}

func toOptFloat(raw any) (*float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		return &v, nil
	case *float64:
		return v, nil
	case int:
		f := float64(v)
		return &f, nil
	}
	return nil, fmt.Errorf("unsupported number type %T", raw)
}

// writeEntryFields overwrites all mutable columns. Used by update and by
// the undo engine when restoring a before-snapshot.
func writeEntryFields(ctx context.Context, tx *sql.Tx, e *types.Entry) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE entries SET topic = ?, content = ?, tags = ?, source = ?, actor = ?,
			confidence = ?, valid_from = ?, valid_to = ?, status = ?,
			canonical_entity_id = ?, updated_at = ?
		WHERE id = ?
	`, e.Topic, e.Content, encodeTags(e.Tags), nullStr(e.Source), nullStr(e.Actor),
		nullFloat(e.Confidence), nullStr(e.ValidFrom), nullStr(e.ValidTo), e.Status,
		nullStr(e.CanonicalEntityID), e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to write entry fields: %w", err)
	}
	return nil
}

// DeleteEntry soft-deletes: the DELETE transaction (before = current row)
// and the deleted_at stamp commit together. Deleting twice is not_found.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getEntryTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := insertTxRow(ctx, tx, types.OpDelete, types.EntityEntry, id, current, nil); err != nil {
			return err
		}
		now := idgen.Now()
		_, err = tx.ExecContext(ctx,
			`UPDATE entries SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
		if err != nil {
			return fmt.Errorf("failed to soft-delete entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifyChanged("entries/" + id)
	return nil
}

// QueryEntries filters by optional literal substrings on topic and content
// and a required-all tag set, ordered created_at descending. Tags are
// post-filtered in application code because they are JSON-encoded.
func (s *Store) QueryEntries(ctx context.Context, f storage.EntryFilter) ([]*types.Entry, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if f.Topic != "" {
		where = append(where, `topic LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Topic)+"%")
	}
	if f.Content != "" {
		where = append(where, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Content)+"%")
	}
	limit := clampLimit(f.Limit)
	// Over-fetch when tag post-filtering may discard rows.
	fetch := limit
	if len(f.Tags) > 0 {
		fetch = maxLimit
	}
	args = append(args, fetch)

	// #nosec G201 - clauses are assembled from fixed strings
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
		entryColumns, strings.Join(where, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if !hasAllTags(e.Tags, f.Tags) {
			continue
		}
		entries = append(entries, e)
		if len(entries) >= limit {
			break
		}
	}
	return entries, rows.Err()
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

// ListEntries pages active entries by id descending for the read resource.
func (s *Store) ListEntries(ctx context.Context, limit int, afterID string) ([]*types.Entry, error) {
	limit = clampLimit(limit)
	where := "deleted_at IS NULL"
	args := []any{}
	if afterID != "" {
		where += " AND id < ?"
		args = append(args, afterID)
	}
	args = append(args, limit)

	// #nosec G201 - clauses are assembled from fixed strings
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE %s ORDER BY id DESC LIMIT ?`, entryColumns, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindEntryByContent matches exact content against active entries.
// Ingestion dedup uses this; nil result means no duplicate.
func (s *Store) FindEntryByContent(ctx context.Context, content string) (*types.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE content = ? AND deleted_at IS NULL LIMIT 1`, content)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by content: %w", err)
	}
	return e, nil
}

// EntriesByTopics returns active entries whose topic equals any of the
// given terms. The graph scorer expands candidate neighborhoods with it.
func (s *Store) EntriesByTopics(ctx context.Context, topics []string) ([]*types.Entry, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(topics)), ",")
	args := make([]any, len(topics))
	for i, t := range topics {
		args[i] = t
	}

	// #nosec G201 - placeholders only
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE topic IN (%s) AND deleted_at IS NULL`,
		entryColumns, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries by topic: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
