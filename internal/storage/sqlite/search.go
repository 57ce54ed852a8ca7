package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/untoldecay/MnemoLog/internal/storage"
)

// SanitizeFTSQuery turns free text into an FTS5 MATCH expression: each
// whitespace token is double-quoted with embedded quotes doubled, so user
// input can never inject FTS syntax or unbalance the expression.
func SanitizeFTSQuery(query string) string {
	tokens := strings.Fields(query)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// SearchLexical ranks active entries for the query. With FTS5 active the
// BM25 scores are normalized to [0,1] by dividing by the best (most
// negative) score in the page. Without FTS5, or when the MATCH query
// fails, it degrades to tiered substring ranking.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]storage.LexicalHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if s.ftsEnabled {
		hits, err := s.searchFTS(ctx, query, limit)
		if err == nil {
			return hits, nil
		}
		// Malformed MATCH or index trouble: degrade, don't fail the query.
	}
	return s.searchSubstring(ctx, query, limit)
}

func (s *Store) searchFTS(ctx context.Context, query string, limit int) ([]storage.LexicalHit, error) {
	match := SanitizeFTSQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, bm25(entries_fts)
		FROM entries_fts
		JOIN entries e ON entries_fts.rowid = e.rowid
		WHERE entries_fts MATCH ? AND e.deleted_at IS NULL
		ORDER BY bm25(entries_fts)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.LexicalHit
	var best float64
	for rows.Next() {
		var hit storage.LexicalHit
		var raw float64
		if err := rows.Scan(&hit.ID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan fts hit: %w", err)
		}
		// BM25 output is negative; more negative means a better match.
		if len(hits) == 0 {
			best = raw
		}
		hit.Score = raw
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if best != 0 {
		for i := range hits {
			norm := hits[i].Score / best
			if norm < 0 {
				norm = 0
			}
			if norm > 1 {
				norm = 1
			}
			hits[i].Score = norm
		}
	}
	return hits, nil
}

// searchSubstring is the non-FTS fallback: candidates matched by literal
// substring, ranked by tier (exact topic 1.0, topic 0.8, content 0.5,
// tags 0.3).
func (s *Store) searchSubstring(ctx context.Context, query string, limit int) ([]storage.LexicalHit, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, content, tags FROM entries
		WHERE deleted_at IS NULL AND (
			topic LIKE ? ESCAPE '\' OR
			content LIKE ? ESCAPE '\' OR
			tags LIKE ? ESCAPE '\'
		)
		ORDER BY created_at DESC
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("substring search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lowered := strings.ToLower(query)
	var hits []storage.LexicalHit
	for rows.Next() {
		var id, topic, content, tags string
		if err := rows.Scan(&id, &topic, &content, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		hits = append(hits, storage.LexicalHit{
			ID:    id,
			Score: substringTier(lowered, topic, content, tags),
		})
	}
	return hits, rows.Err()
}

func substringTier(loweredQuery, topic, content, tags string) float64 {
	loweredTopic := strings.ToLower(topic)
	switch {
	case loweredTopic == loweredQuery:
		return 1.0
	case strings.Contains(loweredTopic, loweredQuery):
		return 0.8
	case strings.Contains(strings.ToLower(content), loweredQuery):
		return 0.5
	case strings.Contains(strings.ToLower(tags), loweredQuery):
		return 0.3
	}
	return 0
}
