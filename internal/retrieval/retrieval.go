// Package retrieval ranks entries with a fused lexical, semantic, and
// graph-neighborhood score.
package retrieval

import (
	"context"
	"encoding/base64"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/MnemoLog/internal/embed"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

const (
	defaultLimit = 20
	maxLimit     = 200
	// Each scorer fetches deeper than the page so fusion has real overlap
	// to work with.
	depthFactor = 3

	defaultWeightLexical  = 0.3
	defaultWeightSemantic = 0.5
	defaultWeightGraph    = 0.2
)

// Weights control the fusion. Zero-valued weights fall back to defaults
// via Normalize.
type Weights struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	Graph    float64 `json:"graph"`
}

// DefaultWeights returns the standard 0.3/0.5/0.2 split.
func DefaultWeights() Weights {
	return Weights{
		Lexical:  defaultWeightLexical,
		Semantic: defaultWeightSemantic,
		Graph:    defaultWeightGraph,
	}
}

// Options shapes one retrieval request.
type Options struct {
	Limit   int
	Cursor  string
	Weights *Weights // nil means defaults
}

// ScoredEntry is one hydrated result with its score breakdown.
type ScoredEntry struct {
	Entry     *types.Entry `json:"entry"`
	Score     float64      `json:"score"`
	Lexical   float64      `json:"lexical_score"`
	Semantic  float64      `json:"semantic_score"`
	Graph     float64      `json:"graph_score"`
	GraphHops int          `json:"graph_hops,omitempty"`
}

// Result is one page of ranked entries.
type Result struct {
	Items       []*ScoredEntry `json:"items"`
	NextCursor  string         `json:"next_cursor,omitempty"`
	RetrievalMS int64          `json:"retrieval_ms"`
}

// Retriever fuses the three scorers over a storage backend. Embedder and
// index are optional; without both the semantic signal is redistributed.
type Retriever struct {
	store    storage.Storage
	embedder embed.Embedder
	index    embed.VectorIndex
}

// New builds a retriever. embedder and index may be nil.
func New(store storage.Storage, embedder embed.Embedder, index embed.VectorIndex) *Retriever {
	return &Retriever{store: store, embedder: embedder, index: index}
}

type candidate struct {
	lexical  float64
	semantic float64
	graph    float64
	hops     int
}

// Search runs the full pipeline: parallel lexical and semantic scoring,
// single-hop graph expansion over their candidates, weighted fusion,
// deterministic ordering, cursor paging, and hydration.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	depth := limit * depthFactor

	weights := DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	var (
		lexHits []storage.LexicalHit
		semHits []embed.Hit
		semOK   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.store.SearchLexical(gctx, query, depth)
		if err != nil {
			return err
		}
		lexHits = hits
		return nil
	})
	g.Go(func() error {
		// Semantic failures degrade rather than fail the query.
		hits, ok := r.searchSemantic(gctx, query, depth)
		semHits, semOK = hits, ok
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !semOK {
		// Redistribute the semantic weight: 60% lexical, 40% graph.
		weights.Lexical += weights.Semantic * 0.6
		weights.Graph += weights.Semantic * 0.4
		weights.Semantic = 0
	}

	candidates := make(map[string]*candidate)
	for _, h := range lexHits {
		candidates[h.ID] = &candidate{lexical: h.Score}
	}
	for _, h := range semHits {
		c, ok := candidates[h.ID]
		if !ok {
			c = &candidate{}
			candidates[h.ID] = c
		}
		c.semantic = h.Score
	}

	if err := r.scoreGraph(ctx, candidates); err != nil {
		return nil, err
	}

	ids := fuseAndOrder(candidates, weights)
	page, next := paginate(ids, opts.Cursor, limit)

	items := make([]*ScoredEntry, 0, len(page))
	for _, id := range page {
		entry, err := r.store.GetEntry(ctx, id)
		if err != nil {
			if types.IsKind(err, types.KindNotFound) {
				continue
			}
			return nil, err
		}
		c := candidates[id]
		items = append(items, &ScoredEntry{
			Entry:     entry,
			Score:     c.total(weights),
			Lexical:   c.lexical,
			Semantic:  c.semantic,
			Graph:     c.graph,
			GraphHops: c.hops,
		})
	}

	return &Result{
		Items:       items,
		NextCursor:  next,
		RetrievalMS: time.Since(start).Milliseconds(),
	}, nil
}

func (c *candidate) total(w Weights) float64 {
	return c.lexical*w.Lexical + c.semantic*w.Semantic + c.graph*w.Graph
}

// searchSemantic embeds the query and searches the vector index. The
// second return is false when the signal is unavailable, which triggers
// weight redistribution.
func (r *Retriever) searchSemantic(ctx context.Context, query string, depth int) ([]embed.Hit, bool) {
	if r.embedder == nil || r.index == nil {
		return nil, false
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, false
	}
	return r.index.Search(vec, depth), true
}

// scoreGraph performs the single-hop expansion: topics of the current
// candidates lead through active triples to neighbour topics, and entries
// under those topics join the candidate set at 1/(1+hops) with hops=1.
func (r *Retriever) scoreGraph(ctx context.Context, candidates map[string]*candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	seedIDs := make([]string, 0, len(candidates))
	for id := range candidates {
		seedIDs = append(seedIDs, id)
	}
	sort.Strings(seedIDs)

	topicSet := make(map[string]bool)
	for _, id := range seedIDs {
		entry, err := r.store.GetEntry(ctx, id)
		if err != nil {
			if types.IsKind(err, types.KindNotFound) {
				continue
			}
			return err
		}
		topicSet[entry.Topic] = true
	}
	topics := make([]string, 0, len(topicSet))
	for t := range topicSet {
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil
	}

	triples, err := r.store.ActiveTriplesForTerms(ctx, topics)
	if err != nil {
		return err
	}
	neighbourSet := make(map[string]bool)
	for _, tr := range triples {
		if topicSet[tr.Subject] && !topicSet[tr.Object] {
			neighbourSet[tr.Object] = true
		}
		if topicSet[tr.Object] && !topicSet[tr.Subject] {
			neighbourSet[tr.Subject] = true
		}
	}
	if len(neighbourSet) == 0 {
		return nil
	}
	neighbours := make([]string, 0, len(neighbourSet))
	for n := range neighbourSet {
		neighbours = append(neighbours, n)
	}

	entries, err := r.store.EntriesByTopics(ctx, neighbours)
	if err != nil {
		return err
	}
	const hops = 1
	for _, e := range entries {
		if _, seeded := candidates[e.ID]; seeded {
			continue
		}
		candidates[e.ID] = &candidate{graph: 1.0 / (1 + hops), hops: hops}
	}
	return nil
}

// fuseAndOrder returns candidate ids sorted by fused score descending,
// id ascending on ties.
func fuseAndOrder(candidates map[string]*candidate, w Weights) []string {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := candidates[ids[i]].total(w), candidates[ids[j]].total(w)
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// EncodeCursor wraps an entry id as an opaque page token.
func EncodeCursor(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeCursor reverses EncodeCursor. Malformed tokens return "", which
// callers treat as no cursor.
func DecodeCursor(cursor string) string {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return ""
	}
	return string(raw)
}

// paginate slices the ordered ids after the cursor position. Unknown or
// invalid cursors yield the first page.
func paginate(ids []string, cursor string, limit int) (page []string, next string) {
	start := 0
	if lastID := DecodeCursor(cursor); lastID != "" {
		for i, id := range ids {
			if id == lastID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	page = ids[start:end]
	if end < len(ids) {
		next = EncodeCursor(ids[end-1])
	}
	return page, next
}
