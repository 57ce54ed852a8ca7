// Package engine coordinates storage, policy, retrieval, conflicts, and
// ingestion behind the operation surface the protocol layer exposes.
package engine

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/untoldecay/MnemoLog/internal/conflict"
	"github.com/untoldecay/MnemoLog/internal/embed"
	"github.com/untoldecay/MnemoLog/internal/ingest"
	"github.com/untoldecay/MnemoLog/internal/policy"
	"github.com/untoldecay/MnemoLog/internal/retrieval"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// Engine is the single entry point for all knowledge operations. Every
// mutation runs its policy check first and ends with a change
// notification; reads never mutate.
type Engine struct {
	store     storage.Storage
	retriever *retrieval.Retriever
	batcher   *ingest.Batcher
	conflicts conflict.Cache
	embedder  embed.Embedder
	index     embed.VectorIndex
	notify    func(uris ...string)
}

// Option configures optional collaborators.
type Option func(*Engine)

// WithEmbedding attaches the semantic scorer's collaborators.
func WithEmbedding(embedder embed.Embedder, index embed.VectorIndex) Option {
	return func(e *Engine) {
		e.embedder = embedder
		e.index = index
	}
}

// WithConflictCache overrides the conflict session cache. The default is
// the store itself when it implements conflict.Cache, else a bounded
// in-memory cache.
func WithConflictCache(cache conflict.Cache) Option {
	return func(e *Engine) { e.conflicts = cache }
}

// WithNotifier sets the change-notification callback invoked with the
// resource URIs touched by each committed mutation.
func WithNotifier(fn func(uris ...string)) Option {
	return func(e *Engine) { e.notify = fn }
}

// New wires an engine over the store.
func New(store storage.Storage, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		notify: func(...string) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.conflicts == nil {
		if cache, ok := store.(conflict.Cache); ok {
			e.conflicts = cache
		} else {
			e.conflicts = conflict.NewMemoryCache()
		}
	}
	e.retriever = retrieval.New(store, e.embedder, e.index)
	e.batcher = ingest.NewBatcher(store, e.notify)
	store.SetNotifier(e.notify)
	return e
}

// StoreParams are the inputs of the store operation.
type StoreParams struct {
	Topic      string   `json:"topic"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	Source     *string  `json:"source,omitempty"`
	Actor      *string  `json:"actor,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	ValidFrom  *string  `json:"valid_from,omitempty"`
	ValidTo    *string  `json:"valid_to,omitempty"`
}

// Store creates an entry after the policy check and synchronizes the
// vector index.
func (e *Engine) Store(ctx context.Context, p StoreParams) (*types.Entry, error) {
	if err := policy.Check("store", map[string]any{
		"topic":      p.Topic,
		"content":    p.Content,
		"confidence": p.Confidence,
	}); err != nil {
		return nil, err
	}

	entry := &types.Entry{
		Topic:      p.Topic,
		Content:    p.Content,
		Tags:       p.Tags,
		Source:     p.Source,
		Actor:      p.Actor,
		Confidence: p.Confidence,
		ValidFrom:  p.ValidFrom,
		ValidTo:    p.ValidTo,
	}
	if err := e.store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	e.indexEntry(ctx, entry)
	return entry, nil
}

// GetEntry fetches one entry by id.
func (e *Engine) GetEntry(ctx context.Context, id string) (*types.Entry, error) {
	return e.store.GetEntry(ctx, id)
}

// GetTriple fetches one triple by id.
func (e *Engine) GetTriple(ctx context.Context, id string) (*types.Triple, error) {
	return e.store.GetTriple(ctx, id)
}

// Update applies a field overlay to an entry and refreshes its vector.
func (e *Engine) Update(ctx context.Context, id string, updates map[string]any) (*types.Entry, error) {
	if err := policy.Check("update", updates); err != nil {
		return nil, err
	}
	entry, err := e.store.UpdateEntry(ctx, id, updates)
	if err != nil {
		return nil, err
	}
	e.indexEntry(ctx, entry)
	return entry, nil
}

// QueryParams shape the hybrid query operation. Offset pagination is not
// supported; only cursors page stably.
type QueryParams struct {
	Topic   string             `json:"topic,omitempty"`
	Content string             `json:"content,omitempty"`
	Tags    []string           `json:"tags,omitempty"`
	Limit   int                `json:"limit,omitempty"`
	Cursor  string             `json:"cursor,omitempty"`
	Offset  *int               `json:"offset,omitempty"`
	Weights *retrieval.Weights `json:"weights,omitempty"`
}

// Query runs the hybrid retrieval pipeline over the topic and content
// terms and post-filters by tags. With no search terms it degrades to a
// plain filtered listing.
func (e *Engine) Query(ctx context.Context, p QueryParams) (*retrieval.Result, error) {
	if p.Offset != nil {
		return nil, types.Validationf("offset pagination is not supported; use the cursor")
	}

	queryText := strings.TrimSpace(strings.TrimSpace(p.Topic) + " " + strings.TrimSpace(p.Content))
	if queryText == "" {
		return e.queryByFilter(ctx, p)
	}

	res, err := e.retriever.Search(ctx, queryText, retrieval.Options{
		Limit:   p.Limit,
		Cursor:  p.Cursor,
		Weights: p.Weights,
	})
	if err != nil {
		return nil, err
	}
	if len(p.Tags) > 0 {
		filtered := res.Items[:0]
		for _, item := range res.Items {
			if hasAllTags(item.Entry.Tags, p.Tags) {
				filtered = append(filtered, item)
			}
		}
		res.Items = filtered
	}
	return res, nil
}

// queryByFilter serves tag-only (or empty) queries straight from storage.
func (e *Engine) queryByFilter(ctx context.Context, p QueryParams) (*retrieval.Result, error) {
	entries, err := e.store.QueryEntries(ctx, storage.EntryFilter{
		Tags:  p.Tags,
		Limit: p.Limit,
	})
	if err != nil {
		return nil, err
	}
	items := make([]*retrieval.ScoredEntry, 0, len(entries))
	for _, entry := range entries {
		items = append(items, &retrieval.ScoredEntry{Entry: entry})
	}
	return &retrieval.Result{Items: items}, nil
}

func hasAllTags(have, want []string) bool {
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

// DeleteResult acknowledges a delete.
type DeleteResult struct {
	ID         string           `json:"id"`
	EntityType types.EntityType `json:"entity_type"`
	Deleted    bool             `json:"deleted"`
}

// Delete soft-deletes an entry or a triple.
func (e *Engine) Delete(ctx context.Context, id string, entityType types.EntityType) (*DeleteResult, error) {
	switch entityType {
	case types.EntityEntry:
		if err := e.store.DeleteEntry(ctx, id); err != nil {
			return nil, err
		}
		if e.index != nil {
			e.index.Remove(id)
		}
	case types.EntityTriple:
		if err := e.store.DeleteTriple(ctx, id); err != nil {
			return nil, err
		}
	default:
		return nil, types.Validationf("entity_type must be entry or triple, got %q", entityType)
	}
	return &DeleteResult{ID: id, EntityType: entityType, Deleted: true}, nil
}

// RelateResult is either a created triple or a pending conflict, never
// both.
type RelateResult struct {
	Triple   *types.Triple       `json:"triple,omitempty"`
	Conflict *types.ConflictInfo `json:"conflict,omitempty"`
}

// Relate adds a triple unless an active triple contradicts it, in which
// case the conflict is cached and returned for the caller to resolve.
func (e *Engine) Relate(ctx context.Context, cand types.TripleCandidate) (*RelateResult, error) {
	if err := policy.Check("relate", map[string]any{
		"subject":    cand.Subject,
		"predicate":  cand.Predicate,
		"object":     cand.Object,
		"confidence": cand.Confidence,
	}); err != nil {
		return nil, err
	}

	info, err := conflict.Detect(ctx, e.store, cand)
	if err != nil {
		return nil, err
	}
	if info != nil {
		if err := e.conflicts.SaveConflict(ctx, info); err != nil {
			return nil, err
		}
		return &RelateResult{Conflict: info}, nil
	}

	triple := candidateTriple(cand)
	if err := e.store.CreateTriple(ctx, triple); err != nil {
		return nil, err
	}
	return &RelateResult{Triple: triple}, nil
}

func candidateTriple(cand types.TripleCandidate) *types.Triple {
	return &types.Triple{
		Subject:    cand.Subject,
		Predicate:  cand.Predicate,
		Object:     cand.Object,
		Source:     cand.Source,
		Actor:      cand.Actor,
		Confidence: cand.Confidence,
	}
}

// QueryGraph lists triples by substring filters.
func (e *Engine) QueryGraph(ctx context.Context, f storage.TripleFilter) ([]*types.Triple, error) {
	return e.store.QueryTriples(ctx, f)
}

// UpdateTriple applies a field overlay to a triple.
func (e *Engine) UpdateTriple(ctx context.Context, id string, updates map[string]any) (*types.Triple, error) {
	if err := policy.Check("update_triple", updates); err != nil {
		return nil, err
	}
	return e.store.UpdateTriple(ctx, id, updates)
}

// UpsertResult reports whether the upsert created or updated.
type UpsertResult struct {
	Triple  *types.Triple `json:"triple"`
	Created bool          `json:"created"`
}

// UpsertTriple updates the active triple with the same subject and
// predicate, or creates one.
func (e *Engine) UpsertTriple(ctx context.Context, cand types.TripleCandidate) (*UpsertResult, error) {
	if err := policy.Check("relate", map[string]any{
		"subject":    cand.Subject,
		"predicate":  cand.Predicate,
		"object":     cand.Object,
		"confidence": cand.Confidence,
	}); err != nil {
		return nil, err
	}
	triple := candidateTriple(cand)
	created, err := e.store.UpsertTriple(ctx, triple)
	if err != nil {
		return nil, err
	}
	return &UpsertResult{Triple: triple, Created: created}, nil
}

// ResolveConflict applies a resolution strategy to a cached conflict:
// replace rewrites the existing triple's object and provenance,
// retain_both stores the candidate alongside, reject discards it. All
// three evict the conflict.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID, strategy string) (*types.Triple, error) {
	info, err := e.conflicts.LoadConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, types.NotFoundf("conflict %s not found or expired", conflictID)
	}

	var resolved *types.Triple
	switch strategy {
	case types.ResolutionReplace:
		updates := map[string]any{"object": info.Candidate.Object}
		if info.Candidate.Source != nil {
			updates["source"] = *info.Candidate.Source
		}
		if info.Candidate.Actor != nil {
			updates["actor"] = *info.Candidate.Actor
		}
		if info.Candidate.Confidence != nil {
			updates["confidence"] = *info.Candidate.Confidence
		}
		resolved, err = e.store.UpdateTriple(ctx, info.Existing.ID, updates)
		if err != nil {
			return nil, err
		}
	case types.ResolutionRetainBoth:
		resolved = candidateTriple(info.Candidate)
		if err := e.store.CreateTriple(ctx, resolved); err != nil {
			return nil, err
		}
	case types.ResolutionReject:
		// Nothing written; the candidate is dropped.
	default:
		return nil, types.Validationf("unknown resolution strategy %q", strategy)
	}

	if err := e.conflicts.RemoveConflict(ctx, conflictID); err != nil {
		return nil, err
	}
	return resolved, nil
}

// EntityResult reports whether upsert_entity created.
type EntityResult struct {
	Entity  *types.CanonicalEntity `json:"entity"`
	Created bool                   `json:"created"`
}

// UpsertEntity resolves a name exactly or registers a new canonical
// entity with its auto-alias.
func (e *Engine) UpsertEntity(ctx context.Context, name string) (*EntityResult, error) {
	entity, created, err := e.store.UpsertEntity(ctx, name)
	if err != nil {
		return nil, err
	}
	return &EntityResult{Entity: entity, Created: created}, nil
}

// ResolveEntity maps a name to a canonical entity, fuzzily unless
// exactOnly.
func (e *Engine) ResolveEntity(ctx context.Context, name string, exactOnly bool) (*types.CanonicalEntity, error) {
	return e.store.ResolveEntity(ctx, name, exactOnly)
}

// AddAlias attaches an alias to an entity.
func (e *Engine) AddAlias(ctx context.Context, entityID, alias string) (*types.EntityAlias, error) {
	return e.store.AddAlias(ctx, entityID, alias)
}

// MergeResult summarizes a merge.
type MergeResult struct {
	KeepID      string `json:"keep_id"`
	MergeID     string `json:"merge_id"`
	MergedCount int    `json:"merged_count"`
}

// MergeEntities absorbs one entity into another.
func (e *Engine) MergeEntities(ctx context.Context, keepID, mergeID string) (*MergeResult, error) {
	count, err := e.store.MergeEntities(ctx, keepID, mergeID)
	if err != nil {
		return nil, err
	}
	return &MergeResult{KeepID: keepID, MergeID: mergeID, MergedCount: count}, nil
}

// Undo reverts the n most recent mutations, newest first.
func (e *Engine) Undo(ctx context.Context, n int) ([]string, error) {
	return e.store.Undo(ctx, n)
}

// History lists recent transactions, optionally filtered by entity type.
func (e *Engine) History(ctx context.Context, limit int, entityType string) ([]*types.Transaction, error) {
	return e.store.History(ctx, limit, entityType)
}

// Ingest loads bulk content through the batcher.
func (e *Engine) Ingest(ctx context.Context, content string, source *string) (*ingest.Result, error) {
	if err := policy.Check("ingest", map[string]any{"content": content}); err != nil {
		return nil, err
	}
	return e.batcher.Ingest(ctx, content, source)
}

// ProcessIngestionBatch runs one async batch; the scheduler re-invokes it
// while chunks remain.
func (e *Engine) ProcessIngestionBatch(ctx context.Context, taskID string) (int, error) {
	return e.batcher.ProcessBatch(ctx, taskID)
}

// PendingIngestionTasks lists task ids that still need batches.
func (e *Engine) PendingIngestionTasks(ctx context.Context) ([]string, error) {
	return e.store.PendingTasks(ctx)
}

// IngestionStatus reports a task's progress.
func (e *Engine) IngestionStatus(ctx context.Context, taskID string) (*types.IngestionTask, error) {
	return e.store.GetTask(ctx, taskID)
}

// Stats summarizes the store.
func (e *Engine) Stats(ctx context.Context) (*storage.Stats, error) {
	return e.store.Stats(ctx)
}

// ListPage is one page of a read resource, id descending.
type ListPage struct {
	Items      any    `json:"items"`
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// List pages the read resources entries, triples, and transactions.
func (e *Engine) List(ctx context.Context, resource string, limit int, cursor string) (*ListPage, error) {
	afterID := decodeListCursor(cursor)
	switch resource {
	case "entries":
		items, err := e.store.ListEntries(ctx, limit, afterID)
		if err != nil {
			return nil, err
		}
		var last string
		if len(items) > 0 {
			last = items[len(items)-1].ID
		}
		return listPage(items, len(items), limit, last), nil
	case "triples":
		items, err := e.store.ListTriples(ctx, limit, afterID)
		if err != nil {
			return nil, err
		}
		var last string
		if len(items) > 0 {
			last = items[len(items)-1].ID
		}
		return listPage(items, len(items), limit, last), nil
	case "transactions":
		items, err := e.store.ListTransactions(ctx, limit, afterID)
		if err != nil {
			return nil, err
		}
		var last string
		if len(items) > 0 {
			last = items[len(items)-1].ID
		}
		return listPage(items, len(items), limit, last), nil
	}
	return nil, types.Validationf("unknown resource %q", resource)
}

func listPage(items any, count, limit int, lastID string) *ListPage {
	page := &ListPage{Items: items, Count: count}
	// A full page may have more behind it; short pages never do.
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if count == limit && lastID != "" {
		page.NextCursor = base64.RawURLEncoding.EncodeToString([]byte(lastID))
	}
	return page
}

func decodeListCursor(cursor string) string {
	if cursor == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return ""
	}
	return string(raw)
}

// indexEntry refreshes an entry's vector. Embedding trouble degrades the
// semantic signal; it never fails the mutation.
func (e *Engine) indexEntry(ctx context.Context, entry *types.Entry) {
	if e.embedder == nil || e.index == nil {
		return
	}
	vec, err := e.embedder.Embed(ctx, entry.Topic+"\n"+entry.Content)
	if err != nil {
		return
	}
	e.index.Upsert(entry.ID, vec)
}
