package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/MnemoLog/internal/policy"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/storage/sqlite"
	"github.com/untoldecay/MnemoLog/internal/types"
)

func setupEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	policy.Reset()
	t.Cleanup(policy.Reset)

	tmpDir, err := os.MkdirTemp("", "mnemo-engine-*")
	require.NoError(t, err)
	store, err := sqlite.New(context.Background(), filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})
	return New(store, opts...)
}

func TestStoreAndQuery(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	entry, err := e.Store(ctx, StoreParams{
		Topic:   "ts-quirk",
		Content: "Zod v4 changes",
		Tags:    []string{"typescript"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	res, err := e.Query(ctx, QueryParams{Topic: "ts"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, entry.ID, res.Items[0].Entry.ID)
	assert.GreaterOrEqual(t, res.RetrievalMS, int64(0))

	history, err := e.History(ctx, 10, "entry")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.OpCreate, history[0].Op)
	assert.Equal(t, types.EntityEntry, history[0].EntityType)
}

func TestStoreRequiresFields(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Store(context.Background(), StoreParams{Content: "no topic"})
	assert.True(t, types.IsKind(err, types.KindPolicy), "missing topic should fail policy, got %v", err)
}

func TestUndoOrdering(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	a, err := e.Store(ctx, StoreParams{Topic: "keep-a", Content: "a"})
	require.NoError(t, err)
	b, err := e.Store(ctx, StoreParams{Topic: "undo-b", Content: "b"})
	require.NoError(t, err)

	reverted, err := e.Undo(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reverted, 1)

	res, err := e.Query(ctx, QueryParams{Topic: "keep-a"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, a.ID, res.Items[0].Entry.ID)

	res, err = e.Query(ctx, QueryParams{Topic: "undo-b"})
	require.NoError(t, err)
	assert.Empty(t, res.Items, "undone entry %s should be gone", b.ID)

	// The second undo reverts the older store.
	reverted, err = e.Undo(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reverted, 1)
	res, err = e.Query(ctx, QueryParams{Topic: "keep-a"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestUndoEmptyLog(t *testing.T) {
	e := setupEngine(t)

	reverted, err := e.Undo(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, reverted)
}

func TestMergeAndUndoScenario(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	js, err := e.UpsertEntity(ctx, "JavaScript")
	require.NoError(t, err)
	short, err := e.UpsertEntity(ctx, "JS")
	require.NoError(t, err)

	for _, cand := range []types.TripleCandidate{
		{Subject: "JS", Predicate: "has", Object: "closures"},
		{Subject: "closures", Predicate: "in", Object: "JS"},
	} {
		res, err := e.Relate(ctx, cand)
		require.NoError(t, err)
		require.Nil(t, res.Conflict)
	}

	merged, err := e.MergeEntities(ctx, js.Entity.ID, short.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.MergedCount)

	triples, err := e.QueryGraph(ctx, storage.TripleFilter{Subject: "JavaScript"})
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "closures", triples[0].Object)

	_, err = e.Undo(ctx, 1)
	require.NoError(t, err)

	triples, err = e.QueryGraph(ctx, storage.TripleFilter{Subject: "JS"})
	require.NoError(t, err)
	require.Len(t, triples, 1, "undo should restore the JS subject")

	restored, err := e.ResolveEntity(ctx, "JS", true)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, short.Entity.ID, restored.ID)
}

func TestConflictScenario(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	first, err := e.Relate(ctx, types.TripleCandidate{
		Subject: "Rust", Predicate: "creator", Object: "Graydon Hoare",
	})
	require.NoError(t, err)
	require.NotNil(t, first.Triple)

	second, err := e.Relate(ctx, types.TripleCandidate{
		Subject: "Rust", Predicate: "creator", Object: "Someone Else",
		Confidence: types.Float64Ptr(0.5),
	})
	require.NoError(t, err)
	require.Nil(t, second.Triple)
	require.NotNil(t, second.Conflict)
	assert.Equal(t, "Graydon Hoare", second.Conflict.Existing.Object)
	assert.ElementsMatch(t,
		[]string{"replace", "retain_both", "reject"},
		second.Conflict.Resolutions)

	// Reject leaves the store unchanged.
	resolved, err := e.ResolveConflict(ctx, second.Conflict.ConflictID, types.ResolutionReject)
	require.NoError(t, err)
	assert.Nil(t, resolved)

	triples, err := e.QueryGraph(ctx, storage.TripleFilter{Subject: "Rust"})
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "Graydon Hoare", triples[0].Object)

	// The conflict is gone after resolution.
	_, err = e.ResolveConflict(ctx, second.Conflict.ConflictID, types.ResolutionReject)
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestResolveConflictReplace(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	first, err := e.Relate(ctx, types.TripleCandidate{
		Subject: "Pluto", Predicate: "class", Object: "planet",
	})
	require.NoError(t, err)

	res, err := e.Relate(ctx, types.TripleCandidate{
		Subject: "Pluto", Predicate: "class", Object: "dwarf planet",
		Source: types.StrPtr("IAU 2006"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)

	resolved, err := e.ResolveConflict(ctx, res.Conflict.ConflictID, types.ResolutionReplace)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, first.Triple.ID, resolved.ID, "replace rewrites in place")
	assert.Equal(t, "dwarf planet", resolved.Object)
	require.NotNil(t, resolved.Source)
	assert.Equal(t, "IAU 2006", *resolved.Source)
}

func TestResolveConflictRetainBoth(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	_, err := e.Relate(ctx, types.TripleCandidate{
		Subject: "Vim", Predicate: "author", Object: "Bram Moolenaar",
	})
	require.NoError(t, err)
	res, err := e.Relate(ctx, types.TripleCandidate{
		Subject: "Vim", Predicate: "author", Object: "community",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)

	_, err = e.ResolveConflict(ctx, res.Conflict.ConflictID, types.ResolutionRetainBoth)
	require.NoError(t, err)

	triples, err := e.QueryGraph(ctx, storage.TripleFilter{Subject: "Vim"})
	require.NoError(t, err)
	assert.Len(t, triples, 2)
}

func TestPolicyConfidenceFloor(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	policy.SetMinConfidence(0.5)

	_, err := e.Store(ctx, StoreParams{
		Topic: "low", Content: "c", Confidence: types.Float64Ptr(0.3),
	})
	assert.True(t, types.IsKind(err, types.KindPolicy))

	_, err = e.Store(ctx, StoreParams{
		Topic: "high", Content: "c", Confidence: types.Float64Ptr(0.8),
	})
	assert.NoError(t, err)
}

func TestIngestScenario(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	content := make([]byte, 0, 602)
	for i := 0; i < 300; i++ {
		content = append(content, 'A')
	}
	content = append(content, '\n', '\n')
	for i := 0; i < 300; i++ {
		content = append(content, 'B')
	}

	res, err := e.Ingest(ctx, string(content), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntriesCreated)
	assert.Equal(t, 0, res.DuplicatesSkipped)

	page, err := e.Query(ctx, QueryParams{Tags: []string{"ingested"}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	again, err := e.Ingest(ctx, string(content), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.EntriesCreated)
	assert.Equal(t, 2, again.DuplicatesSkipped)
}

func TestQueryOffsetRejected(t *testing.T) {
	e := setupEngine(t)
	offset := 10

	_, err := e.Query(context.Background(), QueryParams{Topic: "x", Offset: &offset})
	assert.True(t, types.IsKind(err, types.KindValidation))
}

func TestUpsertTripleRoundTrip(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	first, err := e.UpsertTriple(ctx, types.TripleCandidate{
		Subject: "Zig", Predicate: "status", Object: "pre-1.0",
	})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := e.UpsertTriple(ctx, types.TripleCandidate{
		Subject: "Zig", Predicate: "status", Object: "1.0",
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Triple.ID, second.Triple.ID)
	assert.Equal(t, "1.0", second.Triple.Object)
}

func TestDeleteValidatesEntityType(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Delete(context.Background(), "X", types.EntityType("entity"))
	assert.True(t, types.IsKind(err, types.KindValidation))
}

func TestListResources(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.Store(ctx, StoreParams{Topic: "list", Content: "c"})
		require.NoError(t, err)
	}

	page, err := e.List(ctx, "entries", 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	require.NotEmpty(t, page.NextCursor)

	next, err := e.List(ctx, "entries", 2, page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Count)
	assert.Empty(t, next.NextCursor)

	_, err = e.List(ctx, "nonsense", 10, "")
	assert.True(t, types.IsKind(err, types.KindValidation))
}

func TestNotifierReceivesURIs(t *testing.T) {
	var uris []string
	e := setupEngine(t, WithNotifier(func(u ...string) { uris = append(uris, u...) }))

	entry, err := e.Store(context.Background(), StoreParams{Topic: "n", Content: "c"})
	require.NoError(t, err)
	assert.Contains(t, uris, "entries/"+entry.ID)
}
