package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

func setupTestDB(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mnemo-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := New(context.Background(), dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func TestCreateEntry(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	e := &types.Entry{
		Topic:   "go generics",
		Content: "type parameters arrived in 1.18",
		Tags:    []string{"go"},
	}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if e.ID == "" {
		t.Error("entry ID should be set")
	}
	if e.CreatedAt == "" || e.UpdatedAt == "" {
		t.Error("timestamps should be set")
	}
	if e.Status != types.StatusActive {
		t.Errorf("status = %q, want active", e.Status)
	}

	got, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Topic != e.Topic || got.Content != e.Content {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "go" {
		t.Errorf("tags = %v, want [go]", got.Tags)
	}
}

func TestCreateEntryValidation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name    string
		entry   *types.Entry
		wantErr bool
	}{
		{
			name:  "valid",
			entry: &types.Entry{Topic: "t", Content: "c"},
		},
		{
			name:    "missing topic",
			entry:   &types.Entry{Content: "c"},
			wantErr: true,
		},
		{
			name:    "missing content",
			entry:   &types.Entry{Topic: "t"},
			wantErr: true,
		},
		{
			name:  "topic at limit",
			entry: &types.Entry{Topic: strings.Repeat("a", types.MaxTopicLength), Content: "c"},
		},
		{
			name:    "topic over limit",
			entry:   &types.Entry{Topic: strings.Repeat("a", types.MaxTopicLength+1), Content: "c"},
			wantErr: true,
		},
		{
			name:  "content at limit",
			entry: &types.Entry{Topic: "t", Content: strings.Repeat("b", types.MaxContentLength)},
		},
		{
			name:    "content over limit",
			entry:   &types.Entry{Topic: "t", Content: strings.Repeat("b", types.MaxContentLength+1)},
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			entry:   &types.Entry{Topic: "t", Content: "c", Confidence: types.Float64Ptr(1.5)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateEntry(ctx, tt.entry)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateEntry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && types.KindOf(err) != types.KindValidation {
				t.Errorf("expected validation error, got %v", types.KindOf(err))
			}
		})
	}
}

func TestUpdateEntryOverlay(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{
		Topic:   "original",
		Content: "body",
		Source:  types.StrPtr("chat"),
	}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}

	// Absent fields preserve, explicit nil overrides to null.
	updated, err := store.UpdateEntry(ctx, e.ID, map[string]any{
		"topic":  "renamed",
		"source": nil,
	})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if updated.Topic != "renamed" {
		t.Errorf("topic = %q, want renamed", updated.Topic)
	}
	if updated.Content != "body" {
		t.Errorf("content should be preserved, got %q", updated.Content)
	}
	if updated.Source != nil {
		t.Errorf("source should be cleared, got %v", *updated.Source)
	}
	// Timestamps have millisecond precision; a same-millisecond update is
	// legitimate, so the stamp only has to not move backwards.
	if updated.UpdatedAt < e.UpdatedAt {
		t.Errorf("updated_at went backwards: %s -> %s", e.UpdatedAt, updated.UpdatedAt)
	}
}

func TestUpdateEntryUnknownField(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "t", Content: "c"}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateEntry(ctx, e.ID, map[string]any{"status": "weird"}); err == nil {
		t.Error("unknown field should be rejected")
	}
}

func TestDeleteEntry(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "doomed", Content: "c"}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}

	if _, err := store.GetEntry(ctx, e.ID); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("deleted entry should be not_found, got %v", err)
	}
	results, err := store.QueryEntries(ctx, storage.EntryFilter{Topic: "doomed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted entry should not appear in queries, got %d", len(results))
	}

	// Re-delete is not_found.
	if err := store.DeleteEntry(ctx, e.ID); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("re-delete should be not_found, got %v", err)
	}

	// The log holds a DELETE with the entry in before.
	history, err := store.History(ctx, 10, "entry")
	if err != nil {
		t.Fatal(err)
	}
	var sawDelete bool
	for _, tx := range history {
		if tx.Op == types.OpDelete && tx.EntityID == e.ID {
			sawDelete = true
			if len(tx.Before) == 0 {
				t.Error("DELETE transaction should carry a before snapshot")
			}
			if len(tx.After) != 0 {
				t.Error("DELETE transaction should have a null after snapshot")
			}
		}
	}
	if !sawDelete {
		t.Error("no DELETE transaction recorded")
	}
}

func TestQueryEntriesFilters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	entries := []*types.Entry{
		{Topic: "ts-quirk", Content: "Zod v4 changes", Tags: []string{"typescript"}},
		{Topic: "go-scheduler", Content: "GMP model notes", Tags: []string{"go", "runtime"}},
		{Topic: "go-gc", Content: "pacer tuning", Tags: []string{"go"}},
	}
	for _, e := range entries {
		if err := store.CreateEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.QueryEntries(ctx, storage.EntryFilter{Topic: "ts"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Topic != "ts-quirk" {
		t.Errorf("topic filter returned %d results", len(got))
	}

	got, err = store.QueryEntries(ctx, storage.EntryFilter{Tags: []string{"go", "runtime"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Topic != "go-scheduler" {
		t.Errorf("tag filter should require all tags, got %d results", len(got))
	}

	got, err = store.QueryEntries(ctx, storage.EntryFilter{Content: "pacer"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Topic != "go-gc" {
		t.Errorf("content filter returned %d results", len(got))
	}
}

func TestQueryEntriesWildcardsLiteral(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for _, topic := range []string{"100% coverage", "100x coverage", "under_score", "underXscore"} {
		if err := store.CreateEntry(ctx, &types.Entry{Topic: topic, Content: "c"}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.QueryEntries(ctx, storage.EntryFilter{Topic: "100%"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Topic != "100% coverage" {
		t.Errorf("%% should match literally, got %d results", len(got))
	}

	got, err = store.QueryEntries(ctx, storage.EntryFilter{Topic: "under_score"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Topic != "under_score" {
		t.Errorf("_ should match literally, got %d results", len(got))
	}
}

func TestQueryEntriesOrderingAndLimit(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &types.Entry{Topic: "seq", Content: "c"}
		if err := store.CreateEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.QueryEntries(ctx, storage.EntryFilter{Topic: "seq", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("limit not applied, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt > got[i-1].CreatedAt {
			t.Error("results should be created_at descending")
		}
	}
}

func TestFindEntryByContent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "t", Content: "unique body"}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}

	found, err := store.FindEntryByContent(ctx, "unique body")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != e.ID {
		t.Error("exact content should be found")
	}

	missing, err := store.FindEntryByContent(ctx, "no such body")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("absent content should return nil")
	}
}

func TestListEntriesPagination(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := store.CreateEntry(ctx, &types.Entry{Topic: "p", Content: "c"}); err != nil {
			t.Fatal(err)
		}
	}

	page1, err := store.ListEntries(ctx, 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 3 {
		t.Fatalf("page1 size = %d", len(page1))
	}
	page2, err := store.ListEntries(ctx, 3, page1[len(page1)-1].ID)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, e := range page1 {
		seen[e.ID] = true
	}
	for _, e := range page2 {
		if seen[e.ID] {
			t.Errorf("page overlap at %s", e.ID)
		}
	}
}
