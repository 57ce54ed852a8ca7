package sqlite

import (
	"context"
	"testing"

	"github.com/untoldecay/MnemoLog/internal/types"
)

func TestUndoCreate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "t", Content: "c"}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}

	reverted, err := store.Undo(ctx, 1)
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if len(reverted) != 1 {
		t.Fatalf("reverted %d transactions, want 1", len(reverted))
	}
	if _, err := store.GetEntry(ctx, e.ID); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("undone create should hide the entry, got %v", err)
	}
}

func TestUndoDeleteRestores(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "t", Content: "c"}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Undo(ctx, 1); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("undone delete should restore the entry: %v", err)
	}
	if got.Topic != "t" {
		t.Errorf("restored entry mismatch: %+v", got)
	}
}

func TestUndoUpdateRestoresFields(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "before", Content: "c", Confidence: types.Float64Ptr(0.4)}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateEntry(ctx, e.ID, map[string]any{
		"topic":      "after",
		"confidence": 0.9,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Undo(ctx, 1); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Topic != "before" {
		t.Errorf("topic = %q, want before", got.Topic)
	}
	if got.Confidence == nil || *got.Confidence != 0.4 {
		t.Error("confidence should be restored from the snapshot")
	}
}

func TestUndoNewestFirst(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	a := &types.Entry{Topic: "a", Content: "c"}
	b := &types.Entry{Topic: "b", Content: "c"}
	if err := store.CreateEntry(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateEntry(ctx, b); err != nil {
		t.Fatal(err)
	}

	// One undo reverses only the newest mutation.
	if _, err := store.Undo(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEntry(ctx, a.ID); err != nil {
		t.Errorf("older entry should survive: %v", err)
	}
	if _, err := store.GetEntry(ctx, b.ID); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("newest entry should be undone, got %v", err)
	}
}

func TestUndoSkipsReverted(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "only", Content: "c"}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}

	first, err := store.Undo(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first undo reverted %d", len(first))
	}

	// A second undo finds nothing: the REVERT row itself is not a target and
	// the original is stamped.
	second, err := store.Undo(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("second undo should be a no-op, reverted %d", len(second))
	}
}

func TestUndoN(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ids := make([]string, 3)
	for i := range ids {
		e := &types.Entry{Topic: "n", Content: "c"}
		if err := store.CreateEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
		ids[i] = e.ID
	}

	reverted, err := store.Undo(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(reverted) != 2 {
		t.Fatalf("reverted %d, want 2", len(reverted))
	}
	if _, err := store.GetEntry(ctx, ids[0]); err != nil {
		t.Errorf("oldest entry should survive: %v", err)
	}
	for _, id := range ids[1:] {
		if _, err := store.GetEntry(ctx, id); !types.IsKind(err, types.KindNotFound) {
			t.Errorf("entry %s should be undone", id)
		}
	}
}

func TestUndoMerge(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	keep, err := store.CreateEntity(ctx, "Kubernetes")
	if err != nil {
		t.Fatal(err)
	}
	merge, err := store.CreateEntity(ctx, "K8s")
	if err != nil {
		t.Fatal(err)
	}
	mergedTriple := &types.Triple{Subject: "K8s", Predicate: "written_in", Object: "Go"}
	keptTriple := &types.Triple{Subject: "Kubernetes", Predicate: "maintained_by", Object: "CNCF"}
	for _, tr := range []*types.Triple{mergedTriple, keptTriple} {
		if err := store.CreateTriple(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}
	entry := &types.Entry{Topic: "k8s", Content: "c", CanonicalEntityID: types.StrPtr(merge.ID)}
	if err := store.CreateEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if _, err := store.MergeEntities(ctx, keep.ID, merge.ID); err != nil {
		t.Fatal(err)
	}
	reverted, err := store.Undo(ctx, 1)
	if err != nil {
		t.Fatalf("undo of merge failed: %v", err)
	}
	if len(reverted) != 1 {
		t.Fatalf("reverted %d, want the merge", len(reverted))
	}

	// The merged entity is back, with its original name.
	restored, err := store.GetEntity(ctx, merge.ID)
	if err != nil {
		t.Fatalf("merged entity should be restored: %v", err)
	}
	if restored.Name != "K8s" {
		t.Errorf("restored name = %q", restored.Name)
	}

	// Only the rows recorded in the snapshot moved back.
	tr, err := store.GetTriple(ctx, mergedTriple.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Subject != "K8s" {
		t.Errorf("merged triple subject = %q, want K8s", tr.Subject)
	}
	tr, err = store.GetTriple(ctx, keptTriple.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Subject != "Kubernetes" {
		t.Errorf("kept triple should be untouched, subject = %q", tr.Subject)
	}

	e, err := store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if e.CanonicalEntityID == nil || *e.CanonicalEntityID != merge.ID {
		t.Error("entry should point at the restored entity again")
	}

	// The merge-time alias no longer resolves k8s to keep.
	res, err := store.ResolveEntity(ctx, "k8s", true)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.ID != merge.ID {
		t.Error("merged name should resolve to the restored entity")
	}
}

func TestUndoRecordsRevertRow(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	e := &types.Entry{Topic: "t", Content: "c"}
	if err := store.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Undo(ctx, 1); err != nil {
		t.Fatal(err)
	}

	history, err := store.History(ctx, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history should hold CREATE + REVERT, got %d", len(history))
	}
	revert := history[0]
	if revert.Op != types.OpRevert {
		t.Fatalf("newest transaction op = %s, want REVERT", revert.Op)
	}
	// Snapshots are swapped: the REVERT's after is the original's before.
	if len(revert.After) != 0 {
		t.Error("REVERT of a CREATE should have null after (the original before)")
	}
	if len(revert.Before) == 0 {
		t.Error("REVERT of a CREATE should carry the original after as before")
	}

	original := history[1]
	if original.RevertedBy == nil || *original.RevertedBy != revert.ID {
		t.Error("original transaction should be stamped with the revert id")
	}
}
