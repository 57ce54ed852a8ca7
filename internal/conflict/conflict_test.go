package conflict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/untoldecay/MnemoLog/internal/storage/sqlite"
	"github.com/untoldecay/MnemoLog/internal/types"
)

func setupStore(t *testing.T) *sqlite.Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "mnemo-conflict-*")
	if err != nil {
		t.Fatal(err)
	}
	store, err := sqlite.New(context.Background(), filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})
	return store
}

func TestDetectDifferentObject(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	existing := &types.Triple{Subject: "Mars", Predicate: "moons", Object: "2"}
	if err := store.CreateTriple(ctx, existing); err != nil {
		t.Fatal(err)
	}

	info, err := Detect(ctx, store, types.TripleCandidate{
		Subject: "Mars", Predicate: "moons", Object: "two",
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if info == nil {
		t.Fatal("different object should be a conflict")
	}
	if info.ConflictID == "" {
		t.Error("conflict id should be assigned")
	}
	if info.Existing == nil || info.Existing.ID != existing.ID {
		t.Error("conflict should carry the existing triple")
	}
	if len(info.Resolutions) != 3 {
		t.Errorf("resolutions = %v, want 3 options", info.Resolutions)
	}
}

func TestDetectSameObjectIsNotConflict(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.CreateTriple(ctx, &types.Triple{
		Subject: "Mars", Predicate: "moons", Object: "2",
	}); err != nil {
		t.Fatal(err)
	}

	info, err := Detect(ctx, store, types.TripleCandidate{
		Subject: "Mars", Predicate: "moons", Object: "2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Error("same object should not conflict")
	}
}

func TestDetectRequiresExactTerms(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// A substring relative must not trigger a conflict.
	if err := store.CreateTriple(ctx, &types.Triple{
		Subject: "Mars Express", Predicate: "moons", Object: "0",
	}); err != nil {
		t.Fatal(err)
	}

	info, err := Detect(ctx, store, types.TripleCandidate{
		Subject: "Mars", Predicate: "moons", Object: "2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Error("subject must match exactly, not by substring")
	}
}

func TestDetectBeyondQueryPage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// The contradicting triple is the oldest row, so any newest-first
	// paged lookup would drop it behind the substring relatives.
	if err := store.CreateTriple(ctx, &types.Triple{
		Subject: "Mars", Predicate: "moons", Object: "2",
	}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 60; i++ {
		err := store.CreateTriple(ctx, &types.Triple{
			Subject:   fmt.Sprintf("Mars Station %02d", i),
			Predicate: "moons",
			Object:    "0",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	info, err := Detect(ctx, store, types.TripleCandidate{
		Subject: "Mars", Predicate: "moons", Object: "two",
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if info == nil {
		t.Fatal("conflict must be detected regardless of how many substring relatives exist")
	}
	if info.Existing.Object != "2" {
		t.Errorf("existing object = %q, want the exact-match triple", info.Existing.Object)
	}
}

func TestDetectIgnoresDeleted(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tr := &types.Triple{Subject: "Pluto", Predicate: "class", Object: "planet"}
	if err := store.CreateTriple(ctx, tr); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteTriple(ctx, tr.ID); err != nil {
		t.Fatal(err)
	}

	info, err := Detect(ctx, store, types.TripleCandidate{
		Subject: "Pluto", Predicate: "class", Object: "dwarf planet",
	})
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Error("deleted triples should not conflict")
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	c := &types.ConflictInfo{ConflictID: "c1", Subject: "s", Predicate: "p"}
	if err := cache.SaveConflict(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := cache.LoadConflict(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Subject != "s" {
		t.Errorf("load mismatch: %+v", got)
	}

	if err := cache.RemoveConflict(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	got, _ = cache.LoadConflict(ctx, "c1")
	if got != nil {
		t.Error("removed conflict should not load")
	}
}

func TestMemoryCacheFIFOEviction(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	for i := 0; i < memoryCacheCap+5; i++ {
		err := cache.SaveConflict(ctx, &types.ConflictInfo{
			ConflictID: fmt.Sprintf("c%03d", i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// The five oldest were evicted; newest survive.
	for i := 0; i < 5; i++ {
		got, _ := cache.LoadConflict(ctx, fmt.Sprintf("c%03d", i))
		if got != nil {
			t.Errorf("c%03d should have been evicted", i)
		}
	}
	got, _ := cache.LoadConflict(ctx, fmt.Sprintf("c%03d", memoryCacheCap+4))
	if got == nil {
		t.Error("newest conflict should survive eviction")
	}
}
