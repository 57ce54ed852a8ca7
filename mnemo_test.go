package mnemo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/untoldecay/MnemoLog"
)

func TestNewStorage(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	ctx := context.Background()
	store, err := mnemo.NewStorage(ctx, dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Error("expected non-nil storage")
	}
}

func TestEngineRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	store, err := mnemo.NewStorage(ctx, filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer store.Close()

	eng := mnemo.NewEngine(store)
	entry, err := eng.Store(ctx, mnemo.StoreParams{
		Topic:   "embedding test",
		Content: "works in-process",
	})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected entry id")
	}

	got, err := eng.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Topic != "embedding test" {
		t.Errorf("Topic = %q", got.Topic)
	}
}

func TestFindDir(t *testing.T) {
	// Returns empty string outside a workspace; just verify it doesn't panic.
	_ = mnemo.FindDir()
	_ = mnemo.DatabasePath()
}

func TestConstants(t *testing.T) {
	if mnemo.ResolutionReplace != "replace" {
		t.Errorf("ResolutionReplace = %q", mnemo.ResolutionReplace)
	}
	if mnemo.ResolutionRetainBoth != "retain_both" {
		t.Errorf("ResolutionRetainBoth = %q", mnemo.ResolutionRetainBoth)
	}
	if mnemo.ResolutionReject != "reject" {
		t.Errorf("ResolutionReject = %q", mnemo.ResolutionReject)
	}
	if string(mnemo.KindPolicy) != "policy" {
		t.Errorf("KindPolicy = %q", mnemo.KindPolicy)
	}
	if string(mnemo.OpMerge) != "MERGE" {
		t.Errorf("OpMerge = %q", mnemo.OpMerge)
	}
}
