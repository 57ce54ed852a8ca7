package rpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/policy"
	"github.com/untoldecay/MnemoLog/internal/retrieval"
	"github.com/untoldecay/MnemoLog/internal/storage/sqlite"
	"github.com/untoldecay/MnemoLog/internal/types"
)

func setupServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	policy.Reset()
	t.Cleanup(policy.Reset)

	tmpDir, err := os.MkdirTemp("", "mnemo-rpc-*")
	if err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := sqlite.New(context.Background(), dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	socketPath := filepath.Join(tmpDir, "mn.sock")
	server := NewServer(socketPath, dbPath, store, nil)
	go func() {
		if err := server.Start(); err != nil {
			t.Errorf("server start: %v", err)
		}
	}()
	select {
	case <-server.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	client, err := TryConnect(socketPath)
	if err != nil || client == nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		server.Stop()
		store.Close()
		os.RemoveAll(tmpDir)
	})
	return server, client
}

func TestPing(t *testing.T) {
	_, client := setupServer(t)

	env, err := client.Call(OpPing, nil)
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if env.Text != "pong" {
		t.Errorf("ping text = %q", env.Text)
	}
}

func TestStoreQueryOverRPC(t *testing.T) {
	_, client := setupServer(t)

	var entry types.Entry
	err := client.CallInto(OpStore, engine.StoreParams{
		Topic:   "rpc-topic",
		Content: "stored through the socket",
	}, &entry)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("entry id missing")
	}

	var res retrieval.Result
	if err := client.CallInto(OpQuery, QueryArgs{Topic: "rpc-topic"}, &res); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Entry.ID != entry.ID {
		t.Errorf("query returned %d items", len(res.Items))
	}
}

func TestErrorTaxonomyOverRPC(t *testing.T) {
	_, client := setupServer(t)

	_, err := client.Call(OpStore, engine.StoreParams{Content: "no topic"})
	if !types.IsKind(err, types.KindPolicy) {
		t.Errorf("expected policy error over the wire, got %v", err)
	}

	_, err = client.Call("warp", nil)
	if !types.IsKind(err, types.KindValidation) {
		t.Errorf("unknown op should be validation, got %v", err)
	}
}

func TestConflictFlowOverRPC(t *testing.T) {
	_, client := setupServer(t)

	var first engine.RelateResult
	err := client.CallInto(OpRelate, types.TripleCandidate{
		Subject: "Mars", Predicate: "moons", Object: "2",
	}, &first)
	if err != nil {
		t.Fatal(err)
	}
	if first.Triple == nil {
		t.Fatal("first relate should create a triple")
	}

	var second engine.RelateResult
	err = client.CallInto(OpRelate, types.TripleCandidate{
		Subject: "Mars", Predicate: "moons", Object: "two",
	}, &second)
	if err != nil {
		t.Fatal(err)
	}
	if second.Conflict == nil {
		t.Fatal("second relate should surface a conflict envelope, not an error")
	}

	var resolved types.Triple
	err = client.CallInto(OpResolveConflict, ResolveConflictArgs{
		ConflictID: second.Conflict.ConflictID,
		Strategy:   types.ResolutionReplace,
	}, &resolved)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Object != "two" {
		t.Errorf("resolved object = %q", resolved.Object)
	}
}

func TestUndoOverRPC(t *testing.T) {
	_, client := setupServer(t)

	var entry types.Entry
	if err := client.CallInto(OpStore, engine.StoreParams{Topic: "t", Content: "c"}, &entry); err != nil {
		t.Fatal(err)
	}

	var undo struct {
		Reverted []string `json:"reverted"`
	}
	if err := client.CallInto(OpUndo, UndoArgs{Count: 1}, &undo); err != nil {
		t.Fatal(err)
	}
	if len(undo.Reverted) != 1 {
		t.Errorf("reverted = %v", undo.Reverted)
	}
}

func TestListOverRPC(t *testing.T) {
	_, client := setupServer(t)

	for i := 0; i < 3; i++ {
		var entry types.Entry
		if err := client.CallInto(OpStore, engine.StoreParams{Topic: "l", Content: "c"}, &entry); err != nil {
			t.Fatal(err)
		}
	}

	var page engine.ListPage
	if err := client.CallInto(OpList, ListArgs{Resource: "entries", Limit: 2}, &page); err != nil {
		t.Fatal(err)
	}
	if page.Count != 2 || page.NextCursor == "" {
		t.Errorf("page = %+v", page)
	}
}

func TestMutationBuffer(t *testing.T) {
	server, client := setupServer(t)

	var entry types.Entry
	if err := client.CallInto(OpStore, engine.StoreParams{Topic: "m", Content: "c"}, &entry); err != nil {
		t.Fatal(err)
	}

	events := server.RecentMutations(0)
	if len(events) == 0 {
		t.Fatal("mutation buffer should record the store")
	}
	found := false
	for _, e := range events {
		if e.URI == "entries/"+entry.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("no event for entries/%s in %v", entry.ID, events)
	}
}

func TestVersionCompatibility(t *testing.T) {
	tests := []struct {
		client string
		server string
		want   bool
	}{
		{"1.2.0", "1.9.9", true},
		{"1.0.0", "2.0.0", false},
		{"garbage", "1.0.0", true}, // unparseable never blocks
		{"0.0.0", "0.0.0", true},
	}
	for _, tt := range tests {
		if got := compatibleVersions(tt.client, tt.server); got != tt.want {
			t.Errorf("compatibleVersions(%s, %s) = %v, want %v", tt.client, tt.server, got, tt.want)
		}
	}
}

func TestStatusOverRPC(t *testing.T) {
	_, client := setupServer(t)

	var status StatusData
	if err := client.CallInto(OpStatus, nil, &status); err != nil {
		t.Fatal(err)
	}
	if status.Version != ServerVersion {
		t.Errorf("status version = %q", status.Version)
	}
}
