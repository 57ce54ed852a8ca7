package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

func TestCreateTriple(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tr := &types.Triple{
		Subject:   "Redis",
		Predicate: "written_in",
		Object:    "C",
		Source:    types.StrPtr("docs"),
	}
	if err := store.CreateTriple(ctx, tr); err != nil {
		t.Fatalf("CreateTriple failed: %v", err)
	}
	if tr.ID == "" {
		t.Error("triple ID should be set")
	}

	got, err := store.GetTriple(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTriple failed: %v", err)
	}
	if got.Subject != "Redis" || got.Predicate != "written_in" || got.Object != "C" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestCreateTripleValidation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	long := strings.Repeat("x", types.MaxTripleFieldLength+1)
	tests := []struct {
		name   string
		triple *types.Triple
	}{
		{"empty subject", &types.Triple{Predicate: "p", Object: "o"}},
		{"empty predicate", &types.Triple{Subject: "s", Object: "o"}},
		{"empty object", &types.Triple{Subject: "s", Predicate: "p"}},
		{"subject too long", &types.Triple{Subject: long, Predicate: "p", Object: "o"}},
		{"object too long", &types.Triple{Subject: "s", Predicate: "p", Object: long}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateTriple(ctx, tt.triple)
			if !types.IsKind(err, types.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	atLimit := &types.Triple{
		Subject:   strings.Repeat("s", types.MaxTripleFieldLength),
		Predicate: "p",
		Object:    "o",
	}
	if err := store.CreateTriple(ctx, atLimit); err != nil {
		t.Errorf("field at limit should be accepted: %v", err)
	}
}

func TestUpsertTriple(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first := &types.Triple{Subject: "Kafka", Predicate: "written_in", Object: "Scala"}
	created, err := store.UpsertTriple(ctx, first)
	if err != nil {
		t.Fatalf("UpsertTriple failed: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	second := &types.Triple{
		Subject:    "Kafka",
		Predicate:  "written_in",
		Object:     "Scala and Java",
		Source:     types.StrPtr("wiki"),
		Confidence: types.Float64Ptr(0.9),
	}
	created, err = store.UpsertTriple(ctx, second)
	if err != nil {
		t.Fatalf("UpsertTriple failed: %v", err)
	}
	if created {
		t.Error("second upsert should update in place")
	}
	if second.ID != first.ID {
		t.Errorf("upsert should reuse the existing row, got %s vs %s", second.ID, first.ID)
	}

	got, err := store.GetTriple(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Object != "Scala and Java" {
		t.Errorf("object = %q, want updated value", got.Object)
	}
	if got.Source == nil || *got.Source != "wiki" {
		t.Error("provenance should follow the upsert")
	}

	// Different predicate on the same subject creates a new row.
	third := &types.Triple{Subject: "Kafka", Predicate: "license", Object: "Apache-2.0"}
	created, err = store.UpsertTriple(ctx, third)
	if err != nil {
		t.Fatal(err)
	}
	if !created || third.ID == first.ID {
		t.Error("distinct predicate should create a new triple")
	}
}

func TestDeleteTripleHidesFromQueries(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tr := &types.Triple{Subject: "s", Predicate: "p", Object: "o"}
	if err := store.CreateTriple(ctx, tr); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteTriple(ctx, tr.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetTriple(ctx, tr.ID); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("deleted triple should be not_found, got %v", err)
	}
	got, err := store.QueryTriples(ctx, storage.TripleFilter{Subject: "s"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("deleted triple visible in query: %d results", len(got))
	}

	// Upsert after delete creates fresh instead of resurrecting.
	again := &types.Triple{Subject: "s", Predicate: "p", Object: "o2"}
	created, err := store.UpsertTriple(ctx, again)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("upsert should not match a soft-deleted triple")
	}
}

func TestQueryTriplesFilters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seed := []*types.Triple{
		{Subject: "PostgreSQL", Predicate: "written_in", Object: "C"},
		{Subject: "PostgreSQL", Predicate: "license", Object: "PostgreSQL License"},
		{Subject: "etcd", Predicate: "written_in", Object: "Go"},
	}
	for _, tr := range seed {
		if err := store.CreateTriple(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.QueryTriples(ctx, storage.TripleFilter{Subject: "Postgre"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("subject filter returned %d, want 2", len(got))
	}

	got, err = store.QueryTriples(ctx, storage.TripleFilter{Subject: "Postgre", Predicate: "license"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Object != "PostgreSQL License" {
		t.Errorf("combined filter returned %d", len(got))
	}
}

func TestActiveTriplesForTerms(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seed := []*types.Triple{
		{Subject: "Go", Predicate: "created_by", Object: "Google"},
		{Subject: "Kubernetes", Predicate: "written_in", Object: "Go"},
		{Subject: "Rust", Predicate: "created_by", Object: "Mozilla"},
	}
	for _, tr := range seed {
		if err := store.CreateTriple(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ActiveTriplesForTerms(ctx, []string{"Go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("term match on subject and object should return 2, got %d", len(got))
	}

	got, err = store.ActiveTriplesForTerms(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("no terms should return nil without querying")
	}
}
