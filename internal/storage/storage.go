// Package storage defines the interface for knowledge store backends.
package storage

import (
	"context"

	"github.com/untoldecay/MnemoLog/internal/types"
)

// EntryFilter narrows QueryEntries. Substring filters match literally;
// wildcard metacharacters in user input are escaped by the backend.
type EntryFilter struct {
	Topic   string
	Content string
	Tags    []string // all must be present
	Limit   int      // default 50, capped at 200
}

// TripleFilter narrows QueryTriples.
type TripleFilter struct {
	Subject   string
	Predicate string
	Object    string
	Limit     int
}

// LexicalHit is one full-text (or fallback substring) search result.
// Score is normalized to [0,1], higher is better.
type LexicalHit struct {
	ID    string
	Score float64
}

// Stats summarizes table sizes and undo depth.
type Stats struct {
	Entries      int `json:"entries"`
	Triples      int `json:"triples"`
	Entities     int `json:"entities"`
	Aliases      int `json:"aliases"`
	Transactions int `json:"transactions"`
	Undoable     int `json:"undoable"`
	Tasks        int `json:"tasks"`
}

// Storage is the single owner of all row mutation. Components above it
// never bypass it. Mutations that span multiple rows commit as one atomic
// batch together with their transaction-log row.
type Storage interface {
	// Entries
	CreateEntry(ctx context.Context, e *types.Entry) error
	GetEntry(ctx context.Context, id string) (*types.Entry, error)
	UpdateEntry(ctx context.Context, id string, updates map[string]any) (*types.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	QueryEntries(ctx context.Context, f EntryFilter) ([]*types.Entry, error)
	ListEntries(ctx context.Context, limit int, afterID string) ([]*types.Entry, error)
	FindEntryByContent(ctx context.Context, content string) (*types.Entry, error)
	EntriesByTopics(ctx context.Context, topics []string) ([]*types.Entry, error)

	// Triples
	CreateTriple(ctx context.Context, t *types.Triple) error
	GetTriple(ctx context.Context, id string) (*types.Triple, error)
	UpdateTriple(ctx context.Context, id string, updates map[string]any) (*types.Triple, error)
	DeleteTriple(ctx context.Context, id string) error
	UpsertTriple(ctx context.Context, t *types.Triple) (created bool, err error)
	QueryTriples(ctx context.Context, f TripleFilter) ([]*types.Triple, error)
	ListTriples(ctx context.Context, limit int, afterID string) ([]*types.Triple, error)
	ActiveTriplesExact(ctx context.Context, subject, predicate string) ([]*types.Triple, error)
	ActiveTriplesForTerms(ctx context.Context, terms []string) ([]*types.Triple, error)

	// Canonical entities
	CreateEntity(ctx context.Context, name string) (*types.CanonicalEntity, error)
	GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error)
	AddAlias(ctx context.Context, entityID, alias string) (*types.EntityAlias, error)
	ResolveEntity(ctx context.Context, name string, exactOnly bool) (*types.CanonicalEntity, error)
	UpsertEntity(ctx context.Context, name string) (*types.CanonicalEntity, bool, error)
	MergeEntities(ctx context.Context, keepID, mergeID string) (int, error)

	// Transaction log
	History(ctx context.Context, limit int, entityType string) ([]*types.Transaction, error)
	ListTransactions(ctx context.Context, limit int, afterID string) ([]*types.Transaction, error)
	Undo(ctx context.Context, n int) ([]string, error)

	// Lexical search
	FTSEnabled() bool
	SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error)

	// Ingestion tasks
	CreateTask(ctx context.Context, task *types.IngestionTask) error
	GetTask(ctx context.Context, id string) (*types.IngestionTask, error)
	UpdateTask(ctx context.Context, id string, processed int, status types.TaskStatus, errMsg *string) error
	PendingTasks(ctx context.Context) ([]string, error)

	// Conflict cache
	SaveConflict(ctx context.Context, c *types.ConflictInfo) error
	LoadConflict(ctx context.Context, id string) (*types.ConflictInfo, error)
	RemoveConflict(ctx context.Context, id string) error

	Stats(ctx context.Context) (*Stats, error)
	SetNotifier(fn func(uris ...string))
	Close() error
}
