// Package mnemo provides a minimal public API for embedding the knowledge
// store in other Go programs.
//
// Most integrations should drive the mn CLI or the daemon socket. This
// package exports only the essential types and constructors for programs
// that want the engine in-process.
package mnemo

import (
	"context"

	"github.com/untoldecay/MnemoLog/internal/config"
	"github.com/untoldecay/MnemoLog/internal/embed"
	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/storage/sqlite"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// Storage is the persistence interface behind the engine.
type Storage = storage.Storage

// Engine is the operation surface: store, query, relate, merge, undo,
// ingest.
type Engine = engine.Engine

// Option configures optional engine collaborators.
type Option = engine.Option

// StoreParams are the inputs of Engine.Store.
type StoreParams = engine.StoreParams

// QueryParams are the inputs of Engine.Query.
type QueryParams = engine.QueryParams

// Embedder produces embedding vectors for the semantic scorer.
type Embedder = embed.Embedder

// VectorIndex holds embedding vectors for similarity search.
type VectorIndex = embed.VectorIndex

// NewStorage opens (or creates) a SQLite-backed store at dbPath.
func NewStorage(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// NewEngine wires an engine over a store.
func NewEngine(store Storage, opts ...Option) *Engine {
	return engine.New(store, opts...)
}

// WithEmbedding attaches the semantic scorer's collaborators.
func WithEmbedding(embedder Embedder, index VectorIndex) Option {
	return engine.WithEmbedding(embedder, index)
}

// NewOllamaEmbedder embeds through a local Ollama server.
func NewOllamaEmbedder(model string) (Embedder, error) {
	return embed.NewOllamaEmbedder(model)
}

// NewMemoryIndex returns an in-memory cosine-similarity vector index.
func NewMemoryIndex() VectorIndex {
	return embed.NewMemoryIndex()
}

// FindDir walks up from the working directory looking for a .mnemo
// directory. Returns the empty string when none exists.
func FindDir() string {
	return config.FindDir()
}

// DatabasePath resolves the database location from configuration and the
// nearest .mnemo directory.
func DatabasePath() string {
	return config.DatabasePath()
}

// Core types.
type (
	Entry           = types.Entry
	Triple          = types.Triple
	TripleCandidate = types.TripleCandidate
	CanonicalEntity = types.CanonicalEntity
	EntityAlias     = types.EntityAlias
	Transaction     = types.Transaction
	IngestionTask   = types.IngestionTask
	ConflictInfo    = types.ConflictInfo
	Error           = types.Error
	Kind            = types.Kind
)

// Error kinds.
const (
	KindValidation = types.KindValidation
	KindNotFound   = types.KindNotFound
	KindConflict   = types.KindConflict
	KindPolicy     = types.KindPolicy
	KindDependency = types.KindDependency
	KindInternal   = types.KindInternal
)

// Conflict resolution strategies.
const (
	ResolutionReplace    = types.ResolutionReplace
	ResolutionRetainBoth = types.ResolutionRetainBoth
	ResolutionReject     = types.ResolutionReject
)

// Transaction operations.
const (
	OpCreate = types.OpCreate
	OpUpdate = types.OpUpdate
	OpDelete = types.OpDelete
	OpMerge  = types.OpMerge
	OpRevert = types.OpRevert
)
