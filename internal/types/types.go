// Package types defines the core data types for the MnemoLog knowledge store.
package types

import "encoding/json"

// Field length limits enforced by the storage layer before any I/O.
const (
	MaxTopicLength       = 1000
	MaxContentLength     = 100000
	MaxTripleFieldLength = 2000
)

// StatusActive is the default status for entries and triples.
const StatusActive = "active"

// Entry is a free-text knowledge record with provenance.
//
// Timestamps are stored as strings whose lexical order matches chronological
// order (see idgen.Now), so cursor pagination and history ordering work with
// plain string comparison.
type Entry struct {
	ID                string   `json:"id"`
	Topic             string   `json:"topic"`
	Content           string   `json:"content"`
	Tags              []string `json:"tags"`
	Source            *string  `json:"source,omitempty"`
	Actor             *string  `json:"actor,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
	ValidFrom         *string  `json:"valid_from,omitempty"`
	ValidTo           *string  `json:"valid_to,omitempty"`
	Status            string   `json:"status"`
	CanonicalEntityID *string  `json:"canonical_entity_id,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
	DeletedAt         *string  `json:"deleted_at,omitempty"`
}

// Triple is a directed subject-predicate-object relationship.
// Subject and object are textual references, not foreign keys, so that an
// entity merge can be expressed as a textual rewrite.
type Triple struct {
	ID         string   `json:"id"`
	Subject    string   `json:"subject"`
	Predicate  string   `json:"predicate"`
	Object     string   `json:"object"`
	Source     *string  `json:"source,omitempty"`
	Actor      *string  `json:"actor,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Status     string   `json:"status"`
	CreatedAt  string   `json:"created_at"`
	DeletedAt  *string  `json:"deleted_at,omitempty"`
}

// CanonicalEntity is a named concept. It always has at least one alias:
// the lowercased form of its name, auto-created on insert.
type CanonicalEntity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// EntityAlias maps a normalized (lowercased) string to a canonical entity.
type EntityAlias struct {
	ID                string `json:"id"`
	Alias             string `json:"alias"`
	CanonicalEntityID string `json:"canonical_entity_id"`
	CreatedAt         string `json:"created_at"`
}

// Transaction operations.
type TxOp string

const (
	OpCreate TxOp = "CREATE"
	OpUpdate TxOp = "UPDATE"
	OpDelete TxOp = "DELETE"
	OpMerge  TxOp = "MERGE"
	OpRevert TxOp = "REVERT"
)

// Entity types referenced by transaction rows.
type EntityType string

const (
	EntityEntry  EntityType = "entry"
	EntityTriple EntityType = "triple"
	EntityEntity EntityType = "entity"
	// EntityAliasKind avoids colliding with the EntityAlias row struct.
	EntityAliasKind EntityType = "alias"
)

// Transaction is one append-only log row describing a committed mutation.
// Rows are never mutated after commit except to stamp RevertedBy.
type Transaction struct {
	ID         string          `json:"id"`
	Op         TxOp            `json:"op"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before_snapshot,omitempty"`
	After      json.RawMessage `json:"after_snapshot,omitempty"`
	RevertedBy *string         `json:"reverted_by,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// MergeSnapshot is the before-snapshot of a MERGE transaction. It records
// the exact row ids touched so that undo reverses only those rows and never
// moves the kept entity's own references.
type MergeSnapshot struct {
	KeepID           string   `json:"keep_id"`
	KeepName         string   `json:"keep_name"`
	MergeID          string   `json:"merge_id"`
	MergeName        string   `json:"merge_name"`
	MergeCreatedAt   string   `json:"merge_created_at"`
	SubjectTripleIDs []string `json:"subj_triple_ids"`
	ObjectTripleIDs  []string `json:"obj_triple_ids"`
	MergeEntryIDs    []string `json:"merge_entry_ids"`
	MergeAliasIDs    []string `json:"merge_alias_ids"`
}

// Ingestion task states. Status only moves forward:
// pending -> processing -> completed | failed.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IngestionTask tracks a pending or running bulk ingestion.
type IngestionTask struct {
	ID             string     `json:"id"`
	Status         TaskStatus `json:"status"`
	InputURI       string     `json:"input_uri"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	Error          *string    `json:"error,omitempty"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
}

// Conflict resolution strategies.
const (
	ResolutionReplace    = "replace"
	ResolutionRetainBoth = "retain_both"
	ResolutionReject     = "reject"
)

// TripleCandidate is an incoming triple that has not been written yet.
type TripleCandidate struct {
	Subject    string   `json:"subject"`
	Predicate  string   `json:"predicate"`
	Object     string   `json:"object"`
	Source     *string  `json:"source,omitempty"`
	Actor      *string  `json:"actor,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ConflictInfo describes a contradiction between an active triple and an
// incoming candidate with the same (subject, predicate) but a different
// object. It lives in the session conflict cache until resolved or expired.
type ConflictInfo struct {
	ConflictID  string          `json:"conflict_id"`
	Subject     string          `json:"subject"`
	Predicate   string          `json:"predicate"`
	Existing    *Triple         `json:"existing"`
	Candidate   TripleCandidate `json:"candidate"`
	Resolutions []string        `json:"candidate_resolutions"`
}

// StrPtr returns a pointer to s. Convenience for optional fields.
func StrPtr(s string) *string { return &s }

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 { return &f }
