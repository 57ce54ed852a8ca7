package rpc

import (
	"encoding/json"

	"github.com/untoldecay/MnemoLog/internal/retrieval"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// Operation constants for all mn commands.
const (
	OpPing     = "ping"
	OpStatus   = "status"
	OpShutdown = "shutdown"

	OpStore           = "store"
	OpGet             = "get"
	OpUpdate          = "update"
	OpQuery           = "query"
	OpDelete          = "delete"
	OpRelate          = "relate"
	OpQueryGraph      = "query_graph"
	OpUpdateTriple    = "update_triple"
	OpUpsertTriple    = "upsert_triple"
	OpResolveConflict = "resolve_conflict"
	OpUpsertEntity    = "upsert_entity"
	OpResolveEntity   = "resolve_entity"
	OpAddAlias        = "add_alias"
	OpMergeEntities   = "merge_entities"
	OpUndo            = "undo"
	OpHistory         = "history"
	OpIngest          = "ingest"
	OpIngestionStatus = "ingestion_status"
	OpList            = "list"
	OpGetMutations    = "get_mutations"
)

// Request is one RPC call from client to daemon.
type Request struct {
	Operation     string          `json:"operation"`
	Args          json.RawMessage `json:"args,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	ClientVersion string          `json:"client_version,omitempty"`
}

// ErrorInfo is the structured error payload of a failed operation.
type ErrorInfo struct {
	Kind      string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Resource tags a machine-readable payload with its URI.
type Resource struct {
	URI       string          `json:"uri"`
	MediaType string          `json:"media_type"`
	Data      json.RawMessage `json:"data"`
}

// Envelope is the success payload: a short human text plus the resource
// blob.
type Envelope struct {
	Text     string    `json:"text"`
	Resource *Resource `json:"resource,omitempty"`
}

// Response is one RPC reply.
type Response struct {
	Success   bool       `json:"success"`
	Data      *Envelope  `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

// UpdateArgs carries an id plus a field overlay; absent keys preserve,
// explicit nulls clear.
type UpdateArgs struct {
	ID      string         `json:"id"`
	Updates map[string]any `json:"updates"`
}

// DeleteArgs selects the row to soft-delete.
type DeleteArgs struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
}

// GetArgs fetches one row by id.
type GetArgs struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type,omitempty"`
}

// GraphArgs filters triples.
type GraphArgs struct {
	Subject   string `json:"subject,omitempty"`
	Predicate string `json:"predicate,omitempty"`
	Object    string `json:"object,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ResolveConflictArgs applies one of the allowed strategies.
type ResolveConflictArgs struct {
	ConflictID string `json:"conflict_id"`
	Strategy   string `json:"strategy"`
}

// EntityArgs names an entity.
type EntityArgs struct {
	Name      string `json:"name,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	Alias     string `json:"alias,omitempty"`
	ExactOnly bool   `json:"exact_only,omitempty"`
}

// MergeArgs selects the merge pair.
type MergeArgs struct {
	KeepID  string `json:"keep_id"`
	MergeID string `json:"merge_id"`
}

// UndoArgs bounds the revert.
type UndoArgs struct {
	Count int `json:"count,omitempty"`
}

// HistoryArgs filters the transaction log.
type HistoryArgs struct {
	Limit      int    `json:"limit,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
}

// IngestArgs carries bulk content.
type IngestArgs struct {
	Content string  `json:"content"`
	Source  *string `json:"source,omitempty"`
}

// TaskArgs names an ingestion task.
type TaskArgs struct {
	TaskID string `json:"task_id"`
}

// ListArgs pages a read resource.
type ListArgs struct {
	Resource string `json:"resource"`
	Limit    int    `json:"limit,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

// GetMutationsArgs polls the recent-mutation buffer.
type GetMutationsArgs struct {
	Since int64 `json:"since"` // unix millis
}

// QueryArgs mirrors engine.QueryParams on the wire.
type QueryArgs struct {
	Topic   string             `json:"topic,omitempty"`
	Content string             `json:"content,omitempty"`
	Tags    []string           `json:"tags,omitempty"`
	Limit   int                `json:"limit,omitempty"`
	Cursor  string             `json:"cursor,omitempty"`
	Offset  *int               `json:"offset,omitempty"`
	Weights *retrieval.Weights `json:"weights,omitempty"`
}

// StatusData is the daemon status payload.
type StatusData struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SocketPath    string `json:"socket_path"`
	DatabasePath  string `json:"database_path"`
	FTSEnabled    bool   `json:"fts_enabled"`
	Entries       int    `json:"entries"`
	Triples       int    `json:"triples"`
	Entities      int    `json:"entities"`
	Aliases       int    `json:"aliases"`
	Transactions  int    `json:"transactions"`
	Undoable      int    `json:"undoable"`
	Tasks         int    `json:"tasks"`
}

// MutationEvent is one committed mutation, kept in a bounded ring for
// pollers.
type MutationEvent struct {
	URI       string `json:"uri"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// errorInfo maps an engine error onto the wire taxonomy.
func errorInfo(err error) *ErrorInfo {
	return &ErrorInfo{
		Kind:      string(types.KindOf(err)),
		Message:   err.Error(),
		Retryable: types.Retryable(err),
	}
}
