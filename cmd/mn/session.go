package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/untoldecay/MnemoLog/internal/config"
	"github.com/untoldecay/MnemoLog/internal/embed"
	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/ingest"
	"github.com/untoldecay/MnemoLog/internal/retrieval"
	"github.com/untoldecay/MnemoLog/internal/rpc"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/storage/sqlite"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// session routes operations to a running daemon when one is listening on
// the workspace socket, falling back to direct database access.
type session struct {
	client *rpc.Client
	store  *sqlite.Store
	eng    *engine.Engine
}

// workspacePath is the directory containing .mnemo.
func workspacePath() string {
	if dir := config.FindDir(); dir != "" {
		return filepath.Dir(dir)
	}
	// --db may point outside any workspace; derive from its location.
	return filepath.Dir(filepath.Dir(dbPath))
}

// openSession connects to the daemon or opens the database directly.
func openSession(ctx context.Context) (*session, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("no knowledge base found; run 'mn init' first")
	}

	if !noDaemon {
		rpc.ClientVersion = Version
		client, err := rpc.TryConnect(rpc.SocketPath(workspacePath()))
		if err == nil && client != nil {
			client.SetActor(actorName)
			return &session{client: client}, nil
		}
	}

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	var opts []engine.Option
	if config.GetBool("embed.enabled") {
		if embedder, err := embed.NewOllamaEmbedder(config.GetString("embed.model")); err == nil {
			opts = append(opts, engine.WithEmbedding(embedder, embed.NewMemoryIndex()))
		}
	}
	eng := engine.New(store, opts...)
	return &session{store: store, eng: eng}, nil
}

// Close releases the daemon connection or the database handle.
func (s *session) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// Daemon reports whether this session talks to a daemon.
func (s *session) Daemon() bool { return s.client != nil }

func jsonDecode(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (s *session) withActor(actor *string) *string {
	if actor == nil && actorName != "" {
		return types.StrPtr(actorName)
	}
	return actor
}

func (s *session) Store(ctx context.Context, p engine.StoreParams) (*types.Entry, error) {
	if s.client != nil {
		var entry types.Entry
		if err := s.client.CallInto(rpc.OpStore, p, &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	}
	p.Actor = s.withActor(p.Actor)
	return s.eng.Store(ctx, p)
}

func (s *session) GetEntry(ctx context.Context, id string) (*types.Entry, error) {
	if s.client != nil {
		var entry types.Entry
		if err := s.client.CallInto(rpc.OpGet, rpc.GetArgs{ID: id, EntityType: "entry"}, &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	}
	return s.eng.GetEntry(ctx, id)
}

func (s *session) GetTriple(ctx context.Context, id string) (*types.Triple, error) {
	if s.client != nil {
		var triple types.Triple
		if err := s.client.CallInto(rpc.OpGet, rpc.GetArgs{ID: id, EntityType: "triple"}, &triple); err != nil {
			return nil, err
		}
		return &triple, nil
	}
	return s.eng.GetTriple(ctx, id)
}

func (s *session) Update(ctx context.Context, id string, updates map[string]any) (*types.Entry, error) {
	if s.client != nil {
		var entry types.Entry
		if err := s.client.CallInto(rpc.OpUpdate, rpc.UpdateArgs{ID: id, Updates: updates}, &entry); err != nil {
			return nil, err
		}
		return &entry, nil
	}
	return s.eng.Update(ctx, id, updates)
}

func (s *session) Query(ctx context.Context, p engine.QueryParams) (*retrieval.Result, error) {
	if s.client != nil {
		var res retrieval.Result
		err := s.client.CallInto(rpc.OpQuery, rpc.QueryArgs{
			Topic:   p.Topic,
			Content: p.Content,
			Tags:    p.Tags,
			Limit:   p.Limit,
			Cursor:  p.Cursor,
			Weights: p.Weights,
		}, &res)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	return s.eng.Query(ctx, p)
}

func (s *session) Delete(ctx context.Context, id string, entityType string) (*engine.DeleteResult, error) {
	if s.client != nil {
		var res engine.DeleteResult
		if err := s.client.CallInto(rpc.OpDelete, rpc.DeleteArgs{ID: id, EntityType: entityType}, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}
	return s.eng.Delete(ctx, id, types.EntityType(entityType))
}

func (s *session) Relate(ctx context.Context, cand types.TripleCandidate) (*engine.RelateResult, error) {
	if s.client != nil {
		var res engine.RelateResult
		if err := s.client.CallInto(rpc.OpRelate, cand, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}
	cand.Actor = s.withActor(cand.Actor)
	return s.eng.Relate(ctx, cand)
}

func (s *session) QueryGraph(ctx context.Context, f storage.TripleFilter) ([]*types.Triple, error) {
	if s.client != nil {
		var page struct {
			Items []*types.Triple `json:"items"`
		}
		err := s.client.CallInto(rpc.OpQueryGraph, rpc.GraphArgs{
			Subject:   f.Subject,
			Predicate: f.Predicate,
			Object:    f.Object,
			Limit:     f.Limit,
		}, &page)
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	}
	return s.eng.QueryGraph(ctx, f)
}

func (s *session) UpdateTriple(ctx context.Context, id string, updates map[string]any) (*types.Triple, error) {
	if s.client != nil {
		var triple types.Triple
		if err := s.client.CallInto(rpc.OpUpdateTriple, rpc.UpdateArgs{ID: id, Updates: updates}, &triple); err != nil {
			return nil, err
		}
		return &triple, nil
	}
	return s.eng.UpdateTriple(ctx, id, updates)
}

func (s *session) UpsertTriple(ctx context.Context, cand types.TripleCandidate) (*engine.UpsertResult, error) {
	if s.client != nil {
		var res engine.UpsertResult
		if err := s.client.CallInto(rpc.OpUpsertTriple, cand, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}
	cand.Actor = s.withActor(cand.Actor)
	return s.eng.UpsertTriple(ctx, cand)
}

func (s *session) ResolveConflict(ctx context.Context, conflictID, strategy string) (*types.Triple, error) {
	if s.client != nil {
		env, err := s.client.Call(rpc.OpResolveConflict, rpc.ResolveConflictArgs{
			ConflictID: conflictID,
			Strategy:   strategy,
		})
		if err != nil {
			return nil, err
		}
		// A rejected candidate resolves without a triple payload.
		if strategy == types.ResolutionReject || env == nil || env.Resource == nil {
			return nil, nil
		}
		var triple types.Triple
		if err := jsonDecode(env.Resource.Data, &triple); err != nil {
			return nil, err
		}
		return &triple, nil
	}
	return s.eng.ResolveConflict(ctx, conflictID, strategy)
}

func (s *session) UpsertEntity(ctx context.Context, name string) (*engine.EntityResult, error) {
	if s.client != nil {
		var res engine.EntityResult
		if err := s.client.CallInto(rpc.OpUpsertEntity, rpc.EntityArgs{Name: name}, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}
	return s.eng.UpsertEntity(ctx, name)
}

func (s *session) ResolveEntity(ctx context.Context, name string, exactOnly bool) (*types.CanonicalEntity, error) {
	if s.client != nil {
		var entity types.CanonicalEntity
		err := s.client.CallInto(rpc.OpResolveEntity, rpc.EntityArgs{Name: name, ExactOnly: exactOnly}, &entity)
		if err != nil {
			return nil, err
		}
		return &entity, nil
	}
	return s.eng.ResolveEntity(ctx, name, exactOnly)
}

func (s *session) AddAlias(ctx context.Context, entityID, alias string) (*types.EntityAlias, error) {
	if s.client != nil {
		var res types.EntityAlias
		err := s.client.CallInto(rpc.OpAddAlias, rpc.EntityArgs{EntityID: entityID, Alias: alias}, &res)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	return s.eng.AddAlias(ctx, entityID, alias)
}

func (s *session) MergeEntities(ctx context.Context, keepID, mergeID string) (*engine.MergeResult, error) {
	if s.client != nil {
		var res engine.MergeResult
		err := s.client.CallInto(rpc.OpMergeEntities, rpc.MergeArgs{KeepID: keepID, MergeID: mergeID}, &res)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	return s.eng.MergeEntities(ctx, keepID, mergeID)
}

func (s *session) Undo(ctx context.Context, count int) ([]string, error) {
	if s.client != nil {
		var res struct {
			Reverted []string `json:"reverted"`
		}
		if err := s.client.CallInto(rpc.OpUndo, rpc.UndoArgs{Count: count}, &res); err != nil {
			return nil, err
		}
		return res.Reverted, nil
	}
	return s.eng.Undo(ctx, count)
}

func (s *session) History(ctx context.Context, limit int, entityType string) ([]*types.Transaction, error) {
	if s.client != nil {
		var res struct {
			Items []*types.Transaction `json:"items"`
		}
		err := s.client.CallInto(rpc.OpHistory, rpc.HistoryArgs{Limit: limit, EntityType: entityType}, &res)
		if err != nil {
			return nil, err
		}
		return res.Items, nil
	}
	return s.eng.History(ctx, limit, entityType)
}

func (s *session) Ingest(ctx context.Context, content string, source *string) (*ingest.Result, error) {
	if s.client != nil {
		var res ingest.Result
		if err := s.client.CallInto(rpc.OpIngest, rpc.IngestArgs{Content: content, Source: source}, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}
	return s.eng.Ingest(ctx, content, source)
}

func (s *session) IngestionStatus(ctx context.Context, taskID string) (*types.IngestionTask, error) {
	if s.client != nil {
		var task types.IngestionTask
		if err := s.client.CallInto(rpc.OpIngestionStatus, rpc.TaskArgs{TaskID: taskID}, &task); err != nil {
			return nil, err
		}
		return &task, nil
	}
	return s.eng.IngestionStatus(ctx, taskID)
}

func (s *session) List(ctx context.Context, resource string, limit int, cursor string) (*engine.ListPage, error) {
	if s.client != nil {
		var page engine.ListPage
		err := s.client.CallInto(rpc.OpList, rpc.ListArgs{Resource: resource, Limit: limit, Cursor: cursor}, &page)
		if err != nil {
			return nil, err
		}
		return &page, nil
	}
	return s.eng.List(ctx, resource, limit, cursor)
}

// DrainIngestion runs async batches to completion. Only needed in direct
// mode; the daemon's scheduler drains tasks on its own.
func (s *session) DrainIngestion(ctx context.Context, taskID string) error {
	if s.client != nil {
		return nil
	}
	for {
		remaining, err := s.eng.ProcessIngestionBatch(ctx, taskID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return nil
		}
	}
}
