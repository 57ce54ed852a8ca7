package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

func decodeArgs(req *Request, into any) error {
	if len(req.Args) == 0 {
		return types.Validationf("operation %s requires arguments", req.Operation)
	}
	if err := json.Unmarshal(req.Args, into); err != nil {
		return types.Validationf("invalid arguments for %s: %v", req.Operation, err)
	}
	return nil
}

func (s *Server) handleStatus(ctx context.Context) Response {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return failf(err)
	}
	status := StatusData{
		Version:       ServerVersion,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		SocketPath:    s.socketPath,
		DatabasePath:  s.dbPath,
		FTSEnabled:    s.store.FTSEnabled(),
		Entries:       stats.Entries,
		Triples:       stats.Triples,
		Entities:      stats.Entities,
		Aliases:       stats.Aliases,
		Transactions:  stats.Transactions,
		Undoable:      stats.Undoable,
		Tasks:         stats.Tasks,
	}
	return okText("daemon running", "status", status)
}

func (s *Server) handleStore(ctx context.Context, req *Request) Response {
	var args engine.StoreParams
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	if args.Actor == nil && req.Actor != "" {
		args.Actor = types.StrPtr(req.Actor)
	}
	entry, err := s.engine.Store(ctx, args)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("stored entry %s", entry.ID), "entries/"+entry.ID, entry)
}

func (s *Server) handleGet(ctx context.Context, req *Request) Response {
	var args GetArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	switch args.EntityType {
	case "", "entry":
		entry, err := s.engine.GetEntry(ctx, args.ID)
		if err != nil {
			return failf(err)
		}
		return okText(entry.Topic, "entries/"+entry.ID, entry)
	case "triple":
		triple, err := s.engine.GetTriple(ctx, args.ID)
		if err != nil {
			return failf(err)
		}
		return okText(fmt.Sprintf("%s -[%s]-> %s", triple.Subject, triple.Predicate, triple.Object),
			"triples/"+triple.ID, triple)
	}
	return failf(types.Validationf("entity_type must be entry or triple, got %q", args.EntityType))
}

func (s *Server) handleUpdate(ctx context.Context, req *Request) Response {
	var args UpdateArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	entry, err := s.engine.Update(ctx, args.ID, args.Updates)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("updated entry %s", entry.ID), "entries/"+entry.ID, entry)
}

func (s *Server) handleQuery(ctx context.Context, req *Request) Response {
	var args QueryArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	res, err := s.engine.Query(ctx, engine.QueryParams{
		Topic:   args.Topic,
		Content: args.Content,
		Tags:    args.Tags,
		Limit:   args.Limit,
		Cursor:  args.Cursor,
		Offset:  args.Offset,
		Weights: args.Weights,
	})
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("%d entries in %dms", len(res.Items), res.RetrievalMS), "entries", res)
}

func (s *Server) handleDelete(ctx context.Context, req *Request) Response {
	var args DeleteArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	res, err := s.engine.Delete(ctx, args.ID, types.EntityType(args.EntityType))
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("deleted %s %s", args.EntityType, args.ID),
		args.EntityType+"s/"+args.ID, res)
}

func (s *Server) handleRelate(ctx context.Context, req *Request) Response {
	var cand types.TripleCandidate
	if err := decodeArgs(req, &cand); err != nil {
		return failf(err)
	}
	if cand.Actor == nil && req.Actor != "" {
		cand.Actor = types.StrPtr(req.Actor)
	}
	res, err := s.engine.Relate(ctx, cand)
	if err != nil {
		return failf(err)
	}
	if res.Conflict != nil {
		return okText(fmt.Sprintf("conflict with existing triple %s; resolve with one of %v",
			res.Conflict.Existing.ID, res.Conflict.Resolutions),
			"conflicts/"+res.Conflict.ConflictID, res)
	}
	return okText(fmt.Sprintf("related %s -[%s]-> %s", cand.Subject, cand.Predicate, cand.Object),
		"triples/"+res.Triple.ID, res)
}

func (s *Server) handleQueryGraph(ctx context.Context, req *Request) Response {
	var args GraphArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	triples, err := s.engine.QueryGraph(ctx, storage.TripleFilter{
		Subject:   args.Subject,
		Predicate: args.Predicate,
		Object:    args.Object,
		Limit:     args.Limit,
	})
	if err != nil {
		return failf(err)
	}
	payload := map[string]any{"items": triples, "next_cursor": nil}
	return okText(fmt.Sprintf("%d triples", len(triples)), "triples", payload)
}

func (s *Server) handleUpdateTriple(ctx context.Context, req *Request) Response {
	var args UpdateArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	triple, err := s.engine.UpdateTriple(ctx, args.ID, args.Updates)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("updated triple %s", triple.ID), "triples/"+triple.ID, triple)
}

func (s *Server) handleUpsertTriple(ctx context.Context, req *Request) Response {
	var cand types.TripleCandidate
	if err := decodeArgs(req, &cand); err != nil {
		return failf(err)
	}
	res, err := s.engine.UpsertTriple(ctx, cand)
	if err != nil {
		return failf(err)
	}
	verb := "updated"
	if res.Created {
		verb = "created"
	}
	return okText(fmt.Sprintf("%s triple %s", verb, res.Triple.ID), "triples/"+res.Triple.ID, res)
}

func (s *Server) handleResolveConflict(ctx context.Context, req *Request) Response {
	var args ResolveConflictArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	triple, err := s.engine.ResolveConflict(ctx, args.ConflictID, args.Strategy)
	if err != nil {
		return failf(err)
	}
	if triple == nil {
		return okText("candidate rejected; store unchanged", "", map[string]any{"resolved": true})
	}
	return okText(fmt.Sprintf("resolved via %s; triple %s", args.Strategy, triple.ID),
		"triples/"+triple.ID, triple)
}

func (s *Server) handleUpsertEntity(ctx context.Context, req *Request) Response {
	var args EntityArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	res, err := s.engine.UpsertEntity(ctx, args.Name)
	if err != nil {
		return failf(err)
	}
	verb := "resolved"
	if res.Created {
		verb = "created"
	}
	return okText(fmt.Sprintf("%s entity %s", verb, res.Entity.ID),
		"entities/"+res.Entity.ID, res)
}

func (s *Server) handleResolveEntity(ctx context.Context, req *Request) Response {
	var args EntityArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	entity, err := s.engine.ResolveEntity(ctx, args.Name, args.ExactOnly)
	if err != nil {
		return failf(err)
	}
	if entity == nil {
		return failf(types.NotFoundf("no entity resolves %q", args.Name))
	}
	return okText(fmt.Sprintf("%q resolves to %s", args.Name, entity.Name),
		"entities/"+entity.ID, entity)
}

func (s *Server) handleAddAlias(ctx context.Context, req *Request) Response {
	var args EntityArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	alias, err := s.engine.AddAlias(ctx, args.EntityID, args.Alias)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("aliased %q to %s", alias.Alias, args.EntityID),
		"entities/"+args.EntityID, alias)
}

func (s *Server) handleMergeEntities(ctx context.Context, req *Request) Response {
	var args MergeArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	res, err := s.engine.MergeEntities(ctx, args.KeepID, args.MergeID)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("merged %s into %s (%d triples rewritten)",
		args.MergeID, args.KeepID, res.MergedCount), "entities/"+args.KeepID, res)
}

func (s *Server) handleUndo(ctx context.Context, req *Request) Response {
	args := UndoArgs{Count: 1}
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return failf(types.Validationf("invalid arguments for undo: %v", err))
		}
	}
	reverted, err := s.engine.Undo(ctx, args.Count)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("reverted %d transactions", len(reverted)),
		"transactions", map[string]any{"reverted": reverted})
}

func (s *Server) handleHistory(ctx context.Context, req *Request) Response {
	var args HistoryArgs
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return failf(types.Validationf("invalid arguments for history: %v", err))
		}
	}
	items, err := s.engine.History(ctx, args.Limit, args.EntityType)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("%d transactions", len(items)),
		"transactions", map[string]any{"items": items})
}

func (s *Server) handleIngest(ctx context.Context, req *Request) Response {
	var args IngestArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	res, err := s.engine.Ingest(ctx, args.Content, args.Source)
	if err != nil {
		return failf(err)
	}
	if res.Async {
		return okText(fmt.Sprintf("queued task %s (%d chunks)", res.TaskID, res.TotalChunks),
			"tasks/"+res.TaskID, res)
	}
	return okText(fmt.Sprintf("ingested %d entries, %d duplicates skipped",
		res.EntriesCreated, res.DuplicatesSkipped), "tasks/"+res.TaskID, res)
}

func (s *Server) handleIngestionStatus(ctx context.Context, req *Request) Response {
	var args TaskArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	task, err := s.engine.IngestionStatus(ctx, args.TaskID)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("task %s: %s (%d/%d)",
		task.ID, task.Status, task.ProcessedItems, task.TotalItems), "tasks/"+task.ID, task)
}

func (s *Server) handleList(ctx context.Context, req *Request) Response {
	var args ListArgs
	if err := decodeArgs(req, &args); err != nil {
		return failf(err)
	}
	page, err := s.engine.List(ctx, args.Resource, args.Limit, args.Cursor)
	if err != nil {
		return failf(err)
	}
	return okText(fmt.Sprintf("%d %s", page.Count, args.Resource), args.Resource, page)
}

func (s *Server) handleGetMutations(req *Request) Response {
	var args GetMutationsArgs
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return failf(types.Validationf("invalid arguments for get_mutations: %v", err))
		}
	}
	events := s.RecentMutations(args.Since)
	return okText(fmt.Sprintf("%d mutations", len(events)),
		"mutations", map[string]any{"items": events})
}
