package sqlite

import (
	"context"
	"testing"

	"github.com/untoldecay/MnemoLog/internal/types"
)

func TestTaskLifecycle(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	task := &types.IngestionTask{InputURI: "inline:...", TotalItems: 30}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" || task.Status != types.TaskPending {
		t.Errorf("unexpected new task: %+v", task)
	}

	if err := store.UpdateTask(ctx, task.ID, 10, types.TaskProcessing, nil); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessedItems != 10 || got.Status != types.TaskProcessing {
		t.Errorf("task after update: %+v", got)
	}

	if err := store.UpdateTask(ctx, task.ID, 30, types.TaskCompleted, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetTask(ctx, task.ID)
	if got.Status != types.TaskCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestTaskCountersMonotone(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	task := &types.IngestionTask{InputURI: "inline:...", TotalItems: 5}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateTask(ctx, task.ID, 3, types.TaskProcessing, nil); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateTask(ctx, task.ID, 2, types.TaskProcessing, nil); err == nil {
		t.Error("decreasing processed_items should be rejected")
	}
	if err := store.UpdateTask(ctx, task.ID, 3, types.TaskPending, nil); err == nil {
		t.Error("backward status transition should be rejected")
	}
}

func TestTaskFailureRecordsError(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	task := &types.IngestionTask{InputURI: "inline:...", TotalItems: 5}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateTask(ctx, task.ID, 2, types.TaskFailed, types.StrPtr("chunk 3 rejected")); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.TaskFailed {
		t.Errorf("status = %s", got.Status)
	}
	if got.Error == nil || *got.Error != "chunk 3 rejected" {
		t.Error("error message should be preserved")
	}
	// Partial progress survives the failure.
	if got.ProcessedItems != 2 {
		t.Errorf("processed = %d, want 2", got.ProcessedItems)
	}
}

func TestPendingTasks(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pendingTask := &types.IngestionTask{InputURI: "inline:a", TotalItems: 1}
	doneTask := &types.IngestionTask{InputURI: "inline:b", TotalItems: 1}
	for _, task := range []*types.IngestionTask{pendingTask, doneTask} {
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateTask(ctx, doneTask.ID, 1, types.TaskCompleted, nil); err != nil {
		t.Fatal(err)
	}

	ids, err := store.PendingTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != pendingTask.ID {
		t.Errorf("pending tasks = %v", ids)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := store.GetTask(context.Background(), "NOPE"); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("missing task should be not_found, got %v", err)
	}
}
