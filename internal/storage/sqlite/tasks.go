package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/MnemoLog/internal/idgen"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// CreateTask stores a new ingestion task.
func (s *Store) CreateTask(ctx context.Context, task *types.IngestionTask) error {
	if task.ID == "" {
		task.ID = idgen.New()
	}
	now := idgen.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = types.TaskPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_tasks (id, status, input_uri, total_items, processed_items, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, string(task.Status), task.InputURI, task.TotalItems, task.ProcessedItems,
		nullStr(task.Error), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ingestion task: %w", err)
	}
	return nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*types.IngestionTask, error) {
	var t types.IngestionTask
	var status string
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, input_uri, total_items, processed_items, error, created_at, updated_at
		FROM ingestion_tasks WHERE id = ?
	`, id).Scan(&t.ID, &status, &t.InputURI, &t.TotalItems, &t.ProcessedItems,
		&errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NotFoundf("ingestion task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion task: %w", err)
	}
	t.Status = types.TaskStatus(status)
	t.Error = strFromNull(errMsg)
	return &t, nil
}

// statusRank orders task states so transitions only move forward.
func statusRank(s types.TaskStatus) int {
	switch s {
	case types.TaskPending:
		return 0
	case types.TaskProcessing:
		return 1
	case types.TaskCompleted, types.TaskFailed:
		return 2
	}
	return -1
}

// UpdateTask advances a task's counter and status. processed_items is
// monotone non-decreasing and status never moves backward; violations are
// internal errors because only the batcher writes tasks.
func (s *Store) UpdateTask(ctx context.Context, id string, processed int, status types.TaskStatus, errMsg *string) error {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if processed < current.ProcessedItems {
		return types.Internalf("processed_items may not decrease (%d -> %d)", current.ProcessedItems, processed)
	}
	if statusRank(status) < statusRank(current.Status) {
		return types.Internalf("task status may not move backward (%s -> %s)", current.Status, status)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE ingestion_tasks SET processed_items = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, processed, string(status), nullStr(errMsg), idgen.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update ingestion task: %w", err)
	}
	return nil
}

// PendingTasks lists ids of tasks awaiting a processing batch.
func (s *Store) PendingTasks(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM ingestion_tasks
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
