// Package queue persists indexing work items in SQLite and hands them to
// workers with an atomic claim, so concurrent pollers never process the
// same task twice.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// EntityType identifies what kind of workspace entity a task targets.
type EntityType string

const (
	EntityPage     EntityType = "page"
	EntityBlock    EntityType = "block"
	EntityDatabase EntityType = "database"
	EntityRow      EntityType = "row"
	EntityDocument EntityType = "document"
)

// Operation is what should happen to the entity's index entries.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Task is one unit of indexing work.
type Task struct {
	ID          string
	WorkspaceID string
	EntityType  EntityType
	EntityID    string
	Operation   Operation
	Priority    int
	Status      Status
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Queue is a SQLite-backed task queue. It can share a database with the
// index store or run on its own file.
type Queue struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS indexing_tasks (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    entity_type  TEXT NOT NULL,
    entity_id    TEXT NOT NULL,
    operation    TEXT NOT NULL,
    priority     INTEGER NOT NULL DEFAULT 0,
    status       TEXT NOT NULL DEFAULT 'pending',
    last_error   TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_claim ON indexing_tasks(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_tasks_entity ON indexing_tasks(entity_id);
`

// New initializes the queue schema on db.
func New(db *sql.DB) (*Queue, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create queue schema: %w", err)
	}
	return &Queue{db: db}, nil
}

// Enqueue persists a new pending task and returns its id.
func (q *Queue) Enqueue(ctx context.Context, workspaceID string, entityType EntityType, entityID string, op Operation, priority int) (string, error) {
	id := uuid.NewString()
	now := time.Now().Unix()
	_, err := q.db.ExecContext(ctx, `
INSERT INTO indexing_tasks (id, workspace_id, entity_type, entity_id, operation, priority, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		id, workspaceID, entityType, entityID, op, priority, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}

// Claim atomically flips up to limit pending tasks to processing and
// returns them, highest priority first, oldest first within a priority.
// The single UPDATE guarantees no task is handed to two claimers.
func (q *Queue) Claim(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, `
UPDATE indexing_tasks
SET status = 'processing', updated_at = ?
WHERE id IN (
    SELECT id FROM indexing_tasks
    WHERE status = 'pending'
    ORDER BY priority DESC, created_at ASC, rowid ASC
    LIMIT ?
)
RETURNING rowid, id, workspace_id, entity_type, entity_id, operation, priority, status, last_error, created_at, updated_at`,
		time.Now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	type claimed struct {
		rowid int64
		task  Task
	}
	var batch []claimed
	for rows.Next() {
		var c claimed
		var created, updated int64
		err := rows.Scan(&c.rowid, &c.task.ID, &c.task.WorkspaceID, &c.task.EntityType,
			&c.task.EntityID, &c.task.Operation, &c.task.Priority, &c.task.Status,
			&c.task.LastError, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed task: %w", err)
		}
		c.task.CreatedAt = time.Unix(created, 0)
		c.task.UpdatedAt = time.Unix(updated, 0)
		batch = append(batch, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claimed tasks: %w", err)
	}

	// RETURNING row order is undefined, re-establish claim order here
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].task.Priority != batch[j].task.Priority {
			return batch[i].task.Priority > batch[j].task.Priority
		}
		return batch[i].rowid < batch[j].rowid
	})
	tasks := make([]Task, len(batch))
	for i, c := range batch {
		tasks[i] = c.task
	}
	return tasks, nil
}

// Complete marks a processing task as completed.
func (q *Queue) Complete(ctx context.Context, id string) error {
	return q.setStatus(ctx, id, StatusCompleted, "")
}

// Fail marks a task as failed and records the error message. Failed
// tasks are terminal: getting the entity indexed again takes a new
// enqueue by the producer.
func (q *Queue) Fail(ctx context.Context, id string, taskErr error) error {
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}
	return q.setStatus(ctx, id, StatusFailed, msg)
}

func (q *Queue) setStatus(ctx context.Context, id string, status Status, lastError string) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE indexing_tasks SET status = ?, last_error = ?, updated_at = ? WHERE id = ?",
		status, lastError, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return checkAffected(res, id)
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get fetches one task by id.
func (q *Queue) Get(ctx context.Context, id string) (Task, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT id, workspace_id, entity_type, entity_id, operation, priority, status, last_error, created_at, updated_at
FROM indexing_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// Cleanup deletes completed and failed tasks older than retention and
// returns how many were removed.
func (q *Queue) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM indexing_tasks WHERE status IN ('completed', 'failed') AND updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up tasks: %w", err)
	}
	return res.RowsAffected()
}

// Counts returns the number of tasks per status.
func (q *Queue) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM indexing_tasks GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (Task, error) {
	var t Task
	var created, updated int64
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.EntityType, &t.EntityID, &t.Operation,
		&t.Priority, &t.Status, &t.LastError, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("failed to scan task: %w", err)
	}
	t.CreatedAt = time.Unix(created, 0)
	t.UpdatedAt = time.Unix(updated, 0)
	return t, nil
}
