package queue

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	q, err := New(db)
	require.NoError(t, err)
	return q
}

func TestEnqueueAndClaim(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "ws-1", EntityPage, "page-1", OpInsert, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	tasks, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)
	assert.Equal(t, StatusProcessing, tasks[0].Status)
	assert.Equal(t, EntityPage, tasks[0].EntityType)
	assert.Equal(t, OpInsert, tasks[0].Operation)
}

func TestClaimOrdersByPriorityThenAge(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	low1, err := q.Enqueue(ctx, "ws-1", EntityBlock, "b1", OpInsert, 0)
	require.NoError(t, err)
	high, err := q.Enqueue(ctx, "ws-1", EntityBlock, "b2", OpInsert, 10)
	require.NoError(t, err)
	low2, err := q.Enqueue(ctx, "ws-1", EntityBlock, "b3", OpInsert, 0)
	require.NoError(t, err)

	tasks, err := q.Claim(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	ids := []string{tasks[0].ID, tasks[1].ID, tasks[2].ID}
	assert.Equal(t, []string{high, low1, low2}, ids)
}

func TestClaimIsExclusive(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, "ws-1", EntityBlock, "b", OpInsert, 0)
		require.NoError(t, err)
	}

	// two claimers race over the same backlog
	results := make([][]Task, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = q.Claim(ctx, 3)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Len(t, append(results[0], results[1]...), 5)
	seen := map[string]bool{}
	for _, task := range append(results[0], results[1]...) {
		assert.False(t, seen[task.ID], "task %s claimed twice", task.ID)
		seen[task.ID] = true
	}

	third, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestCompleteAndCounts(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "ws-1", EntityPage, "p1", OpInsert, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "ws-1", EntityPage, "p2", OpInsert, 0)
	require.NoError(t, err)

	_, err = q.Claim(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, id))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusCompleted])
	assert.Equal(t, 1, counts[StatusPending])
}

func TestFailIsTerminal(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "ws-1", EntityBlock, "b1", OpInsert, 0)
	require.NoError(t, err)

	tasks, err := q.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NoError(t, q.Fail(ctx, id, errors.New("embedding service unavailable")))

	task, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "embedding service unavailable", task.LastError)

	// recovery is a fresh enqueue, never a re-claim of the failed task
	remaining, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining, "failed tasks must not be claimable")
}

func TestGetUnknownTask(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, q.Complete(context.Background(), "missing"), ErrNotFound)
}

func TestCleanupRemovesOldTerminalTasks(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	done, err := q.Enqueue(ctx, "ws-1", EntityPage, "p1", OpInsert, 0)
	require.NoError(t, err)
	pending, err := q.Enqueue(ctx, "ws-1", EntityPage, "p2", OpInsert, 0)
	require.NoError(t, err)

	_, err = q.Claim(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, done))

	// retention in the past treats everything terminal as expired
	n, err := q.Cleanup(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = q.Get(ctx, done)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = q.Get(ctx, pending)
	assert.NoError(t, err, "pending tasks survive cleanup")
}
