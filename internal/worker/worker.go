// Package worker drains the indexing task queue on a timer. Each poll
// claims a batch of tasks, dispatches them by entity type and operation,
// and records per-task success or failure so one bad task never stalls
// the batch.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/wsearch/internal/content"
	"github.com/Aman-CERP/wsearch/internal/index"
	"github.com/Aman-CERP/wsearch/internal/queue"
	"github.com/Aman-CERP/wsearch/internal/store"
)

// rowSampleSize is how many database rows are grouped into one synthetic
// sub-chunk document.
const rowSampleSize = 10

// Config tunes the poll loop.
type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	CleanupInterval time.Duration
	Retention       time.Duration
}

// DefaultConfig returns the standard worker cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		BatchSize:       10,
		CleanupInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	return c
}

// Worker polls the queue and runs claimed tasks through the processor.
type Worker struct {
	queue     *queue.Queue
	processor *index.Processor
	store     *store.SQLiteStore
	source    content.Source
	cfg       Config
	logger    *slog.Logger

	inFlight atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(q *queue.Queue, p *index.Processor, s *store.SQLiteStore, src content.Source, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:     q,
		processor: p,
		store:     s,
		source:    src,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the poll loop in the background. The first pass runs
// immediately rather than waiting one interval.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the loop and waits for the current pass to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanup.Stop()

	w.poll(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-poll.C:
			w.poll(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

// poll runs one claim-and-process pass unless the previous one is still
// in flight. Ticks that land mid-pass are dropped, not queued.
func (w *Worker) poll(ctx context.Context) {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.Debug("skipping poll, previous pass still running")
		return
	}
	defer w.inFlight.Store(false)

	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("poll pass failed", slog.String("error", err.Error()))
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	n, err := w.queue.Cleanup(ctx, w.cfg.Retention)
	if err != nil {
		w.logger.Error("task cleanup failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		w.logger.Info("cleaned up finished tasks", slog.Int64("removed", n))
	}
}

// RunOnce claims and processes one batch. Every claimed task ends in
// Complete or Fail: a task error is recorded on that task and the pass
// moves on. Returns how many tasks succeeded.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.queue.Claim(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim batch: %w", err)
	}

	processed := 0
	for _, task := range tasks {
		if err := w.runTask(ctx, task); err != nil {
			w.logger.Warn("task failed",
				slog.String("task_id", task.ID),
				slog.String("entity_id", task.EntityID),
				slog.String("operation", string(task.Operation)),
				slog.String("error", err.Error()))
			if failErr := w.queue.Fail(ctx, task.ID, err); failErr != nil {
				w.logger.Error("failed to record task failure",
					slog.String("task_id", task.ID),
					slog.String("error", failErr.Error()))
			}
			continue
		}
		if err := w.queue.Complete(ctx, task.ID); err != nil {
			w.logger.Error("failed to mark task complete",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()))
			continue
		}
		processed++
	}
	return processed, nil
}

// runTask dispatches one task, converting panics into task errors so a
// malformed entity cannot take down the loop.
func (w *Worker) runTask(ctx context.Context, task queue.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing task: %v", r)
		}
	}()

	if task.Operation == queue.OpDelete {
		return w.runDelete(ctx, task)
	}

	switch task.EntityType {
	case queue.EntityPage:
		return w.indexPage(ctx, task)
	case queue.EntityBlock:
		return w.indexBlock(ctx, task)
	case queue.EntityDatabase:
		return w.indexDatabase(ctx, task)
	case queue.EntityDocument:
		return w.indexDocument(ctx, task)
	case queue.EntityRow:
		// row edits surface through their database's next re-index
		w.logger.Debug("row task acknowledged without work",
			slog.String("entity_id", task.EntityID))
		return nil
	default:
		return fmt.Errorf("unknown entity type: %q", task.EntityType)
	}
}

func (w *Worker) runDelete(ctx context.Context, task queue.Task) error {
	switch task.EntityType {
	case queue.EntityPage:
		// remove the page's own records plus every record attributed to it
		if err := w.store.DeleteByEntity(ctx, store.SourceTypePage, task.EntityID); err != nil {
			return err
		}
		return w.store.DeleteByPage(ctx, task.EntityID)
	case queue.EntityBlock:
		return w.store.DeleteByEntity(ctx, store.SourceTypeBlock, task.EntityID)
	case queue.EntityDatabase:
		return w.store.DeleteByEntityPrefix(ctx, store.SourceTypeDatabaseRow, databasePrefix(task.EntityID))
	case queue.EntityDocument:
		return w.store.DeleteByEntity(ctx, store.SourceTypeDocument, task.EntityID)
	case queue.EntityRow:
		w.logger.Debug("row delete acknowledged without work",
			slog.String("entity_id", task.EntityID))
		return nil
	default:
		return fmt.Errorf("unknown entity type: %q", task.EntityType)
	}
}

// indexPage indexes the page title as the page's own record, then every
// block on the page as its own entity.
func (w *Worker) indexPage(ctx context.Context, task queue.Task) error {
	page, err := w.source.GetPage(ctx, task.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}

	_, err = w.processor.Process(ctx, index.Document{
		WorkspaceID: task.WorkspaceID,
		SourceType:  store.SourceTypePage,
		EntityID:    page.ID,
		PageID:      page.ID,
		Text:        page.Title,
		Metadata:    map[string]string{"title": page.Title},
	})
	if err != nil {
		return err
	}

	blocks, err := w.source.ListPageBlocks(ctx, page.ID)
	if err != nil {
		return fmt.Errorf("failed to list page blocks: %w", err)
	}
	for _, b := range blocks {
		if err := w.processBlock(ctx, task.WorkspaceID, b); err != nil {
			return fmt.Errorf("block %s: %w", b.ID, err)
		}
	}
	return nil
}

func (w *Worker) indexBlock(ctx context.Context, task queue.Task) error {
	b, err := w.source.GetBlock(ctx, task.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load block: %w", err)
	}
	return w.processBlock(ctx, task.WorkspaceID, b)
}

func (w *Worker) processBlock(ctx context.Context, workspaceID string, b content.Block) error {
	_, err := w.processor.Process(ctx, index.Document{
		WorkspaceID: workspaceID,
		SourceType:  store.SourceTypeBlock,
		EntityID:    b.ID,
		PageID:      b.PageID,
		Text:        content.ExtractBlockText(b),
		Metadata:    map[string]string{"block_kind": string(b.Kind)},
	})
	return err
}

// indexDatabase builds one synthetic document per group of sampled rows,
// prefixed with the schema description, each stored under its own
// sub-chunk entity id. Groups the new version no longer has are swept.
func (w *Worker) indexDatabase(ctx context.Context, task queue.Task) error {
	db, err := w.source.GetDatabase(ctx, task.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}

	schema := content.DescribeSchema(db)
	var docs []string
	if len(db.Rows) == 0 {
		docs = []string{schema}
	}
	for start := 0; start < len(db.Rows); start += rowSampleSize {
		end := start + rowSampleSize
		if end > len(db.Rows) {
			end = len(db.Rows)
		}
		var sb strings.Builder
		sb.WriteString(schema)
		sb.WriteString("\n\n")
		for _, row := range db.Rows[start:end] {
			sb.WriteString(content.DescribeRow(db, row))
			sb.WriteString("\n")
		}
		docs = append(docs, strings.TrimRight(sb.String(), "\n"))
	}

	prefix := databasePrefix(db.ID)
	keep := make([]string, len(docs))
	for i, text := range docs {
		entityID := fmt.Sprintf("%schunk:%d", prefix, i)
		keep[i] = entityID
		_, err := w.processor.Process(ctx, index.Document{
			WorkspaceID: task.WorkspaceID,
			SourceType:  store.SourceTypeDatabaseRow,
			EntityID:    entityID,
			PageID:      db.PageID,
			Text:        text,
			Metadata:    map[string]string{"database_id": db.ID, "title": db.Title},
		})
		if err != nil {
			return fmt.Errorf("sub-chunk %d: %w", i, err)
		}
	}
	return w.store.DeleteStaleByPrefix(ctx, store.SourceTypeDatabaseRow, prefix, keep)
}

func (w *Worker) indexDocument(ctx context.Context, task queue.Task) error {
	doc, err := w.source.GetDocument(ctx, task.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	_, err = w.processor.Process(ctx, index.Document{
		WorkspaceID: task.WorkspaceID,
		SourceType:  store.SourceTypeDocument,
		EntityID:    doc.ID,
		PageID:      doc.PageID,
		Text:        doc.Text,
		Metadata:    map[string]string{"title": doc.Title},
	})
	return err
}

func databasePrefix(databaseID string) string {
	return "database:" + databaseID + "/"
}
