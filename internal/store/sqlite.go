package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

// probeTTL bounds how long a cached half-precision capability probe is
// trusted before re-querying the tables.
const probeTTL = 30 * time.Second

// Options configures a SQLiteStore.
type Options struct {
	// HalfVecEnabled turns on writing and querying half-precision vectors.
	HalfVecEnabled bool
}

// SQLiteStore persists embedding records in SQLite, one table per content
// source, and serves vector and text queries over them.
type SQLiteStore struct {
	db   *sql.DB
	opts Options

	mu     sync.Mutex
	closed bool

	// half-precision capability probe cache
	probeMu      sync.Mutex
	probeValue   bool
	probeExpires time.Time
}

// tableFor maps a content source to its embeddings table.
func tableFor(st SourceType) (string, error) {
	switch st {
	case SourceTypePage:
		return "page_embeddings", nil
	case SourceTypeBlock:
		return "block_embeddings", nil
	case SourceTypeDatabaseRow:
		return "database_row_embeddings", nil
	case SourceTypeDocument:
		return "document_embeddings", nil
	default:
		return "", fmt.Errorf("unknown source type: %q", st)
	}
}

const tableSchema = `
CREATE TABLE IF NOT EXISTS %s (
    passage_id       TEXT PRIMARY KEY,
    source_entity_id TEXT NOT NULL,
    chunk_index      INTEGER NOT NULL,
    workspace_id     TEXT NOT NULL,
    page_id          TEXT NOT NULL DEFAULT '',
    content          TEXT NOT NULL,
    embedding        BLOB,
    half_embedding   BLOB,
    metadata         TEXT NOT NULL DEFAULT '{}',
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%s_entity ON %s(source_entity_id);
CREATE INDEX IF NOT EXISTS idx_%s_workspace ON %s(workspace_id);
CREATE INDEX IF NOT EXISTS idx_%s_page ON %s(page_id);
`

// New opens (or creates) the store at path. Use ":memory:" for an
// in-memory database in tests.
func New(path string, opts Options) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite, DSN params
	// may be ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	if path == ":memory:" {
		pragmas = pragmas[1:] // WAL is meaningless in memory
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, opts: opts}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	for _, st := range AllSourceTypes {
		table, _ := tableFor(st)
		stmt := fmt.Sprintf(tableSchema, table, table, table, table, table, table, table)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create %s schema: %w", table, err)
		}
	}
	return nil
}

// DB exposes the underlying connection so the task queue can share one
// database file with the index tables.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close checkpoints and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Upsert writes records, replacing any existing record with the same
// passage id. The half-precision column is populated only when the store
// has half-precision enabled.
func (s *SQLiteStore) Upsert(ctx context.Context, records []EmbeddingRecord) error {
	if s.isClosed() {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for _, rec := range records {
		table, err := tableFor(rec.SourceType)
		if err != nil {
			return err
		}

		var fullBlob, halfBlob any
		if rec.FullVector != nil {
			fullBlob = EncodeVector(rec.FullVector)
		}
		if s.opts.HalfVecEnabled && rec.FullVector != nil {
			halfBlob = EncodeHalfVector(rec.FullVector)
		}

		meta := "{}"
		if len(rec.Metadata) > 0 {
			b, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", rec.PassageID, err)
			}
			meta = string(b)
		}

		stmt := fmt.Sprintf(`
INSERT INTO %s (passage_id, source_entity_id, chunk_index, workspace_id, page_id,
                content, embedding, half_embedding, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(passage_id) DO UPDATE SET
    source_entity_id = excluded.source_entity_id,
    chunk_index      = excluded.chunk_index,
    workspace_id     = excluded.workspace_id,
    page_id          = excluded.page_id,
    content          = excluded.content,
    embedding        = excluded.embedding,
    half_embedding   = excluded.half_embedding,
    metadata         = excluded.metadata,
    updated_at       = excluded.updated_at`, table)

		_, err = tx.ExecContext(ctx, stmt,
			rec.PassageID, rec.SourceEntityID, rec.ChunkIndex, rec.WorkspaceID, rec.PageID,
			rec.Text, fullBlob, halfBlob, meta, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert %s: %w", rec.PassageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	s.invalidateProbe()
	return nil
}

// DeleteStale removes records for an entity whose passage ids are not in
// keep. Re-indexing shrunk content calls this after upserting the current
// chunks so no orphaned tail chunks survive.
func (s *SQLiteStore) DeleteStale(ctx context.Context, st SourceType, entityID string, keep []string) error {
	if s.isClosed() {
		return ErrClosed
	}
	table, err := tableFor(st)
	if err != nil {
		return err
	}

	if len(keep) == 0 {
		return s.deleteWhere(ctx, table, "source_entity_id = ?", entityID)
	}

	placeholders := strings.Repeat("?,", len(keep))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(keep)+1)
	args = append(args, entityID)
	for _, id := range keep {
		args = append(args, id)
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE source_entity_id = ? AND passage_id NOT IN (%s)", table, placeholders)
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete stale records for %s: %w", entityID, err)
	}
	s.invalidateProbe()
	return nil
}

// DeleteByEntity removes every record for one entity in one source table.
func (s *SQLiteStore) DeleteByEntity(ctx context.Context, st SourceType, entityID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	table, err := tableFor(st)
	if err != nil {
		return err
	}
	return s.deleteWhere(ctx, table, "source_entity_id = ?", entityID)
}

// DeleteByEntityPrefix removes records whose entity id starts with prefix.
// Database indexing writes synthetic sub-chunk entities under a shared
// prefix, so deleting a database must sweep the whole prefix.
func (s *SQLiteStore) DeleteByEntityPrefix(ctx context.Context, st SourceType, prefix string) error {
	if s.isClosed() {
		return ErrClosed
	}
	table, err := tableFor(st)
	if err != nil {
		return err
	}
	pattern := likeEscape(prefix) + "%"
	return s.deleteWhere(ctx, table, "source_entity_id LIKE ? ESCAPE '\\'", pattern)
}

// DeleteStaleByPrefix removes records under an entity id prefix whose
// entity is not in keep. A re-indexed database rebuilds its synthetic
// sub-chunk entities and sweeps the groups the new version no longer has.
func (s *SQLiteStore) DeleteStaleByPrefix(ctx context.Context, st SourceType, prefix string, keep []string) error {
	if s.isClosed() {
		return ErrClosed
	}
	table, err := tableFor(st)
	if err != nil {
		return err
	}
	pattern := likeEscape(prefix) + "%"
	if len(keep) == 0 {
		return s.deleteWhere(ctx, table, "source_entity_id LIKE ? ESCAPE '\\'", pattern)
	}

	placeholders := strings.Repeat("?,", len(keep))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(keep)+1)
	args = append(args, pattern)
	for _, id := range keep {
		args = append(args, id)
	}
	where := fmt.Sprintf("source_entity_id LIKE ? ESCAPE '\\' AND source_entity_id NOT IN (%s)", placeholders)
	return s.deleteWhere(ctx, table, where, args...)
}

// DeleteByPage removes every record attributed to one page across all
// source tables.
func (s *SQLiteStore) DeleteByPage(ctx context.Context, pageID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	for _, st := range AllSourceTypes {
		table, _ := tableFor(st)
		if err := s.deleteWhere(ctx, table, "page_id = ?", pageID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) deleteWhere(ctx context.Context, table, where string, args ...any) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	s.invalidateProbe()
	return nil
}

// CountByEntity returns how many records one entity holds in one source table.
func (s *SQLiteStore) CountByEntity(ctx context.Context, st SourceType, entityID string) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	table, err := tableFor(st)
	if err != nil {
		return 0, err
	}
	var n int
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE source_entity_id = ?", table)
	if err := s.db.QueryRowContext(ctx, stmt, entityID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records for %s: %w", entityID, err)
	}
	return n, nil
}

// HasContent reports whether any records exist for the workspace. A blank
// workspace id checks across all workspaces.
func (s *SQLiteStore) HasContent(ctx context.Context, workspaceID string) (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}
	for _, st := range AllSourceTypes {
		table, _ := tableFor(st)
		var one int
		var err error
		if workspaceID == "" {
			stmt := fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", table)
			err = s.db.QueryRowContext(ctx, stmt).Scan(&one)
		} else {
			stmt := fmt.Sprintf("SELECT 1 FROM %s WHERE workspace_id = ? LIMIT 1", table)
			err = s.db.QueryRowContext(ctx, stmt, workspaceID).Scan(&one)
		}
		switch {
		case err == sql.ErrNoRows:
			continue
		case err != nil:
			return false, fmt.Errorf("failed to probe %s: %w", table, err)
		default:
			return true, nil
		}
	}
	return false, nil
}

// SelectEncoding resolves the encoding a query should run against.
// Explicit requests pass through. Auto resolves to half precision only
// when the feature is enabled and at least one half-precision record
// exists; the existence probe is cached briefly and invalidated on writes.
func (s *SQLiteStore) SelectEncoding(ctx context.Context, requested Encoding) (Encoding, error) {
	switch requested {
	case EncodingFull, EncodingHalf:
		return requested, nil
	case EncodingAuto, "":
	default:
		return "", fmt.Errorf("unknown encoding: %q", requested)
	}

	if !s.opts.HalfVecEnabled {
		return EncodingFull, nil
	}
	ok, err := s.probeHalf(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return EncodingHalf, nil
	}
	return EncodingFull, nil
}

func (s *SQLiteStore) probeHalf(ctx context.Context) (bool, error) {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	if time.Now().Before(s.probeExpires) {
		return s.probeValue, nil
	}

	found := false
	for _, st := range AllSourceTypes {
		table, _ := tableFor(st)
		var one int
		stmt := fmt.Sprintf("SELECT 1 FROM %s WHERE half_embedding IS NOT NULL LIMIT 1", table)
		err := s.db.QueryRowContext(ctx, stmt).Scan(&one)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to probe %s for half vectors: %w", table, err)
		}
		found = true
		break
	}
	s.probeValue = found
	s.probeExpires = time.Now().Add(probeTTL)
	return found, nil
}

func (s *SQLiteStore) invalidateProbe() {
	s.probeMu.Lock()
	s.probeExpires = time.Time{}
	s.probeMu.Unlock()
}

// SearchOptions scopes a vector or text query.
type SearchOptions struct {
	WorkspaceID string
	PageID      string  // restrict to one page when non-empty
	Limit       int     // max results per source
	Threshold   float64 // similarity cutoff, vector queries only
	Encoding    Encoding
}

// SearchSource scores every candidate record in one source table against
// the query vector and returns hits strictly above the threshold, best
// first.
func (s *SQLiteStore) SearchSource(ctx context.Context, st SourceType, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	table, err := tableFor(st)
	if err != nil {
		return nil, err
	}
	enc, err := s.SelectEncoding(ctx, opts.Encoding)
	if err != nil {
		return nil, err
	}

	column := "embedding"
	if enc == EncodingHalf {
		column = "half_embedding"
	}

	where := []string{column + " IS NOT NULL"}
	args := []any{}
	if opts.WorkspaceID != "" {
		where = append(where, "workspace_id = ?")
		args = append(args, opts.WorkspaceID)
	}
	if opts.PageID != "" {
		where = append(where, "page_id = ?")
		args = append(args, opts.PageID)
	}

	stmt := fmt.Sprintf("SELECT source_entity_id, page_id, content, metadata, %s FROM %s WHERE %s",
		column, table, strings.Join(where, " AND "))
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var entityID, pageID, content, meta string
		var blob []byte
		if err := rows.Scan(&entityID, &pageID, &content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		var vec []float32
		if enc == EncodingHalf {
			vec, err = DecodeHalfVector(blob)
		} else {
			vec, err = DecodeVector(blob)
		}
		if err != nil {
			slog.Warn("skipping record with corrupt vector",
				slog.String("table", table),
				slog.String("entity_id", entityID),
				slog.String("error", err.Error()))
			continue
		}

		sim := CosineSimilarity(query, vec)
		if sim <= opts.Threshold {
			continue
		}
		results = append(results, SearchResult{
			SourceType: st,
			EntityID:   entityID,
			PageID:     pageID,
			Content:    content,
			Similarity: sim,
			Metadata:   decodeMetadata(meta),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}

	sortBySimilarity(results)
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// TextSearchSource matches records whose content contains the query as a
// case-insensitive substring. Hits carry a fixed nominal similarity since
// substring matching has no ranking signal.
func (s *SQLiteStore) TextSearchSource(ctx context.Context, st SourceType, query string, opts SearchOptions) ([]SearchResult, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	table, err := tableFor(st)
	if err != nil {
		return nil, err
	}

	where := []string{"lower(content) LIKE ? ESCAPE '\\'"}
	args := []any{"%" + likeEscape(strings.ToLower(query)) + "%"}
	if opts.WorkspaceID != "" {
		where = append(where, "workspace_id = ?")
		args = append(args, opts.WorkspaceID)
	}
	if opts.PageID != "" {
		where = append(where, "page_id = ?")
		args = append(args, opts.PageID)
	}

	stmt := fmt.Sprintf("SELECT source_entity_id, page_id, content, metadata FROM %s WHERE %s ORDER BY updated_at DESC",
		table, strings.Join(where, " AND "))
	if opts.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to text-search %s: %w", table, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var entityID, pageID, content, meta string
		if err := rows.Scan(&entityID, &pageID, &content, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		results = append(results, SearchResult{
			SourceType: st,
			EntityID:   entityID,
			PageID:     pageID,
			Content:    content,
			Similarity: NominalTextScore,
			Metadata:   decodeMetadata(meta),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return results, nil
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" || raw == "{}" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func likeEscape(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func sortBySimilarity(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}
