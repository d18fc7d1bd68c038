// Package index turns entity text into stored embedding records: chunk,
// embed in batch, upsert under stable passage ids, then sweep stale
// chunks from earlier, longer versions of the content.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/wsearch/internal/chunk"
	"github.com/Aman-CERP/wsearch/internal/embed"
	"github.com/Aman-CERP/wsearch/internal/store"
)

// Store is the slice of the index store the processor writes through.
type Store interface {
	Upsert(ctx context.Context, records []store.EmbeddingRecord) error
	DeleteStale(ctx context.Context, st store.SourceType, entityID string, keep []string) error
	DeleteByEntity(ctx context.Context, st store.SourceType, entityID string) error
}

// Processor runs the chunk-embed-store pipeline for one entity at a time.
type Processor struct {
	store    Store
	embedder embed.Embedder
	chunkCfg chunk.Config
	logger   *slog.Logger
}

func NewProcessor(s Store, e embed.Embedder, cfg chunk.Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: s, embedder: e, chunkCfg: cfg, logger: logger}
}

// Document is the text of one entity plus the identity its records carry.
type Document struct {
	WorkspaceID string
	SourceType  store.SourceType
	EntityID    string
	PageID      string
	Text        string
	Metadata    map[string]string
}

// Process indexes one document. Empty text means the entity has no
// indexable content anymore, so its records are removed. Returns the
// passage ids now stored for the entity.
func (p *Processor) Process(ctx context.Context, doc Document) ([]string, error) {
	if doc.Text == "" {
		if err := p.store.DeleteByEntity(ctx, doc.SourceType, doc.EntityID); err != nil {
			return nil, fmt.Errorf("failed to remove records for empty %s: %w", doc.EntityID, err)
		}
		return nil, nil
	}

	chunks := chunk.Split(doc.Text, p.chunkCfg)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", doc.EntityID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]store.EmbeddingRecord, len(chunks))
	keep := make([]string, len(chunks))
	for i, c := range chunks {
		pid := store.PassageID(doc.EntityID, c.Index)
		keep[i] = pid
		records[i] = store.EmbeddingRecord{
			PassageID:      pid,
			SourceEntityID: doc.EntityID,
			ChunkIndex:     c.Index,
			WorkspaceID:    doc.WorkspaceID,
			Text:           c.Text,
			FullVector:     vectors[i],
			SourceType:     doc.SourceType,
			PageID:         doc.PageID,
			Metadata:       doc.Metadata,
		}
	}

	if err := p.store.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to store records for %s: %w", doc.EntityID, err)
	}
	if err := p.store.DeleteStale(ctx, doc.SourceType, doc.EntityID, keep); err != nil {
		return nil, fmt.Errorf("failed to sweep stale records for %s: %w", doc.EntityID, err)
	}

	p.logger.Debug("indexed entity",
		slog.String("entity_id", doc.EntityID),
		slog.String("source_type", string(doc.SourceType)),
		slog.Int("chunks", len(chunks)))
	return keep, nil
}
