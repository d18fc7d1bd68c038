// Package store persists chunk text, vectors, and metadata under stable
// passage ids in SQLite, and serves the vector and text query paths the
// hybrid search is built on. It supports two on-disk vector encodings
// (full-precision float32 and half-precision float16) with runtime
// capability probing.
package store

import (
	"errors"
	"fmt"
	"time"
)

// SourceType identifies which workspace content source a record came from.
type SourceType string

const (
	SourceTypePage        SourceType = "page"
	SourceTypeBlock       SourceType = "block"
	SourceTypeDatabaseRow SourceType = "databaseRow"
	SourceTypeDocument    SourceType = "document"

	// SourceTypeSystem marks synthetic results the search service emits
	// when nothing real can be returned. It has no backing table.
	SourceTypeSystem SourceType = "system"
)

// AllSourceTypes lists every content source the search fan-out covers.
var AllSourceTypes = []SourceType{
	SourceTypePage,
	SourceTypeBlock,
	SourceTypeDatabaseRow,
	SourceTypeDocument,
}

// Encoding selects which on-disk vector representation a query runs against.
type Encoding string

const (
	// EncodingFull stores vectors as float32.
	EncodingFull Encoding = "vector"

	// EncodingHalf stores vectors as float16, halving storage and scan cost
	// at reduced numeric accuracy.
	EncodingHalf Encoding = "halfvec"

	// EncodingAuto resolves to EncodingHalf when the half-precision feature
	// flag is on and at least one half-precision record exists, otherwise
	// EncodingFull.
	EncodingAuto Encoding = "auto"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// EmbeddingRecord is one stored chunk with its vector and metadata. The
// store derives the half-precision representation from FullVector when
// half-precision storage is enabled.
type EmbeddingRecord struct {
	PassageID      string // stable citation handle: PassageID(sourceEntityID, chunkIndex)
	SourceEntityID string
	ChunkIndex     int
	WorkspaceID    string
	Text           string
	FullVector     []float32
	SourceType     SourceType
	PageID         string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PassageID derives the stable citation handle for one chunk of an entity.
// It is deterministic, so re-indexing unchanged content keeps ids stable,
// and unique per (entity, chunk index).
func PassageID(sourceEntityID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", sourceEntityID, chunkIndex)
}

// SearchResult is one query-time hit, normalized across content sources.
type SearchResult struct {
	SourceType SourceType        `json:"source_type"`
	EntityID   string            `json:"entity_id"`
	PageID     string            `json:"page_id,omitempty"`
	Content    string            `json:"content"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NominalTextScore is the fixed similarity assigned to text-fallback hits.
// Substring matching carries no numeric ranking signal, so every hit gets
// the same nominal score.
const NominalTextScore = 0.5
