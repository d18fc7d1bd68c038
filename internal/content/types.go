// Package content models the workspace entities the indexer reads: pages,
// blocks, and databases. A Source abstracts where they come from so the
// worker can run against live workspace data or fixtures.
package content

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entity id does not resolve.
var ErrNotFound = errors.New("entity not found")

// BlockKind is a block's content type.
type BlockKind string

const (
	KindParagraph BlockKind = "paragraph"
	KindHeading   BlockKind = "heading"
	KindList      BlockKind = "list"
	KindCode      BlockKind = "code"
	KindQuote     BlockKind = "quote"
	KindCallout   BlockKind = "callout"
	KindToggle    BlockKind = "toggle"
	KindTable     BlockKind = "table"
	KindDatabase  BlockKind = "database"
)

// Block is one content block on a page. Properties hold kind-specific
// fields (text, language, rows, title) loosely typed.
type Block struct {
	ID          string         `json:"id"`
	PageID      string         `json:"page_id"`
	WorkspaceID string         `json:"workspace_id"`
	Kind        BlockKind      `json:"kind"`
	Properties  map[string]any `json:"properties,omitempty"`
	Children    []string       `json:"children,omitempty"`
}

// Page is a titled container of blocks.
type Page struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	Title       string   `json:"title"`
	BlockIDs    []string `json:"block_ids,omitempty"`
}

// Column describes one database column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Database is a structured table: a schema plus rows of cell values keyed
// by column name.
type Database struct {
	ID          string           `json:"id"`
	WorkspaceID string           `json:"workspace_id"`
	PageID      string           `json:"page_id"`
	Title       string           `json:"title"`
	Columns     []Column         `json:"columns"`
	Rows        []map[string]any `json:"rows,omitempty"`
}

// Document is an uploaded file whose text has already been extracted.
type Document struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	PageID      string `json:"page_id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
}

// Source provides read access to workspace content during indexing.
type Source interface {
	GetPage(ctx context.Context, id string) (Page, error)
	GetBlock(ctx context.Context, id string) (Block, error)
	ListPageBlocks(ctx context.Context, pageID string) ([]Block, error)
	GetDatabase(ctx context.Context, id string) (Database, error)
	GetDocument(ctx context.Context, id string) (Document, error)
}
