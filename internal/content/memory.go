package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// MemorySource is an in-memory Source. It backs tests and the fixture
// file the worker command can load.
type MemorySource struct {
	mu        sync.RWMutex
	pages     map[string]Page
	blocks    map[string]Block
	databases map[string]Database
	documents map[string]Document
}

var _ Source = (*MemorySource)(nil)

func NewMemorySource() *MemorySource {
	return &MemorySource{
		pages:     make(map[string]Page),
		blocks:    make(map[string]Block),
		databases: make(map[string]Database),
		documents: make(map[string]Document),
	}
}

func (m *MemorySource) PutPage(p Page) {
	m.mu.Lock()
	m.pages[p.ID] = p
	m.mu.Unlock()
}

func (m *MemorySource) PutBlock(b Block) {
	m.mu.Lock()
	m.blocks[b.ID] = b
	m.mu.Unlock()
}

func (m *MemorySource) PutDatabase(db Database) {
	m.mu.Lock()
	m.databases[db.ID] = db
	m.mu.Unlock()
}

func (m *MemorySource) GetPage(_ context.Context, id string) (Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	if !ok {
		return Page{}, fmt.Errorf("page %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *MemorySource) GetBlock(_ context.Context, id string) (Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[id]
	if !ok {
		return Block{}, fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	return b, nil
}

// ListPageBlocks returns the page's blocks in page order, descending into
// children depth-first. Missing block ids are skipped.
func (m *MemorySource) ListPageBlocks(ctx context.Context, pageID string) ([]Block, error) {
	p, err := m.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Block
	seen := make(map[string]bool)
	var walk func(ids []string)
	walk = func(ids []string) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			b, ok := m.blocks[id]
			if !ok {
				continue
			}
			out = append(out, b)
			walk(b.Children)
		}
	}
	walk(p.BlockIDs)
	return out, nil
}

func (m *MemorySource) GetDatabase(_ context.Context, id string) (Database, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.databases[id]
	if !ok {
		return Database{}, fmt.Errorf("database %s: %w", id, ErrNotFound)
	}
	return db, nil
}

func (m *MemorySource) PutDocument(d Document) {
	m.mu.Lock()
	m.documents[d.ID] = d
	m.mu.Unlock()
}

func (m *MemorySource) GetDocument(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return d, nil
}

// fixture is the JSON layout LoadFixture reads.
type fixture struct {
	Pages     []Page     `json:"pages"`
	Blocks    []Block    `json:"blocks"`
	Databases []Database `json:"databases"`
	Documents []Document `json:"documents"`
}

// LoadFixture builds a MemorySource from a JSON fixture file.
func LoadFixture(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}

	src := NewMemorySource()
	for _, p := range f.Pages {
		src.PutPage(p)
	}
	for _, b := range f.Blocks {
		src.PutBlock(b)
	}
	for _, db := range f.Databases {
		src.PutDatabase(db)
	}
	for _, d := range f.Documents {
		src.PutDocument(d)
	}
	return src, nil
}
