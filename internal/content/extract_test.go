package content

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBlockText(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		want  string
	}{
		{
			name:  "paragraph",
			block: Block{Kind: KindParagraph, Properties: map[string]any{"text": "Hello world."}},
			want:  "Hello world.",
		},
		{
			name:  "heading",
			block: Block{Kind: KindHeading, Properties: map[string]any{"text": "Overview"}},
			want:  "Overview",
		},
		{
			name:  "list with items",
			block: Block{Kind: KindList, Properties: map[string]any{"items": []any{"one", "two"}}},
			want:  "- one\n- two",
		},
		{
			name:  "code with language",
			block: Block{Kind: KindCode, Properties: map[string]any{"text": "x := 1", "language": "go"}},
			want:  "```go\nx := 1\n```",
		},
		{
			name:  "empty code",
			block: Block{Kind: KindCode, Properties: map[string]any{"language": "go"}},
			want:  "",
		},
		{
			name: "table",
			block: Block{Kind: KindTable, Properties: map[string]any{
				"rows": []any{[]any{"Name", "Age"}, []any{"Ada", float64(36)}},
			}},
			want: "Name | Age\nAda | 36",
		},
		{
			name:  "database block contributes title only",
			block: Block{Kind: KindDatabase, Properties: map[string]any{"title": "Tasks"}},
			want:  "Tasks",
		},
		{
			name:  "unknown kind falls back to text",
			block: Block{Kind: "embed", Properties: map[string]any{"text": "link preview"}},
			want:  "link preview",
		},
		{
			name:  "nil properties",
			block: Block{Kind: KindParagraph},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBlockText(tt.block))
		})
	}
}

func TestDescribeSchema(t *testing.T) {
	db := Database{
		ID:    "db-1",
		Title: "Project Tracker",
		Columns: []Column{
			{Name: "Task", Type: "title"},
			{Name: "Status", Type: "select"},
			{Name: "Due", Type: "date"},
		},
	}
	want := "Database: Project Tracker\n- Task (title)\n- Status (select)\n- Due (date)"
	assert.Equal(t, want, DescribeSchema(db))
}

func TestDescribeRow(t *testing.T) {
	db := Database{Columns: []Column{{Name: "Task", Type: "title"}, {Name: "Status", Type: "select"}}}
	row := map[string]any{"Status": "Done", "Task": "Ship v1", "Tags": []any{"infra", "q3"}}

	got := DescribeRow(db, row)
	assert.Equal(t, "Task: Ship v1 | Status: Done | Tags: infra, q3", got)
}

func TestDescribeRowSkipsMissingColumns(t *testing.T) {
	db := Database{Columns: []Column{{Name: "Task", Type: "title"}, {Name: "Status", Type: "select"}}}

	got := DescribeRow(db, map[string]any{"Task": "Ship v1"})
	assert.Equal(t, "Task: Ship v1", got)
}

func TestMemorySourceLookups(t *testing.T) {
	src := NewMemorySource()
	ctx := context.Background()

	_, err := src.GetPage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = src.GetBlock(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = src.GetDatabase(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	src.PutPage(Page{ID: "p1", Title: "Home"})
	p, err := src.GetPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Home", p.Title)
}

func TestListPageBlocksWalksChildren(t *testing.T) {
	src := NewMemorySource()
	src.PutPage(Page{ID: "p1", BlockIDs: []string{"b1", "b3"}})
	src.PutBlock(Block{ID: "b1", Kind: KindToggle, Children: []string{"b2"}})
	src.PutBlock(Block{ID: "b2", Kind: KindParagraph})
	src.PutBlock(Block{ID: "b3", Kind: KindParagraph})

	blocks, err := src.ListPageBlocks(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "b1", blocks[0].ID)
	assert.Equal(t, "b2", blocks[1].ID, "children come right after their parent")
	assert.Equal(t, "b3", blocks[2].ID)
}

func TestLoadFixture(t *testing.T) {
	f := fixture{
		Pages:  []Page{{ID: "p1", WorkspaceID: "ws-1", Title: "Notes", BlockIDs: []string{"b1"}}},
		Blocks: []Block{{ID: "b1", PageID: "p1", Kind: KindParagraph, Properties: map[string]any{"text": "hi"}}},
		Databases: []Database{{
			ID: "db-1", Title: "Tasks",
			Columns: []Column{{Name: "Task", Type: "title"}},
			Rows:    []map[string]any{{"Task": "Ship"}},
		}},
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "workspace.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	src, err := LoadFixture(path)
	require.NoError(t, err)

	ctx := context.Background()
	p, err := src.GetPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Notes", p.Title)
	db, err := src.GetDatabase(ctx, "db-1")
	require.NoError(t, err)
	require.Len(t, db.Rows, 1)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
