package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyInput(t *testing.T) {
	cfg := DefaultConfig()

	assert.Nil(t, Split("", cfg))
	assert.Nil(t, Split("   \n\t  \n", cfg))
}

func TestSplit_ShortInputSingleChunk(t *testing.T) {
	cfg := Config{ChunkSize: 100, Overlap: 10, PreserveParagraphs: true}

	chunks := Split("Just one short paragraph.", cfg)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Just one short paragraph.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 0, chunks[0].OverlapChars)
}

func TestSplit_Deterministic(t *testing.T) {
	cfg := Config{ChunkSize: 50, Overlap: 8, PreserveParagraphs: true, PreserveCodeBlocks: true}
	text := "First paragraph with some words.\n\nSecond paragraph that keeps going for a while longer.\n\nThird one."

	a := Split(text, cfg)
	b := Split(text, cfg)
	assert.Equal(t, a, b)
}

func TestSplit_ParagraphBoundary(t *testing.T) {
	// Given: two paragraphs where the second alone exceeds the chunk size
	text := "Para A.\n\nPara B is long enough to need its own chunk depending on size."
	cfg := Config{ChunkSize: 40, Overlap: 5, PreserveParagraphs: true}

	chunks := Split(text, cfg)

	// Then: the cut falls at the paragraph boundary, yielding two chunks
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Text, "Para A")
	assert.Contains(t, chunks[1].Text, "Para B")
	assert.Equal(t, 5, chunks[1].OverlapChars)
}

func TestSplit_Reconstruction(t *testing.T) {
	texts := []string{
		"Para A.\n\nPara B is long enough to need its own chunk depending on size.",
		strings.Repeat("A sentence here. ", 80),
		"Intro.\n\n```go\nfunc main() {}\n```\n\nOutro paragraph with more text following the code block.",
		strings.Repeat("x", 500), // no boundaries at all
	}

	for _, text := range texts {
		cfg := Config{ChunkSize: 60, Overlap: 10, PreserveParagraphs: true, PreserveCodeBlocks: true}
		chunks := Split(text, cfg)
		require.NotEmpty(t, chunks)

		// Trimming the recorded overlap from every successor chunk must
		// reconstruct the input exactly.
		var b strings.Builder
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, text[c.StartChar:c.EndChar], c.Text)
			b.WriteString(c.Text[c.OverlapChars:])
		}
		assert.Equal(t, text, b.String())
	}
}

func TestSplit_BoundaryRespect(t *testing.T) {
	text := strings.Repeat("Some prose sentence that runs on. ", 60)
	cfg := Config{ChunkSize: 120, Overlap: 20, PreserveParagraphs: true}

	chunks := Split(text, cfg)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), MaxChunkLen(cfg))
	}
}

func TestSplit_OverlapShared(t *testing.T) {
	text := strings.Repeat("Word after word goes here. ", 40)
	cfg := Config{ChunkSize: 100, Overlap: 15, PreserveParagraphs: true}

	chunks := Split(text, cfg)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		require.Equal(t, 15, cur.OverlapChars)

		// Leading overlap of each chunk equals the trailing text of its
		// predecessor.
		lead := cur.Text[:cur.OverlapChars]
		tail := prev.Text[len(prev.Text)-cur.OverlapChars:]
		assert.Equal(t, tail, lead)
	}
}

func TestSplit_CodeBlockKeptWhole(t *testing.T) {
	fence := "```go\n" + strings.Repeat("fmt.Println(\"line\")\n", 20) + "```\n"
	text := "Before the code.\n\n" + fence + "\nAfter the code block there is a closing paragraph."
	cfg := Config{ChunkSize: 80, Overlap: 10, PreserveParagraphs: true, PreserveCodeBlocks: true}

	chunks := Split(text, cfg)
	require.NotEmpty(t, chunks)

	// The fence exceeds ChunkSize, so exactly one chunk must contain the
	// entire fence; no chunk boundary may fall inside it.
	fenceStart := strings.Index(text, "```go")
	fenceEnd := strings.LastIndex(text, "```") + len("```\n")
	whole := 0
	for _, c := range chunks {
		core := c.StartChar + c.OverlapChars
		if core <= fenceStart && c.EndChar >= fenceEnd {
			whole++
		}
		// A core boundary strictly inside the fence would mean the block
		// was cut.
		if core > fenceStart && core < fenceEnd {
			t.Fatalf("chunk core starts inside fence at %d", core)
		}
	}
	assert.Equal(t, 1, whole)
}

func TestSplit_UnclosedFence(t *testing.T) {
	text := "Intro paragraph.\n\n```\nunterminated code block\nwith more lines\n"
	cfg := Config{ChunkSize: 30, Overlap: 5, PreserveParagraphs: true, PreserveCodeBlocks: true}

	chunks := Split(text, cfg)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[len(chunks)-1].Text, "with more lines")
}

func TestSplit_ConfigClamping(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero chunk size", Config{ChunkSize: 0, Overlap: 10}},
		{"negative chunk size", Config{ChunkSize: -5, Overlap: 10}},
		{"negative overlap", Config{ChunkSize: 100, Overlap: -1}},
		{"overlap exceeds chunk size", Config{ChunkSize: 100, Overlap: 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No error, no panic: invalid values clamp to defaults.
			chunks := Split("some text that is perfectly fine", tt.cfg)
			require.Len(t, chunks, 1)
		})
	}
}

func TestSplit_LongSentenceHardSplit(t *testing.T) {
	// One sentence far beyond tolerance must still be split, at whitespace.
	text := strings.Repeat("word ", 200) // ~1000 chars, no sentence ends
	cfg := Config{ChunkSize: 100, Overlap: 0, PreserveParagraphs: true}

	chunks := Split(text, cfg)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), MaxChunkLen(cfg))
	}
}
