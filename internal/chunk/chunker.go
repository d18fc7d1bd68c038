// Package chunk splits raw workspace text into overlapping, boundary-respecting
// spans used as the unit of embedding. Splitting is a pure function of
// (text, config): no time or randomness is involved, so identical input always
// yields an identical chunk list.
package chunk

import (
	"strings"
)

// Chunk size defaults. Character-based: roughly 4 chars per token, so 1000
// characters is in the 200-300 token range most embedding models favor.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Config controls how text is split.
type Config struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int

	// Overlap is the number of trailing characters from the previous chunk
	// repeated at the start of the next one.
	Overlap int

	// PreserveParagraphs prefers paragraph boundaries (blank lines) as cut
	// points before falling back to sentence and whitespace boundaries.
	PreserveParagraphs bool

	// PreserveCodeBlocks keeps fenced code blocks intact. A fence longer than
	// ChunkSize becomes its own oversized chunk instead of being cut.
	PreserveCodeBlocks bool
}

// DefaultConfig returns defaults suitable for workspace prose.
func DefaultConfig() Config {
	return Config{
		ChunkSize:          DefaultChunkSize,
		Overlap:            DefaultOverlap,
		PreserveParagraphs: true,
		PreserveCodeBlocks: true,
	}
}

// normalize clamps invalid config values to defaults instead of erroring.
func (c Config) normalize() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		c.Overlap = c.ChunkSize / 5
	}
	return c
}

// Chunk is one span of the source text. Text is always the exact substring
// text[StartChar:EndChar] of the input, so concatenating Text for chunk 0 and
// Text[OverlapChars:] for every later chunk reconstructs the input verbatim.
type Chunk struct {
	Index        int    // dense 0-based sequence per document
	Text         string // chunk content including leading overlap
	StartChar    int    // offset into the source text, inclusive
	EndChar      int    // offset into the source text, exclusive
	OverlapChars int    // leading characters shared with the previous chunk
}

// MaxChunkLen is the upper bound on produced chunk length for a config:
// ChunkSize plus tolerance (one extra ChunkSize for unsplittable sentences)
// plus the leading overlap. Fenced code blocks are exempt when
// PreserveCodeBlocks is set.
func MaxChunkLen(cfg Config) int {
	cfg = cfg.normalize()
	return 2*cfg.ChunkSize + cfg.Overlap
}

// Split divides text into chunks. Empty or whitespace-only input yields nil;
// any other input yields at least one chunk.
func Split(text string, cfg Config) []Chunk {
	cfg = cfg.normalize()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := cutPieces(text, cfg)
	cuts := packPieces(text, pieces, cfg)

	// cuts partitions [0, len(text)): chunk i covers [cuts[i], cuts[i+1]) plus
	// leading overlap pulled from the previous chunk's core.
	chunks := make([]Chunk, 0, len(cuts)-1)
	for i := 0; i < len(cuts)-1; i++ {
		coreStart, end := cuts[i], cuts[i+1]

		overlap := 0
		if i > 0 {
			overlap = cfg.Overlap
			// Clamp to the previous chunk's core so the shared text stays
			// inside the neighbor.
			if prev := coreStart - cuts[i-1]; overlap > prev {
				overlap = prev
			}
		}
		start := coreStart - overlap

		chunks = append(chunks, Chunk{
			Index:        i,
			Text:         text[start:end],
			StartChar:    start,
			EndChar:      end,
			OverlapChars: overlap,
		})
	}
	return chunks
}

// piece is a half-open span [start, end) that must not be cut further, plus
// whether it is an atomic fenced code block.
type piece struct {
	start, end int
	fence      bool
}

// cutPieces breaks text into indivisible pieces: fenced code blocks stay
// whole, paragraphs are split to sentences when oversized, and only a
// sentence longer than twice ChunkSize is hard-split at whitespace.
func cutPieces(text string, cfg Config) []piece {
	var fences []piece
	if cfg.PreserveCodeBlocks {
		fences = findFences(text)
	}

	var pieces []piece
	pos := 0
	for _, f := range fences {
		pieces = append(pieces, splitProse(text, pos, f.start, cfg)...)
		pieces = append(pieces, f)
		pos = f.end
	}
	pieces = append(pieces, splitProse(text, pos, len(text), cfg)...)
	return pieces
}

// findFences locates ``` fenced regions. An unclosed fence extends to the end
// of the text. Offsets include the fence lines themselves.
func findFences(text string) []piece {
	var fences []piece
	pos := 0
	for {
		open := indexFence(text, pos)
		if open < 0 {
			return fences
		}
		// Close fence is the next ``` line after the opening line.
		afterOpen := lineEnd(text, open)
		close := indexFence(text, afterOpen)
		end := len(text)
		if close >= 0 {
			end = lineEnd(text, close)
		}
		fences = append(fences, piece{start: open, end: end, fence: true})
		pos = end
	}
}

// indexFence returns the offset of the next line starting with ``` at or
// after pos, or -1.
func indexFence(text string, pos int) int {
	for pos <= len(text)-3 {
		atLineStart := pos == 0 || text[pos-1] == '\n'
		if atLineStart && strings.HasPrefix(text[pos:], "```") {
			return pos
		}
		next := strings.IndexByte(text[pos:], '\n')
		if next < 0 {
			return -1
		}
		pos += next + 1
	}
	return -1
}

// lineEnd returns the offset just past the newline terminating the line that
// starts at or contains pos.
func lineEnd(text string, pos int) int {
	if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(text)
}

// splitProse splits the non-fence span [from, to) into pieces.
func splitProse(text string, from, to int, cfg Config) []piece {
	if from >= to {
		return nil
	}

	var paragraphs []piece
	if cfg.PreserveParagraphs {
		paragraphs = splitAt(text, from, to, paragraphEnd)
	} else {
		paragraphs = []piece{{start: from, end: to}}
	}

	var pieces []piece
	for _, p := range paragraphs {
		if p.end-p.start <= cfg.ChunkSize {
			pieces = append(pieces, p)
			continue
		}
		// Oversized paragraph: recurse to sentence boundaries.
		for _, s := range splitAt(text, p.start, p.end, sentenceEnd) {
			if s.end-s.start <= 2*cfg.ChunkSize {
				pieces = append(pieces, s)
				continue
			}
			// A single unbreakable sentence beyond tolerance: hard-split at
			// whitespace near ChunkSize.
			pieces = append(pieces, hardSplit(text, s.start, s.end, cfg.ChunkSize)...)
		}
	}
	return pieces
}

// splitAt cuts [from, to) at every boundary reported by the boundary func,
// which returns the cut offset just past a boundary ending at or after i,
// or -1 if none.
func splitAt(text string, from, to int, boundary func(string, int, int) int) []piece {
	var pieces []piece
	start := from
	for start < to {
		cut := boundary(text, start, to)
		if cut < 0 || cut >= to {
			pieces = append(pieces, piece{start: start, end: to})
			break
		}
		pieces = append(pieces, piece{start: start, end: cut})
		start = cut
	}
	return pieces
}

// paragraphEnd returns the offset just past the next blank-line separator.
func paragraphEnd(text string, from, to int) int {
	i := strings.Index(text[from:to], "\n\n")
	if i < 0 {
		return -1
	}
	cut := from + i + 2
	// Swallow any further blank lines so they stay with the preceding piece.
	for cut < to && text[cut] == '\n' {
		cut++
	}
	return cut
}

// sentenceEnd returns the offset just past the next sentence terminator
// (., !, ? followed by whitespace) or line break.
func sentenceEnd(text string, from, to int) int {
	for i := from; i < to-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				return i + 2
			}
		case '\n':
			return i + 1
		}
	}
	return -1
}

// hardSplit cuts [from, to) into spans of at most size characters, preferring
// the last whitespace before the limit.
func hardSplit(text string, from, to, size int) []piece {
	var pieces []piece
	start := from
	for to-start > size {
		cut := start + size
		if ws := strings.LastIndexByte(text[start:cut], ' '); ws > 0 {
			cut = start + ws + 1
		}
		pieces = append(pieces, piece{start: start, end: cut})
		start = cut
	}
	pieces = append(pieces, piece{start: start, end: to})
	return pieces
}

// packPieces greedily accumulates pieces into chunk cores of at most
// ChunkSize characters and returns the cut offsets, beginning with 0 and
// ending with len(text). A piece that alone exceeds ChunkSize (oversized
// sentence or fenced code block) forms its own core.
func packPieces(text string, pieces []piece, cfg Config) []int {
	cuts := []int{0}
	curStart := 0
	curLen := 0

	for _, p := range pieces {
		pLen := p.end - p.start
		if curLen > 0 && curLen+pLen > cfg.ChunkSize {
			cuts = append(cuts, p.start)
			curStart = p.start
			curLen = 0
		}
		curLen = p.end - curStart
	}
	if len(text) > cuts[len(cuts)-1] {
		cuts = append(cuts, len(text))
	}
	return cuts
}
