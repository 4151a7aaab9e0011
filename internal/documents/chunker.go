package documents

import (
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize is the default number of characters per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of overlapping characters.
	DefaultChunkOverlap = 200
)

var blankLine = regexp.MustCompile(`\n[ \t\r]*\n`)

// separators in order of preference: paragraph, line, sentence, word
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits pages into paragraph-scoped, overlapping windows
type Chunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures the chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Ensure overlap doesn't exceed chunk size
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }
func (c *Chunker) Overlap() int   { return c.overlap }

// Paragraphs splits page text on blank lines, trimming and dropping empties
func Paragraphs(text string) []string {
	var out []string
	for _, p := range blankLine.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Split turns pages into chunks. Paragraph indices are 1-based per page.
func (c *Chunker) Split(pages []Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		for i, para := range Paragraphs(page.Text) {
			for _, window := range c.SplitText(para) {
				chunks = append(chunks, Chunk{
					DocID:     page.DocID,
					Page:      page.Number,
					Paragraph: i + 1,
					Text:      window,
				})
			}
		}
	}
	return chunks
}

// SplitText cuts text into windows of at most chunkSize characters. Each
// window after the first starts with the last overlap characters of the one
// before it. Cuts land just after the coarsest separator found in the back
// half of the window, falling back to a hard cut at the size limit.
func (c *Chunker) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.chunkSize {
		return []string{text}
	}

	var windows []string
	start := 0
	for {
		end := start + c.chunkSize
		if end >= n {
			windows = append(windows, string(runes[start:]))
			break
		}
		end = c.cutPoint(runes, start, end)
		windows = append(windows, string(runes[start:end]))
		start = end - c.overlap
	}
	return windows
}

// cutPoint finds where the window [start, limit) should end
func (c *Chunker) cutPoint(runes []rune, start, limit int) int {
	minCut := start + c.overlap + 1
	if half := start + c.chunkSize/2; half > minCut {
		minCut = half
	}
	if minCut > limit {
		return limit
	}

	for _, sep := range separators {
		if p := lastSeparatorEnd(runes, sep, minCut, limit); p > 0 {
			return p
		}
	}
	return limit
}

// lastSeparatorEnd returns the largest index p in [lo, hi] such that sep ends
// right before p, or -1.
func lastSeparatorEnd(runes []rune, sep string, lo, hi int) int {
	s := []rune(sep)
	for p := hi; p >= lo; p-- {
		if p < len(s) {
			break
		}
		match := true
		for k := range s {
			if runes[p-len(s)+k] != s[k] {
				match = false
				break
			}
		}
		if match {
			return p
		}
	}
	return -1
}
