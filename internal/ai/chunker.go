package ai

import (
	"strings"

	"github.com/xxxsen/ragchat/internal/model"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 50
	DefaultAppID        = "egune-test"
)

type chunkConfig struct {
	size    int
	overlap int
	appID   string
}

type ChunkOption func(c *chunkConfig)

func WithChunkSize(n int) ChunkOption {
	return func(c *chunkConfig) {
		c.size = n
	}
}

func WithOverlap(n int) ChunkOption {
	return func(c *chunkConfig) {
		c.overlap = n
	}
}

func WithAppID(id string) ChunkOption {
	return func(c *chunkConfig) {
		c.appID = id
	}
}

// Window is a half-open word range [Start, End).
type Window struct {
	Start int
	End   int
}

// Chunk splits text into overlapping word windows tagged with sourceID as the
// document path. It never fails: degenerate input yields an empty slice.
func Chunk(text string, sourceID string, opts ...ChunkOption) []model.ChunkRecord {
	cfg := &chunkConfig{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
		appID:   DefaultAppID,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	words := strings.Fields(CleanText(text))
	windows := Windows(len(words), cfg.size, cfg.overlap)
	chunks := make([]model.ChunkRecord, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, model.ChunkRecord{
			Content:      strings.Join(words[w.Start:w.End], " "),
			AppID:        cfg.appID,
			DocumentPath: sourceID,
		})
	}
	return chunks
}

// CleanText collapses every whitespace run into one space and trims the ends.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Windows computes the word windows for n words. Consecutive windows start
// size-overlap words apart; a start that would not move past the previous one
// is clamped to the previous end.
func Windows(n, size, overlap int) []Window {
	if n <= 0 {
		return []Window{}
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	var out []Window
	start := 0
	for start < n {
		end := min(start+size, n)
		out = append(out, Window{Start: start, End: end})
		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
