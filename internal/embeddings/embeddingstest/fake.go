// Package embeddingstest provides a deterministic in-process Embedder for tests.
package embeddingstest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// HashEmbedder maps each lowercase word to a bucket of a fixed-size vector.
// Texts sharing words end up close under cosine distance.
type HashEmbedder struct {
	Dims int
	// Err, when set, is returned by every call
	Err error

	mu    sync.Mutex
	calls int
}

func New() *HashEmbedder {
	return &HashEmbedder{Dims: 256}
}

// Calls reports how many texts have been embedded
func (h *HashEmbedder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if h.Err != nil {
		return nil, h.Err
	}
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	vec := make([]float32, h.Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.Dims)]++
	}
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
