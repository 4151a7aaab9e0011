// Package vectorstore keeps one embedding index per document. Indexes are
// append-only; Manager.Reset is the only way entries leave a store.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when vectors from different embedding spaces meet
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry is one indexed chunk
type Entry struct {
	ID         string    `json:"id"`
	DocID      string    `json:"doc_id"`
	Page       int       `json:"page"`
	Paragraph  int       `json:"paragraph"`
	Text       string    `json:"text"`
	Generation string    `json:"generation"`
	Vector     []float32 `json:"vector"`
}

// Hit is a search result; lower Distance is closer
type Hit struct {
	Entry
	Distance float64
}

// Store is a loaded per-document index
type Store interface {
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Entries(ctx context.Context) ([]Entry, error)
	Count(ctx context.Context) (int, error)
}

// Backend persists stores by key
type Backend interface {
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (Store, error)
	// Append adds entries to the store at key, creating it when absent.
	// Entries are durable once Append returns.
	Append(ctx context.Context, key string, entries []Entry) error
	// Replace makes entries the store's only contents. Readers see either
	// the old or the new entries.
	Replace(ctx context.Context, key string, entries []Entry) error
	Drop(ctx context.Context, key string) error
}

// CosineDistance returns 1 - cos(a, b); zero vectors are maximally distant
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// rankEntries scores every entry against vector and keeps the k closest
func rankEntries(entries []Entry, vector []float32, k int) ([]Hit, error) {
	if k <= 0 || len(entries) == 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != len(vector) {
			return nil, ErrDimensionMismatch
		}
		hits = append(hits, Hit{Entry: e, Distance: CosineDistance(vector, e.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
