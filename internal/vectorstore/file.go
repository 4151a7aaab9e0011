package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/docsift/docsift/internal/blob"
)

const indexFile = "index.json"

type fileIndex struct {
	Version    int     `json:"version"`
	Dimensions int     `json:"dimensions"`
	Entries    []Entry `json:"entries"`
}

// FileBackend stores each index as JSON at <key>/index.json in blob storage
// and searches it by brute force.
type FileBackend struct {
	blobs *blob.FS

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Backend = (*FileBackend)(nil)

func NewFileBackend(blobs *blob.FS) *FileBackend {
	return &FileBackend{blobs: blobs, locks: make(map[string]*sync.Mutex)}
}

func (b *FileBackend) lock(key string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[key]
	if !ok {
		l = &sync.Mutex{}
		b.locks[key] = l
	}
	return l
}

func indexKey(key string) string {
	return path.Join(key, indexFile)
}

func (b *FileBackend) Exists(_ context.Context, key string) (bool, error) {
	return b.blobs.Exists(indexKey(key)), nil
}

func (b *FileBackend) read(key string) (*fileIndex, error) {
	data, err := b.blobs.Get(indexKey(key))
	if err != nil {
		return nil, err
	}
	var idx fileIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("corrupt vector index %s: %w", key, err)
	}
	return &idx, nil
}

func (b *FileBackend) Open(_ context.Context, key string) (Store, error) {
	l := b.lock(key)
	l.Lock()
	defer l.Unlock()

	idx, err := b.read(key)
	if err != nil {
		return nil, err
	}
	return &memoryStore{entries: idx.Entries}, nil
}

func (b *FileBackend) Append(_ context.Context, key string, entries []Entry) error {
	l := b.lock(key)
	l.Lock()
	defer l.Unlock()

	idx, err := b.read(key)
	if errors.Is(err, os.ErrNotExist) {
		idx = &fileIndex{Version: 1}
	} else if err != nil {
		return err
	}
	return b.write(key, idx, entries)
}

// Replace swaps the whole index for entries in a single atomic write
func (b *FileBackend) Replace(_ context.Context, key string, entries []Entry) error {
	l := b.lock(key)
	l.Lock()
	defer l.Unlock()

	return b.write(key, &fileIndex{Version: 1}, entries)
}

func (b *FileBackend) write(key string, idx *fileIndex, entries []Entry) error {
	for _, e := range entries {
		if idx.Dimensions == 0 {
			idx.Dimensions = len(e.Vector)
		}
		if len(e.Vector) != idx.Dimensions {
			return fmt.Errorf("%w: store has %d, entry has %d", ErrDimensionMismatch, idx.Dimensions, len(e.Vector))
		}
	}
	idx.Entries = append(idx.Entries, entries...)

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to encode vector index: %w", err)
	}
	return b.blobs.Put(indexKey(key), data)
}

func (b *FileBackend) Drop(_ context.Context, key string) error {
	l := b.lock(key)
	l.Lock()
	defer l.Unlock()

	return b.blobs.Delete(indexKey(key))
}

// memoryStore is a snapshot of an index held in memory
type memoryStore struct {
	entries []Entry
}

func (s *memoryStore) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	return rankEntries(s.entries, vector, k)
}

func (s *memoryStore) Entries(_ context.Context) ([]Entry, error) {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *memoryStore) Count(_ context.Context) (int, error) {
	return len(s.entries), nil
}
