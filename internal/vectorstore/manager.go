package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/embeddings"
	"github.com/docsift/docsift/internal/logger"
)

// Manager embeds chunks and maintains per-document stores in a Backend
type Manager struct {
	backend  Backend
	embedder embeddings.Embedder
	log      *logger.Logger
}

// NewManager creates a manager; embedder must be the one used for queries
func NewManager(backend Backend, embedder embeddings.Embedder, log *logger.Logger) *Manager {
	return &Manager{backend: backend, embedder: embedder, log: log}
}

// CreateOrExtend embeds chunks and appends them to the store at key, creating
// it if needed. A Load after success sees old and new entries.
func (m *Manager) CreateOrExtend(ctx context.Context, key string, chunks []documents.Chunk) (Store, error) {
	entries, err := m.Embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return m.Write(ctx, key, entries, false)
}

// Replace embeds chunks and makes them the only contents of the store at
// key. Embedding runs first, so a provider failure leaves the old store as it was.
func (m *Manager) Replace(ctx context.Context, key string, chunks []documents.Chunk) (Store, error) {
	entries, err := m.Embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return m.Write(ctx, key, entries, true)
}

// Embed turns chunks into entries without touching any store. All entries
// from one call share a generation id.
func (m *Manager) Embed(ctx context.Context, chunks []documents.Chunk) ([]Entry, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		}
	}

	generation := uuid.NewString()
	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = Entry{
			ID:         uuid.NewString(),
			DocID:      c.DocID,
			Page:       c.Page,
			Paragraph:  c.Paragraph,
			Text:       c.Text,
			Generation: generation,
			Vector:     vectors[i],
		}
	}
	return entries, nil
}

// Write persists embedded entries at key, replacing the store's contents
// when replace is set and appending otherwise
func (m *Manager) Write(ctx context.Context, key string, entries []Entry, replace bool) (Store, error) {
	if replace {
		m.log.Info("replacing vector store", "key", key, "chunks", len(entries))
		if err := m.backend.Replace(ctx, key, entries); err != nil {
			return nil, fmt.Errorf("failed to persist vector store: %w", err)
		}
		return m.backend.Open(ctx, key)
	}

	exists, err := m.backend.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check vector store: %w", err)
	}
	if exists {
		m.log.Info("extending vector store", "key", key, "chunks", len(entries))
	} else {
		m.log.Info("creating vector store", "key", key, "chunks", len(entries))
	}

	if err := m.backend.Append(ctx, key, entries); err != nil {
		return nil, fmt.Errorf("failed to persist vector store: %w", err)
	}
	return m.backend.Open(ctx, key)
}

// Load opens the store at key; ok is false when none exists
func (m *Manager) Load(ctx context.Context, key string) (Store, bool, error) {
	exists, err := m.backend.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check vector store: %w", err)
	}
	if !exists {
		return nil, false, nil
	}
	store, err := m.backend.Open(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open vector store: %w", err)
	}
	return store, true, nil
}

// Reset removes every entry of the store at key
func (m *Manager) Reset(ctx context.Context, key string) error {
	if err := m.backend.Drop(ctx, key); err != nil {
		return fmt.Errorf("failed to reset vector store: %w", err)
	}
	return nil
}
