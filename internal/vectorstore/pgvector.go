package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docsift/docsift/internal/db"
)

// PGVectorBackend keeps every store in the shared chunks table, partitioned by store_key
type PGVectorBackend struct {
	db *db.DB
}

var _ Backend = (*PGVectorBackend)(nil)

func NewPGVectorBackend(database *db.DB) *PGVectorBackend {
	return &PGVectorBackend{db: database}
}

func (b *PGVectorBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.db.CountChunks(ctx, key)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *PGVectorBackend) Open(_ context.Context, key string) (Store, error) {
	return &pgStore{db: b.db, key: key}, nil
}

func (b *PGVectorBackend) Append(ctx context.Context, key string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return b.db.InsertChunksBatch(ctx, chunkRows(key, entries))
}

// Replace deletes and inserts in one transaction
func (b *PGVectorBackend) Replace(ctx context.Context, key string, entries []Entry) error {
	return b.db.ReplaceChunks(ctx, key, chunkRows(key, entries))
}

func chunkRows(key string, entries []Entry) []*db.Chunk {
	rows := make([]*db.Chunk, 0, len(entries))
	for _, e := range entries {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			id = uuid.New()
		}
		vec := pgvector.NewVector(e.Vector)
		rows = append(rows, &db.Chunk{
			ID:         id,
			StoreKey:   key,
			DocumentID: e.DocID,
			Page:       e.Page,
			Paragraph:  e.Paragraph,
			Content:    e.Text,
			Generation: e.Generation,
			Embedding:  &vec,
		})
	}
	return rows
}

func (b *PGVectorBackend) Drop(ctx context.Context, key string) error {
	return b.db.DeleteChunks(ctx, key)
}

type pgStore struct {
	db  *db.DB
	key string
}

func (s *pgStore) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(vector)
	rows, err := s.db.SearchSimilarChunks(ctx, s.key, &vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", s.key, err)
	}
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{Entry: entryFromRow(r), Distance: r.Distance})
	}
	return hits, nil
}

func (s *pgStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.ChunksByStoreKey(ctx, s.key)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, entryFromRow(r))
	}
	return entries, nil
}

func (s *pgStore) Count(ctx context.Context) (int, error) {
	return s.db.CountChunks(ctx, s.key)
}

func entryFromRow(r *db.Chunk) Entry {
	e := Entry{
		ID:         r.ID.String(),
		DocID:      r.DocumentID,
		Page:       r.Page,
		Paragraph:  r.Paragraph,
		Text:       r.Content,
		Generation: r.Generation,
	}
	if r.Embedding != nil {
		e.Vector = r.Embedding.Slice()
	}
	return e
}
