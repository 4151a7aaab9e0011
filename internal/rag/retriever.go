package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/embeddings"
	"github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/vectorstore"
)

// DefaultTopK is the number of chunks retrieved per document
const DefaultTopK = 5

// StoreLoader opens per-document vector stores
type StoreLoader interface {
	Load(ctx context.Context, key string) (vectorstore.Store, bool, error)
}

// RetrievedChunk is a chunk returned by similarity search. Rank 0 is the
// closest chunk of its document.
type RetrievedChunk struct {
	documents.Chunk
	Rank     int     `json:"rank"`
	Distance float64 `json:"distance"`
}

// Retriever handles retrieval across per-document vector stores
type Retriever struct {
	docs     db.DocumentStore
	stores   StoreLoader
	embedder embeddings.Embedder
	topK     int
	log      *logger.Logger
}

// NewRetriever creates a new retriever. embedder must be the one used at indexing time.
func NewRetriever(docs db.DocumentStore, stores StoreLoader, embedder embeddings.Embedder, topK int, log *logger.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		docs:     docs,
		stores:   stores,
		embedder: embedder,
		topK:     topK,
		log:      log,
	}
}

// TopK returns the default number of chunks per document
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve finds the k closest chunks of every target document. A nil docIDs
// targets all searchable documents; an empty non-nil slice targets none.
// Documents without a store or without hits are left out of the result.
func (r *Retriever) Retrieve(ctx context.Context, question string, docIDs []uuid.UUID, k int) (map[uuid.UUID][]RetrievedChunk, error) {
	if k <= 0 {
		k = r.topK
	}

	targets, err := r.targets(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	results := make(map[uuid.UUID][]RetrievedChunk)
	if len(targets) == 0 {
		return results, nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	for _, doc := range targets {
		key := *doc.EmbeddingPath
		store, ok, err := r.stores.Load(ctx, key)
		if err != nil {
			r.log.Warn("skipping unreadable vector store", "document_id", doc.ID, "key", key, "error", err)
			continue
		}
		if !ok {
			r.log.Debug("no vector store for document", "document_id", doc.ID, "key", key)
			continue
		}

		hits, err := store.Search(ctx, queryEmbedding, k)
		if err != nil {
			return nil, fmt.Errorf("failed to search document %s: %w", doc.ID, err)
		}
		if len(hits) == 0 {
			continue
		}

		chunks := make([]RetrievedChunk, len(hits))
		for i, h := range hits {
			chunks[i] = RetrievedChunk{
				Chunk: documents.Chunk{
					DocID:     h.DocID,
					Page:      h.Page,
					Paragraph: h.Paragraph,
					Text:      h.Text,
				},
				Rank:     i,
				Distance: h.Distance,
			}
		}
		results[doc.ID] = chunks
	}

	return results, nil
}

// targets resolves which documents a query runs against
func (r *Retriever) targets(ctx context.Context, docIDs []uuid.UUID) ([]*db.Document, error) {
	var (
		docs []*db.Document
		err  error
	)
	switch {
	case docIDs == nil:
		docs, err = r.docs.GetAllDocuments(ctx)
	case len(docIDs) == 0:
		return nil, nil
	default:
		docs, err = r.docs.GetDocumentsByIDs(ctx, docIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve documents: %w", err)
	}

	searchable := docs[:0]
	for _, d := range docs {
		if d.Searchable() {
			searchable = append(searchable, d)
		}
	}
	return searchable, nil
}
