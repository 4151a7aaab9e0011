// Package ingest turns uploaded PDFs into searchable per-document vector
// stores, either in-process or through a RabbitMQ work queue.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/blob"
	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/vectorstore"
)

const pagesFile = "pages.json"

// StoreKey is the vector store key and embedding path of a document
func StoreKey(id uuid.UUID) string {
	return "embeddings/doc_" + id.String()
}

func pagesKey(id uuid.UUID) string {
	return StoreKey(id) + "/" + pagesFile
}

// PageExtractor reads the pages of a PDF
type PageExtractor interface {
	Extract(ctx context.Context, docID, path string) ([]documents.Page, error)
}

// Processor runs extraction, chunking and indexing for one document and
// records the outcome on its metadata record
type Processor struct {
	docs      db.DocumentStore
	extractor PageExtractor
	chunker   *documents.Chunker
	manager   *vectorstore.Manager
	blobs     *blob.FS
	replace   bool
	log       *logger.Logger
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithReplaceOnReprocess makes a successful reprocess swap out a document's
// previous entries. When off, entries from every run accumulate.
func WithReplaceOnReprocess(replace bool) ProcessorOption {
	return func(p *Processor) {
		p.replace = replace
	}
}

// NewProcessor creates a new document processor
func NewProcessor(
	docs db.DocumentStore,
	extractor PageExtractor,
	chunker *documents.Chunker,
	manager *vectorstore.Manager,
	blobs *blob.FS,
	log *logger.Logger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		docs:      docs,
		extractor: extractor,
		chunker:   chunker,
		manager:   manager,
		blobs:     blobs,
		replace:   true,
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDocument ingests the document with the given id. Failures after the
// record is found are stored on it (is_processed=false plus the message)
// and also returned.
func (p *Processor) ProcessDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	log := p.log.With("document_id", id, "file", doc.OriginalFilename)
	log.Info("processing document")

	pageCount, err := p.ingest(ctx, doc)
	if err != nil {
		log.Error("document processing failed", "error", err)
		// record the failure even if ctx was cancelled
		if markErr := p.MarkFailed(context.WithoutCancel(ctx), id, err.Error()); markErr != nil {
			log.Error("failed to record processing failure", "error", markErr)
		}
		return err
	}

	log.Info("document processed", "pages", pageCount)
	return nil
}

func (p *Processor) ingest(ctx context.Context, doc *db.Document) (int, error) {
	pages, err := p.extractor.Extract(ctx, doc.ID.String(), doc.FilePath)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.Split(pages)
	key := StoreKey(doc.ID)

	// embed before touching anything on disk so a provider failure leaves
	// the previous run's store and pages in place
	entries, err := p.manager.Embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(pages)
	if err != nil {
		return 0, fmt.Errorf("failed to encode pages: %w", err)
	}
	if err := p.blobs.Put(pagesKey(doc.ID), data); err != nil {
		return 0, fmt.Errorf("failed to store pages: %w", err)
	}

	if _, err := p.manager.Write(ctx, key, entries, p.replace); err != nil {
		return 0, err
	}

	if err := p.docs.MarkProcessed(ctx, doc.ID, len(pages), key); err != nil {
		return 0, err
	}
	return len(pages), nil
}

// MarkFailed stores reason as the document's processing error
func (p *Processor) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return p.docs.MarkFailed(ctx, id, reason)
}

// Pages returns the extracted pages of a document, empty when it has not
// been processed
func (p *Processor) Pages(ctx context.Context, id uuid.UUID) ([]documents.Page, error) {
	if _, err := p.docs.GetDocument(ctx, id); err != nil {
		return nil, err
	}

	data, err := p.blobs.Get(pagesKey(id))
	if errors.Is(err, os.ErrNotExist) {
		return []documents.Page{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}

	var pages []documents.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("failed to decode pages: %w", err)
	}
	return pages, nil
}
