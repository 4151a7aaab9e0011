package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced document does not exist
var ErrNotFound = errors.New("document not found")

// DocumentStore persists document metadata records. Updates are whole-row,
// last writer wins.
type DocumentStore interface {
	CreateDocument(ctx context.Context, in NewDocument) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	GetAllDocuments(ctx context.Context) ([]*Document, error)
	GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Document, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, pageCount int, embeddingPath string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Close() error
}

var (
	_ DocumentStore = (*DB)(nil)
	_ DocumentStore = (*SQLiteStore)(nil)
)
