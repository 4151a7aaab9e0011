package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document is the metadata record for an uploaded PDF
type Document struct {
	ID               uuid.UUID `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"file_path"`
	FileType         string    `json:"file_type"`
	FileSize         int64     `json:"file_size"`
	IsProcessed      bool      `json:"is_processed"`
	ProcessingError  *string   `json:"processing_error"`
	PageCount        *int      `json:"page_count"`
	EmbeddingPath    *string   `json:"embedding_path"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Searchable reports whether the document has a vector store to query
func (d *Document) Searchable() bool {
	return d.IsProcessed && d.EmbeddingPath != nil && *d.EmbeddingPath != ""
}

// NewDocument is the input for creating a document record at upload time
type NewDocument struct {
	Filename         string
	OriginalFilename string
	FilePath         string
	FileType         string
	FileSize         int64
}

// Chunk is a row of the pgvector-backed chunk table
type Chunk struct {
	ID         uuid.UUID
	StoreKey   string
	DocumentID string
	Page       int
	Paragraph  int
	Content    string
	Generation string
	Embedding  *pgvector.Vector
	Distance   float64
	CreatedAt  time.Time
}
