package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const documentColumns = `id, filename, original_filename, file_path, file_type, file_size,
	is_processed, processing_error, page_count, embedding_path, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FilePath, &doc.FileType, &doc.FileSize,
		&doc.IsProcessed, &doc.ProcessingError, &doc.PageCount, &doc.EmbeddingPath,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func collectDocuments(rows pgx.Rows) ([]*Document, error) {
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CreateDocument creates a new, unprocessed document record
func (db *DB) CreateDocument(ctx context.Context, in NewDocument) (*Document, error) {
	doc, err := scanDocument(db.pool.QueryRow(ctx,
		`INSERT INTO documents (id, filename, original_filename, file_path, file_type, file_size)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+documentColumns,
		uuid.New(), in.Filename, in.OriginalFilename, in.FilePath, in.FileType, in.FileSize,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

// GetDocument retrieves a document by id
func (db *DB) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := scanDocument(db.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetAllDocuments retrieves all documents, newest first
func (db *DB) GetAllDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	return collectDocuments(rows)
}

// GetDocumentsByIDs retrieves the documents that exist among ids
func (db *DB) GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ANY($1) ORDER BY created_at DESC`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents by ids: %w", err)
	}
	return collectDocuments(rows)
}

// MarkProcessed records a successful ingestion
func (db *DB) MarkProcessed(ctx context.Context, id uuid.UUID, pageCount int, embeddingPath string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE documents
		 SET is_processed = TRUE, processing_error = NULL, page_count = $2, embedding_path = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, pageCount, embeddingPath,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// MarkFailed records a failed ingestion
func (db *DB) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE documents SET is_processed = FALSE, processing_error = $2, updated_at = NOW() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// InsertChunksBatch inserts multiple chunks in one round trip
func (db *DB) InsertChunksBatch(ctx context.Context, chunks []*Chunk) error {
	return sendChunkBatch(ctx, db.pool, chunks)
}

// ReplaceChunks swaps every chunk under storeKey for chunks in one transaction
func (db *DB) ReplaceChunks(ctx context.Context, storeKey string, chunks []*Chunk) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE store_key = $1`, storeKey); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := sendChunkBatch(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendChunkBatch(ctx context.Context, conn batchSender, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, store_key, document_id, page, paragraph, content, generation, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			chunk.ID, chunk.StoreKey, chunk.DocumentID, chunk.Page, chunk.Paragraph,
			chunk.Content, chunk.Generation, chunk.Embedding,
		)
	}
	br := conn.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// SearchSimilarChunks finds the chunks of one store closest to embedding by cosine distance
func (db *DB) SearchSimilarChunks(ctx context.Context, storeKey string, embedding *pgvector.Vector, limit int) ([]*Chunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, store_key, document_id, page, paragraph, content, generation, embedding,
		        embedding <=> $2 AS distance, created_at
		 FROM chunks
		 WHERE store_key = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		storeKey, embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(
			&chunk.ID, &chunk.StoreKey, &chunk.DocumentID, &chunk.Page, &chunk.Paragraph,
			&chunk.Content, &chunk.Generation, &chunk.Embedding, &chunk.Distance, &chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// ChunksByStoreKey returns every chunk of one store in insertion order
func (db *DB) ChunksByStoreKey(ctx context.Context, storeKey string) ([]*Chunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, store_key, document_id, page, paragraph, content, generation, embedding, created_at
		 FROM chunks WHERE store_key = $1 ORDER BY created_at, page, paragraph`,
		storeKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(
			&chunk.ID, &chunk.StoreKey, &chunk.DocumentID, &chunk.Page, &chunk.Paragraph,
			&chunk.Content, &chunk.Generation, &chunk.Embedding, &chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// CountChunks counts the chunks stored under storeKey
func (db *DB) CountChunks(ctx context.Context, storeKey string) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE store_key = $1`, storeKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// DeleteChunks removes every chunk stored under storeKey
func (db *DB) DeleteChunks(ctx context.Context, storeKey string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM chunks WHERE store_key = $1`, storeKey)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
