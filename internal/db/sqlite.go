package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	is_processed INTEGER NOT NULL DEFAULT 0,
	processing_error TEXT,
	page_count INTEGER,
	embedding_path TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore is a DocumentStore backed by a local SQLite file
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (and creates if needed) the SQLite database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: sqlDB, path: path, now: time.Now}, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

const sqliteDocumentColumns = `id, filename, original_filename, file_path, file_type, file_size,
	is_processed, processing_error, page_count, embedding_path, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDocument(row rowScanner) (*Document, error) {
	var (
		doc                  Document
		id                   string
		processed            int
		procErr, embPath     sql.NullString
		pageCount            sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&id, &doc.Filename, &doc.OriginalFilename, &doc.FilePath, &doc.FileType, &doc.FileSize,
		&processed, &procErr, &pageCount, &embPath, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", id, err)
	}
	doc.ID = parsed
	doc.IsProcessed = processed != 0
	if procErr.Valid {
		doc.ProcessingError = &procErr.String
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		doc.PageCount = &n
	}
	if embPath.Valid {
		doc.EmbeddingPath = &embPath.String
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &doc, nil
}

func (s *SQLiteStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CreateDocument creates a new, unprocessed document record
func (s *SQLiteStore) CreateDocument(ctx context.Context, in NewDocument) (*Document, error) {
	id := uuid.New()
	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, original_filename, file_path, file_type, file_size, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), in.Filename, in.OriginalFilename, in.FilePath, in.FileType, in.FileSize, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return s.GetDocument(ctx, id)
}

// GetDocument retrieves a document by id
func (s *SQLiteStore) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := scanSQLiteDocument(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDocumentColumns+` FROM documents WHERE id = ?`, id.String(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetAllDocuments retrieves all documents, newest first
func (s *SQLiteStore) GetAllDocuments(ctx context.Context) ([]*Document, error) {
	return s.queryDocuments(ctx, `SELECT `+sqliteDocumentColumns+` FROM documents ORDER BY created_at DESC`)
}

// GetDocumentsByIDs retrieves the documents that exist among ids
func (s *SQLiteStore) GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return s.queryDocuments(ctx,
		`SELECT `+sqliteDocumentColumns+` FROM documents WHERE id IN (`+placeholders+`) ORDER BY created_at DESC`,
		args...,
	)
}

// MarkProcessed records a successful ingestion
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id uuid.UUID, pageCount int, embeddingPath string) error {
	return s.update(ctx, id,
		`UPDATE documents SET is_processed = 1, processing_error = NULL, page_count = ?, embedding_path = ?, updated_at = ?
		 WHERE id = ?`,
		pageCount, embeddingPath, s.timestamp(), id.String(),
	)
}

// MarkFailed records a failed ingestion
func (s *SQLiteStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.update(ctx, id,
		`UPDATE documents SET is_processed = 0, processing_error = ?, updated_at = ? WHERE id = ?`,
		reason, s.timestamp(), id.String(),
	)
}

func (s *SQLiteStore) update(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
