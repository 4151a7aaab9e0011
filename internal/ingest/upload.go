package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/blob"
	"github.com/docsift/docsift/internal/db"
)

// UploadPrefix is the blob prefix uploaded files are stored under
const UploadPrefix = "uploads/"

// Register stores an uploaded file under a fresh uuid name and creates its
// unprocessed document record. name is the caller's original filename.
func Register(ctx context.Context, docs db.DocumentStore, blobs *blob.FS, name string, r io.Reader) (*db.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	stored := uuid.NewString() + ext
	key := UploadPrefix + stored

	size, err := blobs.PutReader(key, r)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	path, err := blobs.Path(key)
	if err != nil {
		return nil, err
	}

	return docs.CreateDocument(ctx, db.NewDocument{
		Filename:         stored,
		OriginalFilename: filepath.Base(name),
		FilePath:         path,
		FileType:         ext,
		FileSize:         size,
	})
}
