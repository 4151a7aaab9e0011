package rag

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/blob"
	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/embeddings/embeddingstest"
	"github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/vectorstore"
)

func chunk(page, paragraph int, text string) documents.Chunk {
	return documents.Chunk{DocID: "doc", Page: page, Paragraph: paragraph, Text: text}
}

// fakeGenerator answers prompts with respond and tracks concurrency
type fakeGenerator struct {
	respond func(prompt string) (string, error)

	mu          sync.Mutex
	prompts     []string
	temps       []float64
	inFlight    int
	maxInFlight int
	gate        chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.temps = append(f.temps, temperature)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.respond(prompt)
}

func (f *fakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func isThemePrompt(prompt string) bool {
	return strings.Contains(prompt, "Document Responses:")
}

type fixture struct {
	docs    *db.SQLiteStore
	manager *vectorstore.Manager
	emb     *embeddingstest.HashEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	docs, err := db.NewSQLiteStore(filepath.Join(dir, "docsift.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	blobs, err := blob.New(filepath.Join(dir, "data"))
	require.NoError(t, err)

	emb := embeddingstest.New()
	return &fixture{
		docs:    docs,
		manager: vectorstore.NewManager(vectorstore.NewFileBackend(blobs), emb, logger.Nop()),
		emb:     emb,
	}
}

// addDocument creates a document record, indexes texts as page 1 paragraphs
// and, when processed, marks it searchable
func (f *fixture) addDocument(t *testing.T, name string, processed bool, texts ...string) *db.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := f.docs.CreateDocument(ctx, db.NewDocument{
		Filename:         name + ".stored",
		OriginalFilename: name,
		FilePath:         "/uploads/" + name,
		FileType:         ".pdf",
		FileSize:         10,
	})
	require.NoError(t, err)

	key := "embeddings/doc_" + doc.ID.String()
	if len(texts) > 0 {
		chunks := make([]documents.Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = documents.Chunk{DocID: doc.ID.String(), Page: 1, Paragraph: i + 1, Text: text}
		}
		_, err := f.manager.CreateOrExtend(ctx, key, chunks)
		require.NoError(t, err)
	}
	if processed {
		require.NoError(t, f.docs.MarkProcessed(ctx, doc.ID, 1, key))
	}

	doc, err = f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	return doc
}

func (f *fixture) retriever(topK int) *Retriever {
	return NewRetriever(f.docs, f.manager, f.emb, topK, logger.Nop())
}
