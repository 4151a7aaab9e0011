// Package api exposes documents, ingestion and queries over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/blob"
	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/ingest"
	"github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/rag"
)

const (
	Version = "1.0.0"

	defaultMaxUpload = 64 << 20
)

// Querier answers questions over indexed documents
type Querier interface {
	ProcessUserQuery(ctx context.Context, question string, docIDs []uuid.UUID, k int) (*rag.QueryResult, error)
}

// PageReader returns the extracted pages of a document
type PageReader interface {
	Pages(ctx context.Context, id uuid.UUID) ([]documents.Page, error)
}

// Deps are the collaborators the HTTP layer maps requests onto
type Deps struct {
	Documents db.DocumentStore
	Blobs     *blob.FS
	Ingest    ingest.Submitter
	Query     Querier
	Pages     PageReader
	TopK      int
	MaxUpload int64
	Log       *logger.Logger
}

// Server holds the handlers
type Server struct {
	deps Deps
}

func New(deps Deps) *Server {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = defaultMaxUpload
	}
	return &Server{deps: deps}
}

// Router builds the chi router with every route mounted
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(allowAllOrigins)

	r.Get("/", s.handleRoot)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/documents/upload", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/documents/{id}/process", s.handleProcessDocument)
		r.Get("/documents/{id}/pages", s.handleDocumentPages)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/query", s.handleQuery)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func allowAllOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves the router on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Log.Info("docsift API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
