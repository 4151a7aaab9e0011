// Package app builds docsift's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsift/docsift/config"
	"github.com/docsift/docsift/internal/api"
	"github.com/docsift/docsift/internal/blob"
	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/embeddings"
	"github.com/docsift/docsift/internal/ingest"
	"github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/ollama"
	"github.com/docsift/docsift/internal/rag"
	"github.com/docsift/docsift/internal/vectorstore"
)

// fallbackModel is used when Ollama cannot be asked which models it has
const fallbackModel = "llama3.2"

// App holds the wired components shared by every command
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Documents db.DocumentStore
	Postgres  *db.DB
	Blobs     *blob.FS

	Embedder      embeddings.Embedder
	Ollama        *ollama.Client
	ModelSelector *ollama.ModelSelector
	Generator     *ollama.TextGenerator

	Processor *ingest.Processor
	Engine    *rag.QueryEngine
	Retriever *rag.Retriever

	closers []func() error
}

// New opens storage and builds the ingestion and query pipelines
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if err := a.openStorage(); err != nil {
		a.Close()
		return nil, err
	}

	backend, err := a.vectorBackend()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Embedder = embeddings.NewTextEmbedder(cfg.Ollama.BaseURL, cfg.Embeddings.TextModel, cfg.Ollama.Timeout)
	a.Ollama = ollama.NewClient(cfg.Ollama.BaseURL)
	a.ModelSelector = ollama.NewModelSelector(a.Ollama)

	model, err := a.ModelSelector.GetDefaultModel(ctx, cfg.Ollama.DefaultModel)
	if err != nil {
		model = cfg.Ollama.DefaultModel
		if model == "" {
			model = fallbackModel
		}
		log.Warn("could not pick a model from Ollama, using configured model", "model", model, "error", err)
	}
	a.Generator = ollama.NewTextGenerator(a.Ollama, model, cfg.Ollama.Timeout)

	manager := vectorstore.NewManager(backend, a.Embedder, log.With("component", "vectorstore"))

	extractor := documents.NewExtractor(
		documents.NewTesseractOCR("eng"),
		log.With("component", "extractor"),
		documents.WithOCRDPI(cfg.Processing.OCRDPI),
		documents.WithMinTextChars(cfg.Processing.MinTextChars),
	)
	chunker := documents.NewChunker(
		documents.WithChunkSize(cfg.Processing.ChunkSize),
		documents.WithOverlap(cfg.Processing.ChunkOverlap),
	)
	a.Processor = ingest.NewProcessor(
		a.Documents, extractor, chunker, manager, a.Blobs,
		log.With("component", "ingest"),
		ingest.WithReplaceOnReprocess(cfg.Processing.ReplaceOnReprocess),
	)

	a.Retriever = rag.NewRetriever(a.Documents, manager, a.Embedder, cfg.Processing.TopK, log.With("component", "retriever"))
	synth := rag.NewSynthesizer(a.Generator, log.With("component", "synthesizer"),
		rag.WithTemperature(cfg.LLM.Temperature),
		rag.WithMaxConcurrency(cfg.LLM.MaxConcurrency),
	)
	a.Engine = rag.NewQueryEngine(a.Retriever, a.Documents, synth, log.With("component", "query"))

	return a, nil
}

func (a *App) openStorage() error {
	cfg := a.Config

	blobs, err := blob.New(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open data dir: %w", err)
	}
	a.Blobs = blobs

	if cfg.Database.Driver == "postgres" || cfg.VectorStore.Backend == "pgvector" {
		pg, err := db.New(cfg.Database.ConnectionString)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.Postgres = pg
		a.closers = append(a.closers, pg.Close)
	}

	if cfg.Database.Driver == "postgres" {
		a.Documents = a.Postgres
		return nil
	}

	store, err := db.NewSQLiteStore(cfg.SQLitePath())
	if err != nil {
		return err
	}
	a.Documents = store
	a.closers = append(a.closers, store.Close)
	return nil
}

func (a *App) vectorBackend() (vectorstore.Backend, error) {
	switch a.Config.VectorStore.Backend {
	case "file":
		return vectorstore.NewFileBackend(a.Blobs), nil
	case "pgvector":
		if a.Postgres == nil {
			return nil, errors.New("pgvector backend needs a postgres connection")
		}
		return vectorstore.NewPGVectorBackend(a.Postgres), nil
	}
	return nil, fmt.Errorf("unknown vector store backend %q", a.Config.VectorStore.Backend)
}

// Migrate applies the Postgres schema. SQLite migrates itself on open.
func (a *App) Migrate(ctx context.Context) error {
	if a.Postgres == nil {
		a.Log.Info("no postgres configured, nothing to migrate")
		return nil
	}
	return a.Postgres.Migrate(ctx)
}

// Locker returns the Redis ingestion lock, or nil when Redis is not configured
func (a *App) Locker(ctx context.Context) (ingest.Locker, error) {
	if a.Config.Redis.URL == "" {
		return nil, nil
	}
	client, err := ingest.ConnectRedis(ctx, a.Config.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return ingest.NewRedisLocker(client, a.Config.Redis.LockTTL), nil
}

// Submitter picks the RabbitMQ publisher when a broker is configured and an
// in-process runner otherwise. stop releases whatever it started.
func (a *App) Submitter(ctx context.Context) (sub ingest.Submitter, stop func(), err error) {
	if url := a.Config.Queue.AMQPURL; url != "" {
		conn, err := ingest.DialAMQP(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		a.Log.Info("publishing ingestion jobs to rabbitmq", "queue", a.Config.Queue.QueueName)
		return ingest.NewPublisher(conn, a.Config.Queue.QueueName), func() { _ = conn.Close() }, nil
	}

	locker, err := a.Locker(ctx)
	if err != nil {
		return nil, nil, err
	}
	var opts []ingest.RunnerOption
	if locker != nil {
		opts = append(opts, ingest.WithLocker(locker))
	}
	runner := ingest.NewRunner(a.Processor, a.Config.Processing.Workers, a.Log.With("component", "runner"), opts...)
	return runner, runner.Close, nil
}

// Worker builds a RabbitMQ consumer that runs the processor
func (a *App) Worker(ctx context.Context) (*ingest.Worker, func(), error) {
	if a.Config.Queue.AMQPURL == "" {
		return nil, nil, errors.New("queue.amqp_url is not configured")
	}
	locker, err := a.Locker(ctx)
	if err != nil {
		return nil, nil, err
	}
	conn, err := ingest.DialAMQP(ctx, a.Config.Queue.AMQPURL)
	if err != nil {
		return nil, nil, err
	}
	w := ingest.NewWorker(conn, a.Processor, a.Config.Queue.QueueName, a.Log.With("component", "worker"), locker)
	return w, func() {
		w.Close()
		_ = conn.Close()
	}, nil
}

// Server builds the HTTP API around sub
func (a *App) Server(sub ingest.Submitter) *api.Server {
	return api.New(api.Deps{
		Documents: a.Documents,
		Blobs:     a.Blobs,
		Ingest:    sub,
		Query:     a.Engine,
		Pages:     a.Processor,
		TopK:      a.Config.Processing.TopK,
		Log:       a.Log.With("component", "api"),
	})
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
