package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/logger"
)

var (
	// ErrAlreadyProcessing is returned when a document is queued or running
	ErrAlreadyProcessing = errors.New("document is already being processed")
	// ErrRunnerClosed is returned by Submit after Close
	ErrRunnerClosed = errors.New("ingest runner is closed")
)

// Status is what a caller sees right after submitting a document
type Status string

const StatusProcessing Status = "processing"

// DocumentProcessor ingests one document
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, id uuid.UUID) error
}

// Submitter schedules background ingestion and returns immediately
type Submitter interface {
	Submit(ctx context.Context, id uuid.UUID) (Status, error)
}

// Locker guards a document across processes. ok is false when another
// holder has it.
type Locker interface {
	TryLock(ctx context.Context, id uuid.UUID) (unlock func(context.Context) error, ok bool, err error)
}

// Runner processes submitted documents on a bounded pool of goroutines
type Runner struct {
	proc   DocumentProcessor
	locker Locker
	log    *logger.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	closed   bool
}

var _ Submitter = (*Runner)(nil)

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithLocker adds a cross-process guard on top of the in-process one
func WithLocker(l Locker) RunnerOption {
	return func(r *Runner) {
		r.locker = l
	}
}

// NewRunner creates a runner that processes at most workers documents at once
func NewRunner(proc DocumentProcessor, workers int, log *logger.Logger, opts ...RunnerOption) *Runner {
	if workers <= 0 {
		workers = 1
	}
	r := &Runner{
		proc:     proc,
		log:      log,
		sem:      make(chan struct{}, workers),
		inFlight: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit schedules id and returns without waiting for it. Resubmitting a
// document that is queued or running fails with ErrAlreadyProcessing.
func (r *Runner) Submit(ctx context.Context, id uuid.UUID) (Status, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRunnerClosed
	}
	if _, busy := r.inFlight[id]; busy {
		r.mu.Unlock()
		return "", ErrAlreadyProcessing
	}
	r.inFlight[id] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	unlock := func(context.Context) error { return nil }
	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, id)
		if err != nil || !ok {
			r.finish(id)
			if err != nil {
				return "", err
			}
			return "", ErrAlreadyProcessing
		}
		unlock = release
	}

	go r.run(id, unlock)
	return StatusProcessing, nil
}

func (r *Runner) run(id uuid.UUID, unlock func(context.Context) error) {
	defer r.finish(id)

	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	// detached from the request that submitted it
	ctx := context.Background()
	if err := r.proc.ProcessDocument(ctx, id); err != nil {
		r.log.Warn("background ingestion failed", "document_id", id, "error", err)
	}
	if err := unlock(ctx); err != nil {
		r.log.Warn("failed to release ingest lock", "document_id", id, "error", err)
	}
}

func (r *Runner) finish(id uuid.UUID) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
	r.wg.Done()
}

// Busy reports whether id is queued or running in this process
func (r *Runner) Busy(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inFlight[id]
	return busy
}

// Close stops accepting work and waits for queued and running jobs
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
