package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/logger"
)

// blockingProcessor holds every job until release is closed
type blockingProcessor struct {
	release chan struct{}
	started chan uuid.UUID
	err     error

	mu   sync.Mutex
	done []uuid.UUID
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{
		release: make(chan struct{}),
		started: make(chan uuid.UUID, 16),
	}
}

func (p *blockingProcessor) ProcessDocument(ctx context.Context, id uuid.UUID) error {
	p.started <- id
	<-p.release
	p.mu.Lock()
	p.done = append(p.done, id)
	p.mu.Unlock()
	return p.err
}

func (p *blockingProcessor) processed() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.done...)
}

func waitStarted(t *testing.T, p *blockingProcessor) uuid.UUID {
	t.Helper()
	select {
	case id := <-p.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
		return uuid.Nil
	}
}

func TestRunner_SubmitReturnsImmediately(t *testing.T) {
	proc := newBlockingProcessor()
	r := NewRunner(proc, 2, logger.Nop())
	id := uuid.New()

	status, err := r.Submit(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status)
	assert.Equal(t, id, waitStarted(t, proc))
	assert.True(t, r.Busy(id))

	close(proc.release)
	r.Close()
	assert.False(t, r.Busy(id))
	assert.Equal(t, []uuid.UUID{id}, proc.processed())
}

func TestRunner_RejectsConcurrentResubmit(t *testing.T) {
	proc := newBlockingProcessor()
	r := NewRunner(proc, 1, logger.Nop())
	id := uuid.New()
	ctx := context.Background()

	_, err := r.Submit(ctx, id)
	require.NoError(t, err)
	waitStarted(t, proc)

	_, err = r.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)

	// a different document queues behind the pool limit
	other := uuid.New()
	_, err = r.Submit(ctx, other)
	require.NoError(t, err)
	_, err = r.Submit(ctx, other)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)

	close(proc.release)
	r.Close()
	assert.ElementsMatch(t, []uuid.UUID{id, other}, proc.processed())

	// resubmitting after completion is allowed again, but not after Close
	_, err = r.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

func TestRunner_ResubmitAfterCompletion(t *testing.T) {
	proc := newBlockingProcessor()
	close(proc.release)
	r := NewRunner(proc, 1, logger.Nop())
	defer r.Close()
	id := uuid.New()

	_, err := r.Submit(context.Background(), id)
	require.NoError(t, err)
	waitStarted(t, proc)
	require.Eventually(t, func() bool { return !r.Busy(id) }, 5*time.Second, 5*time.Millisecond)

	_, err = r.Submit(context.Background(), id)
	require.NoError(t, err)
	waitStarted(t, proc)
}

func TestRunner_FailuresAreSwallowed(t *testing.T) {
	proc := newBlockingProcessor()
	proc.err = errors.New("extraction failed")
	close(proc.release)
	r := NewRunner(proc, 1, logger.Nop())

	status, err := r.Submit(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status)
	r.Close()
	assert.Len(t, proc.processed(), 1)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[uuid.UUID]bool
	err      error
	released int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[uuid.UUID]bool)}
}

func (l *fakeLocker) TryLock(_ context.Context, id uuid.UUID) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[id] {
		return nil, false, nil
	}
	l.held[id] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, id)
		l.released++
		return nil
	}, true, nil
}

func TestRunner_CrossProcessLock(t *testing.T) {
	proc := newBlockingProcessor()
	close(proc.release)
	locker := newFakeLocker()
	r := NewRunner(proc, 1, logger.Nop(), WithLocker(locker))
	ctx := context.Background()

	heldElsewhere := uuid.New()
	locker.held[heldElsewhere] = true
	_, err := r.Submit(ctx, heldElsewhere)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)
	assert.False(t, r.Busy(heldElsewhere))

	id := uuid.New()
	_, err = r.Submit(ctx, id)
	require.NoError(t, err)
	r.Close()

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Equal(t, 1, locker.released)
	assert.False(t, locker.held[id])
}

func TestRunner_LockErrorIsReturned(t *testing.T) {
	locker := newFakeLocker()
	locker.err = errors.New("redis unavailable")
	r := NewRunner(newBlockingProcessor(), 1, logger.Nop(), WithLocker(locker))
	id := uuid.New()

	_, err := r.Submit(context.Background(), id)
	assert.ErrorContains(t, err, "redis unavailable")
	assert.False(t, r.Busy(id))
	r.Close()
}
