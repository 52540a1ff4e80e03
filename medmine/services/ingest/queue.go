package ingest

import (
	"context"
	"errors"
	"sync"

	"medmine/medmine/utils/logging"
	"medmine/medmine/utils/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull   = errors.New("ingest queue is full")
	ErrQueueClosed = errors.New("ingest queue is closed")
)

// RowStore persists the rows of enqueued batches.
type RowStore interface {
	StoreRows(ctx context.Context, id uuid.UUID, rows []map[string]string) error
	MarkFailed(ctx context.Context, id uuid.UUID, detail string) error
}

type Job struct {
	BatchID  uuid.UUID
	FileName string
	Columns  []string
	Rows     []map[string]string
}

// Queue stores large batches in the background with a fixed pool of workers.
type Queue struct {
	store   RowStore
	broker  *Broker
	workers int
	jobs    chan Job

	mu     sync.Mutex
	closed bool
	g      *errgroup.Group
}

func NewQueue(store RowStore, broker *Broker, workers, capacity int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 64
	}
	return &Queue{
		store:   store,
		broker:  broker,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// Start launches the workers. They stop when ctx is done or after Close
// once the backlog is drained.
func (q *Queue) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			return q.work(gctx, worker)
		})
	}
	q.mu.Lock()
	q.g = g
	q.mu.Unlock()
}

// Enqueue never blocks: a full queue is reported as ErrQueueFull.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the workers.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	g := q.g
	q.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (q *Queue) work(ctx context.Context, worker int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-q.jobs:
			if !ok {
				return nil
			}
			q.run(ctx, worker, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, worker int, job Job) {
	defer logging.LogDuration(ctx, "ingest_store_rows")()
	id := job.BatchID.String()
	err := q.store.StoreRows(ctx, job.BatchID, job.Rows)
	if err != nil {
		logging.ErrorLogger.Error("batch storage failed",
			zap.String("batch_id", id),
			zap.Int("worker", worker),
			zap.Error(err),
		)
		detail := "failed to store rows: " + err.Error()
		if mErr := q.store.MarkFailed(context.WithoutCancel(ctx), job.BatchID, detail); mErr != nil {
			logging.ErrorLogger.Error("mark batch failed", zap.String("batch_id", id), zap.Error(mErr))
		}
		q.broker.Publish(types.BatchStatus{BatchID: id, Status: types.StatusFailed, RowsLoaded: len(job.Rows), Columns: job.Columns, Detail: detail})
		return
	}
	logging.AppLogger.Info("batch stored",
		zap.String("batch_id", id),
		zap.String("file", job.FileName),
		zap.Int("rows", len(job.Rows)),
		zap.Int("worker", worker),
	)
	q.broker.Publish(types.BatchStatus{BatchID: id, Status: types.StatusSuccess, RowsLoaded: len(job.Rows), Columns: job.Columns})
}
