package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
)

// Dispatcher runs extraction submissions on a bounded worker pool, so a
// burst of drop-directory files or API calls does not fan out unbounded
// goroutines against the database.
type Dispatcher struct {
	service *Service
	workers int

	ch   chan SubmitExtractionInput
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

const defaultQueueSize = 256

func NewDispatcher(service *Service, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		service: service,
		workers: workers,
		ch:      make(chan SubmitExtractionInput, defaultQueueSize),
	}
}

// Start launches the worker pool. Calling Start more than once is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go func(workerID int) {
				defer d.wg.Done()
				workerCtx := logging.WithAttrs(ctx,
					slog.String("component", "pipeline.dispatcher"),
					slog.Int("worker_id", workerID),
				)
				logging.Info(workerCtx, "worker started")

				for input := range d.ch {
					runCtx := logging.WithAttrs(workerCtx,
						slog.String("run_id", uuid.NewString()),
						slog.String("source_job_id", input.SourceJobID),
					)
					if _, err := d.service.SubmitExtraction(runCtx, input); err != nil {
						logging.Error(runCtx, "extraction submission failed",
							slog.Any("err", errs.Loggable(err)))
						continue
					}
					logging.Info(runCtx, "extraction submission processed")
				}

				logging.Info(workerCtx, "worker stopped")
			}(i + 1)
		}
	})
}

// Enqueue hands a submission to the pool. A full queue blocks the caller
// instead of dropping work.
func (d *Dispatcher) Enqueue(ctx context.Context, input SubmitExtractionInput) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("dispatcher is shutting down")
	}
	select {
	case d.ch <- input:
	default:
		logging.Warn(ctx, "dispatcher queue full, applying backpressure",
			slog.String("source_job_id", input.SourceJobID))
		d.ch <- input
	}
	return nil
}

// Shutdown stops intake, drains queued submissions and waits for the
// workers, bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); d.wg.Wait() }()

	select {
	case <-ctx.Done():
		logging.Warn(ctx, "dispatcher shutdown interrupted")
	case <-done:
		logging.Info(ctx, "dispatcher drained")
	}
}
