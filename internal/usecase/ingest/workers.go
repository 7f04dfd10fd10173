package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/metrics"
)

// Ingester processes a single event.
type Ingester interface {
	Ingest(ctx context.Context, ev event.Event) (*message.Message, error)
}

// Workers is a fixed pool draining a bounded queue of events acknowledged
// before processing (Slack deliveries).
type Workers struct {
	ingester Ingester
	workers  int
	queue    chan event.Event
	logger   *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorkers creates a pool of n workers over a queue of queueSize events.
func NewWorkers(ing Ingester, n, queueSize int, logger *zap.Logger) *Workers {
	if n <= 0 {
		n = 1
	}
	if queueSize <= 0 {
		queueSize = n
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workers{
		ingester: ing,
		workers:  n,
		queue:    make(chan event.Event, queueSize),
		logger:   logger,
	}
}

// Start launches the workers. ctx is passed to every Ingest call.
func (w *Workers) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.run(ctx, id)
		}(i)
	}
	w.logger.Info("ingest workers started",
		zap.Int("workers", w.workers), zap.Int("queue_size", cap(w.queue)))
}

// Submit enqueues ev without blocking. It returns domain.ErrQueueFull when the
// queue is at capacity or the pool is stopped.
func (w *Workers) Submit(ev event.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return fmt.Errorf("workers stopped: %w", domain.ErrQueueFull)
	}
	select {
	case w.queue <- ev:
		metrics.IngestQueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Stop rejects new events, drains the queue and waits for the workers.
func (w *Workers) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("ingest workers stopped",
		zap.Int64("processed", w.processed.Load()), zap.Int64("failed", w.failed.Load()))
}

// Processed returns how many queued events were ingested without error.
func (w *Workers) Processed() int64 { return w.processed.Load() }

// Failed returns how many queued events failed.
func (w *Workers) Failed() int64 { return w.failed.Load() }

func (w *Workers) run(ctx context.Context, id int) {
	for ev := range w.queue {
		metrics.IngestQueueDepth.Set(float64(len(w.queue)))
		if _, err := w.ingester.Ingest(ctx, ev); err != nil {
			w.failed.Add(1)
			// the delivery was already acknowledged and will not be retried
			w.logger.Warn("queued event dropped",
				zap.Int("worker", id),
				zap.String("external_id", ev.ExternalID()),
				zap.String("channel", ev.Channel()),
				zap.Error(err))
			continue
		}
		w.processed.Add(1)
	}
}
