package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/internal/store"
	"github.com/chronoverse/chronoverse-api/internal/store/model"
)

// Ingestor handles the asynchronous persistence of generation events.
// Recording an event never blocks the request path; under sustained
// backlog events are dropped rather than queued unboundedly.
type Ingestor interface {
	Record(event *model.Event)
	Start(ctx context.Context)
	Stop()
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	eventChan chan *model.Event
	batchSize int
	flushTime time.Duration

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func NewIngestor(logger *zap.Logger, repo store.Repository) Ingestor {
	return &ingestor{
		logger:    logger,
		repo:      repo,
		eventChan: make(chan *model.Event, 10000),
		batchSize: 50,
		flushTime: 5 * time.Second,
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Record enqueues an event for persistence. The channel is never closed,
// so background lanes racing shutdown (a shadow call finishing during
// drain) drop their event instead of panicking.
func (i *ingestor) Record(event *model.Event) {
	select {
	case <-i.stopped:
		i.logger.Warn("Ingestor stopped, dropping event", zap.String("request_id", event.RequestID))
		return
	default:
	}

	select {
	case i.eventChan <- event:
	default:
		i.logger.Warn("Analytics buffer full, dropping event", zap.String("request_id", event.RequestID))
	}
}

func (i *ingestor) Start(ctx context.Context) {
	go i.worker(ctx)
}

// Stop signals the worker, waits for it to flush what was already
// queued, and returns. Safe to call more than once.
func (i *ingestor) Stop() {
	i.stopOnce.Do(func() { close(i.stopped) })
	<-i.done
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.done)

	batch := make([]*model.Event, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		for _, event := range batch {
			if err := i.repo.Events().Insert(context.Background(), event); err != nil {
				i.logger.Error("Failed to persist event", zap.String("request_id", event.RequestID), zap.Error(err))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-i.eventChan:
			batch = append(batch, event)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-i.stopped:
			// Drain what was queued before the stop signal, then leave.
			for {
				select {
				case event := <-i.eventChan:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		case <-ctx.Done():
			flush()
			return
		}
	}
}
