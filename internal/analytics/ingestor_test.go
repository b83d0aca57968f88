package analytics

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/internal/store"
	"github.com/chronoverse/chronoverse-api/internal/store/model"
)

// captureEvents is an in-memory store.EventRepository.
type captureEvents struct {
	mu     sync.Mutex
	events []*model.Event
}

func (c *captureEvents) Insert(ctx context.Context, event *model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) TodayCostSum(ctx context.Context, now time.Time) (float64, error) {
	return 0, nil
}

func (c *captureEvents) Recent(ctx context.Context, limit int) ([]model.Event, error) {
	return nil, nil
}

func (c *captureEvents) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (c *captureEvents) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type captureRepo struct {
	events *captureEvents
}

func (r *captureRepo) Events() store.EventRepository { return r.events }
func (r *captureRepo) Usage() store.UsageRepository  { return nil }
func (r *captureRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	return fn(r)
}
func (r *captureRepo) Close() error { return nil }

func event(n int) *model.Event {
	return &model.Event{
		TS:        time.Now().UTC().Format(model.TimestampLayout),
		RequestID: fmt.Sprintf("cv_%012d", n),
		Status:    "ok",
	}
}

func TestIngestorStopFlushesQueuedEvents(t *testing.T) {
	events := &captureEvents{}
	ing := NewIngestor(zap.NewNop(), &captureRepo{events: events})

	ing.Start(context.Background())
	for n := 0; n < 7; n++ {
		ing.Record(event(n))
	}
	ing.Stop()

	assert.Equal(t, 7, events.count())
}

func TestIngestorFlushesFullBatchesEarly(t *testing.T) {
	events := &captureEvents{}
	ing := NewIngestor(zap.NewNop(), &captureRepo{events: events})

	ing.Start(context.Background())
	defer ing.Stop()

	// One over the batch size forces a flush before any ticker fires.
	for n := 0; n < 51; n++ {
		ing.Record(event(n))
	}

	require.Eventually(t, func() bool {
		return events.count() >= 50
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngestorRecordAfterStopIsDropped(t *testing.T) {
	events := &captureEvents{}
	ing := NewIngestor(zap.NewNop(), &captureRepo{events: events})

	ing.Start(context.Background())
	ing.Record(event(0))
	ing.Stop()

	// A background lane finishing after drain must not panic and must
	// not resurrect the worker.
	require.NotPanics(t, func() {
		ing.Record(event(1))
	})
	assert.Equal(t, 1, events.count())

	// Stop is idempotent.
	require.NotPanics(t, ing.Stop)
}
