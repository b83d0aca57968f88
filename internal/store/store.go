package store

import (
	"context"
	"time"

	"github.com/chronoverse/chronoverse-api/internal/store/model"
)

type contextKey string

// Identity values resolved by middleware and consumed by handlers and
// the rate limiter.
const (
	ContextKeyUserID   contextKey = "user_id"
	ContextKeyClientIP contextKey = "client_ip"
	ContextKeyToken    contextKey = "bearer_token"
)

// Repository is the main contract for the data layer.
type Repository interface {
	Events() EventRepository
	Usage() UsageRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

// EventRepository persists one row per upstream generation attempt and
// answers the budget query. Cache hits are served without a row.
type EventRepository interface {
	// Insert stores an event. Rows carrying an idempotency key that was
	// seen before are silently skipped.
	Insert(ctx context.Context, event *model.Event) error
	// TodayCostSum totals cost_usd for the UTC day containing now.
	TodayCostSum(ctx context.Context, now time.Time) (float64, error)
	// Recent returns the last N events, newest first.
	Recent(ctx context.Context, limit int) ([]model.Event, error)
	// PurgeOlderThan deletes events before the cutoff and reports how
	// many rows went away.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UsageRepository meters free-tier consumption as distinct active
// minutes per user.
type UsageRepository interface {
	// RecordMinute marks the minute bucket used for the user. Repeat
	// calls within the same minute are free.
	RecordMinute(ctx context.Context, userID, minuteBucket string) error
	// MonthlyMinutes counts distinct minutes the user consumed in the
	// month the prefix names (e.g. "2026-08").
	MonthlyMinutes(ctx context.Context, userID, monthPrefix string) (int, error)
}
