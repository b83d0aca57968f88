package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chronoverse/chronoverse-api/internal/store"
	"github.com/chronoverse/chronoverse-api/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	// Create a repository instance that uses the transaction
	txRepo := &SqliteRepository{
		db:       r.db, // Keep the original DB handle
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Events() store.EventRepository {
	return &eventRepo{db: r.executor}
}

func (r *SqliteRepository) Usage() store.UsageRepository {
	return &usageRepo{db: r.executor}
}

type eventRepo struct {
	db DB
}

func (r *eventRepo) Insert(ctx context.Context, event *model.Event) error {
	// OR IGNORE makes replays of the same idempotency key a no-op via
	// the partial unique index.
	query := `
	INSERT OR IGNORE INTO events (
		ts_iso, request_id, status, model, tone, timezone,
		prompt_tokens, completion_tokens, reasoning_tokens,
		cost_usd, cached, user_id, minute_bucket, latency_ms,
		idempotency_key, extra_json
	) VALUES (
		:ts_iso, :request_id, :status, :model, :tone, :timezone,
		:prompt_tokens, :completion_tokens, :reasoning_tokens,
		:cost_usd, :cached, :user_id, :minute_bucket, :latency_ms,
		:idempotency_key, :extra_json
	)`
	_, err := r.db.NamedExecContext(ctx, query, event)
	return err
}

func (r *eventRepo) TodayCostSum(ctx context.Context, now time.Time) (float64, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var total float64
	query := `SELECT COALESCE(SUM(cost_usd), 0) FROM events WHERE ts_iso >= ? AND ts_iso < ?`
	err := r.db.GetContext(ctx, &total, query,
		dayStart.Format(model.TimestampLayout),
		dayEnd.Format(model.TimestampLayout))
	return total, err
}

func (r *eventRepo) Recent(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []model.Event
	query := `SELECT * FROM events ORDER BY id DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &events, query, limit)
	return events, err
}

func (r *eventRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE ts_iso < ?`,
		cutoff.UTC().Format(model.TimestampLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type usageRepo struct {
	db DB
}

func (r *usageRepo) RecordMinute(ctx context.Context, userID, minuteBucket string) error {
	query := `INSERT OR IGNORE INTO usage_events (user_id, minute_bucket) VALUES (?, ?)`
	_, err := r.db.ExecContext(ctx, query, userID, minuteBucket)
	return err
}

func (r *usageRepo) MonthlyMinutes(ctx context.Context, userID, monthPrefix string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM usage_events WHERE user_id = ? AND minute_bucket LIKE ?`
	err := r.db.GetContext(ctx, &count, query, userID, monthPrefix+"%")
	return count, err
}
