package model

import (
	"database/sql"
	"time"
)

// TimestampLayout is how event timestamps are stored. RFC 3339 in UTC
// keeps lexicographic order equal to chronological order, so day and
// month windows are plain string range scans.
const TimestampLayout = time.RFC3339

// Event is one generation attempt: a fresh model call, a cache hit, a
// fallback, or a shadow-lane observation.
type Event struct {
	ID               int64          `db:"id" json:"id"`
	TS               string         `db:"ts_iso" json:"ts_iso"`
	RequestID        string         `db:"request_id" json:"request_id"`
	Status           string         `db:"status" json:"status"` // 'ok', 'fallback', 'error', 'shadow'
	Model            string         `db:"model" json:"model"`
	Tone             string         `db:"tone" json:"tone"`
	Timezone         string         `db:"timezone" json:"timezone"`
	PromptTokens     int            `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int            `db:"completion_tokens" json:"completion_tokens"`
	ReasoningTokens  int            `db:"reasoning_tokens" json:"reasoning_tokens"`
	CostUSD          float64        `db:"cost_usd" json:"cost_usd"`
	Cached           bool           `db:"cached" json:"cached"`
	UserID           string         `db:"user_id" json:"user_id"`
	MinuteBucket     string         `db:"minute_bucket" json:"minute_bucket"`
	LatencyMS        int64          `db:"latency_ms" json:"latency_ms"`
	IdempotencyKey   sql.NullString `db:"idempotency_key" json:"idempotency_key,omitempty"`
	ExtraJSON        string         `db:"extra_json" json:"extra_json,omitempty"`
}

// UsageMinute marks one distinct minute of free-tier consumption.
type UsageMinute struct {
	UserID       string `db:"user_id" json:"user_id"`
	MinuteBucket string `db:"minute_bucket" json:"minute_bucket"`
}
