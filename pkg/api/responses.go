package api

// Status distinguishes a genuine generation from a degraded one.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFallback Status = "fallback"
	StatusError    Status = "error"
	// StatusShadow marks events written by background shadow calls. It
	// never appears in a caller-facing PoemResponse.
	StatusShadow Status = "shadow"
)

// PoemResponse is the full generation result. The same payload is what
// gets cached and what gets logged to the event store, so callers and
// analytics always see identical data.
type PoemResponse struct {
	Poem           string `json:"poem"`
	Model          string `json:"model,omitempty"`
	GeneratedAtISO string `json:"generated_at_iso"`
	TimeUsed       string `json:"time_used"`
	Timezone       string `json:"timezone"`
	Tone           Tone   `json:"tone"`
	Daypart        string `json:"daypart"`
	Cached         bool   `json:"cached"`
	Status         Status `json:"status"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	ReasoningTokens  int     `json:"reasoning_tokens"`
	CostUSD          float64 `json:"cost_usd"`

	RequestID  string         `json:"request_id"`
	ResponseID string         `json:"response_id,omitempty"`
	RetryCount int            `json:"retry_count"`
	ParamsUsed map[string]any `json:"params_used,omitempty"`
	LatencyMS  int64          `json:"latency_ms,omitempty"`

	DirectiveID string `json:"directive_id,omitempty"`
	ExtraHint   string `json:"extra_hint,omitempty"`
}

// ToneInfo pairs a tone label with the style description used in prompts.
type ToneInfo struct {
	Tone  Tone   `json:"tone"`
	Style string `json:"style"`
}
