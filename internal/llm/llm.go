package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// GenerateOptions are the caller-tunable knobs for a single generation.
// Temperature is a pointer so "not supplied" is distinguishable from 0;
// reasoning-family models ignore it entirely.
type GenerateOptions struct {
	MaxOutputTokens int
	Temperature     *float64
}

// Result is the normalized outcome of one upstream call. Text may be
// empty: a structurally successful call with no extractable text is a
// valid result, not an error, and callers must treat it as a soft failure.
type Result struct {
	Text             string
	Model            string
	ResponseID       string
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	LatencyMS        int64
	RetryCount       int

	// ParamsUsed records the parameter set actually sent upstream. A
	// parameter stripped after an upstream rejection is present with the
	// value false.
	ParamsUsed map[string]any

	// Raw is the upstream payload, kept opaque for diagnostics only.
	Raw json.RawMessage
}

// Provider executes a single text-generation call against the upstream API.
type Provider interface {
	Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (*Result, error)
}

// RejectedParamError signals that the upstream declined a specific request
// parameter and the recovery retry also failed. The retry decision in the
// adapter is a pure match on this type, never string inspection by callers.
type RejectedParamError struct {
	Param  string
	Detail string
}

func (e *RejectedParamError) Error() string {
	return fmt.Sprintf("upstream rejected parameter %q: %s", e.Param, e.Detail)
}

// UnavailableError wraps any transport, timeout, or API failure that is
// not a parameter rejection.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
