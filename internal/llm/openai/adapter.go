package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chronoverse/chronoverse-api/internal/httpclient"
	"github.com/chronoverse/chronoverse-api/internal/llm"
	"go.uber.org/zap"
)

// Options configures the adapter. Verbosity and ReasoningEffort only apply
// to reasoning-family models; values outside the allow-sets are silently
// omitted from the request rather than sent upstream.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	// ReasoningFamilies lists model-id prefixes that take verbosity and
	// reasoning-effort controls instead of classical sampling parameters.
	ReasoningFamilies []string

	Verbosity       string // low | medium | high
	ReasoningEffort string // minimal | low | medium | high
}

type Adapter struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
}

var (
	allowedVerbosity = map[string]bool{"low": true, "medium": true, "high": true}
	allowedEffort    = map[string]bool{"minimal": true, "low": true, "medium": true, "high": true}

	// strippable names the only request parameters the single-retry
	// policy is allowed to remove after an upstream rejection.
	strippable = map[string]bool{"temperature": true, "text": true, "reasoning": true}
)

func NewAdapter(opts Options, logger *zap.Logger) (*Adapter, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if len(opts.ReasoningFamilies) == 0 {
		opts.ReasoningFamilies = []string{"gpt-5"}
	}
	return &Adapter{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}, nil
}

func (a *Adapter) isReasoningFamily(model string) bool {
	for _, prefix := range a.opts.ReasoningFamilies {
		if prefix != "" && strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Generate performs one Responses-API call with model-aware parameter
// shaping. If the upstream rejects a specific parameter, that parameter is
// stripped and the call retried exactly once; a second rejection is fatal.
func (a *Adapter) Generate(ctx context.Context, model, prompt string, opts llm.GenerateOptions) (*llm.Result, error) {
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 90
	}

	body := map[string]any{
		"model":             model,
		"input":             prompt,
		"max_output_tokens": opts.MaxOutputTokens,
	}
	paramsUsed := map[string]any{}

	if a.isReasoningFamily(model) {
		if allowedVerbosity[a.opts.Verbosity] {
			body["text"] = map[string]any{
				"verbosity": a.opts.Verbosity,
				"format":    map[string]any{"type": "text"},
			}
			paramsUsed["verbosity"] = a.opts.Verbosity
		}
		if allowedEffort[a.opts.ReasoningEffort] {
			body["reasoning"] = map[string]any{"effort": a.opts.ReasoningEffort}
			paramsUsed["reasoning_effort"] = a.opts.ReasoningEffort
		}
		paramsUsed["temperature"] = false
	} else if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
		paramsUsed["temperature"] = *opts.Temperature
	}

	retryCount := 0
	start := time.Now()
	raw, err := a.create(ctx, body)
	if err != nil {
		param, detail := classifyRejectedParam(err)
		if param == "" {
			return nil, &llm.UnavailableError{Err: err}
		}
		if _, present := body[param]; !present {
			return nil, &llm.RejectedParamError{Param: param, Detail: detail}
		}

		delete(body, param)
		paramsUsed[droppedKey(param)] = false
		retryCount = 1

		raw, err = a.create(ctx, body)
		if err != nil {
			if p2, d2 := classifyRejectedParam(err); p2 != "" {
				return nil, &llm.RejectedParamError{Param: p2, Detail: d2}
			}
			return nil, &llm.UnavailableError{Err: err}
		}
	}
	latencyMS := time.Since(start).Milliseconds()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &llm.UnavailableError{Err: fmt.Errorf("decode response: %w", err)}
	}

	text := strings.TrimSpace(ExtractText(&env))
	if text == "" {
		a.logger.Warn("no text extracted from upstream response",
			zap.String("model", model),
			zap.Bool("has_output_text", env.OutputText != ""),
			zap.Int("output_items", len(env.Output)),
			zap.Int("data_items", len(env.Data)),
		)
	}

	return &llm.Result{
		Text:             text,
		Model:            model,
		ResponseID:       env.ID,
		PromptTokens:     usageInt(env.Usage, "input_tokens", "prompt_tokens"),
		CompletionTokens: usageInt(env.Usage, "output_tokens", "completion_tokens"),
		ReasoningTokens:  reasoningTokens(env.Usage),
		LatencyMS:        latencyMS,
		RetryCount:       retryCount,
		ParamsUsed:       paramsUsed,
		Raw:              raw,
	}, nil
}

func (a *Adapter) create(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + a.opts.APIKey,
	}
	url := fmt.Sprintf("%s/responses", strings.TrimRight(a.opts.BaseURL, "/"))

	var raw json.RawMessage
	if err := httpclient.SendRequest(ctx, a.client, "POST", url, headers, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// upstreamErrorResponse mirrors the standard OpenAI error envelope.
type upstreamErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// classifyRejectedParam inspects an upstream error and returns the root
// request parameter it rejected, or "" when the failure is anything else.
// Older envelope versions omit error.param, so a message-substring
// fallback is kept for them.
func classifyRejectedParam(err error) (param, detail string) {
	var upstreamErr *httpclient.UpstreamError
	if !errors.As(err, &upstreamErr) {
		return "", ""
	}

	var apiErr upstreamErrorResponse
	if jsonErr := json.Unmarshal(upstreamErr.Body, &apiErr); jsonErr != nil {
		return "", ""
	}

	msg := apiErr.Error.Message
	code, _ := apiErr.Error.Code.(string)
	if code != "unsupported_parameter" &&
		!strings.Contains(msg, "Unsupported parameter") &&
		!strings.Contains(msg, "is not supported") {
		return "", ""
	}

	p := rootParam(apiErr.Error.Param)
	if p == "" {
		for _, candidate := range []string{"temperature", "text", "reasoning"} {
			if strings.Contains(msg, "'"+candidate+"'") {
				p = candidate
				break
			}
		}
	}
	if !strippable[p] {
		return "", ""
	}
	return p, msg
}

// rootParam maps nested rejections like "text.verbosity" to the request
// block we actually sent.
func rootParam(p string) string {
	if i := strings.Index(p, "."); i != -1 {
		return p[:i]
	}
	return p
}

// droppedKey is the params_used entry that records a stripped parameter.
func droppedKey(param string) string {
	switch param {
	case "text":
		return "verbosity"
	case "reasoning":
		return "reasoning_effort"
	default:
		return param
	}
}
