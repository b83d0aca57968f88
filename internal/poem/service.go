// Package poem is the generation pipeline: it turns a tone/timezone
// request into a cached, budget-gated, model-routed upstream call and
// always hands the caller a usable poem, degraded or not.
package poem

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/internal/config"
	"github.com/chronoverse/chronoverse-api/internal/directive"
	"github.com/chronoverse/chronoverse-api/internal/llm"
	"github.com/chronoverse/chronoverse-api/internal/pricing"
	"github.com/chronoverse/chronoverse-api/internal/store/cache"
	"github.com/chronoverse/chronoverse-api/internal/store/model"
	"github.com/chronoverse/chronoverse-api/pkg/api"
)

// Fallback poems served when generation cannot or should not happen.
const (
	budgetFallbackPoem = "The clock ticks on, a steady, rhythmic chime,\nBut our quill must rest—budget keeps the time."

	errorFallbackPoem = "The clock ticks on, a steady, rhythmic chime,\nBut the muse of code is lost in space and time.\nIt tried to write a verse for you, it's true,\nBut the server sprites had other things to do."
)

// BudgetReader answers the daily-spend query the budget gate needs.
type BudgetReader interface {
	TodayCostSum(ctx context.Context, now time.Time) (float64, error)
}

// EventSink receives one event per generation attempt without blocking.
type EventSink interface {
	Record(event *model.Event)
}

// Options tunes the pipeline. Zero values get sensible defaults in New.
type Options struct {
	Experiment      config.ExperimentConfig
	DailyBudgetUSD  float64
	CacheTTL        time.Duration
	LockWait        time.Duration
	LockTTL         time.Duration
	Temperature     float64
	MaxOutputTokens int
}

// Service orchestrates a single operation: Generate.
type Service struct {
	opts     Options
	adapter  llm.Provider
	store    cache.Store
	budget   BudgetReader
	events   EventSink
	selector *directive.Selector
	prices   *pricing.Table
	logger   *zap.Logger

	clock func() time.Time
	newID func() string
}

func New(opts Options, adapter llm.Provider, store cache.Store, budget BudgetReader,
	events EventSink, selector *directive.Selector, prices *pricing.Table, logger *zap.Logger) *Service {

	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 3 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 500
	}

	return &Service{
		opts:     opts,
		adapter:  adapter,
		store:    store,
		budget:   budget,
		events:   events,
		selector: selector,
		prices:   prices,
		logger:   logger,
		clock:    time.Now,
		newID:    newRequestID,
	}
}

func newRequestID() string {
	u := uuid.New()
	return "cv_" + hex.EncodeToString(u[:])[:12]
}

// Generate runs the full pipeline for one request. Upstream failures
// degrade to a fallback poem rather than an error; the only error
// returned is an unresolvable timezone, which request validation should
// have caught already.
func (s *Service) Generate(ctx context.Context, req api.PoemRequest, userID string) (*api.PoemResponse, error) {
	req.ApplyDefaults()

	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", req.Timezone, err)
	}

	reqID := s.newID()
	local := s.clock().In(loc)
	timeUsed := FormatClock(local, req.Format)
	daypart := DaypartFor(local)

	extraHint, directiveID := s.selector.Pick(MinuteOfDay(local), string(req.Tone), reqID)

	base := api.PoemResponse{
		TimeUsed:    timeUsed,
		Timezone:    req.Timezone,
		Tone:        req.Tone,
		Daypart:     daypart,
		RequestID:   reqID,
		DirectiveID: directiveID,
		ExtraHint:   extraHint,
	}

	// Budget gate. An unreadable spend total fails closed; serving free
	// fallbacks is cheaper than an unbounded upstream bill.
	spent, err := s.budget.TodayCostSum(ctx, s.clock())
	if err != nil {
		s.logger.Error("budget query failed, serving fallback", zap.Error(err))
		spent = s.opts.DailyBudgetUSD
	}
	if spent >= s.opts.DailyBudgetUSD {
		resp := s.fallback(base, budgetFallbackPoem)
		s.record(&resp, userID)
		return &resp, nil
	}

	cacheKey := local.Format("2006-01-02T15:04") + "|" + req.Timezone + "|" + string(req.Tone) + "|" + s.opts.Experiment.PrimaryModel

	if !req.ForceNew {
		if cached, ok := s.cachedResponse(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	prompt := BuildPrompt(StripMeridiem(timeUsed), req.Tone, daypart, extraHint)
	servingModel := ChooseModel(s.opts.Experiment, reqID)

	// Collapse concurrent generations of the same minute. On timeout,
	// whoever held the lock probably filled the cache; if not, degrade
	// instead of stampeding upstream.
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	lease, err := s.store.Acquire(lockCtx, "gen:"+cacheKey, s.opts.LockTTL)
	cancel()
	if err != nil {
		if !req.ForceNew {
			if cached, ok := s.cachedResponse(ctx, cacheKey); ok {
				return cached, nil
			}
		}
		s.logger.Warn("generation lock timed out", zap.String("key", cacheKey), zap.Error(err))
		resp := s.fallback(base, errorFallbackPoem)
		s.record(&resp, userID)
		return &resp, nil
	}
	defer func() { _ = lease.Release(context.Background()) }()

	// Double-check after winning the lock; a peer may have just written.
	if !req.ForceNew {
		if cached, ok := s.cachedResponse(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	res, err := s.adapter.Generate(ctx, servingModel, prompt, llm.GenerateOptions{
		MaxOutputTokens: s.opts.MaxOutputTokens,
		Temperature:     &s.opts.Temperature,
	})
	if err != nil {
		s.logger.Error("model call failed",
			zap.String("model", servingModel),
			zap.String("request_id", reqID),
			zap.Error(err))
		resp := s.fallback(base, errorFallbackPoem)
		s.record(&resp, userID)
		return &resp, nil
	}

	if strings.TrimSpace(res.Text) == "" {
		// Upstream succeeded but produced nothing usable. Keep the
		// telemetry, zero the cost, serve the fallback.
		s.logger.Warn("empty poem from model",
			zap.String("model", servingModel),
			zap.String("request_id", reqID))
		resp := s.fallback(base, errorFallbackPoem)
		resp.Model = res.Model
		resp.PromptTokens = res.PromptTokens
		resp.CompletionTokens = res.CompletionTokens
		resp.ReasoningTokens = res.ReasoningTokens
		resp.ResponseID = res.ResponseID
		resp.RetryCount = res.RetryCount
		resp.ParamsUsed = res.ParamsUsed
		resp.LatencyMS = res.LatencyMS
		s.record(&resp, userID)
		return &resp, nil
	}

	resp := base
	resp.Poem = res.Text
	resp.Model = res.Model
	resp.GeneratedAtISO = s.clock().UTC().Format(time.RFC3339)
	resp.Status = api.StatusOK
	resp.PromptTokens = res.PromptTokens
	resp.CompletionTokens = res.CompletionTokens
	resp.ReasoningTokens = res.ReasoningTokens
	resp.CostUSD = s.prices.CostUSD(res.Model, res.PromptTokens, res.CompletionTokens)
	resp.ResponseID = res.ResponseID
	resp.RetryCount = res.RetryCount
	resp.ParamsUsed = res.ParamsUsed
	resp.LatencyMS = res.LatencyMS

	// Only primary-model successes are cacheable; the cache key names
	// the primary, and degraded payloads must never be replayed.
	if res.Model == s.opts.Experiment.PrimaryModel && resp.Status == api.StatusOK {
		if err := s.store.Set(ctx, cacheKey, resp, s.opts.CacheTTL); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	s.record(&resp, userID)

	if s.opts.Experiment.Mode == config.ModeShadow && len(s.opts.Experiment.ShadowTargets) > 0 {
		go s.shadowCalls(s.opts.Experiment.ShadowTargets, prompt, &resp, userID)
	}

	return &resp, nil
}

// cachedResponse fetches and marks a cache hit. The stored payload is
// returned as-is apart from the cached flag, so repeat calls within the
// minute are byte-identical to the original.
func (s *Service) cachedResponse(ctx context.Context, key string) (*api.PoemResponse, bool) {
	var cached api.PoemResponse
	err := s.store.Get(ctx, key, &cached)
	if err != nil {
		if err != cache.ErrCacheMiss {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	cached.Cached = true
	return &cached, true
}

func (s *Service) fallback(base api.PoemResponse, poem string) api.PoemResponse {
	resp := base
	resp.Poem = poem
	resp.Status = api.StatusFallback
	resp.GeneratedAtISO = s.clock().UTC().Format(time.RFC3339)
	return resp
}

// shadowCalls mirrors the prompt to every shadow target purely for
// telemetry, one event per target. The caller's response has already
// been sent; a failed target is logged and skipped, the rest still run.
func (s *Service) shadowCalls(targets []string, prompt string, served *api.PoemResponse, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	for _, shadowModel := range targets {
		res, err := s.adapter.Generate(ctx, shadowModel, prompt, llm.GenerateOptions{
			MaxOutputTokens: s.opts.MaxOutputTokens,
			Temperature:     &s.opts.Temperature,
		})
		if err != nil {
			s.logger.Warn("shadow call failed",
				zap.String("model", shadowModel),
				zap.String("request_id", served.RequestID),
				zap.Error(err))
			continue
		}

		now := s.clock().UTC()
		s.events.Record(&model.Event{
			TS:               now.Format(model.TimestampLayout),
			RequestID:        served.RequestID,
			Status:           string(api.StatusShadow),
			Model:            res.Model,
			Tone:             string(served.Tone),
			Timezone:         served.Timezone,
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			ReasoningTokens:  res.ReasoningTokens,
			CostUSD:          s.prices.CostUSD(res.Model, res.PromptTokens, res.CompletionTokens),
			UserID:           userID,
			MinuteBucket:     now.Format("2006-01-02T15:04"),
			LatencyMS:        res.LatencyMS,
			ExtraJSON:        extraJSON(res.ParamsUsed, served.DirectiveID),
		})
	}
}

func (s *Service) record(resp *api.PoemResponse, userID string) {
	now := s.clock().UTC()
	s.events.Record(&model.Event{
		TS:               now.Format(model.TimestampLayout),
		RequestID:        resp.RequestID,
		Status:           string(resp.Status),
		Model:            resp.Model,
		Tone:             string(resp.Tone),
		Timezone:         resp.Timezone,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		ReasoningTokens:  resp.ReasoningTokens,
		CostUSD:          resp.CostUSD,
		Cached:           resp.Cached,
		UserID:           userID,
		MinuteBucket:     now.Format("2006-01-02T15:04"),
		LatencyMS:        resp.LatencyMS,
		ExtraJSON:        extraJSON(resp.ParamsUsed, resp.DirectiveID),
	})
}

func extraJSON(paramsUsed map[string]any, directiveID string) string {
	if len(paramsUsed) == 0 && directiveID == "" {
		return ""
	}
	payload, err := json.Marshal(map[string]any{
		"params_used":  paramsUsed,
		"directive_id": directiveID,
	})
	if err != nil {
		return ""
	}
	return string(payload)
}
