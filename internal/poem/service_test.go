package poem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/internal/config"
	"github.com/chronoverse/chronoverse-api/internal/directive"
	"github.com/chronoverse/chronoverse-api/internal/llm"
	"github.com/chronoverse/chronoverse-api/internal/pricing"
	"github.com/chronoverse/chronoverse-api/internal/store/cache"
	"github.com/chronoverse/chronoverse-api/internal/store/model"
	"github.com/chronoverse/chronoverse-api/pkg/api"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []string // models called, in order
	fn    func(model, prompt string) (*llm.Result, error)
}

func (f *fakeProvider) Generate(ctx context.Context, modelName, prompt string, opts llm.GenerateOptions) (*llm.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, modelName)
	f.mu.Unlock()
	return f.fn(modelName, prompt)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeBudget struct {
	sum float64
	err error
}

func (f *fakeBudget) TodayCostSum(ctx context.Context, now time.Time) (float64, error) {
	return f.sum, f.err
}

type fakeSink struct {
	mu     sync.Mutex
	events []*model.Event
}

func (f *fakeSink) Record(event *model.Event) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeSink) byStatus(status string) []*model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Event
	for _, e := range f.events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func okResult(modelName string) *llm.Result {
	return &llm.Result{
		Text:             "Half past ten, the kettle hums.",
		Model:            modelName,
		ResponseID:       "resp_1",
		PromptTokens:     100,
		CompletionTokens: 20,
		LatencyMS:        120,
		ParamsUsed:       map[string]any{"temperature": 0.8},
	}
}

type serviceFixture struct {
	svc      *Service
	provider *fakeProvider
	budget   *fakeBudget
	sink     *fakeSink
	store    *cache.MemoryStore
}

func newFixture(t *testing.T, exp config.ExperimentConfig) *serviceFixture {
	t.Helper()

	provider := &fakeProvider{fn: func(m, _ string) (*llm.Result, error) { return okResult(m), nil }}
	budget := &fakeBudget{sum: 0}
	sink := &fakeSink{}
	store := cache.NewMemoryStore()

	prices := pricing.NewTable(map[string]pricing.ModelPrice{
		"gpt-5-mini": {PromptPerMillion: 0.25, CompletionPerMillion: 2.0},
		"gpt-5-nano": {PromptPerMillion: 0.05, CompletionPerMillion: 0.4},
		"gpt-4o":     {PromptPerMillion: 2.5, CompletionPerMillion: 10.0},
	})

	svc := New(Options{
		Experiment:     exp,
		DailyBudgetUSD: 1.0,
		LockWait:       100 * time.Millisecond,
	}, provider, store, budget, sink, directive.NewSeededSelector(1), prices, zap.NewNop())

	svc.clock = func() time.Time {
		return time.Date(2026, 8, 27, 15, 30, 12, 0, time.UTC)
	}
	svc.newID = func() string { return "cv_a1b2c3d4e5f6" }

	return &serviceFixture{svc: svc, provider: provider, budget: budget, sink: sink, store: store}
}

func singleMode() config.ExperimentConfig {
	return config.ExperimentConfig{Mode: config.ModeSingle, PrimaryModel: "gpt-5-mini"}
}

func TestGenerateHappyPath(t *testing.T) {
	f := newFixture(t, singleMode())

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC", Format: "24h"}, "u1")
	require.NoError(t, err)

	assert.Equal(t, api.StatusOK, resp.Status)
	assert.Equal(t, "Half past ten, the kettle hums.", resp.Poem)
	assert.Equal(t, "gpt-5-mini", resp.Model)
	assert.Equal(t, "15:30", resp.TimeUsed)
	assert.Equal(t, "afternoon", resp.Daypart)
	assert.Equal(t, "cv_a1b2c3d4e5f6", resp.RequestID)
	assert.False(t, resp.Cached)
	assert.NotEmpty(t, resp.DirectiveID)

	// 100 prompt * 0.25 + 20 completion * 2.0, per million.
	assert.InDelta(t, 0.000065, resp.CostUSD, 1e-9)

	events := f.sink.byStatus("ok")
	require.Len(t, events, 1)
	assert.Equal(t, resp.CostUSD, events[0].CostUSD)
	assert.Equal(t, "u1", events[0].UserID)
}

func TestGenerateCacheHitIsByteIdenticalExceptCachedFlag(t *testing.T) {
	f := newFixture(t, singleMode())
	req := api.PoemRequest{Timezone: "UTC"}

	first, err := f.svc.Generate(context.Background(), req, "u1")
	require.NoError(t, err)
	second, err := f.svc.Generate(context.Background(), req, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, f.provider.callCount())
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)

	// Everything else matches, request id included.
	second.Cached = false
	assert.Equal(t, first, second)
}

func TestGenerateForceNewBypassesCache(t *testing.T) {
	f := newFixture(t, singleMode())

	_, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC", ForceNew: true}, "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, f.provider.callCount())
	assert.False(t, resp.Cached)
}

func TestGenerateBudgetGate(t *testing.T) {
	f := newFixture(t, singleMode())
	f.budget.sum = 1.0 // at the limit

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)

	assert.Equal(t, api.StatusFallback, resp.Status)
	assert.Equal(t, budgetFallbackPoem, resp.Poem)
	assert.Empty(t, resp.Model)
	assert.Zero(t, resp.CostUSD)
	assert.Equal(t, 0, f.provider.callCount())

	require.Len(t, f.sink.byStatus("fallback"), 1)
}

func TestGenerateBudgetQueryFailureFailsClosed(t *testing.T) {
	f := newFixture(t, singleMode())
	f.budget.err = errors.New("db locked")

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)

	assert.Equal(t, api.StatusFallback, resp.Status)
	assert.Equal(t, 0, f.provider.callCount())
}

func TestGenerateEmptyTextKeepsTelemetry(t *testing.T) {
	f := newFixture(t, singleMode())
	f.provider.fn = func(m, _ string) (*llm.Result, error) {
		return &llm.Result{
			Model:            m,
			ResponseID:       "resp_empty",
			PromptTokens:     55,
			CompletionTokens: 0,
			RetryCount:       1,
			LatencyMS:        80,
		}, nil
	}

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)

	assert.Equal(t, api.StatusFallback, resp.Status)
	assert.Equal(t, errorFallbackPoem, resp.Poem)
	assert.Equal(t, "gpt-5-mini", resp.Model)
	assert.Equal(t, 55, resp.PromptTokens)
	assert.Equal(t, 1, resp.RetryCount)
	assert.Equal(t, "resp_empty", resp.ResponseID)
	assert.Zero(t, resp.CostUSD)

	// Degraded payloads are never cached.
	_, err = f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.callCount())
}

func TestGenerateUpstreamErrorZeroesTelemetry(t *testing.T) {
	f := newFixture(t, singleMode())
	f.provider.fn = func(m, _ string) (*llm.Result, error) {
		return nil, &llm.UnavailableError{Err: errors.New("502")}
	}

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)

	assert.Equal(t, api.StatusFallback, resp.Status)
	assert.Equal(t, errorFallbackPoem, resp.Poem)
	assert.Empty(t, resp.Model)
	assert.Zero(t, resp.PromptTokens)
	assert.Zero(t, resp.CostUSD)
}

func TestGenerateSecondaryArmIsNotCached(t *testing.T) {
	f := newFixture(t, config.ExperimentConfig{
		Mode:           config.ModeAB,
		PrimaryModel:   "gpt-5-mini",
		SecondaryModel: "gpt-4o",
		ABSplit:        100, // every request routes to the secondary
	})

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)

	// No cache entry was written, so the next call hits upstream again.
	_, err = f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.callCount())
}

func TestGenerateShadowModeRecordsShadowEvent(t *testing.T) {
	f := newFixture(t, config.ExperimentConfig{
		Mode:          config.ModeShadow,
		PrimaryModel:  "gpt-5-mini",
		ShadowTargets: []string{"gpt-4o"},
	})

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)

	// The caller always gets the primary.
	assert.Equal(t, "gpt-5-mini", resp.Model)

	require.Eventually(t, func() bool {
		return len(f.sink.byStatus("shadow")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	shadow := f.sink.byStatus("shadow")[0]
	assert.Equal(t, "gpt-4o", shadow.Model)
	assert.Equal(t, resp.RequestID, shadow.RequestID)
	assert.Greater(t, shadow.CostUSD, 0.0)
}

func TestGenerateShadowModeMirrorsEveryTarget(t *testing.T) {
	f := newFixture(t, config.ExperimentConfig{
		Mode:          config.ModeShadow,
		PrimaryModel:  "gpt-5-mini",
		ShadowTargets: []string{"gpt-4o", "gpt-5-nano"},
	})

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-mini", resp.Model)

	require.Eventually(t, func() bool {
		return len(f.sink.byStatus("shadow")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	models := make(map[string]bool)
	for _, shadow := range f.sink.byStatus("shadow") {
		models[shadow.Model] = true
		assert.Equal(t, resp.RequestID, shadow.RequestID)
	}
	assert.Equal(t, map[string]bool{"gpt-4o": true, "gpt-5-nano": true}, models)

	// Primary serve plus one call per target.
	assert.Equal(t, 3, f.provider.callCount())
}

func TestGenerateShadowModeFailedTargetDoesNotStopTheRest(t *testing.T) {
	f := newFixture(t, config.ExperimentConfig{
		Mode:          config.ModeShadow,
		PrimaryModel:  "gpt-5-mini",
		ShadowTargets: []string{"gpt-4o", "gpt-5-nano"},
	})
	f.provider.fn = func(m, _ string) (*llm.Result, error) {
		if m == "gpt-4o" {
			return nil, &llm.UnavailableError{Err: errors.New("502")}
		}
		return okResult(m), nil
	}

	_, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.sink.byStatus("shadow")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "gpt-5-nano", f.sink.byStatus("shadow")[0].Model)
}

func TestGenerateShadowModeWithoutTargetsMirrorsNothing(t *testing.T) {
	f := newFixture(t, config.ExperimentConfig{
		Mode:         config.ModeShadow,
		PrimaryModel: "gpt-5-mini",
	})

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, api.StatusOK, resp.Status)

	// Give a stray background call time to show up; none should.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.provider.callCount())
	assert.Empty(t, f.sink.byStatus("shadow"))
}

func TestGenerateLockTimeoutServesCacheOrFallback(t *testing.T) {
	f := newFixture(t, singleMode())

	// Hold the generation lock so the request cannot win it.
	key := "gen:2026-08-27T15:30|UTC|Wistful|gpt-5-mini"
	lease, err := f.store.Acquire(context.Background(), key, time.Minute)
	require.NoError(t, err)
	defer func() { _ = lease.Release(context.Background()) }()

	resp, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, api.StatusFallback, resp.Status)
	assert.Equal(t, 0, f.provider.callCount())

	// With the cache filled meanwhile, the blocked request serves the
	// cached poem instead of degrading.
	cached := api.PoemResponse{Poem: "cached poem", Status: api.StatusOK, RequestID: "cv_000000000000"}
	require.NoError(t, f.store.Set(context.Background(), "2026-08-27T15:30|UTC|Wistful|gpt-5-mini", cached, time.Minute))

	resp, err = f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "UTC"}, "u1")
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, "cached poem", resp.Poem)
	assert.Equal(t, 0, f.provider.callCount())
}

func TestGenerateUnknownTimezone(t *testing.T) {
	f := newFixture(t, singleMode())

	_, err := f.svc.Generate(context.Background(), api.PoemRequest{Timezone: "Mars/Olympus_Mons"}, "u1")
	assert.Error(t, err)
}
