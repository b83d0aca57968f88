package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Experiment modes for model routing.
const (
	ModeSingle = "single"
	ModeAB     = "ab"
	ModeShadow = "shadow"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Experiment ExperimentConfig `mapstructure:"experiment"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Metering   MeteringConfig   `mapstructure:"metering"`

	// Pricing is resolved from PRICE_PROMPT_<MODEL> /
	// PRICE_COMPLETION_<MODEL> environment variables, USD per million
	// tokens, keyed by model name.
	Pricing map[string]ModelPricing `mapstructure:"-"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	// Global ingress guard.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	// Per-identity minute windows.
	UserPerMinute  int `mapstructure:"user_per_minute"`
	IPPerMinute    int `mapstructure:"ip_per_minute"`
	TokenPerMinute int `mapstructure:"token_per_minute"`
}

type OpenAIConfig struct {
	APIKey            string   `mapstructure:"api_key"`
	BaseURL           string   `mapstructure:"base_url"`
	TimeoutSeconds    int      `mapstructure:"timeout_seconds"`
	Verbosity         string   `mapstructure:"verbosity"`
	ReasoningEffort   string   `mapstructure:"reasoning_effort"`
	ReasoningFamilies []string `mapstructure:"reasoning_families"`
}

type ExperimentConfig struct {
	Mode           string `mapstructure:"mode"`
	PrimaryModel   string `mapstructure:"primary_model"`
	SecondaryModel string `mapstructure:"secondary_model"`
	TertiaryModel  string `mapstructure:"tertiary_model"`
	// ABSplit is the percentage of traffic the secondary model takes in
	// ab mode. Clamped to [0, 100] during validation.
	ABSplit int `mapstructure:"ab_split"`
	// ShadowTargets lists the models mirrored in the background lane when
	// mode is shadow. Empty means shadow mode serves the primary and
	// mirrors nothing.
	ShadowTargets []string `mapstructure:"shadow_targets"`
}

type BudgetConfig struct {
	DailyUSD float64 `mapstructure:"daily_usd"`
}

type CacheConfig struct {
	TTLSeconds      int `mapstructure:"ttl_seconds"`
	LockWaitSeconds int `mapstructure:"lock_wait_seconds"`
	LockTTLSeconds  int `mapstructure:"lock_ttl_seconds"`
}

type MeteringConfig struct {
	FreeMinutesPerMonth int `mapstructure:"free_minutes_per_month"`
}

type ModelPricing struct {
	PromptPerMillion     float64
	CompletionPerMillion float64
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./internal/config")

	// Default Values
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("database.dsn", "file:chronoverse.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("rate_limit.requests_per_second", 25.0)
	v.SetDefault("rate_limit.burst", 50)
	v.SetDefault("rate_limit.user_per_minute", 6)
	v.SetDefault("rate_limit.ip_per_minute", 60)
	v.SetDefault("rate_limit.token_per_minute", 60)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout_seconds", 60)
	v.SetDefault("openai.verbosity", "low")
	v.SetDefault("openai.reasoning_effort", "minimal")
	v.SetDefault("openai.reasoning_families", []string{"gpt-5"})
	v.SetDefault("experiment.mode", ModeSingle)
	v.SetDefault("experiment.primary_model", "gpt-5-mini")
	v.SetDefault("experiment.secondary_model", "")
	v.SetDefault("experiment.tertiary_model", "")
	v.SetDefault("experiment.ab_split", 0)
	v.SetDefault("experiment.shadow_targets", []string{})
	v.SetDefault("budget.daily_usd", 1.0)
	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("cache.lock_wait_seconds", 3)
	v.SetDefault("cache.lock_ttl_seconds", 10)
	v.SetDefault("metering.free_minutes_per_month", 300)

	// Environment Variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Env vars deliver list values as one CSV string.
	cfg.Experiment.ShadowTargets = splitList(cfg.Experiment.ShadowTargets)
	cfg.OpenAI.ReasoningFamilies = splitList(cfg.OpenAI.ReasoningFamilies)

	cfg.Pricing = resolvePricing(cfg.ActiveModels())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ActiveModels lists every model the current experiment mode can call:
// the primary, plus the secondary in ab mode, plus every shadow target
// in shadow mode.
func (c *Config) ActiveModels() []string {
	models := []string{c.Experiment.PrimaryModel}
	seen := map[string]bool{c.Experiment.PrimaryModel: true}

	if c.Experiment.Mode == ModeAB && c.Experiment.SecondaryModel != "" {
		if !seen[c.Experiment.SecondaryModel] {
			models = append(models, c.Experiment.SecondaryModel)
			seen[c.Experiment.SecondaryModel] = true
		}
	}
	if c.Experiment.Mode == ModeShadow {
		for _, m := range c.Experiment.ShadowTargets {
			if m != "" && !seen[m] {
				models = append(models, m)
				seen[m] = true
			}
		}
	}
	return models
}

// Validate enforces startup invariants and normalizes the AB split.
func (c *Config) Validate() error {
	switch c.Experiment.Mode {
	case ModeSingle, ModeAB, ModeShadow:
	default:
		return fmt.Errorf("invalid experiment mode %q (want single, ab or shadow)", c.Experiment.Mode)
	}

	// Only ab mode needs a second arm to route to. Shadow mode with no
	// targets is valid and simply mirrors nothing.
	if c.Experiment.Mode == ModeAB && c.Experiment.SecondaryModel == "" {
		return fmt.Errorf("experiment mode %q requires a secondary model", c.Experiment.Mode)
	}

	if c.Experiment.PrimaryModel == "" {
		return fmt.Errorf("primary model is required")
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key is required")
	}

	if c.Budget.DailyUSD < 0 {
		return fmt.Errorf("daily budget must not be negative")
	}

	if c.Experiment.ABSplit < 0 {
		c.Experiment.ABSplit = 0
	}
	if c.Experiment.ABSplit > 100 {
		c.Experiment.ABSplit = 100
	}

	return nil
}

// resolvePricing looks up per-model rates from the environment. The key
// is the model name upper-cased with every non-alphanumeric rune
// replaced by underscore: gpt-5-mini reads PRICE_PROMPT_GPT_5_MINI and
// PRICE_COMPLETION_GPT_5_MINI.
func resolvePricing(models []string) map[string]ModelPricing {
	pricing := make(map[string]ModelPricing)
	for _, model := range models {
		if model == "" {
			continue
		}
		safe := EnvSafeModelName(model)
		prompt, promptOK := readPrice("PRICE_PROMPT_" + safe)
		completion, completionOK := readPrice("PRICE_COMPLETION_" + safe)
		if !promptOK && !completionOK {
			continue
		}
		pricing[model] = ModelPricing{
			PromptPerMillion:     prompt,
			CompletionPerMillion: completion,
		}
	}
	return pricing
}

func readPrice(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// splitList flattens comma-separated entries and trims whitespace, so
// SHADOW_TARGETS="gpt-5-nano, gpt-4o-mini" yields two targets.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// EnvSafeModelName maps a model name onto its pricing env-var suffix.
func EnvSafeModelName(model string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(model) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
