// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	WordPress WordPressConfig
	Cache     CacheConfig
	Draft     DraftConfig
	Scheduler SchedulerConfig
	Remote    RemoteConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// WordPressConfig holds the site connection details. AppPassword is a
// WordPress application password, not the account password.
type WordPressConfig struct {
	BaseURL     string
	Username    string
	AppPassword string
	PageSize    int
}

// CacheConfig holds capacity and TTL for the two response caches.
type CacheConfig struct {
	QuizCapacity   int
	QuizTTL        time.Duration
	HealthCapacity int
	HealthTTL      time.Duration
}

// DraftConfig holds draft store tuning.
type DraftConfig struct {
	Path       string
	BatchDelay time.Duration
	TTL        time.Duration
	MaxDrafts  int
}

// SchedulerConfig holds worker pool tuning.
type SchedulerConfig struct {
	Workers   int
	MaxPerRun int
}

// RemoteConfig holds call-layer tuning shared by generation and data
// callers.
type RemoteConfig struct {
	MaxRetries        int
	GenerationTimeout time.Duration
	DataTimeout       time.Duration
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o-mini", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-v3.2", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-3-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// LoadDotenv loads a .env file if present. Missing files are not an
// error; a malformed file is.
func LoadDotenv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// New creates settings for the specified provider, loading values from
// environment variables. Returns an error if the provider is unknown or
// environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	pageSize, err := getEnvInt("WP_PAGE_SIZE", 20)
	if err != nil {
		return Settings{}, err
	}

	quizCapacity, err := getEnvInt("CACHE_QUIZ_CAPACITY", 50)
	if err != nil {
		return Settings{}, err
	}
	quizTTL, err := getEnvDuration("CACHE_QUIZ_TTL", 30*time.Minute)
	if err != nil {
		return Settings{}, err
	}
	healthCapacity, err := getEnvInt("CACHE_HEALTH_CAPACITY", 100)
	if err != nil {
		return Settings{}, err
	}
	healthTTL, err := getEnvDuration("CACHE_HEALTH_TTL", 15*time.Minute)
	if err != nil {
		return Settings{}, err
	}

	draftPath := os.Getenv("DRAFT_DB_PATH")
	if draftPath == "" {
		draftPath = "quizforge-drafts.db"
	}
	batchDelay, err := getEnvDuration("DRAFT_BATCH_DELAY", 500*time.Millisecond)
	if err != nil {
		return Settings{}, err
	}
	draftTTL, err := getEnvDuration("DRAFT_TTL", 7*24*time.Hour)
	if err != nil {
		return Settings{}, err
	}
	maxDrafts, err := getEnvInt("DRAFT_MAX", 200)
	if err != nil {
		return Settings{}, err
	}

	workers, err := getEnvInt("ANALYSIS_WORKERS", 3)
	if err != nil {
		return Settings{}, err
	}
	maxPerRun, err := getEnvInt("ANALYSIS_MAX_PER_RUN", 4)
	if err != nil {
		return Settings{}, err
	}

	maxRetries, err := getEnvInt("REMOTE_MAX_RETRIES", 3)
	if err != nil {
		return Settings{}, err
	}
	generationTimeout, err := getEnvDuration("REMOTE_GENERATION_TIMEOUT", 120*time.Second)
	if err != nil {
		return Settings{}, err
	}
	dataTimeout, err := getEnvDuration("REMOTE_DATA_TIMEOUT", 30*time.Second)
	if err != nil {
		return Settings{}, err
	}
	breakerThreshold, err := getEnvInt("BREAKER_THRESHOLD", 5)
	if err != nil {
		return Settings{}, err
	}
	breakerCooldown, err := getEnvDuration("BREAKER_COOLDOWN", 60*time.Second)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		WordPress: WordPressConfig{
			BaseURL:     os.Getenv("WP_BASE_URL"),
			Username:    os.Getenv("WP_USERNAME"),
			AppPassword: os.Getenv("WP_APP_PASSWORD"),
			PageSize:    pageSize,
		},
		Cache: CacheConfig{
			QuizCapacity:   quizCapacity,
			QuizTTL:        quizTTL,
			HealthCapacity: healthCapacity,
			HealthTTL:      healthTTL,
		},
		Draft: DraftConfig{
			Path:       draftPath,
			BatchDelay: batchDelay,
			TTL:        draftTTL,
			MaxDrafts:  maxDrafts,
		},
		Scheduler: SchedulerConfig{
			Workers:   workers,
			MaxPerRun: maxPerRun,
		},
		Remote: RemoteConfig{
			MaxRetries:        maxRetries,
			GenerationTimeout: generationTimeout,
			DataTimeout:       dataTimeout,
			BreakerThreshold:  breakerThreshold,
			BreakerCooldown:   breakerCooldown,
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
