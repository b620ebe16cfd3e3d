package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	settings, err := New("anthropic")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected anthropic, got %q", settings.LLM.Provider)
	}
	if settings.LLM.MaxTokens != 4096 {
		t.Errorf("expected default max tokens 4096, got %d", settings.LLM.MaxTokens)
	}
	if settings.Cache.QuizCapacity != 50 || settings.Cache.QuizTTL != 30*time.Minute {
		t.Errorf("unexpected quiz cache defaults: %+v", settings.Cache)
	}
	if settings.Cache.HealthCapacity != 100 || settings.Cache.HealthTTL != 15*time.Minute {
		t.Errorf("unexpected health cache defaults: %+v", settings.Cache)
	}
	if settings.Draft.TTL != 7*24*time.Hour || settings.Draft.MaxDrafts != 200 {
		t.Errorf("unexpected draft defaults: %+v", settings.Draft)
	}
	if settings.Draft.BatchDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms batch delay, got %v", settings.Draft.BatchDelay)
	}
	if settings.Scheduler.Workers != 3 || settings.Scheduler.MaxPerRun != 4 {
		t.Errorf("unexpected scheduler defaults: %+v", settings.Scheduler)
	}
	if settings.Remote.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", settings.Remote.MaxRetries)
	}
	if settings.Remote.GenerationTimeout != 120*time.Second || settings.Remote.DataTimeout != 30*time.Second {
		t.Errorf("unexpected timeouts: %+v", settings.Remote)
	}
	if settings.Remote.BreakerThreshold != 5 || settings.Remote.BreakerCooldown != 60*time.Second {
		t.Errorf("unexpected breaker defaults: %+v", settings.Remote)
	}
}

func TestNewReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "8192")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("ANTHROPIC_MODEL", "claude-haiku-4-20250514")
	t.Setenv("WP_BASE_URL", "https://blog.example")
	t.Setenv("WP_USERNAME", "editor")
	t.Setenv("CACHE_QUIZ_TTL", "10m")
	t.Setenv("DRAFT_MAX", "500")
	t.Setenv("BREAKER_COOLDOWN", "90s")

	settings, err := New("claude")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if settings.LLM.Provider != "anthropic" {
		t.Errorf("alias claude should normalize to anthropic, got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "claude-haiku-4-20250514" {
		t.Errorf("model env not honored, got %q", settings.LLM.Model)
	}
	if settings.LLM.MaxTokens != 8192 || settings.LLM.Temperature != 0.2 {
		t.Errorf("LLM overrides not applied: %+v", settings.LLM)
	}
	if settings.WordPress.BaseURL != "https://blog.example" || settings.WordPress.Username != "editor" {
		t.Errorf("wordpress overrides not applied: %+v", settings.WordPress)
	}
	if settings.Cache.QuizTTL != 10*time.Minute {
		t.Errorf("quiz TTL override not applied: %v", settings.Cache.QuizTTL)
	}
	if settings.Draft.MaxDrafts != 500 {
		t.Errorf("draft cap override not applied: %d", settings.Draft.MaxDrafts)
	}
	if settings.Remote.BreakerCooldown != 90*time.Second {
		t.Errorf("cooldown override not applied: %v", settings.Remote.BreakerCooldown)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New("skynet"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LLM_MAX_TOKENS", "lots"},
		{"LLM_TEMPERATURE", "warm"},
		{"DRAFT_TTL", "a week"},
		{"ANALYSIS_WORKERS", "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := New("openai")
			if err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should name the variable, got %v", err)
			}
		})
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gm-123")

	key, err := APIKeyFor("google")
	if err != nil {
		t.Fatalf("APIKeyFor failed: %v", err)
	}
	if key != "gm-123" {
		t.Errorf("expected gm-123, got %q", key)
	}

	t.Setenv("DEEPSEEK_API_KEY", "")
	if _, err := APIKeyFor("deepseek"); err == nil {
		t.Error("expected error for unset key")
	}
}

func TestSupportedProviders(t *testing.T) {
	got := SupportedProviders()
	if len(got) != 4 {
		t.Fatalf("expected 4 providers, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, p := range got {
		seen[p] = true
	}
	for _, want := range []string{"openai", "anthropic", "deepseek", "gemini"} {
		if !seen[want] {
			t.Errorf("missing provider %q", want)
		}
	}
}

func TestMustNewPanicsOnBadConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustNew("unknown-provider")
}
