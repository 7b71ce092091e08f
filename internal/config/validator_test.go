package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("default config should validate cleanly, got %d errors: %v", len(errs), ValidationErrors(errs))
	}
}

func TestConfig_Validate_Session(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "concurrency below minimum",
			mutate:    func(c *Config) { c.Session.MaxConcurrentRequests = 0 },
			wantField: "session.max_concurrent_requests",
		},
		{
			name:      "concurrency above maximum",
			mutate:    func(c *Config) { c.Session.MaxConcurrentRequests = 6 },
			wantField: "session.max_concurrent_requests",
		},
		{
			name:      "zero turn timeout",
			mutate:    func(c *Config) { c.Session.TurnTimeoutSeconds = 0 },
			wantField: "session.turn_timeout_seconds",
		},
		{
			name:      "negative progress delay",
			mutate:    func(c *Config) { c.Session.ProgressDelayMs = -10 },
			wantField: "session.progress_delay_ms",
		},
		{
			name:      "zero debate rounds",
			mutate:    func(c *Config) { c.Session.DebateRounds = 0 },
			wantField: "session.debate_rounds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assertFieldError(t, cfg.Validate(), tt.wantField)
		})
	}
}

func TestConfig_Validate_Guard(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "zero max rounds",
			mutate:    func(c *Config) { c.Guard.MaxRounds = 0 },
			wantField: "guard.max_rounds",
		},
		{
			name: "message cap below concurrency",
			mutate: func(c *Config) {
				c.Session.MaxConcurrentRequests = 5
				c.Guard.MaxMessagesPerRound = 4
			},
			wantField: "guard.max_messages_per_round",
		},
		{
			name:      "loop threshold of one",
			mutate:    func(c *Config) { c.Guard.LoopThreshold = 1 },
			wantField: "guard.loop_threshold",
		},
		{
			name:      "negative cooldown",
			mutate:    func(c *Config) { c.Guard.CooldownMs = -1 },
			wantField: "guard.cooldown_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assertFieldError(t, cfg.Validate(), tt.wantField)
		})
	}
}

func TestConfig_Validate_Responder(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty base URL",
			mutate:    func(c *Config) { c.Responder.BaseURL = "" },
			wantField: "responder.base_url",
		},
		{
			name:      "relative base URL",
			mutate:    func(c *Config) { c.Responder.BaseURL = "localhost:1234" },
			wantField: "responder.base_url",
		},
		{
			name:      "empty model",
			mutate:    func(c *Config) { c.Responder.Model = "" },
			wantField: "responder.model",
		},
		{
			name:      "temperature out of range",
			mutate:    func(c *Config) { c.Responder.Temperature = 2.5 },
			wantField: "responder.temperature",
		},
		{
			name:      "zero max tokens",
			mutate:    func(c *Config) { c.Responder.MaxTokens = 0 },
			wantField: "responder.max_tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assertFieldError(t, cfg.Validate(), tt.wantField)
		})
	}
}

func TestConfig_Validate_StoreAndVote(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "postgres"
	assertFieldError(t, cfg.Validate(), "store.backend")

	cfg = Default()
	cfg.Vote.LowAgreement = 1.5
	assertFieldError(t, cfg.Validate(), "vote.low_agreement")

	cfg = Default()
	cfg.Vote.PassMargin = -0.1
	assertFieldError(t, cfg.Validate(), "vote.pass_margin")
}

func TestConfig_Validate_Logging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	assertFieldError(t, cfg.Validate(), "logging.level")

	// Case-insensitive levels are accepted.
	cfg = Default()
	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("uppercase level should validate, got %v", ValidationErrors(errs))
	}
}

func assertFieldError(t *testing.T, errs []ValidationError, field string) {
	t.Helper()
	for _, e := range errs {
		if e.Field == field {
			return
		}
	}
	t.Errorf("expected a validation error for %s, got %v", field, ValidationErrors(errs))
}
