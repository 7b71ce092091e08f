package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/guard"
	"github.com/conclave-ai/conclave/internal/responder"
	"github.com/conclave-ai/conclave/internal/vote"
)

// Config represents the complete Conclave configuration
type Config struct {
	Session   SessionConfig   `mapstructure:"session"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Responder ResponderConfig `mapstructure:"responder"`
	Store     StoreConfig     `mapstructure:"store"`
	Vote      VoteConfig      `mapstructure:"vote"`
	Roster    RosterConfig    `mapstructure:"roster"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SessionConfig holds the defaults applied to sessions that do not
// override them per request.
type SessionConfig struct {
	// MaxConcurrentRequests is the number of councilor calls dispatched in
	// parallel within a round (min 1, max 5)
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`
	// TurnTimeoutSeconds is the per-turn responder deadline
	TurnTimeoutSeconds int `mapstructure:"turn_timeout_seconds"`
	// ProgressDelayMs is the presentation pause between phases (0 = none)
	ProgressDelayMs int `mapstructure:"progress_delay_ms"`
	// DebateRounds is the number of debate rounds before resolution
	DebateRounds int `mapstructure:"debate_rounds"`
	// EconomyMode requests shorter responses to cut token spend
	EconomyMode bool `mapstructure:"economy_mode"`
}

// GuardConfig holds the runaway-call protection limits
type GuardConfig struct {
	// MaxRounds caps completed rounds per session
	MaxRounds int `mapstructure:"max_rounds"`
	// MaxMessagesPerRound caps messages recorded within one round
	MaxMessagesPerRound int `mapstructure:"max_messages_per_round"`
	// MaxTokensPerMessage caps the token estimate of a single message
	MaxTokensPerMessage int `mapstructure:"max_tokens_per_message"`
	// CooldownMs is the minimum gap between identical calls
	CooldownMs int `mapstructure:"cooldown_ms"`
	// LoopWindowSeconds is the window for loop detection
	LoopWindowSeconds int `mapstructure:"loop_window_seconds"`
	// LoopThreshold is how many identical calls within the window trip
	// loop detection
	LoopThreshold int `mapstructure:"loop_threshold"`
	// HistorySize is the call fingerprint ring buffer capacity
	HistorySize int `mapstructure:"history_size"`
}

// ResponderConfig holds the connection settings for the model backend.
// The defaults target a local LM Studio server.
type ResponderConfig struct {
	// BaseURL is the OpenAI-compatible server root (default: http://localhost:1234)
	BaseURL string `mapstructure:"base_url"`
	// Model is the model identifier passed on each completion request
	Model string `mapstructure:"model"`
	// APIKey is sent as a bearer token when set; local servers need none.
	// Also read from the CONCLAVE_RESPONDER_API_KEY environment variable.
	APIKey string `mapstructure:"api_key"`
	// MaxTokens is the per-turn completion cap (default: 500)
	MaxTokens int `mapstructure:"max_tokens"`
	// Temperature is the sampling temperature (default: 0.7)
	Temperature float64 `mapstructure:"temperature"`
	// TimeoutSeconds is the HTTP request deadline (default: 60)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StoreConfig controls where sessions are persisted
type StoreConfig struct {
	// Backend selects the persistence backend: "file" or "sqlite"
	Backend string `mapstructure:"backend"`
	// Path is the session directory (file backend) or database file
	// (sqlite backend). Empty means the default under the data directory.
	// Supports ~ for home directory expansion.
	Path string `mapstructure:"path"`
}

// VoteConfig holds the tally thresholds
type VoteConfig struct {
	// PassMargin is how far weighted yeas must exceed weighted nays for a
	// decisive outcome (0 = any strict majority decides)
	PassMargin float64 `mapstructure:"pass_margin"`
	// LowAgreement is the consensus score below which the motion re-enters
	// debate (default: 0.2)
	LowAgreement float64 `mapstructure:"low_agreement"`
}

// RosterConfig controls which personas sit on the council
type RosterConfig struct {
	// File is a YAML roster definition overriding the built-in council.
	// Empty means the default roster. Supports ~ expansion.
	File string `mapstructure:"file"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory. Empty means the default under the data
	// directory. Supports ~ expansion.
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	gd := guard.DefaultConfig()
	sd := council.DefaultSettings()
	return &Config{
		Session: SessionConfig{
			MaxConcurrentRequests: sd.MaxConcurrentRequests,
			TurnTimeoutSeconds:    int(sd.TurnTimeout / time.Second),
			ProgressDelayMs:       0,
			DebateRounds:          sd.DebateRounds,
			EconomyMode:           false,
		},
		Guard: GuardConfig{
			MaxRounds:           gd.MaxRounds,
			MaxMessagesPerRound: gd.MaxMessagesPerRound,
			MaxTokensPerMessage: gd.MaxTokensPerMessage,
			CooldownMs:          int(gd.Cooldown / time.Millisecond),
			LoopWindowSeconds:   int(gd.LoopWindow / time.Second),
			LoopThreshold:       gd.LoopThreshold,
			HistorySize:         gd.HistorySize,
		},
		Responder: ResponderConfig{
			BaseURL:        "http://localhost:1234",
			Model:          "local-model",
			APIKey:         "",
			MaxTokens:      responder.DefaultMaxTokens,
			Temperature:    responder.DefaultTemperature,
			TimeoutSeconds: int(responder.DefaultTimeout / time.Second),
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "", // Empty means use default: <data_dir>/sessions
		},
		Vote: VoteConfig{
			PassMargin:   vote.DefaultConfig().PassMargin,
			LowAgreement: vote.DefaultConfig().LowAgreement,
		},
		Roster: RosterConfig{
			File: "",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "", // Empty means use default: <data_dir>/logs
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Session defaults
	viper.SetDefault("session.max_concurrent_requests", defaults.Session.MaxConcurrentRequests)
	viper.SetDefault("session.turn_timeout_seconds", defaults.Session.TurnTimeoutSeconds)
	viper.SetDefault("session.progress_delay_ms", defaults.Session.ProgressDelayMs)
	viper.SetDefault("session.debate_rounds", defaults.Session.DebateRounds)
	viper.SetDefault("session.economy_mode", defaults.Session.EconomyMode)

	// Guard defaults
	viper.SetDefault("guard.max_rounds", defaults.Guard.MaxRounds)
	viper.SetDefault("guard.max_messages_per_round", defaults.Guard.MaxMessagesPerRound)
	viper.SetDefault("guard.max_tokens_per_message", defaults.Guard.MaxTokensPerMessage)
	viper.SetDefault("guard.cooldown_ms", defaults.Guard.CooldownMs)
	viper.SetDefault("guard.loop_window_seconds", defaults.Guard.LoopWindowSeconds)
	viper.SetDefault("guard.loop_threshold", defaults.Guard.LoopThreshold)
	viper.SetDefault("guard.history_size", defaults.Guard.HistorySize)

	// Responder defaults
	viper.SetDefault("responder.base_url", defaults.Responder.BaseURL)
	viper.SetDefault("responder.model", defaults.Responder.Model)
	viper.SetDefault("responder.api_key", defaults.Responder.APIKey)
	viper.SetDefault("responder.max_tokens", defaults.Responder.MaxTokens)
	viper.SetDefault("responder.temperature", defaults.Responder.Temperature)
	viper.SetDefault("responder.timeout_seconds", defaults.Responder.TimeoutSeconds)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.path", defaults.Store.Path)

	// Vote defaults
	viper.SetDefault("vote.pass_margin", defaults.Vote.PassMargin)
	viper.SetDefault("vote.low_agreement", defaults.Vote.LowAgreement)

	// Roster defaults
	viper.SetDefault("roster.file", defaults.Roster.File)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// Settings converts the session section to runtime session defaults.
func (c *Config) Settings() council.Settings {
	return council.Settings{
		MaxConcurrentRequests: c.Session.MaxConcurrentRequests,
		TurnTimeout:           time.Duration(c.Session.TurnTimeoutSeconds) * time.Second,
		ProgressDelay:         time.Duration(c.Session.ProgressDelayMs) * time.Millisecond,
		DebateRounds:          c.Session.DebateRounds,
		EconomyMode:           c.Session.EconomyMode,
	}
}

// GuardConfig converts the guard section to runtime protection limits.
// MaxDepth is derived from the session concurrency: the depth counter
// tracks in-flight calls, so it must admit at least one full parallel
// round or the scheduler would trip the guard on its own dispatches.
func (c *Config) GuardConfig() guard.Config {
	depth := c.Session.MaxConcurrentRequests
	if d := guard.DefaultConfig().MaxDepth; depth < d {
		depth = d
	}
	return guard.Config{
		MaxDepth:            depth,
		MaxRounds:           c.Guard.MaxRounds,
		MaxMessagesPerRound: c.Guard.MaxMessagesPerRound,
		MaxTokensPerMessage: c.Guard.MaxTokensPerMessage,
		Cooldown:            time.Duration(c.Guard.CooldownMs) * time.Millisecond,
		LoopWindow:          time.Duration(c.Guard.LoopWindowSeconds) * time.Second,
		LoopThreshold:       c.Guard.LoopThreshold,
		HistorySize:         c.Guard.HistorySize,
	}
}

// ResponderConfig converts the responder section to backend settings.
// An empty api_key falls back to the CONCLAVE_RESPONDER_API_KEY
// environment variable.
func (c *Config) ResponderConfig() responder.OpenAIConfig {
	key := c.Responder.APIKey
	if key == "" {
		key = os.Getenv("CONCLAVE_RESPONDER_API_KEY")
	}
	return responder.OpenAIConfig{
		BaseURL:     c.Responder.BaseURL,
		Model:       c.Responder.Model,
		APIKey:      key,
		Temperature: c.Responder.Temperature,
		Timeout:     time.Duration(c.Responder.TimeoutSeconds) * time.Second,
	}
}

// VoteConfig converts the vote section to tally thresholds.
func (c *Config) VoteConfig() vote.Config {
	return vote.Config{
		PassMargin:   c.Vote.PassMargin,
		LowAgreement: c.Vote.LowAgreement,
	}
}

// ResolveStorePath returns the persistence location, applying the
// backend-specific default when store.path is unset.
func (c *Config) ResolveStorePath() string {
	if c.Store.Path != "" {
		return expandHome(c.Store.Path)
	}
	if c.Store.Backend == "sqlite" {
		return filepath.Join(DataDir(), "conclave.db")
	}
	return filepath.Join(DataDir(), "sessions")
}

// ResolveLogDir returns the log directory, or "" when file logging is
// disabled (the logger then writes to stderr).
func (c *Config) ResolveLogDir() string {
	if !c.Logging.Enabled {
		return ""
	}
	if c.Logging.Dir != "" {
		return expandHome(c.Logging.Dir)
	}
	return filepath.Join(DataDir(), "logs")
}

// ResolveRosterFile returns the roster path with ~ expanded, or "" when
// the built-in roster should be used.
func (c *Config) ResolveRosterFile() string {
	if c.Roster.File == "" {
		return ""
	}
	return expandHome(c.Roster.File)
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "conclave")
	}
	// Fall back to ~/.config/conclave
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conclave"
	}
	return filepath.Join(home, ".config", "conclave")
}

// DataDir returns the path to the user's data directory
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "conclave")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conclave"
	}
	return filepath.Join(home, ".local", "share", "conclave")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
