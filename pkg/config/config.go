// Package config loads Triangulum's settings from defaults, an optional .env
// file, environment variables and command line overrides, in increasing
// order of precedence.
package config

import "time"

// Config is the full application configuration.
type Config struct {
	Gemini  GeminiConfig  `koanf:"gemini"`
	Agent   AgentConfig   `koanf:"agent"`
	Sources SourcesConfig `koanf:"sources"`
	Cache   CacheConfig   `koanf:"cache"`
	Log     LogConfig     `koanf:"log"`
}

// GeminiConfig configures the reasoning oracle.
type GeminiConfig struct {
	APIKey      string  `koanf:"api_key"     validate:"required"`
	Model       string  `koanf:"model"       validate:"required"`
	Mode        string  `koanf:"mode"        validate:"oneof=react functions"`
	Temperature float32 `koanf:"temperature" validate:"gte=0,lte=2"`
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	MaxIterations      int           `koanf:"max_iterations"        validate:"min=1,max=50"`
	MinAnswerLength    int           `koanf:"min_answer_length"     validate:"min=0"`
	RateLimitRetries   int           `koanf:"rate_limit_retries"    validate:"min=0,max=10"`
	RateLimitBaseDelay time.Duration `koanf:"rate_limit_base_delay" validate:"min=0"`
}

// SourcesConfig configures the search backends.
type SourcesConfig struct {
	MaxResults    int           `koanf:"max_results"    validate:"min=1,max=20"`
	Retries       int           `koanf:"retries"        validate:"min=0,max=10"`
	BaseDelay     time.Duration `koanf:"base_delay"     validate:"min=0"`
	Timeout       time.Duration `koanf:"timeout"        validate:"min=0"`
	SummaryChars  int           `koanf:"summary_chars"  validate:"min=20"`
	RecencyFilter bool          `koanf:"recency_filter"`

	Wikipedia  Toggle        `koanf:"wikipedia"`
	DuckDuckGo Toggle        `koanf:"duckduckgo"`
	Scholar    ScholarConfig `koanf:"scholar"`
	ArXiv      Toggle        `koanf:"arxiv"`
	PubMed     PubMedConfig  `koanf:"pubmed"`
}

// Toggle turns a source on or off.
type Toggle struct {
	Enabled bool `koanf:"enabled"`
}

type ScholarConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`
}

// PubMedConfig configures NCBI E-utilities. PubMed is only registered when
// Email is set.
type PubMedConfig struct {
	Enabled bool   `koanf:"enabled"`
	Email   string `koanf:"email"   validate:"omitempty,email"`
	APIKey  string `koanf:"api_key"`
}

// CacheConfig configures the tool response cache.
type CacheConfig struct {
	Backend string        `koanf:"backend" validate:"oneof=none memory sqlite"`
	TTL     time.Duration `koanf:"ttl"     validate:"min=0"`
	Size    int           `koanf:"size"    validate:"min=1"`
	Path    string        `koanf:"path"    validate:"required_if=Backend sqlite"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// Default returns the built-in defaults. The API key has none.
func Default() Config {
	return Config{
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
			Mode:  "react",
		},
		Agent: AgentConfig{
			MaxIterations:      8,
			MinAnswerLength:    10,
			RateLimitRetries:   3,
			RateLimitBaseDelay: 2 * time.Second,
		},
		Sources: SourcesConfig{
			MaxResults:    3,
			Retries:       3,
			BaseDelay:     time.Second,
			Timeout:       15 * time.Second,
			SummaryChars:  250,
			RecencyFilter: true,
			Wikipedia:     Toggle{Enabled: true},
			DuckDuckGo:    Toggle{Enabled: true},
			Scholar:       ScholarConfig{Enabled: true},
			ArXiv:         Toggle{Enabled: true},
			PubMed:        PubMedConfig{Enabled: true},
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     15 * time.Minute,
			Size:    256,
			Path:    "data/triangulum.db",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}
