package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable that maps onto a config
// key, e.g. TRIANGULUM_AGENT_MAX_ITERATIONS -> agent.max_iterations.
const EnvPrefix = "TRIANGULUM_"

const (
	// APIKeyEnv holds the Gemini credential.
	APIKeyEnv = "GEMINI_API_KEY"
	// LegacyAPIKeyEnv is read when APIKeyEnv is not set.
	LegacyAPIKeyEnv = "Gemini_API"
)

// DefaultEnvFile is read when Options.EnvFile is empty. It may be missing.
const DefaultEnvFile = ".env"

// ErrMissingAPIKey is returned by Load when no Gemini credential is found.
var ErrMissingAPIKey = fmt.Errorf("missing Gemini API key: set %s (or %s) in the environment or a .env file", APIKeyEnv, LegacyAPIKeyEnv)

// Options controls where Load looks.
type Options struct {
	// EnvFile is a dotenv file whose variables are added to the environment
	// without overriding it. An explicitly named file must exist.
	EnvFile string
	// Overrides are applied last, keyed by config path (e.g. "gemini.model").
	Overrides map[string]any
	// Environ replaces os.Environ, mostly for tests.
	Environ func() []string
}

// Load builds the configuration and validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	environ, err := environment(opts)
	if err != nil {
		return nil, err
	}

	envToPath := envMappings(k.Keys())
	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: func() []string { return environ },
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := envToPath[key]; ok {
				return path, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// The legacy name only fills a missing key.
	if k.String("gemini.api_key") == "" {
		if v := lookup(environ, LegacyAPIKeyEnv); v != "" {
			if err := k.Set("gemini.api_key", v); err != nil {
				return nil, fmt.Errorf("failed to set legacy API key: %w", err)
			}
		}
	}

	keys := make([]string, 0, len(opts.Overrides))
	for key := range opts.Overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !k.Exists(key) {
			return nil, fmt.Errorf("unknown config key %q", key)
		}
		if err := k.Set(key, opts.Overrides[key]); err != nil {
			return nil, fmt.Errorf("failed to set key %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.Gemini.APIKey = strings.TrimSpace(cfg.Gemini.APIKey)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Gemini.Mode = strings.ToLower(cfg.Gemini.Mode)
	if cfg.Gemini.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration cannot be nil")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// EnvVar returns the environment variable that sets key.
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func envMappings(keys []string) map[string]string {
	m := map[string]string{APIKeyEnv: "gemini.api_key"}
	for _, key := range keys {
		m[EnvVar(key)] = key
	}
	return m
}

func baseEnviron(opts Options) []string {
	if opts.Environ != nil {
		return opts.Environ()
	}
	return os.Environ()
}

// environment returns the process environment followed by the dotenv
// variables it does not already define.
func environment(opts Options) ([]string, error) {
	base := baseEnviron(opts)

	path := opts.EnvFile
	if path == "" {
		path = DefaultEnvFile
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
	}
	dotenv, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	set := make(map[string]bool, len(base))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		set[name] = true
	}
	names := make([]string, 0, len(dotenv))
	for name := range dotenv {
		names = append(names, name)
	}
	sort.Strings(names)

	out := base
	for _, name := range names {
		if !set[name] {
			out = append(out, name+"="+dotenv[name])
		}
	}
	return out, nil
}

func lookup(environ []string, name string) string {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
