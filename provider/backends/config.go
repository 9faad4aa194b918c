package backends

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/casualjim/llmux/provider"
)

const (
	// SelectorEnv names the variable choosing the default backend.
	SelectorEnv = "LLMUX_PROVIDER"
	// DefaultBackend is used when SelectorEnv is unset.
	DefaultBackend = "openai"
)

// ErrUnknownBackend is returned for tags with no registered backend.
var ErrUnknownBackend = errors.New("unknown backend")

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Config is the environment configuration of one backend.
type Config struct {
	Backend   string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// EnvName returns the variable name for a backend setting, e.g. OPENAI_API_KEY.
func EnvName(backend, setting string) string {
	return strings.ToUpper(backend) + "_" + setting
}

// LoadConfig reads <BACKEND>_API_KEY, _MODEL, _BASE_URL and _MAX_TOKENS
// through lookup, applying the backend defaults for everything but the key.
func LoadConfig(backend string, lookup LookupFunc) (Config, error) {
	b, ok := Get(backend)
	if !ok {
		return Config{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownBackend, backend, strings.Join(Names(), ", "))
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(setting, fallback string) string {
		if v, ok := lookup(EnvName(b.Name, setting)); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := Config{
		Backend:   b.Name,
		APIKey:    get("API_KEY", ""),
		Model:     get("MODEL", b.DefaultModel),
		BaseURL:   get("BASE_URL", b.DefaultBaseURL),
		MaxTokens: provider.DefaultMaxTokens,
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("%s: %s: %w", b.Name, EnvName(b.Name, "API_KEY"), provider.ErrMissingCredential)
	}
	if raw := get("MAX_TOKENS", ""); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("%s: invalid %s %q", b.Name, EnvName(b.Name, "MAX_TOKENS"), raw)
		}
		cfg.MaxTokens = n
	}
	return cfg, nil
}

// Options converts the configuration into provider options.
func (c Config) Options() []provider.Option {
	return []provider.Option{
		provider.WithAPIKey(c.APIKey),
		provider.WithModel(c.Model),
		provider.WithBaseURL(c.BaseURL),
		provider.WithMaxTokens(c.MaxTokens),
	}
}

// Open builds the provider for backend from lookup. Extra options are
// applied after the environment, so they win.
func Open(backend string, lookup LookupFunc, extra ...provider.Option) (*provider.Client, error) {
	cfg, err := LoadConfig(backend, lookup)
	if err != nil {
		return nil, err
	}
	b, _ := Get(cfg.Backend)
	return b.New(append(cfg.Options(), extra...)...)
}

// FromEnv is Open over the process environment.
func FromEnv(backend string, extra ...provider.Option) (*provider.Client, error) {
	return Open(backend, os.LookupEnv, extra...)
}

// Selected returns the backend named by LLMUX_PROVIDER, or DefaultBackend.
func Selected(lookup LookupFunc) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(SelectorEnv); ok && strings.TrimSpace(v) != "" {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return DefaultBackend
}

// LoadDotEnv loads the given env files (default .env) without overriding
// variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// MapLookup adapts a map to a LookupFunc.
func MapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}
