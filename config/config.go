package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/handlers"
	"github.com/jonwraymond/rendercache/health"
	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/resilience"
	"github.com/jonwraymond/rendercache/scope"
	"github.com/jonwraymond/rendercache/server"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RENDERCACHE"

// Config is the full service configuration.
type Config struct {
	Service string `mapstructure:"service"`
	// BuildID is mixed into every cache key so a deploy never reads entries
	// written by a different build.
	BuildID string `mapstructure:"build_id"`
	// Dev enables development diagnostics such as deprecation warnings.
	Dev bool `mapstructure:"dev"`

	Store    StoreConfig                  `mapstructure:"store"`
	Profiles map[string]ProfileConfig     `mapstructure:"profiles"`
	Handlers map[string]handlers.Settings `mapstructure:"handlers"`
	Observe  observe.Config               `mapstructure:"observe"`
	Server   server.Config                `mapstructure:"server"`
	Session  scope.SessionConfig          `mapstructure:"session"`
	APIKeys  []scope.APIKey               `mapstructure:"api_keys"`
	Health   health.AggregatorConfig      `mapstructure:"health"`
}

// StoreConfig configures the cache store.
type StoreConfig struct {
	Stripes int                      `mapstructure:"stripes"`
	Guard   resilience.GuardConfig   `mapstructure:"guard"`
	Refresh resilience.LimiterConfig `mapstructure:"refresh"`
}

// ProfileConfig is a named cache-life profile. Durations use Go syntax
// ("90s", "15m"); "forever" leaves a field unbounded.
type ProfileConfig struct {
	Stale      string `mapstructure:"stale"`
	Revalidate string `mapstructure:"revalidate"`
	Expire     string `mapstructure:"expire"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service", "rendercache")
	v.SetDefault("build_id", "")
	v.SetDefault("dev", false)

	v.SetDefault("store.stripes", 16)
	v.SetDefault("store.guard.timeout", "2s")
	v.SetDefault("store.guard.breaker.max_failures", 5)
	v.SetDefault("store.guard.breaker.reset_timeout", "30s")
	v.SetDefault("store.guard.breaker.half_open_max_requests", 1)
	v.SetDefault("store.guard.retry.max_attempts", 2)
	v.SetDefault("store.guard.retry.initial_delay", "50ms")
	v.SetDefault("store.guard.retry.max_delay", "1s")
	v.SetDefault("store.guard.retry.multiplier", 2.0)
	v.SetDefault("store.guard.retry.jitter", true)
	v.SetDefault("store.refresh.max_concurrent", 4)

	v.SetDefault("profiles", map[string]any{})

	v.SetDefault("handlers.public.type", "memory")
	v.SetDefault("handlers.public.dsn", "")
	v.SetDefault("handlers.public.sweep_interval", "1m")
	v.SetDefault("handlers.public.log_level", "silent")

	v.SetDefault("observe.service_name", "rendercache")
	v.SetDefault("observe.version", "")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 0.1)
	v.SetDefault("observe.metrics.enabled", true)
	v.SetDefault("observe.metrics.exporter", "prometheus")
	v.SetDefault("observe.logging.enabled", true)
	v.SetDefault("observe.logging.level", "info")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.revalidate_role", "revalidate")

	v.SetDefault("session.signing_key", "")
	v.SetDefault("session.issuer", "rendercache")
	v.SetDefault("session.audience", "")
	v.SetDefault("session.session_claim", "sid")
	v.SetDefault("session.roles_claim", "roles")
	v.SetDefault("session.token_prefix", "Bearer ")
	v.SetDefault("session.ttl", "24h")

	v.SetDefault("api_keys", []map[string]any{})
	v.SetDefault("health.timeout", "5s")
}

// Loader reads configuration from one viper instance.
type Loader struct {
	v       *viper.Viper
	secrets *SecretResolver
}

// NewLoader creates a Loader for path. An empty path searches ./config.yaml
// and /etc/rendercache/config.yaml.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/rendercache")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, secrets: NewSecretResolver()}
}

// WithSecrets replaces the resolver used for credential fields.
func (l *Loader) WithSecrets(r *SecretResolver) *Loader {
	l.secrets = r
	return l
}

// Load reads the file, if any, and decodes and validates the result. A
// missing file in the search path is not an error; a missing explicit path is.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := l.secrets.resolveSecrets(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks cross-field constraints the decoder cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service) == "" {
		return fmt.Errorf("%w: service is required", ErrInvalidConfig)
	}
	if c.Store.Stripes < 0 {
		return fmt.Errorf("%w: store.stripes must not be negative", ErrInvalidConfig)
	}
	for name := range c.Handlers {
		if _, err := cache.ParseKind(name); err != nil {
			return fmt.Errorf("%w: handlers.%s: %w", ErrInvalidConfig, name, err)
		}
	}
	if _, err := c.CacheProfiles(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: observe: %w", ErrInvalidConfig, err)
	}
	if c.Server.Enabled {
		if c.Server.Addr == "" {
			return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
		}
		if c.Session.SigningKey == "" {
			return fmt.Errorf("%w: session.signing_key is required when the server is enabled", ErrInvalidConfig)
		}
	}
	return nil
}

// CacheProfiles converts the configured profiles, validating each.
func (c *Config) CacheProfiles() (map[string]cache.Profile, error) {
	out := make(map[string]cache.Profile, len(c.Profiles))
	for name, pc := range c.Profiles {
		p, err := pc.Profile()
		if err != nil {
			return nil, fmt.Errorf("profiles.%s: %w", name, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profiles.%s: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

// Profile parses pc.
func (pc ProfileConfig) Profile() (cache.Profile, error) {
	var (
		p   cache.Profile
		err error
	)
	if p.Stale, err = parseLife(pc.Stale); err != nil {
		return p, fmt.Errorf("stale: %w", err)
	}
	if p.Revalidate, err = parseLife(pc.Revalidate); err != nil {
		return p, fmt.Errorf("revalidate: %w", err)
	}
	if p.Expire, err = parseLife(pc.Expire); err != nil {
		return p, fmt.Errorf("expire: %w", err)
	}
	return p, nil
}

func parseLife(s string) (time.Duration, error) {
	switch s = strings.TrimSpace(s); strings.ToLower(s) {
	case "forever":
		return cache.Forever, nil
	case "":
		return 0, nil
	}
	return time.ParseDuration(s)
}

// SharedHandlers reports whether any handler keeps its entries outside this
// process, so that another process sees its writes and invalidations.
func (c *Config) SharedHandlers() bool {
	for _, s := range c.Handlers {
		if t := strings.ToLower(strings.TrimSpace(s.Type)); t != "" && t != "memory" {
			return true
		}
	}
	return false
}

// HandlerSettings returns the handler settings keyed by kind, with logger
// attached to each.
func (c *Config) HandlerSettings(logger observe.Logger) map[string]handlers.Settings {
	out := make(map[string]handlers.Settings, len(c.Handlers))
	for kind, s := range c.Handlers {
		s.Logger = logger
		out[kind] = s
	}
	return out
}
