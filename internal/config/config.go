// Package config loads and validates replay configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

// EnvPrefix is prepended to every environment override, e.g.
// REPLAYDIFF_REPLAY_OLD_URL.
const EnvPrefix = "REPLAYDIFF"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Replay  ReplayConfig  `mapstructure:"replay"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ReplayConfig governs the targets, the pool and the input log.
type ReplayConfig struct {
	OldURL      string `mapstructure:"old_url"`
	NewURL      string `mapstructure:"new_url"`
	Method      string `mapstructure:"method"`
	Concurrency int    `mapstructure:"concurrency"`
	TimeoutMs   int    `mapstructure:"timeout_ms"`
	QueueSize   int    `mapstructure:"queue_size"`
	BatchSize   int    `mapstructure:"batch_size"`
	LogPath     string `mapstructure:"log_path"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// HTTPConfig configures the outbound client.
type HTTPConfig struct {
	UserAgent string `mapstructure:"user_agent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// NewViper returns a Viper instance with defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v and builds a Config.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("replay.old_url", "")
	v.SetDefault("replay.new_url", "")
	v.SetDefault("replay.method", string(replay.MethodGet))
	v.SetDefault("replay.concurrency", 10)
	v.SetDefault("replay.timeout_ms", 1000)
	v.SetDefault("replay.queue_size", 100)
	v.SetDefault("replay.batch_size", 5)
	v.SetDefault("replay.log_path", "")
	v.SetDefault("replay.rate_limit_rps", 0)
	v.SetDefault("replay.rate_limit_burst", 1)
	v.SetDefault("http.user_agent", "replaydiff/1.0")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "replaydiff")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Replay.OldURL == "" {
		return fmt.Errorf("%w: replay.old_url must be set", replay.ErrMissingURL)
	}
	if c.Replay.NewURL == "" {
		return fmt.Errorf("%w: replay.new_url must be set", replay.ErrMissingURL)
	}
	if _, err := replay.ParseMethod(c.Replay.Method); err != nil {
		return fmt.Errorf("replay.method: %w", err)
	}
	if c.Replay.Concurrency <= 0 {
		return fmt.Errorf("replay.concurrency must be > 0")
	}
	if c.Replay.TimeoutMs <= 0 {
		return fmt.Errorf("replay.timeout_ms must be > 0")
	}
	if c.Replay.QueueSize <= 0 {
		return fmt.Errorf("replay.queue_size must be > 0")
	}
	if c.Replay.BatchSize <= 0 {
		return fmt.Errorf("replay.batch_size must be > 0")
	}
	if strings.TrimSpace(c.Replay.LogPath) == "" {
		return fmt.Errorf("replay.log_path must be set")
	}
	if c.Replay.RateLimitRPS < 0 {
		return fmt.Errorf("replay.rate_limit_rps must be >= 0")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint must be set when tracing is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// Timeout converts the per-call timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Replay.TimeoutMs) * time.Millisecond
}

// ReplayConfig builds the pool configuration, parsing the method once.
func (c Config) ReplayConfig() (replay.Config, error) {
	method, err := replay.ParseMethod(c.Replay.Method)
	if err != nil {
		return replay.Config{}, fmt.Errorf("replay.method: %w", err)
	}
	return replay.Config{
		OldURL:      c.Replay.OldURL,
		NewURL:      c.Replay.NewURL,
		Method:      method,
		Timeout:     c.Timeout(),
		QueueSize:   c.Replay.QueueSize,
		Concurrency: c.Replay.Concurrency,
		RateLimit:   c.Replay.RateLimitRPS,
		RateBurst:   c.Replay.RateLimitBurst,
	}, nil
}
