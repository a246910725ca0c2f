package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all server configuration. Every field can be set from the
// environment (TASKHIVE_ prefix, dots become underscores) or an optional YAML
// config file.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// DataRoot is the server-owned directory all session workspaces live
	// under. Empty means ~/.taskhive/server_data.
	DataRoot string `mapstructure:"data_root"`

	// SSEIdleTimeout closes a stream that delivered no event for this
	// long. Every delivered event re-arms it.
	SSEIdleTimeout time.Duration `mapstructure:"sse_idle_timeout"`

	// StaleThreshold is how long a session may go untouched before the
	// sweeper reclaims it.
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`

	// SweepInterval is how often the staleness sweeper wakes.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	WorkerPoolSize int `mapstructure:"worker_pool_size"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	TracingEnabled  bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	TraceSampleRate float64 `mapstructure:"trace_sample_rate"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_root", "")
	v.SetDefault("sse_idle_timeout", time.Hour)
	v.SetDefault("stale_threshold", 4*time.Hour)
	v.SetDefault("sweep_interval", 5*time.Minute)
	v.SetDefault("worker_pool_size", 8)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("trace_sample_rate", 1.0)
	v.SetDefault("shutdown_timeout", 10*time.Second)
}

// Load reads configuration from the environment and, when configFile is
// non-empty, the given YAML file. Environment values win over file values.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SSEIdleTimeout <= 0 {
		return fmt.Errorf("sse_idle_timeout must be positive, got %s", c.SSEIdleTimeout)
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("stale_threshold must be positive, got %s", c.StaleThreshold)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	return nil
}

// ResolveDataRoot returns the configured data root, defaulting to
// ~/.taskhive/server_data when unset.
func (c *Config) ResolveDataRoot() (string, error) {
	if c.DataRoot != "" {
		return c.DataRoot, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".taskhive", "server_data"), nil
}
