package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port                int      `mapstructure:"port"`
	LogLevel            string   `mapstructure:"log_level"`
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	KubeconfigPath      string   `mapstructure:"kubeconfig_path"`
	KubeContext         string   `mapstructure:"kube_context"`
	K8sTimeoutSec       int      `mapstructure:"k8s_timeout_sec"`        // Timeout for outbound K8s API calls; 0 = none
	K8sRateLimitPerSec  float64  `mapstructure:"k8s_rate_limit_per_sec"` // Token bucket rate (req/s); 0 = no limit
	K8sRateLimitBurst   int      `mapstructure:"k8s_rate_limit_burst"`
	TopologyCacheTTLSec int      `mapstructure:"topology_cache_ttl_sec"` // 0 = cache disabled
	TopologyCacheSize   int      `mapstructure:"topology_cache_size"`
	DiscoverKinds       bool     `mapstructure:"discover_kinds"` // Register source/channel kinds from CRDs at startup
	WatchEnabled        bool     `mapstructure:"watch_enabled"`
	WatchResyncSec      int      `mapstructure:"watch_resync_sec"`
	WatchDebounceMs     int      `mapstructure:"watch_debounce_ms"`
	TracingEndpoint     string   `mapstructure:"tracing_endpoint"` // OTLP endpoint; empty = tracing disabled
	TracingSamplingRate float64  `mapstructure:"tracing_sampling_rate"`
	ShutdownTimeoutSec  int      `mapstructure:"shutdown_timeout_sec"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8190)
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("kubeconfig_path", "")
	v.SetDefault("kube_context", "")
	v.SetDefault("k8s_timeout_sec", 30)
	v.SetDefault("k8s_rate_limit_per_sec", 0)
	v.SetDefault("k8s_rate_limit_burst", 0)
	v.SetDefault("topology_cache_ttl_sec", 30)
	v.SetDefault("topology_cache_size", 256)
	v.SetDefault("discover_kinds", true)
	v.SetDefault("watch_enabled", true)
	v.SetDefault("watch_resync_sec", 300)
	v.SetDefault("watch_debounce_ms", 500)
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_sampling_rate", 0.1)
	v.SetDefault("shutdown_timeout_sec", 15)
}

// Load reads config.yaml from the standard locations, then KNTOPO_* env vars.
// A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/kubilitics-knative/")
	v.AddConfigPath("$HOME/.kubilitics-knative")
	v.AddConfigPath(".")
	return load(v)
}

// LoadFile reads the config file at path, then KNTOPO_* env vars.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("KNTOPO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.K8sRateLimitPerSec < 0 || c.K8sRateLimitBurst < 0 {
		return fmt.Errorf("k8s rate limit must not be negative")
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		return fmt.Errorf("tracing_sampling_rate must be within [0, 1], got %v", c.TracingSamplingRate)
	}
	return nil
}
