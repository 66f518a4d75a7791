package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bulwark-io/bulwark/ratelimit"
)

// Config holds gateway configuration.
//
// Priority: environment variables (BULWARK_ prefix) > config file > defaults.
type Config struct {
	ListenAddr      string
	UpstreamURL     string
	UpstreamAPIKey  string
	MaxRetries      int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	Policy ratelimit.Policy
}

// LoadConfig reads configuration from an optional file path plus the
// environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("shutdown_timeout", "15s")
	v.SetDefault("log_level", "info")
	v.SetDefault("rate.per_minute", 30)
	v.SetDefault("rate.per_hour", 600)
	v.SetDefault("rate.burst_limit", 5)
	v.SetDefault("rate.burst_window", "10s")

	v.SetEnvPrefix("BULWARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("upstream_url", "BULWARK_UPSTREAM_URL", "UPSTREAM_URL")
	_ = v.BindEnv("upstream_api_key", "BULWARK_UPSTREAM_API_KEY", "UPSTREAM_API_KEY")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		UpstreamURL:     v.GetString("upstream_url"),
		UpstreamAPIKey:  v.GetString("upstream_api_key"),
		MaxRetries:      v.GetInt("max_retries"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		LogLevel:        v.GetString("log_level"),
		Policy: ratelimit.Policy{
			PerMinute:   v.GetInt("rate.per_minute"),
			PerHour:     v.GetInt("rate.per_hour"),
			BurstLimit:  v.GetInt("rate.burst_limit"),
			BurstWindow: v.GetDuration("rate.burst_window"),
		},
	}

	if cfg.UpstreamURL == "" {
		return nil, fmt.Errorf("upstream_url is required (set BULWARK_UPSTREAM_URL)")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
