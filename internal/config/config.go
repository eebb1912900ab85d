// Package config provides configuration types for ratelog.
//
// The configuration covers the process-wide knobs of the library (scope
// drain cadence, default bucketing) and the operational surface of the
// ratelog binary: logging, metrics, stats export, tracing and the demo
// workload.
package config

import (
	"github.com/spf13/viper"
)

// Config is the top-level configuration for ratelog.
type Config struct {
	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Scope configures logging scope cleanup.
	Scope ScopeConfig `yaml:"scope" mapstructure:"scope"`

	// Bucketing configures aggregation defaults.
	Bucketing BucketingConfig `yaml:"bucketing" mapstructure:"bucketing"`

	// Metrics configures the HTTP server exposing /metrics and /health.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Stats configures export of per-site counters to Redis.
	Stats StatsConfig `yaml:"stats" mapstructure:"stats"`

	// Tracing configures the OpenTelemetry tracer provider.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// Demo configures the synthetic workload of `ratelog demo`.
	Demo DemoConfig `yaml:"demo" mapstructure:"demo"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	// Default: "info".
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	// Format is the handler output: text or json.
	// Default: "text".
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// ScopeConfig configures scope cleanup.
type ScopeConfig struct {
	// DrainInterval is the number of scope specializations between drains
	// of the collected-scope queue.
	// Default: 64.
	DrainInterval int `yaml:"drain_interval" mapstructure:"drain_interval" validate:"min=1"`
}

// BucketingConfig configures aggregation defaults.
type BucketingConfig struct {
	// DefaultMaxBuckets bounds hash bucketing when no explicit bound is given.
	// Default: 16.
	DefaultMaxBuckets int `yaml:"default_max_buckets" mapstructure:"default_max_buckets" validate:"min=1"`
}

// MetricsConfig configures the metrics and health server.
type MetricsConfig struct {
	// Enabled starts the server.
	// Default: true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Addr is the listen address.
	// Default: "127.0.0.1:9464" (localhost only).
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// StatsConfig configures per-site statistics and their export.
type StatsConfig struct {
	// Enabled flushes counters to Redis.
	// Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// RedisAddr is the Redis server address.
	// Default: "localhost:6379".
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
	// RedisPassword authenticates to Redis.
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	// RedisDB selects the Redis database.
	RedisDB int `yaml:"redis_db" mapstructure:"redis_db" validate:"min=0,max=15"`
	// Prefix is the key prefix.
	// Default: "ratelog:stats".
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	// TTL is the expiry of per-site counters (e.g., "24h"). "0s" disables expiry.
	// Default: "24h".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"duration"`
	// FlushInterval is the export period (e.g., "10s").
	// Default: "10s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"duration,positive_duration"`
	// TrackSites keeps counters per log site, not only totals.
	// Default: true.
	TrackSites bool `yaml:"track_sites" mapstructure:"track_sites"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled installs a tracer provider writing spans to stdout.
	// Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// DemoConfig configures the synthetic workload.
type DemoConfig struct {
	// Workers is the number of concurrent clients.
	// Default: 4.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"min=1,max=1024"`
	// Requests is the number of requests each worker sends.
	// Default: 50.
	Requests int `yaml:"requests" mapstructure:"requests" validate:"min=1"`
	// Every logs one in N occurrences of the per-request statement.
	// Default: 10.
	Every int `yaml:"every" mapstructure:"every" validate:"min=1"`
	// AtMostEvery is the minimum period between warnings (e.g., "500ms").
	// Default: "500ms".
	AtMostEvery string `yaml:"at_most_every" mapstructure:"at_most_every" validate:"duration"`
	// SampleEvery samples debug statements on average one in N.
	// Default: 20.
	SampleEvery int `yaml:"sample_every" mapstructure:"sample_every" validate:"min=1"`
	// Buckets bounds the per-user aggregation.
	// Default: bucketing.default_max_buckets.
	Buckets int `yaml:"buckets" mapstructure:"buckets" validate:"min=0"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Scope.DrainInterval == 0 {
		c.Scope.DrainInterval = 64
	}
	if c.Bucketing.DefaultMaxBuckets == 0 {
		c.Bucketing.DefaultMaxBuckets = 16
	}

	// viper.IsSet distinguishes "not set" from "explicitly false".
	if !viper.IsSet("metrics.enabled") {
		c.Metrics.Enabled = true
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9464"
	}

	if c.Stats.RedisAddr == "" {
		c.Stats.RedisAddr = "localhost:6379"
	}
	if c.Stats.Prefix == "" {
		c.Stats.Prefix = "ratelog:stats"
	}
	if c.Stats.TTL == "" {
		c.Stats.TTL = "24h"
	}
	if c.Stats.FlushInterval == "" {
		c.Stats.FlushInterval = "10s"
	}
	if !viper.IsSet("stats.track_sites") {
		c.Stats.TrackSites = true
	}

	if c.Demo.Workers == 0 {
		c.Demo.Workers = 4
	}
	if c.Demo.Requests == 0 {
		c.Demo.Requests = 50
	}
	if c.Demo.Every == 0 {
		c.Demo.Every = 10
	}
	if c.Demo.AtMostEvery == "" {
		c.Demo.AtMostEvery = "500ms"
	}
	if c.Demo.SampleEvery == 0 {
		c.Demo.SampleEvery = 20
	}
	if c.Demo.Buckets == 0 {
		c.Demo.Buckets = c.Bucketing.DefaultMaxBuckets
	}
}
