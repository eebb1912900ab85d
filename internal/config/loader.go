package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const fileBase = "ratelog"

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for ratelog.yaml/.yml in standard locations.
// The search requires an explicit YAML extension so the ratelog binary itself is
// never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then returns ConfigFileNotFoundError, handled by LoadConfig.
		viper.SetConfigName(fileBase)
		viper.SetConfigType("yaml")
	}

	// Environment variable support: RATELOG_METRICS_ADDR
	viper.SetEnvPrefix("RATELOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{
		".",
		filepath.Join(home, ".ratelog"),
		"/etc/ratelog",
	})
}

// findConfigFileInPaths searches the given directories for ratelog.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, fileBase+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every scalar key so it can be overridden from the
// environment. Example: RATELOG_STATS_REDIS_ADDR overrides stats.redis_addr.
func bindNestedEnvKeys() {
	for _, key := range []string{
		"logging.level",
		"logging.format",
		"scope.drain_interval",
		"bucketing.default_max_buckets",
		"metrics.enabled",
		"metrics.addr",
		"stats.enabled",
		"stats.redis_addr",
		"stats.redis_password",
		"stats.redis_db",
		"stats.prefix",
		"stats.ttl",
		"stats.flush_interval",
		"stats.track_sites",
		"tracing.enabled",
		"demo.workers",
		"demo.requests",
		"demo.every",
		"demo.at_most_every",
		"demo.sample_every",
		"demo.buckets",
	} {
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates and returns the Config. A missing config file is
// not an error.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
