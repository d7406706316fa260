package config

// Package config provides a reusable loader for replay-engine configuration
// files and environment variables.

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// wrapErr adds context to an error message. It returns nil if err is nil.
func wrapErr(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// MissingEffectsPolicy controls what the hydrator does when a fetched
// transaction's recorded effects omit unchanged_loaded_runtime_objects
// (spec §9, open question).
type MissingEffectsPolicy string

const (
	// MissingEffectsStrict records "missing_effects_strict" in
	// execution_path.fallbacks. It raises no error: no StaleDynamicFieldChild
	// is produced because of this policy, and replay proceeds as under
	// best_effort.
	MissingEffectsStrict MissingEffectsPolicy = "strict"
	// MissingEffectsBestEffort proceeds without verification and records
	// "missing_effects_best_effort" in execution_path.fallbacks.
	MissingEffectsBestEffort MissingEffectsPolicy = "best_effort"
)

// Config is the unified configuration for a replay run. It mirrors the
// structure of the optional YAML files Load looks for under config/.
type Config struct {
	Replay struct {
		StrictCrypto                     bool                  `mapstructure:"strict_crypto" json:"strict_crypto"`
		DynamicFieldPrefetchDepth        int                   `mapstructure:"dynamic_field_prefetch_depth" json:"dynamic_field_prefetch_depth"`
		DynamicFieldMaxPerParent         int                   `mapstructure:"dynamic_field_max_per_parent" json:"dynamic_field_max_per_parent"`
		MissingEffectsPolicy             MissingEffectsPolicy  `mapstructure:"missing_effects_policy" json:"missing_effects_policy"`
		ReceivingRequiresSenderOwnership bool                  `mapstructure:"receiving_requires_sender_ownership" json:"receiving_requires_sender_ownership"`
		GasTolerancePct                 int                   `mapstructure:"gas_tolerance_pct" json:"gas_tolerance_pct"`
		VersionTolerance                uint64                `mapstructure:"version_tolerance" json:"version_tolerance"`
		CancellationPollEveryCommand    bool                  `mapstructure:"cancellation_poll_every_command" json:"cancellation_poll_every_command"`
	} `mapstructure:"replay" json:"replay"`

	Cache struct {
		PackageEntries int `mapstructure:"package_entries" json:"package_entries"`
		ChildEntries   int `mapstructure:"child_entries" json:"child_entries"`
	} `mapstructure:"cache" json:"cache"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() Config {
	var c Config
	c.Replay.StrictCrypto = false
	c.Replay.DynamicFieldPrefetchDepth = 3
	c.Replay.DynamicFieldMaxPerParent = 200
	c.Replay.MissingEffectsPolicy = MissingEffectsStrict
	c.Replay.ReceivingRequiresSenderOwnership = true
	c.Replay.GasTolerancePct = 0
	c.Replay.VersionTolerance = 0
	c.Replay.CancellationPollEveryCommand = true
	c.Cache.PackageEntries = 4096
	c.Cache.ChildEntries = 16384
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig = Default()

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge an additional
// config file. If env is empty, only the default configuration is loaded.
// A missing config file is not an error: callers may rely entirely on
// Default() plus environment variables.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // best-effort .env overlay, matches local/dev workflow

	cfg := Default()

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, wrapErr(err, "load config")
		}
	} else if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, wrapErr(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("REPLAY")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, wrapErr(err, "unmarshal config")
	}
	AppConfig = cfg
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the REPLAY_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	if v, ok := os.LookupEnv("REPLAY_ENV"); ok && v != "" {
		return Load(v)
	}
	return Load("")
}
