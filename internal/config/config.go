// Package config loads the YAML configuration of the banana-cask CLI.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aethne0/banana-cask/core"
	"gopkg.in/yaml.v3"
)

// EngineConfig holds the storage engine settings.
type EngineConfig struct {
	DataDir             string `yaml:"data_dir"`
	MaxSegmentSizeBytes int64  `yaml:"max_segment_size_bytes"`
	SyncMode            string `yaml:"sync_mode"`     // none, always, interval
	SyncInterval        string `yaml:"sync_interval"` // used when sync_mode is interval
	TailPolicy          string `yaml:"tail_policy"`   // rotate, truncate
	RecoveryConcurrency int    `yaml:"recovery_concurrency"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stdout, stderr, file, none
	File   string `yaml:"file"`
	Format string `yaml:"format"` // json, text
}

// Config is the top-level configuration structure.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// ParseDuration parses a duration string, falling back to defaultDuration
// (with a warning) when it is empty or invalid.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Engine: EngineConfig{
			DataDir:             "./data",
			MaxSegmentSizeBytes: core.DefaultMaxSegmentSizeMB * core.OneMegabyte,
			SyncMode:            core.SyncNone.String(),
			SyncInterval:        core.DefaultSyncInterval.String(),
			TailPolicy:          core.TailRotate.String(),
			RecoveryConcurrency: core.DefaultRecoveryConcurrency,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	// If data is empty, return defaults.
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Options translates the engine settings into core options.
func (e *EngineConfig) Options(logger *slog.Logger) ([]core.Option, error) {
	syncMode, err := core.ParseSyncMode(e.SyncMode)
	if err != nil {
		return nil, err
	}
	tailPolicy, err := core.ParseTailPolicy(e.TailPolicy)
	if err != nil {
		return nil, err
	}

	return []core.Option{
		core.WithLogger(logger),
		core.WithSyncMode(syncMode),
		core.WithSyncInterval(ParseDuration(e.SyncInterval, core.DefaultSyncInterval, logger)),
		core.WithTailPolicy(tailPolicy),
		core.WithRecoveryConcurrency(e.RecoveryConcurrency),
	}, nil
}
