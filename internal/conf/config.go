// config.go: This file contains the configuration for the Mewsage application.
// It defines the settings struct and functions to load the settings.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ModelSettings describes one loaded classifier stage.
type ModelSettings struct {
	ModelPath string // path to the TensorFlow Lite model file
	LabelPath string // path to the JSON label vocabulary file
	Threads   int    // interpreter thread count, 0 for automatic
}

// CascadeSettings contains settings for the two-stage inference cascade.
type CascadeSettings struct {
	Detector    ModelSettings // stage 1: cat presence detector
	Classifier  ModelSettings // stage 2: cat sound classifier
	TargetLabel string        // detector label that triggers stage 2
	Timeout     time.Duration // per-inference deadline, 0 disables
	PoolSize    int           // offload pool worker count, 0 for automatic
}

// WebServerSettings contains settings for the HTTP server.
type WebServerSettings struct {
	Host    string // interface to bind to
	Port    int    // port to listen on
	Debug   bool   // true to enable request debug logging
	Metrics bool   // true to expose the Prometheus endpoint
}

// OutputSettings contains settings for persisted state.
type OutputSettings struct {
	SQLite struct {
		Path string // path to the SQLite database file
	}
	ClipPath string // directory archived audio uploads are stored in
}

// SentrySettings contains settings for optional error telemetry.
type SentrySettings struct {
	Enabled bool   // true to enable Sentry error reporting
	DSN     string // Sentry project DSN
}

// Settings is the top level configuration struct.
type Settings struct {
	Debug     bool // true to enable debug output across components
	WebServer WebServerSettings
	Cascade   CascadeSettings
	Output    OutputSettings
	Sentry    SentrySettings
}

// Load reads the configuration file and environment variables into a Settings
// struct. Components receive the result by injection.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range configPaths() {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("mewsage")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine, defaults plus env cover everything.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// configPaths returns the directories searched for config.yaml, in order.
func configPaths() []string {
	paths := []string{".", "./config"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mewsage"))
	}
	return paths
}

// ValidateSettings checks settings that would otherwise fail deep inside a
// request, so misconfiguration is reported at startup instead.
func ValidateSettings(s *Settings) error {
	if s.Cascade.TargetLabel == "" {
		return fmt.Errorf("cascade target label must not be empty")
	}
	if s.Cascade.PoolSize < 0 {
		return fmt.Errorf("cascade pool size must not be negative: %d", s.Cascade.PoolSize)
	}
	if s.Cascade.Timeout < 0 {
		return fmt.Errorf("cascade timeout must not be negative: %v", s.Cascade.Timeout)
	}
	if s.Output.ClipPath == "" {
		return fmt.Errorf("output clip path must not be empty")
	}
	if s.Output.SQLite.Path == "" {
		return fmt.Errorf("output sqlite path must not be empty")
	}
	return nil
}
