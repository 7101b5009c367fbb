package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.3.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the worker and the CLI tools.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Retry      Retry      `koanf:"retry"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// WorkerConfig contains notification worker configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Number of notifications handled concurrently per worker process.
	Concurrency int `koanf:"concurrency"`
	// Startup delay in milliseconds.
	StartupDelay int `koanf:"startup_delay"`
	// Notification queue settings.
	Queue Queue `koanf:"queue"`
	// Badge rule overrides.
	Badges Badges `koanf:"badges"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Also write the main log to stderr.
	Console bool `koanf:"console"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// Retry contains retry configuration for store transactions.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
	// Maximum total time spent retrying in milliseconds.
	MaxElapsed int `koanf:"max_elapsed"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing export is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service name reported with traces.
	ServiceName string `koanf:"service_name"`
	// Environment reported with traces.
	Environment string `koanf:"environment"`
}

// Queue contains notification queue configuration.
type Queue struct {
	// Name prefix of the Redis keys holding the queue.
	Name string `koanf:"name"`
	// Deliveries attempted before a notification is dead-lettered.
	MaxAttempts int `koanf:"max_attempts"`
	// How long a consumer blocks waiting for work, in milliseconds.
	BlockTimeout int `koanf:"block_timeout"`
	// Delay before a failed notification is retried, in milliseconds.
	RetryDelay int `koanf:"retry_delay"`
}

// Badges contains badge rule overrides.
type Badges struct {
	// Point thresholds replacing the default ladder. Empty keeps the defaults.
	Points []PointBadge `koanf:"points"`
}

// PointBadge awards Badge when an owner's score reaches Score.
type PointBadge struct {
	Score int64  `koanf:"score"`
	Badge string `koanf:"badge"`
}

// SearchPaths returns the directories LoadConfig looks in, in order.
func SearchPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return []string{
		".ghostscore",
		filepath.Join(homeDir, ".ghostscore", "config"),
		"/etc/ghostscore/config",
		"/app/config",
		"config",
		".",
	}, nil
}

// LoadConfig loads the configuration from the standard search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	configPaths, err := SearchPaths()
	if err != nil {
		return nil, "", err
	}

	return LoadConfigFrom(configPaths...)
}

// LoadConfigFrom loads common.toml and worker.toml from the first of the given
// directories that contains each file. Each file is parsed on its own, so keys
// such as version never collide between them.
func LoadConfigFrom(configPaths ...string) (*Config, string, error) {
	config := Config{
		Worker: WorkerConfig{
			Concurrency: 4,
			Queue: Queue{
				Name:         "ghostscore",
				MaxAttempts:  10,
				BlockTimeout: 5000,
				RetryDelay:   1000,
			},
		},
	}

	// Load all config files
	var usedConfigPath string

	configFiles := []struct {
		name   string
		target any
	}{
		{name: "common", target: &config.Common},
		{name: "worker", target: &config.Worker},
	}
	for _, configFile := range configFiles {
		path, err := loadConfigFile(configFile.name, configFile.target, configPaths)
		if err != nil {
			return nil, "", err
		}

		if usedConfigPath == "" {
			usedConfigPath = path
		}
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// loadConfigFile unmarshals the first <name>.toml found in configPaths into
// target and returns the directory it was found in.
func loadConfigFile(name string, target any, configPaths []string) (string, error) {
	for _, path := range configPaths {
		k := koanf.New(".")

		configPath := filepath.Join(path, name+".toml")
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			continue
		}

		if err := k.Unmarshal("", target); err != nil {
			return "", fmt.Errorf("error unmarshaling %s.toml: %w", name, err)
		}

		return path, nil
	}

	return "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, name)
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/onlyrealroles/ghostscore/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
