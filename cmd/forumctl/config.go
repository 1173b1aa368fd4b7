package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/forumops/forumctl/internal/engine"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Stack     StackConfig     `mapstructure:"stack"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Log       LogConfig       `mapstructure:"log"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// StackConfig identifies the deployed stack and its files.
type StackConfig struct {
	Name         string `mapstructure:"name"`
	Manifest     string `mapstructure:"manifest"`
	EnvFile      string `mapstructure:"env_file"`
	EnvTemplate  string `mapstructure:"env_template"`
	AppService   string `mapstructure:"app_service"`
	DBService    string `mapstructure:"db_service"`
	MediaService string `mapstructure:"media_service"`
	DBUser       string `mapstructure:"db_user"`
	DBName       string `mapstructure:"db_name"`
	MediaDir     string `mapstructure:"media_dir"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ResourcesConfig holds the validator's resource floors.
type ResourcesConfig struct {
	MinDiskMB           int64 `mapstructure:"min_disk_mb"`
	MinMemoryMB         int64 `mapstructure:"min_memory_mb"`
	RecommendedMemoryMB int64 `mapstructure:"recommended_memory_mb"`
}

// TimingConfig holds the pipeline timing budget.
type TimingConfig struct {
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	ReadinessAttempts int           `mapstructure:"readiness_attempts"`
	ReadinessInterval time.Duration `mapstructure:"readiness_interval"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
}

// BackupConfig holds backup storage configuration.
type BackupConfig struct {
	Dir string `mapstructure:"dir"`
}

// JournalConfig holds run journal configuration.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	defaults := engine.Defaults()
	v.SetDefault("stack.name", defaults.StackName)
	v.SetDefault("stack.manifest", defaults.ManifestPath)
	v.SetDefault("stack.env_file", defaults.EnvFilePath)
	v.SetDefault("stack.env_template", defaults.EnvTemplatePath)
	v.SetDefault("stack.app_service", defaults.AppService)
	v.SetDefault("stack.db_service", defaults.DBService)
	v.SetDefault("stack.media_service", defaults.MediaService)
	v.SetDefault("stack.db_user", defaults.DBUser)
	v.SetDefault("stack.db_name", defaults.DBName)
	v.SetDefault("stack.media_dir", defaults.MediaDir)
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("resources.min_disk_mb", defaults.MinDiskMB)
	v.SetDefault("resources.min_memory_mb", defaults.MinMemoryMB)
	v.SetDefault("resources.recommended_memory_mb", defaults.RecommendedMemoryMB)
	v.SetDefault("timing.settle_delay", "10s")
	v.SetDefault("timing.retry_delay", "30s")
	v.SetDefault("timing.readiness_attempts", defaults.ReadinessAttempts)
	v.SetDefault("timing.readiness_interval", "5s")
	v.SetDefault("timing.stop_timeout", "10s")
	v.SetDefault("timing.http_timeout", "5s")
	v.SetDefault("backup.dir", defaults.BackupDir)
	v.SetDefault("journal.path", defaults.JournalPath)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("FORUMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// EngineConfig translates the CLI config into the engine's.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.Defaults()
	cfg.StackName = c.Stack.Name
	cfg.ManifestPath = c.Stack.Manifest
	cfg.EnvFilePath = c.Stack.EnvFile
	cfg.EnvTemplatePath = c.Stack.EnvTemplate
	cfg.AppService = c.Stack.AppService
	cfg.DBService = c.Stack.DBService
	cfg.MediaService = c.Stack.MediaService
	cfg.DBUser = c.Stack.DBUser
	cfg.DBName = c.Stack.DBName
	cfg.MediaDir = c.Stack.MediaDir
	cfg.BackupDir = c.Backup.Dir
	cfg.JournalPath = c.Journal.Path
	cfg.MinDiskMB = c.Resources.MinDiskMB
	cfg.MinMemoryMB = c.Resources.MinMemoryMB
	cfg.RecommendedMemoryMB = c.Resources.RecommendedMemoryMB
	cfg.SettleDelay = c.Timing.SettleDelay
	cfg.RetryDelay = c.Timing.RetryDelay
	cfg.ReadinessAttempts = c.Timing.ReadinessAttempts
	cfg.ReadinessInterval = c.Timing.ReadinessInterval
	cfg.StopTimeout = c.Timing.StopTimeout
	cfg.HTTPTimeout = c.Timing.HTTPTimeout
	return cfg
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
