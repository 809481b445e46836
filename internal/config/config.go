package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// Config represents Cadenza configuration
type Config struct {
	TickIntervalMS         int                `json:"tick_interval_ms"`          // Reconciliation period in ms
	SkipDistanceMS         int                `json:"skip_distance_ms"`          // Default skip distance in ms
	PlaybackSpeed          float64            `json:"playback_speed"`            // Default speed multiplier
	IsAutoPlay             bool               `json:"is_auto_play"`              // Start playing on connect
	MaxDurationDiscrepancy int                `json:"max_duration_discrepancy"`  // Tolerated duration mismatch in ms
	ReadyWaitTimeoutMS     int                `json:"ready_wait_timeout_ms"`     // Deferred-command wait bound (0 = forever)
	ProgressSampleSec      int                `json:"progress_sample_sec"`       // Ledger sample spacing in seconds
	CacheDir               string             `json:"cache_dir"`                 // Cache dir override (empty = XDG)
	LedgerPath             string             `json:"ledger_path"`               // Session ledger path (empty = XDG)
	LogLevel               string             `json:"log_level"`                 // Log level (debug, info, warn, error)
	FileLogging            *FileLoggingConfig `json:"file_logging,omitempty"`    // File logging configuration
}

// Manager handles loading, saving, and validating configuration
type Manager struct {
	fs  afero.Fs
	xdg *XDGDirs
}

// NewManager creates a configuration manager on the real filesystem
func NewManager() *Manager {
	return NewManagerWithFs(afero.NewOsFs())
}

// NewManagerWithFs creates a configuration manager on the given filesystem
func NewManagerWithFs(fsys afero.Fs) *Manager {
	slog.Debug("creating new config manager")
	return &Manager{
		fs:  fsys,
		xdg: NewXDGDirs(),
	}
}

// GetDefaultConfig returns the default configuration
func (m *Manager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		TickIntervalMS:         500,
		SkipDistanceMS:         30000,
		PlaybackSpeed:          1.0,
		IsAutoPlay:             true,
		MaxDurationDiscrepancy: 1000,
		ReadyWaitTimeoutMS:     0, // wait forever, matching the reference behavior
		ProgressSampleSec:      5,
		LogLevel:               "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}

	slog.Debug("generated default config",
		"tick_interval_ms", defaultConfig.TickIntervalMS,
		"skip_distance_ms", defaultConfig.SkipDistanceMS,
		"log_level", defaultConfig.LogLevel)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file
func (m *Manager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(m.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := m.ValidateConfig(&cfg); err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully", "file_path", filePath)
	return &cfg, nil
}

// LoadConfig loads configuration from the first existing XDG config path,
// falling back to defaults when none exists
func (m *Manager) LoadConfig() (*Config, error) {
	for _, candidate := range m.xdg.GetConfigPaths("config.json") {
		exists, err := afero.Exists(m.fs, candidate)
		if err != nil || !exists {
			continue
		}
		return m.LoadFromFile(candidate)
	}

	slog.Debug("no config file found, using defaults")
	return m.GetDefaultConfig(), nil
}

// SaveToFile saves configuration to a specific file
func (m *Manager) SaveToFile(cfg *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	if err := m.ValidateConfig(cfg); err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(m.fs, filePath, data, 0644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Debug("config saved successfully", "file_path", filePath)
	return nil
}

// ValidateConfig checks config values for consistency
func (m *Manager) ValidateConfig(cfg *Config) error {
	if cfg.TickIntervalMS <= 0 {
		return fmt.Errorf("invalid tick interval: %d (must be positive)", cfg.TickIntervalMS)
	}
	if cfg.SkipDistanceMS < 0 {
		return fmt.Errorf("invalid skip distance: %d (must not be negative)", cfg.SkipDistanceMS)
	}
	if cfg.PlaybackSpeed <= 0 || cfg.PlaybackSpeed > 4.0 {
		return fmt.Errorf("invalid playback speed: %f (must be in (0.0, 4.0])", cfg.PlaybackSpeed)
	}
	if cfg.ReadyWaitTimeoutMS < 0 {
		return fmt.Errorf("invalid ready wait timeout: %d (must not be negative)", cfg.ReadyWaitTimeoutMS)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.FileLogging != nil {
		if cfg.FileLogging.MaxSizeMB <= 0 {
			return fmt.Errorf("invalid log max size: %d (must be positive)", cfg.FileLogging.MaxSizeMB)
		}
		if cfg.FileLogging.MaxBackups < 0 {
			return fmt.Errorf("invalid log max backups: %d (must not be negative)", cfg.FileLogging.MaxBackups)
		}
	}
	return nil
}

// CacheDirPath returns the effective cache directory
func (m *Manager) CacheDirPath(cfg *Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	return m.xdg.GetCachePath("downloads")
}

// LedgerPathFor returns the effective session ledger path
func (m *Manager) LedgerPathFor(cfg *Config) string {
	if cfg.LedgerPath != "" {
		return cfg.LedgerPath
	}
	return filepath.Join(m.xdg.GetCachePath("ledger"), "sessions.db")
}

// LogFilePath returns the effective log file path
func (m *Manager) LogFilePath(cfg *Config) string {
	if cfg.FileLogging != nil && cfg.FileLogging.Filename != "" {
		return cfg.FileLogging.Filename
	}
	return filepath.Join(m.xdg.GetCachePath("logs"), "cadenza.log")
}
