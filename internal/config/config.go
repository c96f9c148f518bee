// Package config provides configuration management for rulescan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fabrictools/rulescan/internal/logging"
	"github.com/fabrictools/rulescan/internal/validation"
)

// DefaultRulesFolder is the workspace subfolder scanned for rules documents
// when the configured folder name is absent or invalid.
const DefaultRulesFolder = "rules"

// DefaultUpdateIntervalHours is the engine freshness interval applied when
// the configured value is missing or out of range.
const DefaultUpdateIntervalHours = 24

// Config represents the tool configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Rules   RulesConfig   `toml:"rules"`
	Logging LoggingConfig `toml:"logging"`
	History HistoryConfig `toml:"history"`
}

// EngineConfig contains analysis-engine acquisition settings.
type EngineConfig struct {
	// Version is "latest" or a pinned release tag (v<major>.<minor>.<patch>).
	Version string `toml:"version"`
	// AutoUpdate re-acquires the engine once the freshness marker ages out.
	AutoUpdate bool `toml:"auto_update"`
	// UpdateIntervalHours is the freshness threshold in hours.
	UpdateIntervalHours int `toml:"update_interval_hours"`
	// DataDir overrides the default per-OS data directory.
	DataDir string `toml:"data_dir"`
}

// RulesConfig contains rules-document settings.
type RulesConfig struct {
	// Folder is the workspace subfolder holding rules documents.
	Folder string `toml:"folder"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// HistoryConfig contains run-history settings.
type HistoryConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Version:             validation.VersionLatest,
			AutoUpdate:          true,
			UpdateIntervalHours: DefaultUpdateIntervalHours,
			DataDir:             DefaultDataDir(),
		},
		Rules: RulesConfig{
			Folder: DefaultRulesFolder,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "rulescan")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "rulescan")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "rulescan")
	default: // linux and others
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "rulescan")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".rulescan")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "rulescan.toml")
}

// Load loads configuration from a file, applying defaults for anything
// absent and downgrading invalid values to defaults with a logged warning.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if no config file exists
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Expand tilde in data_dir
	if strings.HasPrefix(cfg.Engine.DataDir, "~/") {
		home, _ := os.UserHomeDir()
		cfg.Engine.DataDir = filepath.Join(home, cfg.Engine.DataDir[2:])
	}

	cfg.Normalize()
	return cfg, nil
}

// Normalize replaces invalid values with defaults. Fallbacks never fail the
// flow; each one leaves an observable config_fallback log record.
func (c *Config) Normalize() {
	if v := validation.ValidateVersion(c.Engine.Version); v != c.Engine.Version {
		logging.ConfigFallback("engine.version", c.Engine.Version, v)
		c.Engine.Version = v
	}

	if c.Engine.UpdateIntervalHours <= 0 {
		logging.ConfigFallback("engine.update_interval_hours",
			fmt.Sprintf("%d", c.Engine.UpdateIntervalHours),
			fmt.Sprintf("%d", DefaultUpdateIntervalHours))
		c.Engine.UpdateIntervalHours = DefaultUpdateIntervalHours
	}

	if c.Engine.DataDir == "" {
		c.Engine.DataDir = DefaultDataDir()
	}

	if folder, err := validation.ValidateFolderName(c.Rules.Folder); err != nil {
		logging.ConfigFallback("rules.folder", c.Rules.Folder, DefaultRulesFolder)
		c.Rules.Folder = DefaultRulesFolder
	} else {
		c.Rules.Folder = folder
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		logging.ConfigFallback("logging.level", c.Logging.Level, "info")
		c.Logging.Level = "info"
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		logging.ConfigFallback("logging.format", c.Logging.Format, "text")
		c.Logging.Format = "text"
	}
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// InstallDir returns the engine install directory.
func (c *Config) InstallDir() string {
	return filepath.Join(c.Engine.DataDir, "engine")
}

// HistoryPath returns the path to the run-history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Engine.DataDir, "history.db")
}

// ConsentPath returns the path of the persisted download-consent record.
func (c *Config) ConsentPath() string {
	return filepath.Join(c.Engine.DataDir, "download-consent")
}

// RulesDir returns the rules folder inside a workspace.
func (c *Config) RulesDir(workspace string) string {
	return filepath.Join(workspace, c.Rules.Folder)
}

// LogLevel maps the configured level to the logging package's type.
func (c *Config) LogLevel() logging.Level {
	switch c.Logging.Level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// LogFormat maps the configured format to the logging package's type.
func (c *Config) LogFormat() logging.Format {
	if c.Logging.Format == "json" {
		return logging.FormatJSON
	}
	return logging.FormatText
}
