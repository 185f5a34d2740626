// Package config loads cutout configuration from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Remote processing service
	APIURL        string
	ClientTimeout time.Duration

	// Orchestration
	PollInterval time.Duration
	MaxImages    int
	MaxFileSize  int64

	// Vectorize defaults
	Scale         int
	EnhanceBefore bool

	// Journal location: a file path (SQLite), a ws:// or wss:// URL (SurrealDB), or "none"
	Journal          string
	JournalNamespace string
	JournalDatabase  string
	JournalUser      string
	JournalPass      string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Path of the YAML file that was applied, empty if none
	File string
}

// fileConfig mirrors the YAML config file. Pointer fields distinguish "unset" from zero.
type fileConfig struct {
	APIURL        *string `yaml:"api_url"`
	ClientTimeout *string `yaml:"client_timeout"`
	PollInterval  *string `yaml:"poll_interval"`
	MaxImages     *int    `yaml:"max_images"`
	MaxFileSize   *int64  `yaml:"max_file_size"`
	Scale         *int    `yaml:"scale"`
	EnhanceBefore *bool   `yaml:"enhance_before"`
	Journal       *string `yaml:"journal"`
	LogFile       *string `yaml:"log_file"`
	LogLevel      *string `yaml:"log_level"`
}

// Defaults match the limits the processing service enforces.
const (
	DefaultAPIURL       = "http://localhost:8000"
	DefaultPollInterval = 2 * time.Second
	DefaultMaxImages    = 10
	DefaultMaxFileSize  = 100 * 1024 * 1024
	DefaultScale        = 4
)

// Load reads configuration from the YAML file (if present) and environment variables.
// Environment variables win over the file.
func Load() (Config, error) {
	cfg := defaults()

	path := getEnv("CUTOUT_CONFIG", defaultConfigPath())
	if path != "" {
		fc, err := readFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// optional
		case err != nil:
			return cfg, err
		default:
			if err := cfg.apply(fc); err != nil {
				return cfg, fmt.Errorf("config file %s: %w", path, err)
			}
			cfg.File = path
		}
	}

	cfg.APIURL = strings.TrimRight(getEnv("CUTOUT_API_URL", cfg.APIURL), "/")
	cfg.ClientTimeout = getDuration("CUTOUT_CLIENT_TIMEOUT", cfg.ClientTimeout)
	cfg.PollInterval = getDuration("CUTOUT_POLL_INTERVAL", cfg.PollInterval)
	cfg.MaxImages = getInt("CUTOUT_MAX_IMAGES", cfg.MaxImages)
	cfg.MaxFileSize = int64(getInt("CUTOUT_MAX_FILE_SIZE", int(cfg.MaxFileSize)))
	cfg.Scale = getInt("CUTOUT_SCALE", cfg.Scale)
	cfg.EnhanceBefore = getEnv("CUTOUT_ENHANCE_BEFORE", strconv.FormatBool(cfg.EnhanceBefore)) == "true"

	cfg.Journal = getEnv("CUTOUT_JOURNAL", cfg.Journal)
	cfg.JournalNamespace = getEnv("CUTOUT_JOURNAL_NAMESPACE", cfg.JournalNamespace)
	cfg.JournalDatabase = getEnv("CUTOUT_JOURNAL_DATABASE", cfg.JournalDatabase)
	cfg.JournalUser = getEnv("CUTOUT_JOURNAL_USER", cfg.JournalUser)
	cfg.JournalPass = getEnv("CUTOUT_JOURNAL_PASS", cfg.JournalPass)

	cfg.LogFile = getEnv("CUTOUT_LOG_FILE", cfg.LogFile)
	if lvl := os.Getenv("CUTOUT_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = parseLogLevel(lvl)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxImages <= 0 {
		return fmt.Errorf("max images must be positive, got %d", c.MaxImages)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	switch c.Scale {
	case 2, 4, 8:
	default:
		return fmt.Errorf("scale must be 2, 4 or 8, got %d", c.Scale)
	}
	return nil
}

func defaults() Config {
	return Config{
		APIURL:           DefaultAPIURL,
		ClientTimeout:    5 * time.Minute, // uploads of large images
		PollInterval:     DefaultPollInterval,
		MaxImages:        DefaultMaxImages,
		MaxFileSize:      DefaultMaxFileSize,
		Scale:            DefaultScale,
		Journal:          defaultJournalPath(),
		JournalNamespace: "cutout",
		JournalDatabase:  "jobs",
		JournalUser:      "root",
		JournalPass:      "root",
		LogFile:          filepath.Join(os.TempDir(), "cutout.log"),
		LogLevel:         slog.LevelInfo,
	}
}

func (c *Config) apply(fc fileConfig) error {
	if fc.APIURL != nil {
		c.APIURL = *fc.APIURL
	}
	if fc.ClientTimeout != nil {
		d, err := time.ParseDuration(*fc.ClientTimeout)
		if err != nil {
			return fmt.Errorf("client_timeout: %w", err)
		}
		c.ClientTimeout = d
	}
	if fc.PollInterval != nil {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if fc.MaxImages != nil {
		c.MaxImages = *fc.MaxImages
	}
	if fc.MaxFileSize != nil {
		c.MaxFileSize = *fc.MaxFileSize
	}
	if fc.Scale != nil {
		c.Scale = *fc.Scale
	}
	if fc.EnhanceBefore != nil {
		c.EnhanceBefore = *fc.EnhanceBefore
	}
	if fc.Journal != nil {
		c.Journal = *fc.Journal
	}
	if fc.LogFile != nil {
		c.LogFile = *fc.LogFile
	}
	if fc.LogLevel != nil {
		c.LogLevel = parseLogLevel(*fc.LogLevel)
	}
	return nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cutout", "config.yaml")
}

func defaultJournalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cutout-journal.db")
	}
	return filepath.Join(dir, "cutout", "journal.db")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
