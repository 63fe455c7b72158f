package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/wesm/cursor-history/internal/index"
	"github.com/wesm/cursor-history/internal/tracking"
)

const configFileName = "config.json"

// Environment variables read by Load.
const (
	EnvProjectsDir = "CURSOR_PROJECTS_DIR"
	EnvCache       = "CURSOR_HISTORY_CACHE"
	EnvDataDir     = "CURSOR_HISTORY_DATA_DIR"
	EnvTrackingDB  = "CURSOR_TRACKING_DB"
	EnvTTL         = "CURSOR_HISTORY_TTL"
	EnvLogLevel    = "CURSOR_HISTORY_LOG_LEVEL"
)

// Config holds all application configuration.
type Config struct {
	DataDir      string        `json:"-"`
	ProjectsDirs []string      `json:"projects_dirs,omitempty"`
	CachePath    string        `json:"cache_path,omitempty"`
	TrackingDB   string        `json:"tracking_db,omitempty"`
	TTL          time.Duration `json:"-"`
	LogLevel     string        `json:"log_level,omitempty"`
}

// Default returns a Config with default values. CachePath is
// left empty and derived from DataDir by Load.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	return Config{
		DataDir: filepath.Join(home, ".cursor-history"),
		ProjectsDirs: []string{
			filepath.Join(home, ".cursor", "projects"),
		},
		TrackingDB: tracking.DefaultPath(),
		TTL:        index.DefaultTTL,
		LogLevel:   "warn",
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *pflag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}

	// The data dir locates the config file, so it is resolved
	// before anything else.
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	if err := cfg.loadEnv(); err != nil {
		return cfg, err
	}
	if err := applyFlags(&cfg, fs); err != nil {
		return cfg, err
	}

	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(cfg.DataDir, "index.json")
	}
	return cfg, nil
}

// ConfigPath returns the location of the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.DataDir, configFileName)
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.ConfigPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		ProjectsDirs []string `json:"projects_dirs"`
		CachePath    string   `json:"cache_path"`
		TrackingDB   string   `json:"tracking_db"`
		TTL          string   `json:"ttl"`
		LogLevel     string   `json:"log_level"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if len(file.ProjectsDirs) > 0 {
		c.ProjectsDirs = file.ProjectsDirs
	}
	if file.CachePath != "" {
		c.CachePath = file.CachePath
	}
	if file.TrackingDB != "" {
		c.TrackingDB = file.TrackingDB
	}
	if file.TTL != "" {
		ttl, err := time.ParseDuration(file.TTL)
		if err != nil {
			return fmt.Errorf("parsing ttl: %w", err)
		}
		c.TTL = ttl
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := os.Getenv(EnvProjectsDir); v != "" {
		c.ProjectsDirs = []string{v}
	}
	if v := os.Getenv(EnvCache); v != "" {
		c.CachePath = v
	}
	if v := os.Getenv(EnvTrackingDB); v != "" {
		c.TrackingDB = v
	}
	if v := os.Getenv(EnvTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvTTL, err)
		}
		c.TTL = ttl
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// RegisterFlags registers the configuration flags on fs.
// The caller must parse fs before passing it to Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSlice(
		"projects-dir", nil,
		"Cursor projects directory (repeatable)",
	)
	fs.String("cache", "", "Index cache file")
	fs.String("tracking-db", "", "Cursor AI tracking database")
	fs.Duration(
		"ttl", index.DefaultTTL,
		"Maximum cache age before a rebuild (0 disables)",
	)
	fs.String(
		"log-level", "warn",
		"Log level: debug, info, warn, error, or off",
	)
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "projects-dir":
			var dirs []string
			dirs, err = fs.GetStringSlice(f.Name)
			if err == nil && len(dirs) > 0 {
				cfg.ProjectsDirs = dirs
			}
		case "cache":
			cfg.CachePath = f.Value.String()
		case "tracking-db":
			cfg.TrackingDB = f.Value.String()
		case "ttl":
			cfg.TTL, err = fs.GetDuration(f.Name)
		case "log-level":
			cfg.LogLevel = f.Value.String()
		}
	})
	if err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}
	return nil
}
