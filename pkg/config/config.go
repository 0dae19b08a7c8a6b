package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/harrisonrobin/caltask/pkg/google"
)

const (
	xdgAppName = "caltask"
	configFile = "config.toml"
)

// Config is the on-disk configuration.
type Config struct {
	// Calendar is the display name of the calendar holding the tasks.
	Calendar    string `toml:"calendar"`
	Description string `toml:"description"`
	// Lookback is a Go duration such as "720h". Empty means one year.
	Lookback  string `toml:"lookback,omitempty"`
	ResultCap int    `toml:"result_cap"`
	// EventMode is "all-day" or "timed".
	EventMode string `toml:"event_mode"`
	TimeZone  string `toml:"time_zone,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	d := google.DefaultConfig()
	return &Config{
		Calendar:    d.StoreName,
		Description: d.StoreDescription,
		ResultCap:   d.ResultCap,
		EventMode:   string(d.EventMode),
	}
}

func GetConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, xdgAppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the configuration at path. A missing file yields the
// defaults; fields left empty in the file are filled from the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	d := Default()
	if cfg.Calendar == "" {
		cfg.Calendar = d.Calendar
	}
	if cfg.Description == "" {
		cfg.Description = d.Description
	}
	if cfg.ResultCap <= 0 {
		cfg.ResultCap = d.ResultCap
	}
	if cfg.EventMode == "" {
		cfg.EventMode = d.EventMode
	}
	return cfg, nil
}

// Save writes the configuration to the default path.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

func SaveFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// StoreConfig validates the file values and converts them into store
// settings.
func (c *Config) StoreConfig() (google.Config, error) {
	out := google.Config{
		StoreName:        c.Calendar,
		StoreDescription: c.Description,
		ResultCap:        c.ResultCap,
		EventMode:        google.EventMode(c.EventMode),
		TimeZone:         c.TimeZone,
	}

	switch out.EventMode {
	case google.AllDay, google.Timed, "":
	default:
		return google.Config{}, fmt.Errorf("invalid event_mode %q: want %q or %q", c.EventMode, google.AllDay, google.Timed)
	}

	if c.Lookback != "" {
		d, err := time.ParseDuration(c.Lookback)
		if err != nil {
			return google.Config{}, fmt.Errorf("invalid lookback %q: %w", c.Lookback, err)
		}
		if d <= 0 {
			return google.Config{}, fmt.Errorf("invalid lookback %q: must be positive", c.Lookback)
		}
		out.Lookback = d
	}

	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return google.Config{}, fmt.Errorf("invalid time_zone %q: %w", c.TimeZone, err)
		}
	}
	return out, nil
}
