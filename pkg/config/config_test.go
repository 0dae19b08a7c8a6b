package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrisonrobin/caltask/pkg/google"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingGivesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "Task Manager", cfg.Calendar)
	assert.Equal(t, 500, cfg.ResultCap)
}

func TestLoadFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
calendar = "Chores"
lookback = "720h"
event_mode = "timed"
time_zone = "UTC"
`), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Chores", cfg.Calendar)
	assert.Equal(t, google.DefaultStoreDescription, cfg.Description)
	assert.Equal(t, 500, cfg.ResultCap)

	sc, err := cfg.StoreConfig()
	require.NoError(t, err)
	assert.Equal(t, google.Config{
		StoreName:        "Chores",
		StoreDescription: google.DefaultStoreDescription,
		Lookback:         720 * time.Hour,
		ResultCap:        500,
		EventMode:        google.Timed,
		TimeZone:         "UTC",
	}, sc)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("calender = \"typo\"\n"), 0600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calender")
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("calendar = \n"), 0600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	want := &Config{
		Calendar:    "Work",
		Description: "work tasks",
		Lookback:    "2160h",
		ResultCap:   100,
		EventMode:   "all-day",
	}
	require.NoError(t, SaveFile(path, want))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStoreConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad mode", Config{EventMode: "hourly"}},
		{"bad lookback", Config{Lookback: "a year"}},
		{"negative lookback", Config{Lookback: "-5h"}},
		{"bad zone", Config{TimeZone: "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.StoreConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetConfigPathHonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "caltask", "config.toml"), path)
}
