package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.SyncWindowDays)
	assert.Equal(t, "Work", cfg.CalDAV.Calendar)
	wd, err := cfg.Weekday()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, wd)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salva.yaml")
	yml := []byte("database:\n  driver: postgres\n  url: postgres://localhost/salva\ncaldav:\n  calendar: Perso\nsync_window_days: 14\nmaterialize_weekday: Monday\n")
	require.NoError(t, os.WriteFile(path, yml, 0o600))

	t.Setenv("SALVA_CALENDAR", "Travail")
	t.Setenv("SALVA_CALDAV_PASSWORD", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 14, cfg.SyncWindowDays)
	assert.Equal(t, "Travail", cfg.CalDAV.Calendar)
	assert.Equal(t, "secret", cfg.CalDAV.Password)
	wd, err := cfg.Weekday()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, wd)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.CycleTime = "25:00"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaterializeWeekday = "someday"
	assert.Error(t, cfg.Validate())
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("08:05")
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 5, m)

	_, _, err = ParseClock("8h")
	assert.Error(t, err)
}
