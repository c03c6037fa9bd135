package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50.0, cfg.Search.DefaultRadiusKm)
	assert.Equal(t, 5, cfg.Search.DefaultMaxResults)
	assert.Equal(t, 30, cfg.Search.WindowDays)
	assert.Equal(t, 9999, cfg.Sequence.DefaultMax)
	assert.Equal(t, 3, cfg.Booking.RetryAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Booking.RetryInitialDelay)
	assert.Equal(t, "weekday", cfg.Schedule.RecurringHolidayMatch)
	assert.Equal(t, time.UTC, cfg.TimeLocation())
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9000
database:
  host: db.internal
  port: 6543
search:
  window_days: 14
schedule:
  recurring_holiday_match: anniversary
location: Asia/Riyadh
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	t.Setenv("DB_HOST", "override.internal")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 14, cfg.Search.WindowDays)
	assert.Equal(t, "anniversary", cfg.Schedule.RecurringHolidayMatch)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "Asia/Riyadh", cfg.TimeLocation().String())
	assert.Contains(t, cfg.Database.DSN(), "host=override.internal port=6543")
}

func TestLoadConfig_RejectsUnknownHolidayPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("schedule:\n  recurring_holiday_match: monthly\n"), 0o600))

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recurring_holiday_match")
}
