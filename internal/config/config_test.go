package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should use defaults when file is missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		require.NoError(t, err)
		assert.Equal(t, "UTC", cfg.Business.Timezone)
		assert.Equal(t, 5*time.Minute, cfg.Google.CacheTTL)
		assert.Equal(t, "ignore", cfg.Google.AllDayPolicy)
		assert.Equal(t, 2, cfg.Booking.GranularitySlots)
		assert.Equal(t, 24*time.Hour, cfg.Booking.CancellationWindow)
		assert.Equal(t, int64(100), cfg.Credits.RateCents)
	})

	t.Run("should override defaults from yaml and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "application.yaml")
		content := "business:\n  timezone: Europe/Warsaw\ngoogle:\n  alldaypolicy: block\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		t.Setenv("TUTORHUB_DB_HOST", "db.internal")

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, "Europe/Warsaw", cfg.Business.Timezone)
		assert.Equal(t, "block", cfg.Google.AllDayPolicy)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
	})
}
