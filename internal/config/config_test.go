package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("REAPER_GRACE_PERIOD", "")
	t.Setenv("REAPER_ENFORCE_GRACE", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "minio", cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.ReaperGracePeriod)
	assert.False(t, cfg.ReaperEnforceAge)
	assert.False(t, cfg.IsProduction())
	assert.True(t, cfg.StorageProvision)
}

func TestLoadProductionEnforcesGrace(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("REAPER_ENFORCE_GRACE", "")
	t.Setenv("REAPER_GRACE_PERIOD", "36h")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.ReaperEnforceAge)
	assert.Equal(t, 36*time.Hour, cfg.ReaperGracePeriod)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("REAPER_ENFORCE_GRACE", "false")
	t.Setenv("REAPER_GRACE_PERIOD", "not-a-duration")
	t.Setenv("REAPER_CONCURRENCY", "-3")
	t.Setenv("STORAGE_USE_SSL", "true")

	cfg := Load()

	assert.False(t, cfg.ReaperEnforceAge)
	assert.Equal(t, 24*time.Hour, cfg.ReaperGracePeriod)
	assert.Equal(t, 8, cfg.ReaperConcurrency)
	assert.True(t, cfg.StorageUseSSL)
}
