package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "DB_DRIVER", "DB_MIGRATE", "START_HORIZON_DAYS", "MAX_SHIFT_HOURS", "ENFORCE_CONFLICTS", "ALLOW_ORIGINS"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "", c.DBDriver, "no DSN means in-memory")
	assert.True(t, c.DBMigrate)
	assert.False(t, c.EnforceConflicts)
	assert.Equal(t, []string{"*"}, c.AllowOrigins)

	lc := c.Lifecycle()
	assert.Equal(t, 7, lc.StartHorizonDays)
	assert.Equal(t, 30, lc.DeleteRetentionDays)
	assert.Equal(t, 18.0, lc.MaxShiftHours)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/ops")
	t.Setenv("ENFORCE_CONFLICTS", "true")
	t.Setenv("START_HORIZON_DAYS", "14")
	t.Setenv("MAX_SHIFT_HOURS", "12.5")
	t.Setenv("SIDE_EFFECT_ATTEMPTS", "not-a-number")
	t.Setenv("ALLOW_ORIGINS", "https://a.example, https://b.example,")

	c := FromEnv()
	assert.Equal(t, "postgres", c.DBDriver)
	assert.True(t, c.Lifecycle().EnforceConflicts)
	assert.Equal(t, 14, c.StartHorizonDays)
	assert.Equal(t, 12.5, c.MaxShiftHours)
	assert.Equal(t, 3, c.SideEffectAttempts, "bad values fall back to defaults")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowOrigins)
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "postgres", driverFor("postgresql://localhost/ops"))
	assert.Equal(t, "postgres", driverFor("host=db user=ops dbname=ops"))
	assert.Equal(t, "sqlite", driverFor("./fieldops.db"))
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DELETE_RETENTION_DAYS=45\n"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DELETE_RETENTION_DAYS", "")
	os.Unsetenv("DELETE_RETENTION_DAYS")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45, c.DeleteRetentionDays)
}

func TestLoadWithoutDotEnv(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = Load()
	assert.NoError(t, err)
}
