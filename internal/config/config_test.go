package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func TestBindFlagsDefaultsFromEnv(t *testing.T) {
	t.Setenv("HOSTFLEETD_HTTP_ADDR", ":9090")
	t.Setenv("HOSTFLEETD_HEARTBEAT_INTERVAL", "45s")
	t.Setenv("HOSTFLEETD_MAX_TIMEOUT_MS", "5000")
	t.Setenv("HOSTFLEETD_NOTIFY_DESKTOP", "false")

	cmd := &cobra.Command{Use: "test"}
	cfg := &Config{}
	Flags(cmd, cfg)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 45*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5000, cfg.MaxTimeoutMs)
	assert.False(t, cfg.NotifyDesktop)
}

func TestBindFlagsFallBackToHardcodedDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cfg := &Config{}
	Flags(cmd, cfg)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 2*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 90*time.Second, cfg.StaleAfter)
	assert.True(t, cfg.NotifyDesktop)
}

func TestFlagOverridesEnvDefault(t *testing.T) {
	t.Setenv("HOSTFLEETD_HTTP_ADDR", ":9090")

	cmd := &cobra.Command{Use: "test"}
	cfg := &Config{}
	Flags(cmd, cfg)

	require.NoError(t, cmd.ParseFlags([]string{"--http-addr=:7070"}))
	assert.Equal(t, ":7070", cfg.HTTPAddr)
}

func TestBuildLoggerHonorsLevel(t *testing.T) {
	logger, err := BuildLogger("debug")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestGormLogLevelMapping(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLogLevel("info"))
	assert.Equal(t, gormlogger.Error, GormLogLevel("warn"))
	assert.Equal(t, gormlogger.Error, GormLogLevel("error"))
}

func TestEnvIntOrDefaultFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("HOSTFLEETD_MAX_TIMEOUT_MS", "not-a-number")
	assert.Equal(t, 30000, envIntOrDefault("HOSTFLEETD_MAX_TIMEOUT_MS", 30000))
}

func TestEnvDurationOrDefaultFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("HOSTFLEETD_STALE_AFTER", "not-a-duration")
	assert.Equal(t, 90*time.Second, envDurationOrDefault("HOSTFLEETD_STALE_AFTER", 90*time.Second))
}
