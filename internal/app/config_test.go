package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("REALTIME_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "innkeeper:realtime", cfg.RealtimeChannel)
	assert.Equal(t, 30*time.Second, cfg.SyncPollInterval)
	assert.Equal(t, 3*time.Second, cfg.SyncReconnectDelay)
	assert.Equal(t, "*/15 * * * *", cfg.AnalyticsRefreshCron)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RealtimeAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "c")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv("INNKEEPER_TEST_MODE", "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
	t.Setenv("INNKEEPER_TEST_MODE", "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("room", "101"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"room":"101"`)
	assert.NotContains(t, out, `"source"`)

	buf.Reset()
	newLogger(&Config{LogLevel: "debug"}, &buf).Debug("trace")
	assert.Contains(t, buf.String(), "msg=trace")
	assert.Contains(t, buf.String(), "source=")
}
