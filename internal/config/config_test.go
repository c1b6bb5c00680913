package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 5, cfg.Limits.MaxActivePerEmail)
	assert.Equal(t, 10, cfg.Limits.MaxDailyPerEmail)
	assert.Equal(t, "static", cfg.Rates.Source)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Empty(t, cfg.Admin.APIKey)
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RATEALERTS_ADMIN_API_KEY", "s3cret")
	t.Setenv("RATEALERTS_DATABASE_DSN", "postgres://alerts@db/alerts")
	t.Setenv("RATEALERTS_REDIS_ADDR", "redis:6379")
	t.Setenv("RATEALERTS_NOTIFICATIONS_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("RATEALERTS_NOTIFICATIONS_EMAIL_API_KEY", "mail-key")
	t.Setenv("RATEALERTS_CRM_API_KEY", "crm-key")
	t.Setenv("RATEALERTS_SCHEDULER_RUN_ON_START", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Admin.APIKey)
	assert.Equal(t, "postgres://alerts@db/alerts", cfg.Database.DSN)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "bot-token", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, "mail-key", cfg.Notifications.Email.APIKey)
	assert.Equal(t, "crm-key", cfg.CRM.APIKey)
	assert.True(t, cfg.Scheduler.RunOnStart)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
scheduler:
  interval: 30m
limits:
  max_active_per_email: 3
rates:
  source: static
  static:
    FHA: 5.9
admin:
  api_key: secret
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 3, cfg.Limits.MaxActivePerEmail)
	assert.Equal(t, 10, cfg.Limits.MaxDailyPerEmail)
	assert.Equal(t, "secret", cfg.Admin.APIKey)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Create.Window)
}

func TestValidateRejectsFeedWithoutURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  source: feed\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rates.feed.base_url")
}

func TestResolvePageSize(t *testing.T) {
	cfg := &Config{Export: ExportConfig{PageSize: 200}}
	assert.Equal(t, 200, cfg.ResolvePageSize(0))
	assert.Equal(t, 50, cfg.ResolvePageSize(50))
}
