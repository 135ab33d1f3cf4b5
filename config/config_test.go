package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay/config"
)

// setEnv clears every STARPAY_ variable for the test, then applies env.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "STARPAY_") {
			t.Setenv(k, "")
			require.NoError(t, os.Unsetenv(k))
		}
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestDefaults(t *testing.T) {
	setEnv(t, map[string]string{
		"STARPAY_TELEGRAM_TOKEN": "123:abc",
	})
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, config.ModePolling, cfg.TelegramMode)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, "file:starpay.db?_pragma=busy_timeout(5000)", cfg.StoreDSN)
	assert.Equal(t, 2*time.Second, cfg.PreCheckoutDeadline)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Durable())
}

func TestOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"STARPAY_TELEGRAM_MODE":        "webhook",
		"STARPAY_TELEGRAM_TOKEN":       "123:abc",
		"STARPAY_WEBHOOK_URL":          "https://pay.example.com/telegram/webhook",
		"STARPAY_STORE":                "memory",
		"STARPAY_PRECHECKOUT_DEADLINE": "1500ms",
		"STARPAY_REDIS_ADDR":           "localhost:6379",
		"STARPAY_LOG_FORMAT":           "console",
	})
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, config.ModeWebhook, cfg.TelegramMode)
	assert.Equal(t, 1500*time.Millisecond, cfg.PreCheckoutDeadline)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.Durable())
}

func TestUnprefixedVariablesAreIgnored(t *testing.T) {
	setEnv(t, map[string]string{"STARPAY_TELEGRAM_MODE": "disabled"})
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE", "bolt")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"token required", map[string]string{}, "STARPAY_TELEGRAM_TOKEN"},
		{"unknown store", map[string]string{"STARPAY_TELEGRAM_MODE": "disabled", "STARPAY_STORE": "dynamo"}, "STARPAY_STORE"},
		{"webhook url required", map[string]string{"STARPAY_TELEGRAM_TOKEN": "x", "STARPAY_TELEGRAM_MODE": "webhook"}, "STARPAY_WEBHOOK_URL"},
		{"deadline over telegram limit", map[string]string{"STARPAY_TELEGRAM_MODE": "disabled", "STARPAY_PRECHECKOUT_DEADLINE": "30s"}, "STARPAY_PRECHECKOUT_DEADLINE"},
		{"short reference key", map[string]string{"STARPAY_TELEGRAM_MODE": "disabled", "STARPAY_REFERENCE_KEY": "short"}, "STARPAY_REFERENCE_KEY"},
		{"bad log level", map[string]string{"STARPAY_TELEGRAM_MODE": "disabled", "STARPAY_LOG_LEVEL": "loud"}, "STARPAY_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			_, err := config.FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBadDuration(t *testing.T) {
	setEnv(t, map[string]string{
		"STARPAY_TELEGRAM_MODE":        "disabled",
		"STARPAY_PRECHECKOUT_DEADLINE": "soon",
	})
	_, err := config.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARPAY_PRECHECKOUT_DEADLINE")
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STARPAY_STORE=bolt\nSTARPAY_STORE_DSN=/tmp/starpay.bolt\n"), 0o600))
	setEnv(t, map[string]string{
		"STARPAY_STORE":         "memory",
		"STARPAY_TELEGRAM_MODE": "disabled",
	})
	t.Cleanup(func() { _ = os.Unsetenv("STARPAY_STORE_DSN") })

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// The real environment wins over the file.
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, "/tmp/starpay.bolt", cfg.StoreDSN)
}

func TestLoadMissingFile(t *testing.T) {
	setEnv(t, map[string]string{"STARPAY_TELEGRAM_MODE": "disabled"})
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
