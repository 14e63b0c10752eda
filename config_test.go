package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_PATH", "PROFILE_PATH", "LOG_LEVEL", "LOG_FORMAT",
		"GEMINI_API_KEY", "API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
		"CHAT_TIMEOUT", "CHAT_MAX_MESSAGES", "CHAT_SESSION_TTL", "REDIS_URL",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "TO_EMAIL",
		"ADMIN_USERNAME", "ADMIN_PASSWORD", "ADMIN_PASSWORD_HASH", "ADMIN_JWT_SECRET",
		"CORS_ORIGINS", "CHAT_RATE_PER_MIN", "CONTACT_RATE_PER_HOUR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ADMIN_PASSWORD", "pw")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "portfolio.db", cfg.DBPath)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, 100, cfg.Chat.MaxMessages)
	assert.Equal(t, 24*time.Hour, cfg.Chat.SessionTTL)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 20, cfg.ChatRatePerMinute)
	assert.Equal(t, 5, cfg.ContactRatePerHour)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("CHAT_TIMEOUT", "5s")
	t.Setenv("CHAT_MAX_MESSAGES", "20")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("CHAT_RATE_PER_MIN", "not-a-number")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.Gemini.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, 20, cfg.Chat.MaxMessages)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 20, cfg.ChatRatePerMinute)
	assert.Empty(t, cfg.Admin.Password)

	t.Setenv("GEMINI_API_KEY", "primary-key")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "primary-key", cfg.Gemini.APIKey)
}

func TestConfigValidate(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ADMIN_PASSWORD", "pw")

	t.Setenv("CHAT_MAX_MESSAGES", "1")
	_, err := loadConfig()
	assert.Error(t, err)

	t.Setenv("CHAT_MAX_MESSAGES", "2")
	_, err = loadConfig()
	assert.Error(t, err, "greeting plus one pair needs three messages")

	t.Setenv("CHAT_MAX_MESSAGES", "3")
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Chat.MaxMessages)

	t.Setenv("CHAT_MAX_MESSAGES", "")
	t.Setenv("CONTACT_RATE_PER_HOUR", "0")
	_, err = loadConfig()
	assert.Error(t, err)
}
