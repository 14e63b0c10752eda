package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type Config struct {
	Port        string
	DBPath      string
	ProfilePath string
	LogLevel    string
	LogFormat   string

	Gemini      GeminiConfig
	Chat        ChatConfig
	SMTP        SMTPConfig
	Admin       AdminConfig
	RedisURL    string
	CORSOrigins []string

	ChatRatePerMinute  int
	ContactRatePerHour int
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type ChatConfig struct {
	Timeout     time.Duration
	MaxMessages int
	SessionTTL  time.Duration
}

type SMTPConfig struct {
	Host    string
	Port    string
	User    string
	Pass    string
	ToEmail string
}

type AdminConfig struct {
	Username     string
	Password     string
	PasswordHash string
	JWTSecret    string
}

// loadConfig reads the environment. The .env file, when present, has already
// been applied by the godotenv autoload import in main.go.
func loadConfig() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "portfolio.db"),
		ProfilePath: os.Getenv("PROFILE_PATH"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			BaseURL: os.Getenv("GEMINI_BASE_URL"),
		},
		Chat: ChatConfig{
			Timeout:     getEnvAsDuration("CHAT_TIMEOUT", 30*time.Second),
			MaxMessages: getEnvAsInt("CHAT_MAX_MESSAGES", 100),
			SessionTTL:  getEnvAsDuration("CHAT_SESSION_TTL", 24*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:    getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:    getEnv("SMTP_PORT", "587"),
			User:    os.Getenv("SMTP_USER"),
			Pass:    os.Getenv("SMTP_PASS"),
			ToEmail: os.Getenv("TO_EMAIL"),
		},
		Admin: AdminConfig{
			Username:     os.Getenv("ADMIN_USERNAME"),
			Password:     os.Getenv("ADMIN_PASSWORD"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			JWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		},
		RedisURL:           os.Getenv("REDIS_URL"),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"*"}),
		ChatRatePerMinute:  getEnvAsInt("CHAT_RATE_PER_MIN", 20),
		ContactRatePerHour: getEnvAsInt("CONTACT_RATE_PER_HOUR", 5),
	}

	// Default credentials for development only
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.Password == "" && cfg.Admin.PasswordHash == "" && gin.Mode() == gin.DebugMode {
		slog.Warn("using default admin password; set ADMIN_PASSWORD or ADMIN_PASSWORD_HASH")
		cfg.Admin.Password = "admin123"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Chat.MaxMessages < minTranscript {
		return fmt.Errorf("CHAT_MAX_MESSAGES must be at least %d, got %d", minTranscript, c.Chat.MaxMessages)
	}
	if c.ChatRatePerMinute <= 0 || c.ContactRatePerHour <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
