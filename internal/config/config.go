package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvProduction は本番環境を示すAPP_ENVの値。
const EnvProduction = "production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session Token
	JWTSecret    string
	JWTExpiresIn time.Duration

	// Google
	GoogleClientID     string
	GoogleClientSecret string // 空の場合はリダイレクトフローを無効にする
	GoogleRedirectURL  string

	// OTP
	OTPExpiry          time.Duration
	OTPCleanupInterval time.Duration

	// SMTP（Hostが空の場合はメールを送らずログに出力する）
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Server
	ServerPort     string
	FrontendOrigin string
	AppEnv         string

	// Logging
	LogLevel string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTExpiresIn = getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour)
	cfg.GoogleClientSecret = getEnvString("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", "http://localhost:4000/api/auth/google/callback")
	cfg.OTPExpiry = time.Duration(getEnvInt("OTP_EXPIRE_MINUTES", 10)) * time.Minute
	cfg.OTPCleanupInterval = getEnvDuration("OTP_CLEANUP_INTERVAL", time.Minute)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPass = getEnvString("SMTP_PASS", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", `"Notes App" <no-reply@notesapp.dev>`)
	cfg.ServerPort = getEnvString("PORT", "4000")
	cfg.FrontendOrigin = getEnvString("FRONTEND_ORIGIN", "http://localhost:5173")
	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if cfg.OTPExpiry <= 0 {
		return nil, fmt.Errorf("OTP_EXPIRE_MINUTES must be positive")
	}
	if cfg.OTPCleanupInterval <= 0 {
		return nil, fmt.Errorf("OTP_CLEANUP_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment variable, using default",
			slog.String("key", key),
			slog.String("value", v),
			slog.Duration("default", defaultVal),
		)
		return defaultVal
	}
	return d
}

// ParseDuration はtime.ParseDurationの書式に加えて、日数指定（例: "7d"）と
// 単位なしの整数（秒数、例: "3600"）を受け付ける。
func ParseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
