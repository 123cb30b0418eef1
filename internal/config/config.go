package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinSecretKeyLength は署名鍵の最小バイト数。
const MinSecretKeyLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	SecretKey       string
	JWTAlgorithm    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Password
	PasswordHashIterations int

	// Rate Limit（req/min）
	RateLimitAuth    int
	RateLimitGeneral int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または署名鍵が短すぎる場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.SecretKey) < MinSecretKeyLength {
		return nil, fmt.Errorf("SECRET_KEY must be at least %d bytes, got %d", MinSecretKeyLength, len(cfg.SecretKey))
	}

	// Optional fields with defaults
	cfg.JWTAlgorithm = strings.ToUpper(getEnvString("JWT_ALGORITHM", "HS256"))
	switch cfg.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("unsupported JWT_ALGORITHM: %q", cfg.JWTAlgorithm)
	}

	cfg.AccessTokenTTL = time.Duration(getEnvPositiveInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute
	cfg.RefreshTokenTTL = time.Duration(getEnvPositiveInt("REFRESH_TOKEN_EXPIRE_MINUTES", 10080)) * time.Minute
	cfg.PasswordHashIterations = getEnvInt("PASSWORD_HASH_ITERATIONS", 29000)
	if cfg.PasswordHashIterations < 1000 {
		return nil, fmt.Errorf("PASSWORD_HASH_ITERATIONS must be at least 1000, got %d", cfg.PasswordHashIterations)
	}
	cfg.RateLimitAuth = getEnvPositiveInt("RATE_LIMIT_AUTH", 20)
	cfg.RateLimitGeneral = getEnvPositiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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

// getEnvPositiveInt は正の整数を読み込む。0以下や不正値はデフォルト値を返す。
func getEnvPositiveInt(key string, defaultVal int) int {
	i := getEnvInt(key, defaultVal)
	if i <= 0 {
		return defaultVal
	}
	return i
}
