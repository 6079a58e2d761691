// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Identity provider (GoTrue互換API)
	AuthURL     string
	AuthAnonKey string

	// External APIs
	JokesAPIURL string
	AIEventURL  string
	AIAppID     string

	// Database (空の場合はメモリ上にセッションを保持する)
	DatabaseURL string

	// Session
	SessionMaxAge        int
	WorkspaceIdleTimeout time.Duration
	CleanupInterval      time.Duration

	// Rate Limit
	RateLimitActions int

	// Outbound HTTP
	UpstreamTimeout   time.Duration
	MediaFetchTimeout time.Duration
	MediaMaxSize      int64

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// dotEnvPath は起動ディレクトリで読み込む.envファイルのパス。
var dotEnvPath = ".env"

// Load は環境変数からConfigを読み込む。
// .envファイルが存在する場合は先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.AuthURL = strings.TrimRight(os.Getenv("AUTH_URL"), "/")
	if cfg.AuthURL == "" {
		missing = append(missing, "AUTH_URL")
	}

	cfg.AuthAnonKey = os.Getenv("AUTH_ANON_KEY")
	if cfg.AuthAnonKey == "" {
		missing = append(missing, "AUTH_ANON_KEY")
	}

	cfg.JokesAPIURL = strings.TrimRight(os.Getenv("JOKES_API_URL"), "/")
	if cfg.JokesAPIURL == "" {
		missing = append(missing, "JOKES_API_URL")
	}

	cfg.AIEventURL = os.Getenv("AI_EVENT_URL")
	if cfg.AIEventURL == "" {
		missing = append(missing, "AI_EVENT_URL")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AIAppID = getEnvString("AI_APP_ID", "")
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.WorkspaceIdleTimeout = getEnvDuration("WORKSPACE_IDLE_TIMEOUT", 30*time.Minute)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.RateLimitActions = getEnvInt("RATE_LIMIT_ACTIONS", 20)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 0)
	cfg.MediaFetchTimeout = getEnvDuration("MEDIA_FETCH_TIMEOUT", 15*time.Second)
	cfg.MediaMaxSize = getEnvInt64("MEDIA_MAX_SIZE", 20971520)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

	return cfg, nil
}

// loadDotEnv は.envファイルを読み込む。ファイルが無い場合は何もしない。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
