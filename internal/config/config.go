package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// タスクストアの種別。
const (
	TaskStoreFirestore = "firestore"
	TaskStorePostgres  = "postgres"
	TaskStoreMemory    = "memory" // ローカル開発用。再起動で内容は失われる
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Task store
	TaskStore               string
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirestoreCollection     string
	GatewayTimeout          time.Duration

	// Workspace
	WorkspaceIdleTTL time.Duration
	WorkspaceMax     int
	ReminderLocation *time.Location

	// Rate Limit（req/min）
	RateLimitGeneral    int
	RateLimitTaskCreate int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.TaskStore = strings.ToLower(getEnvString("TASK_STORE", TaskStorePostgres))
	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	if cfg.TaskStore == TaskStoreFirestore && cfg.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.TaskStore {
	case TaskStoreFirestore, TaskStorePostgres, TaskStoreMemory:
	default:
		return nil, fmt.Errorf("unsupported TASK_STORE: %q (want %q, %q or %q)",
			cfg.TaskStore, TaskStoreFirestore, TaskStorePostgres, TaskStoreMemory)
	}

	loc, err := time.LoadLocation(getEnvString("REMINDER_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_TIMEZONE: %w", err)
	}
	cfg.ReminderLocation = loc

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.FirebaseCredentialsFile = getEnvString("FIREBASE_CREDENTIALS_FILE", "")
	cfg.FirestoreCollection = getEnvString("FIRESTORE_COLLECTION", "todos")
	cfg.GatewayTimeout = getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second)
	cfg.WorkspaceIdleTTL = getEnvDuration("WORKSPACE_IDLE_TTL", 30*time.Minute)
	cfg.WorkspaceMax = getEnvInt("WORKSPACE_MAX", 10000)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTaskCreate = getEnvInt("RATE_LIMIT_TASK_CREATE", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

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
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
