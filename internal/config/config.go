// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 識別情報ストアの種別です。
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// MaxRememberMeDays はセッションクッキーの署名が有効な最大日数です。
// cookie ストアの securecookie は30日を超えた値を復号しません。
const MaxRememberMeDays = 30

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// リバースプロキシ設定
	TrustedProxies []string // X-Forwarded-For を信頼するプロキシ（IP/CIDR、空の場合は信頼しない）

	// ビュー設定
	TemplateGlob string // HTMLテンプレートのglob（空の場合はJSONで応答）
	IndexPath    string // ログイン成功時のリダイレクト先

	// セッション設定
	SessionSecret  string // セッション署名用の秘密鍵
	RememberMe     bool   // ログイン時に remember me を有効にするか
	RememberMeDays int    // remember me セッションの保持日数

	// ログイン試行制限
	LoginMaxAttempts   int // ウィンドウ内で許容する失敗回数
	LoginWindowMinutes int // 失敗回数を数えるウィンドウ（分）

	// 識別情報ストア設定
	IdentityStore string // memory, redis, postgres
	DatabaseURL   string // PostgreSQL 接続URL
	RedisURL      string // 識別情報ストア用Redis接続URL

	// 監査ログ設定
	AuditRedisURL       string // Asynq/監査ログ用Redis接続URL（空の場合は無効）
	AuditRetentionHours int    // 監査イベントの保持時間
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		TrustedProxies:     getEnvAsList("TRUSTED_PROXIES"),

		TemplateGlob: getEnv("TEMPLATE_GLOB", ""),
		IndexPath:    getEnv("INDEX_PATH", "/index"),

		SessionSecret:  getEnv("SESSION_SECRET", ""),
		RememberMe:     getEnvAsBool("REMEMBER_ME", true),
		RememberMeDays: getEnvAsInt("REMEMBER_ME_DAYS", 14),

		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowMinutes: getEnvAsInt("LOGIN_WINDOW_MINUTES", 15),

		IdentityStore: strings.ToLower(getEnv("IDENTITY_STORE", StoreMemory)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		AuditRedisURL:       getEnv("AUDIT_REDIS_URL", ""),
		AuditRetentionHours: getEnvAsInt("AUDIT_RETENTION_HOURS", 72),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.IdentityStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when IDENTITY_STORE=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when IDENTITY_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_STORE %q (memory, redis, postgres)", c.IdentityStore)
	}

	if !strings.HasPrefix(c.IndexPath, "/") || c.IndexPath == "/" || strings.HasPrefix(c.IndexPath, "/identity/") {
		return fmt.Errorf("INDEX_PATH must be an absolute path other than / and /identity/*")
	}
	if c.RememberMeDays <= 0 || c.RememberMeDays > MaxRememberMeDays {
		return fmt.Errorf("REMEMBER_ME_DAYS must be between 1 and %d", MaxRememberMeDays)
	}
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.LoginWindowMinutes <= 0 {
		return fmt.Errorf("LOGIN_WINDOW_MINUTES must be positive")
	}

	// ローカル開発ではセッション鍵は任意
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.IdentityStore == StoreMemory {
			return fmt.Errorf("IDENTITY_STORE=memory is not allowed in release mode")
		}
	}

	return nil
}

// RememberMeDuration は remember me セッションの保持期間を返します。
func (c *Config) RememberMeDuration() time.Duration {
	return time.Duration(c.RememberMeDays) * 24 * time.Hour
}

// LoginWindow はログイン失敗回数を数える期間を返します。
func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginWindowMinutes) * time.Minute
}

// AuditRetention は監査イベントの保持期間を返します。
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionHours) * time.Hour
}

// AuditEnabled は監査ログが有効かどうかを返します。
func (c *Config) AuditEnabled() bool {
	return c.AuditRedisURL != ""
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数を空要素を除いて返します。
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnvAsBool は環境変数を真偽値として取得します。
// strconv.ParseBool が解釈できない値はデフォルト値になります。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
