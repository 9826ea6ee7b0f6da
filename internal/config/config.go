// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v2"
)

// 開発モードでのみ使うセッション署名鍵
const devSessionSecret = "dev-session-secret-change-me-0123456789"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string `yaml:"port"`     // HTTPサーバーのポート番号
	GinMode string `yaml:"gin_mode"` // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret        string `yaml:"session_secret"`          // セッションCookie署名用の秘密鍵
	SessionRedisURL      string `yaml:"session_redis_url"`       // 空でなければセッショントークンをRedisに保存
	SessionMaxAgeMinutes int    `yaml:"session_max_age_minutes"` // ログインからの絶対的な有効期限（分）
	SessionIdleMinutes   int    `yaml:"session_idle_minutes"`    // 無操作タイムアウト（分）

	// データベース設定
	DBDriver string `yaml:"db_driver"` // sqlite3 または postgres
	DBDSN    string `yaml:"db_dsn"`    // ドライバーに渡す接続文字列

	// パスワードハッシュのコスト
	BcryptCost int `yaml:"bcrypt_cost"`

	// CORS設定
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"` // カンマ区切り。空ならCORSミドルウェアを使わない
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
// CONFIG_FILE が指定されていれば YAML を基準値とし、環境変数で上書きします。
func Load() (*Config, error) {
	loadEnvFile()

	base := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, base); err != nil {
			return nil, err
		}
	}

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", base.Port),
		GinMode: getEnv("GIN_MODE", base.GinMode),

		// セッション設定
		SessionSecret:        getEnv("SESSION_SECRET", base.SessionSecret),
		SessionRedisURL:      getEnv("SESSION_REDIS_URL", base.SessionRedisURL),
		SessionMaxAgeMinutes: getEnvAsInt("SESSION_MAX_AGE_MINUTES", base.SessionMaxAgeMinutes),
		SessionIdleMinutes:   getEnvAsInt("SESSION_IDLE_MINUTES", base.SessionIdleMinutes),

		// データベース設定
		DBDriver: getEnv("DB_DRIVER", base.DBDriver),
		DBDSN:    getEnv("DB_DSN", base.DBDSN),

		BcryptCost: getEnvAsInt("BCRYPT_COST", base.BcryptCost),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", base.CORSAllowedOrigins),
	}

	if config.SessionSecret == "" && config.GinMode != "release" {
		config.SessionSecret = devSessionSecret
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Port:                 "8080",
		GinMode:              "debug",
		SessionMaxAgeMinutes: 12 * 60,
		SessionIdleMinutes:   30,
		DBDriver:             "sqlite3",
		DBDSN:                "bookings.db",
		BcryptCost:           bcrypt.DefaultCost,
	}
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

// loadYAML は YAML ファイルの値を cfg に重ねます。ファイルに無い項目は既定値のままです。
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres (got %q)", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.SessionMaxAgeMinutes <= 0 || c.SessionIdleMinutes <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE_MINUTES and SESSION_IDLE_MINUTES must be positive")
	}

	// 本番環境では署名鍵を厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes in release mode")
		}
	}

	return nil
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
