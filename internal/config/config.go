package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// JWTSettingsはアクセストークンとリフレッシュトークンの設定
type JWTSettings struct {
	Secret     string        // HS256署名シークレット
	Issuer     string        // iss
	Audience   string        // aud
	AccessTTL  time.Duration // アクセストークン（15分）
	RefreshTTL time.Duration // リフレッシュトークン（7日）
}

// SessionSettingsはCookieセッションの設定
type SessionSettings struct {
	CookieName string
	Secret     string
	TTL        time.Duration // スライディング有効期限（24時間）
	Secure     bool
}

// LockoutSettingsはログイン失敗時のロックアウト設定
type LockoutSettings struct {
	MaxFailedAccessAttempts int
	Duration                time.Duration
}

// RateLimitSettingsは認証APIのIP単位レート制限
type RateLimitSettings struct {
	PerSecond float64
	Burst     int
}

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	JWT       JWTSettings
	Session   SessionSettings
	Lockout   LockoutSettings
	RateLimit RateLimitSettings

	AdminEmail    string // 初期管理者
	AdminPassword string

	GoEnv    string // dev/prod
	LogLevel string
	LogDev   bool
}

const SessionCookieName = "TekelBayim.Auth"

// Loadは環境変数
func Load() (Config, error) {
	var errs []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			errs = append(errs, key+" is required")
		}
		return v
	}

	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getenv("POSTGRES_DB", "tekelbayim"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWT: JWTSettings{
			Secret:   req("JWT_SECRET"),
			Issuer:   getenv("JWT_ISSUER", "TekelBayim.Api"),
			Audience: getenv("JWT_AUDIENCE", "TekelBayim.Clients"),
		},
		Session: SessionSettings{
			CookieName: SessionCookieName,
			Secret:     os.Getenv("SESSION_SECRET"),
		},

		AdminEmail:    getenv("ADMIN_EMAIL", "admin@tekelbayim.local"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		GoEnv:    getenv("GO_ENV", "dev"),
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	var err error
	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		errs = append(errs, err.Error())
	}

	accessMin, err := atoiDefault("ACCESS_TOKEN_MINUTES", 15)
	if err != nil {
		errs = append(errs, err.Error())
	}
	refreshDays, err := atoiDefault("REFRESH_TOKEN_DAYS", 7)
	if err != nil {
		errs = append(errs, err.Error())
	}
	sessionHours, err := atoiDefault("SESSION_HOURS", 24)
	if err != nil {
		errs = append(errs, err.Error())
	}
	lockoutMin, err := atoiDefault("LOCKOUT_MINUTES", 5)
	if err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.Lockout.MaxFailedAccessAttempts, err = atoiDefault("MAX_FAILED_ACCESS_ATTEMPTS", 5); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.RateLimit.Burst, err = atoiDefault("AUTH_RATE_BURST", 10); err != nil {
		errs = append(errs, err.Error())
	}
	perSec, err := atoiDefault("AUTH_RATE_PER_SEC", 5)
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg.JWT.AccessTTL = time.Duration(accessMin) * time.Minute
	cfg.JWT.RefreshTTL = time.Duration(refreshDays) * 24 * time.Hour
	cfg.Session.TTL = time.Duration(sessionHours) * time.Hour
	cfg.Lockout.Duration = time.Duration(lockoutMin) * time.Minute
	cfg.RateLimit.PerSecond = float64(perSec)
	cfg.Session.Secure = envBool("COOKIE_SECURE", cfg.GoEnv == "prod")
	cfg.LogDev = envBool("LOG_DEV", false)

	//セッション専用のシークレットが無ければJWTと共有（audienceで区別する）
	if cfg.Session.Secret == "" {
		cfg.Session.Secret = cfg.JWT.Secret
	}

	//必須チェック
	if cfg.JWT.Secret != "" && len(cfg.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}
	if cfg.GoEnv == "prod" && cfg.AdminPassword == "" {
		errs = append(errs, "ADMIN_PASSWORD is required in prod")
	}
	//bcryptは72バイトまで
	if len(cfg.AdminPassword) > 72 {
		errs = append(errs, "ADMIN_PASSWORD must not exceed 72 bytes")
	}
	if cfg.Lockout.MaxFailedAccessAttempts <= 0 {
		errs = append(errs, "MAX_FAILED_ACCESS_ATTEMPTS must be positive")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// DSNはgorm(postgres)用の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	default:
		return def
	}
}
