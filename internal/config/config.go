package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime setting, loaded once at startup and injected
// explicitly into the components that need it.
type Config struct {
	Env        string
	Port       string
	APIVersion string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	// Bounded startup retry: the server listens first, then pings the store
	// up to DBConnectAttempts times before giving up and exiting.
	DBConnectAttempts int
	DBConnectDelay    time.Duration

	JWTAccessSecret string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	LockoutMaxAttempts int
	LockoutWindow      time.Duration

	UploadsDir    string
	MaxUploadSize int64

	CORSOrigins []string

	RedisAddr     string
	RedisPassword string
	LoginRateMax  int
	LoginRateWin  time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	AdminUsername string
	AdminPassword string
}

// Load reads configuration from the environment, applying development
// defaults for everything except the JWT secret in release mode.
func Load() *Config {
	cfg := &Config{
		Env:        getEnv("APP_ENV", "development"),
		Port:       getEnv("PORT", "8080"),
		APIVersion: getEnv("API_VERSION", "v1"),

		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "ambulancias"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		DBConnectAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 10),
		DBConnectDelay:    time.Duration(getEnvInt("DB_CONNECT_DELAY_SECONDS", 3)) * time.Second,

		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),
		AccessTokenTTL:  time.Duration(getEnvInt("JWT_ACCESS_EXPIRES_MINUTES", 15)) * time.Minute,
		RefreshTokenTTL: time.Duration(getEnvInt("JWT_REFRESH_EXPIRES_DAYS", 7)) * 24 * time.Hour,
		BcryptCost:      getEnvInt("BCRYPT_ROUNDS", 12),

		LockoutMaxAttempts: getEnvInt("ACCOUNT_LOCKOUT_ATTEMPTS", 5),
		LockoutWindow:      time.Duration(getEnvInt("ACCOUNT_LOCKOUT_DURATION_MINUTES", 30)) * time.Minute,

		UploadsDir:    getEnv("UPLOADS_DIR", "uploads"),
		MaxUploadSize: int64(getEnvInt("MAX_FILE_SIZE_MB", 10)) * 1024 * 1024,

		CORSOrigins: strings.Split(getEnv("CORS_ORIGIN", "http://localhost:5173"), ","),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LoginRateMax:  getEnvInt("LOGIN_RATE_MAX", 20),
		LoginRateWin:  time.Duration(getEnvInt("LOGIN_RATE_WINDOW_SECONDS", 60)) * time.Second,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   os.Getenv("LOG_FILE"),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	if cfg.JWTAccessSecret == "" {
		if cfg.IsProduction() {
			panic("JWT_ACCESS_SECRET environment variable is required in production")
		}
		cfg.JWTAccessSecret = "default_super_secret_key" // development fallback only
	}

	return cfg
}

// IsProduction reports whether the app runs in release mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || os.Getenv("GIN_MODE") == "release"
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort +
		"/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
