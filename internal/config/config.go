package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingJWTSecret = errors.New("JWT_SECRET must be set")
	ErrSeedOutsideDev   = errors.New("SEED_DEMO_DATA is only allowed when APP_ENV=dev")
)

type Config struct {
	Env   string
	Port  int
	DBURL string

	JWTSecret string

	AdminUsername string
	AdminPassword string
	AdminFullname string
	SeedDemoData  bool

	// LockReviewedSignals stops owners editing signals once reviewed.
	LockReviewedSignals bool

	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	// TrustedProxies may set X-Forwarded-For. Empty means the socket peer is
	// the client address.
	TrustedProxies []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// LoginRateLimit is attempts per minute per client on /auth/login and /auth/register.
	LoginRateLimit int

	OTLPEndpoint string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var problems []error

	cfg := Config{
		Env:   getEnv("APP_ENV", "dev"),
		DBURL: getEnv("DATABASE_URL", buildDBURL()),

		JWTSecret: os.Getenv("JWT_SECRET"),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminFullname: getEnv("ADMIN_FULLNAME", "System Admin"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		TrustedProxies:     splitList(os.Getenv("TRUSTED_PROXIES")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	collect := func(err error) {
		if err != nil {
			problems = append(problems, err)
		}
	}

	var err error
	cfg.Port, err = getEnvInt("PORT", 8080)
	collect(err)
	cfg.RedisDB, err = getEnvInt("REDIS_DB", 0)
	collect(err)
	cfg.LoginRateLimit, err = getEnvInt("LOGIN_RATE_LIMIT", 10)
	collect(err)

	maxBody, err := getEnvInt("MAX_BODY_BYTES", 1<<20)
	collect(err)
	cfg.MaxBodyBytes = int64(maxBody)

	cfg.SeedDemoData, err = getEnvBool("SEED_DEMO_DATA", false)
	collect(err)
	cfg.LockReviewedSignals, err = getEnvBool("SIGNAL_EDIT_LOCK_REVIEWED", false)
	collect(err)

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		problems = append(problems, ErrMissingJWTSecret)
	}
	if cfg.LoginRateLimit < 1 {
		problems = append(problems, fmt.Errorf("LOGIN_RATE_LIMIT: must be at least 1, got %d", cfg.LoginRateLimit))
	}
	// demo accounts share a published password
	if cfg.SeedDemoData && !cfg.IsDev() {
		problems = append(problems, ErrSeedOutsideDev)
	}

	if len(problems) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(problems...))
	}

	return cfg, nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "signalhub")
	pass := getEnv("DB_PASSWORD", "signalhub")
	name := getEnv("DB_NAME", "signalhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	num, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, v)
	}

	return num, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a boolean", key, v)
	}

	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
