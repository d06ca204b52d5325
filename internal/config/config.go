package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	AuthSecret              string
	AccessTokenTTLMinutes   int
	ReportUTCOffsetMinutes  int
	ReportZoneName          string
	LoginMaxAttempts        int
	LoginWindowSeconds      int
	HTTPWriteTimeoutSeconds int
	LogLevel                string
	Env                     string
	Seed                    SeedConfig
}

// SeedConfig describes the demo tenant created when RUN_SEED=1.
type SeedConfig struct {
	Enabled       bool
	OwnerEmail    string
	OwnerPassword string
	OwnerName     string
	BusinessName  string
}

// Load reads the process environment, after merging a .env file from the
// working directory when one exists.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		DatabaseURL:             normalizeDatabaseURL(os.Getenv("DATABASE_URL")),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ReportUTCOffsetMinutes:  getInt("REPORT_UTC_OFFSET_MINUTES", 180),
		ReportZoneName:          getEnv("REPORT_ZONE_NAME", "EAT"),
		LoginMaxAttempts:        getPositiveInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowSeconds:      getPositiveInt("LOGIN_WINDOW_SECONDS", 60),
		HTTPWriteTimeoutSeconds: getPositiveInt("HTTP_WRITE_TIMEOUT_SECONDS", 60),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		Env:                     getEnv("APP_ENV", "production"),
		Seed: SeedConfig{
			Enabled:       os.Getenv("RUN_SEED") == "1",
			OwnerEmail:    strings.ToLower(strings.TrimSpace(getEnv("SEED_OWNER_EMAIL", "levin@test.com"))),
			OwnerPassword: strings.TrimSpace(getEnv("SEED_OWNER_PASSWORD", "password123")),
			OwnerName:     strings.TrimSpace(getEnv("SEED_OWNER_NAME", "Levin")),
			BusinessName:  strings.TrimSpace(getEnv("SEED_BUSINESS_NAME", "BizTrack KE")),
		},
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// ReportLocation is the fixed offset in which reporting days start and end.
func (c Config) ReportLocation() *time.Location {
	return time.FixedZone(c.ReportZoneName, c.ReportUTCOffsetMinutes*60)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginWindowSeconds) * time.Second
}

func (c Config) HTTPWriteTimeout() time.Duration {
	return time.Duration(c.HTTPWriteTimeoutSeconds) * time.Second
}

// normalizeDatabaseURL accepts the postgres:// scheme some hosting providers
// hand out alongside the canonical postgresql:// form.
func normalizeDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(raw, "postgres://")
	}
	return raw
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return parsed
}

func getPositiveInt(key string, fallback int) int {
	parsed := getInt(key, fallback)
	if parsed < 1 {
		return fallback
	}
	return parsed
}
