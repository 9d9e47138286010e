package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"retailpos/backend/internal/logger"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	MigrateOnStart           bool
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	SequenceBackend          string
	AuthSecret               string
	AccessTokenTTLMinutes    int
	ReportTimezone           string
	DashboardCacheTTLSeconds int
	LowStockScanSpec         string
	RejectUnderpayment       bool
	Log                      logger.LogConfig
}

// LoadEnvFile populates the process environment from a dotenv file. Variables
// already present in the environment win. A missing default file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	cacheTTL, err := strconv.Atoi(getEnv("DASHBOARD_CACHE_TTL_SECONDS", "30"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 30
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = getEnv("LOG_LEVEL", logCfg.Level)
	logCfg.Format = getEnv("LOG_FORMAT", logCfg.Format)
	logCfg.Output = getEnv("LOG_OUTPUT", logCfg.Output)
	logCfg.TimeFormat = getEnv("LOG_TIME_FORMAT", logCfg.TimeFormat)

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		MigrateOnStart:           getBool("MIGRATE_ON_START", false),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		SequenceBackend:          strings.ToLower(getEnv("SEQUENCE_BACKEND", "store")),
		AuthSecret:               strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:    tokenTTL,
		ReportTimezone:           getEnv("REPORT_TIMEZONE", "UTC"),
		DashboardCacheTTLSeconds: cacheTTL,
		LowStockScanSpec:         getEnv("LOW_STOCK_SCAN_SPEC", "@every 15m"),
		RejectUnderpayment:       getBool("REJECT_UNDERPAYMENT", false),
		Log:                      logCfg,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the reporting timezone used for invoice date keys and
// "today" windows.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

func (c Config) DashboardCacheTTL() time.Duration {
	return time.Duration(c.DashboardCacheTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
