package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort                  string
	JWTSecret                string
	JWTIssuer                string
	JWTAudience              string
	RateLimitPerMinute       int
	SubmitRateLimitPerMinute int
	AllowedOrigins           []string
	AdminUsernames           []string
	// Timezone is the IANA zone used for DAILY period keys when a challenge sets none.
	Timezone string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database: DBDriver is "mysql" or "sqlite"
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	// Redis for caching and the task queue
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Payout provider
	PayoutBaseURL      string
	PayoutClientID     string
	PayoutClientSecret string
	PayoutTokenURL     string
	PayoutTimeoutSec   int
	Currency           string
	CreatorShareBps    int
	// Revenue retry policy
	RevenueMaxRetries      int
	RevenueBackoffBaseSec  int
	RevenueBackoffMaxSec   int
	RevenueBatchDelayMs    int
	RevenueLeaseSec        int
	RevenuePendingStaleSec int
	SweepEnabled           bool
	SweepCron              string
	SweepBatch             int
	// Payment webhook shared secret
	WebhookSecret string
	// Leaderboard cache
	LeaderboardCacheTTLSec int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("invalid config/config.json: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.JWTIssuer = getString(app, "JWTIssuer")
		out.JWTAudience = getString(app, "JWTAudience")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.SubmitRateLimitPerMinute = getInt(app, "SubmitRateLimitPerMinute")
		out.Timezone = getString(app, "Timezone")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		if list := getStringSlice(app, "AdminUsernames"); len(list) > 0 {
			out.AdminUsernames = list
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.SQLitePath = getString(dbs, "SQLitePath")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if po, ok := raw["payout"].(map[string]any); ok {
		out.PayoutBaseURL = getString(po, "BaseURL")
		out.PayoutClientID = getString(po, "ClientID")
		out.PayoutClientSecret = getString(po, "ClientSecret")
		out.PayoutTokenURL = getString(po, "TokenURL")
		out.PayoutTimeoutSec = getInt(po, "TimeoutSec")
		out.Currency = getString(po, "Currency")
		out.CreatorShareBps = getInt(po, "CreatorShareBps")
	}

	if rv, ok := raw["revenue"].(map[string]any); ok {
		out.RevenueMaxRetries = getInt(rv, "MaxRetries")
		out.RevenueBackoffBaseSec = getInt(rv, "BackoffBaseSec")
		out.RevenueBackoffMaxSec = getInt(rv, "BackoffMaxSec")
		out.RevenueBatchDelayMs = getInt(rv, "BatchDelayMs")
		out.RevenueLeaseSec = getInt(rv, "LeaseSec")
		out.RevenuePendingStaleSec = getInt(rv, "PendingStaleSec")
		out.SweepCron = getString(rv, "SweepCron")
		out.SweepBatch = getInt(rv, "SweepBatch")
		if v, ok := rv["SweepEnabled"].(bool); ok {
			out.SweepEnabled = v
		}
	}

	if wh, ok := raw["webhook"].(map[string]any); ok {
		out.WebhookSecret = getString(wh, "Secret")
	}

	if c, ok := raw["cache"].(map[string]any); ok {
		out.LeaderboardCacheTTLSec = getInt(c, "LeaderboardTTLSec")
	}

	// Also support reading flat keys directly for backward compatibility
	if v, ok := raw["AppPort"]; ok && out.AppPort == "" {
		out.AppPort, _ = v.(string)
	}
	if v, ok := raw["JWTSecret"]; ok && out.JWTSecret == "" {
		out.JWTSecret, _ = v.(string)
	}
	if v, ok := raw["DatabaseURI"]; ok && out.DatabaseURI == "" {
		out.DatabaseURI, _ = v.(string)
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.SubmitRateLimitPerMinute == 0 {
		c.SubmitRateLimitPerMinute = 20
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "challengehub"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/challengehub.db"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.PayoutTimeoutSec == 0 {
		c.PayoutTimeoutSec = 15
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.CreatorShareBps == 0 {
		c.CreatorShareBps = 9000
	}
	if c.RevenueMaxRetries == 0 {
		c.RevenueMaxRetries = 3
	}
	if c.RevenueBackoffBaseSec == 0 {
		c.RevenueBackoffBaseSec = 30
	}
	if c.RevenueBackoffMaxSec == 0 {
		c.RevenueBackoffMaxSec = 1800
	}
	if c.RevenueBatchDelayMs == 0 {
		c.RevenueBatchDelayMs = 200
	}
	if c.RevenueLeaseSec == 0 {
		c.RevenueLeaseSec = 120
	}
	if c.RevenuePendingStaleSec == 0 {
		c.RevenuePendingStaleSec = 300
	}
	if c.SweepCron == "" {
		c.SweepCron = "@every 1m"
	}
	if c.SweepBatch == 0 {
		c.SweepBatch = 50
	}
	if c.LeaderboardCacheTTLSec == 0 {
		c.LeaderboardCacheTTLSec = 60
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("JWT_ISSUER", ""); v != "" {
		c.JWTIssuer = v
	}
	if v := getEnv("JWT_AUDIENCE", ""); v != "" {
		c.JWTAudience = v
	}
	if v := getEnv("APP_TIMEZONE", ""); v != "" {
		c.Timezone = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("SQLITE_PATH", ""); v != "" {
		c.SQLitePath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("SUBMIT_RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.SubmitRateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("ADMIN_USERNAMES", ""); v != "" {
		c.AdminUsernames = readListEnv("ADMIN_USERNAMES", c.AdminUsernames)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	// Logging env overrides
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	// Payout provider
	if v := getEnv("PAYOUT_BASE_URL", ""); v != "" {
		c.PayoutBaseURL = v
	}
	if v := getEnv("PAYOUT_CLIENT_ID", ""); v != "" {
		c.PayoutClientID = v
	}
	if v := getEnv("PAYOUT_CLIENT_SECRET", ""); v != "" {
		c.PayoutClientSecret = v
	}
	if v := getEnv("PAYOUT_TOKEN_URL", ""); v != "" {
		c.PayoutTokenURL = v
	}
	if v := getEnv("PAYOUT_TIMEOUT_SEC", ""); v != "" {
		c.PayoutTimeoutSec = mustParseInt(v)
	}
	if v := getEnv("PAYOUT_CURRENCY", ""); v != "" {
		c.Currency = v
	}
	if v := getEnv("CREATOR_SHARE_BPS", ""); v != "" {
		c.CreatorShareBps = mustParseInt(v)
	}
	// Revenue retry policy
	if v := getEnv("REVENUE_MAX_RETRIES", ""); v != "" {
		c.RevenueMaxRetries = mustParseInt(v)
	}
	if v := getEnv("REVENUE_BACKOFF_BASE_SEC", ""); v != "" {
		c.RevenueBackoffBaseSec = mustParseInt(v)
	}
	if v := getEnv("REVENUE_BACKOFF_MAX_SEC", ""); v != "" {
		c.RevenueBackoffMaxSec = mustParseInt(v)
	}
	if v := getEnv("REVENUE_BATCH_DELAY_MS", ""); v != "" {
		c.RevenueBatchDelayMs = mustParseInt(v)
	}
	if v := getEnv("REVENUE_LEASE_SEC", ""); v != "" {
		c.RevenueLeaseSec = mustParseInt(v)
	}
	if v := getEnv("REVENUE_PENDING_STALE_SEC", ""); v != "" {
		c.RevenuePendingStaleSec = mustParseInt(v)
	}
	if v := getEnv("REVENUE_SWEEP_ENABLED", ""); v != "" {
		c.SweepEnabled = v == "true"
	}
	if v := getEnv("REVENUE_SWEEP_CRON", ""); v != "" {
		c.SweepCron = v
	}
	if v := getEnv("REVENUE_SWEEP_BATCH", ""); v != "" {
		c.SweepBatch = mustParseInt(v)
	}
	if v := getEnv("WEBHOOK_SECRET", ""); v != "" {
		c.WebhookSecret = v
	}
	if v := getEnv("LEADERBOARD_CACHE_TTL_SEC", ""); v != "" {
		c.LeaderboardCacheTTLSec = mustParseInt(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
