package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"grainflow/database"
	"grainflow/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Redis balance cache
	RedisAddr       string // empty disables the cache
	RedisPassword   string
	RedisDB         int
	BalanceCacheTTL time.Duration

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated), empty disables export

	// OpenTelemetry
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	// Harvest
	HarvestDefaultAmounts map[models.Reason]int64
	HarvestDailyCaps      map[models.Reason]int64
	HarvestBurst          int           // throttle bucket size per user+reason
	HarvestRefill         time.Duration // one token per interval, 0 disables the throttle

	// Governance of manual adjustments
	ManualAdjustDailyCap          int64
	ManualAdjustApprovalThreshold int64
	DailyLimitResetHour           int // Hour in UTC when daily caps reset (0-23)

	// Compost cycle
	CompostInactivityDays int
	CompostMinimumBalance int64
	CompostMinimumAmount  int64
	CompostRate           decimal.Decimal
	CompostSchedule       string

	// Redistribution cycle
	RedistributionEnabled         bool
	RedistributionRate            decimal.Decimal
	RedistributionMinimumActivity int64
	RedistributionSchedule        string

	SchedulerEnabled bool

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// CompostPolicy builds the compost parameters
func (c *Config) CompostPolicy() models.CompostPolicy {
	return models.CompostPolicy{
		InactivityThreshold:  time.Duration(c.CompostInactivityDays) * 24 * time.Hour,
		MinimumBalance:       c.CompostMinimumBalance,
		MinimumCompostAmount: c.CompostMinimumAmount,
		Rate:                 c.CompostRate,
	}
}

// RedistributionPolicy builds the redistribution parameters
func (c *Config) RedistributionPolicy() models.RedistributionPolicy {
	return models.RedistributionPolicy{
		Enabled:         c.RedistributionEnabled,
		Rate:            c.RedistributionRate,
		MinimumActivity: c.RedistributionMinimumActivity,
	}
}

// HarvestPolicy builds the per-reason default amounts
func (c *Config) HarvestPolicy() models.HarvestPolicy {
	return models.HarvestPolicy{DefaultAmounts: copyReasonMap(c.HarvestDefaultAmounts)}
}

// GovernancePolicy builds the daily caps and approval threshold
func (c *Config) GovernancePolicy() models.GovernancePolicy {
	return models.GovernancePolicy{
		DailyCaps:             copyReasonMap(c.HarvestDailyCaps),
		ManualAdjustDailyCap:  c.ManualAdjustDailyCap,
		DualApprovalThreshold: c.ManualAdjustApprovalThreshold,
		DailyResetHour:        c.DailyLimitResetHour,
	}
}

// DefaultHarvestAmounts returns the grains credited per reason when no amount is given
func DefaultHarvestAmounts() map[models.Reason]int64 {
	return map[models.Reason]int64{
		models.ReasonContentRead:     1,
		models.ReasonPollVote:        2,
		models.ReasonCommentPosted:   3,
		models.ReasonProjectFollowed: 2,
		models.ReasonInviteAccepted:  10,
	}
}

// DefaultHarvestDailyCaps returns the per-reason daily caps for activity harvests
func DefaultHarvestDailyCaps() map[models.Reason]int64 {
	return map[models.Reason]int64{
		models.ReasonContentRead:     20,
		models.ReasonPollVote:        20,
		models.ReasonCommentPosted:   30,
		models.ReasonProjectFollowed: 10,
		models.ReasonInviteAccepted:  50,
	}
}

// load loads configuration from environment variables, seeded from .env when present
func load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		BalanceCacheTTL: getDurationEnv("BALANCE_CACHE_TTL", 5*time.Minute),

		NATSServers: os.Getenv("NATS_SERVERS"),

		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "grainflow"),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelExportIntervalMillis: getIntEnv("OTEL_EXPORT_INTERVAL_MILLIS", 30000),

		HarvestDefaultAmounts: DefaultHarvestAmounts(),
		HarvestDailyCaps:      DefaultHarvestDailyCaps(),
		HarvestBurst:          getIntEnv("HARVEST_BURST", 10),
		HarvestRefill:         getDurationEnv("HARVEST_REFILL", 6*time.Second),

		ManualAdjustDailyCap:          getInt64Env("MANUAL_ADJUST_DAILY_CAP", 1000),
		ManualAdjustApprovalThreshold: getInt64Env("MANUAL_ADJUST_APPROVAL_THRESHOLD", 500),
		DailyLimitResetHour:           getIntEnv("DAILY_LIMIT_RESET_HOUR", 0),

		CompostInactivityDays: getIntEnv("COMPOST_INACTIVITY_DAYS", 30),
		CompostMinimumBalance: getInt64Env("COMPOST_MINIMUM_BALANCE", 100),
		CompostMinimumAmount:  getInt64Env("COMPOST_MINIMUM_AMOUNT", 1),
		CompostSchedule:       getEnvWithDefault("COMPOST_SCHEDULE", "0 3 * * *"),

		RedistributionEnabled:         getEnvWithDefault("REDISTRIBUTION_ENABLED", "true") == "true",
		RedistributionMinimumActivity: getInt64Env("REDISTRIBUTION_MINIMUM_ACTIVITY", 1),
		RedistributionSchedule:        getEnvWithDefault("REDISTRIBUTION_SCHEDULE", "0 4 * * 1"),

		SchedulerEnabled: getEnvWithDefault("SCHEDULER_ENABLED", "true") == "true",

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	var err error
	if config.CompostRate, err = getDecimalEnv("COMPOST_RATE", "0.1"); err != nil {
		return nil, err
	}
	if config.RedistributionRate, err = getDecimalEnv("REDISTRIBUTION_RATE", "0.1"); err != nil {
		return nil, err
	}

	// Per-reason overrides, e.g. HARVEST_AMOUNT_POLL_VOTE=3 or HARVEST_CAP_CONTENT_READ=40
	for reason := range config.HarvestDefaultAmounts {
		config.HarvestDefaultAmounts[reason] = getInt64Env("HARVEST_AMOUNT_"+reasonEnvSuffix(reason), config.HarvestDefaultAmounts[reason])
	}
	for reason := range config.HarvestDailyCaps {
		config.HarvestDailyCaps[reason] = getInt64Env("HARVEST_CAP_"+reasonEnvSuffix(reason), config.HarvestDailyCaps[reason])
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the invariants the engine relies on
func (c *Config) Validate() error {
	if c.Environment != "test" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
		return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
	}
	if c.DailyLimitResetHour < 0 || c.DailyLimitResetHour > 23 {
		return fmt.Errorf("DAILY_LIMIT_RESET_HOUR must be between 0 and 23, got %d", c.DailyLimitResetHour)
	}
	if !c.CompostRate.IsPositive() || c.CompostRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("COMPOST_RATE must be in (0, 1], got %s", c.CompostRate)
	}
	if !c.RedistributionRate.IsPositive() || c.RedistributionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("REDISTRIBUTION_RATE must be in (0, 1], got %s", c.RedistributionRate)
	}
	if c.CompostInactivityDays <= 0 {
		return fmt.Errorf("COMPOST_INACTIVITY_DAYS must be positive, got %d", c.CompostInactivityDays)
	}
	if c.ManualAdjustApprovalThreshold <= 0 || c.ManualAdjustDailyCap <= 0 {
		return fmt.Errorf("manual adjust threshold and daily cap must be positive")
	}
	return nil
}

func reasonEnvSuffix(reason models.Reason) string {
	return strings.ToUpper(strings.ReplaceAll(string(reason), "-", "_"))
}

func copyReasonMap(in map[models.Reason]int64) map[models.Reason]int64 {
	out := make(map[models.Reason]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDecimalEnv(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnvWithDefault(key, defaultValue)
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return parsed, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a config with the production defaults suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:                   "test",
		BalanceCacheTTL:               time.Minute,
		OTelServiceName:               "grainflow-test",
		OTelExporterType:              "none",
		HarvestDefaultAmounts:         DefaultHarvestAmounts(),
		HarvestDailyCaps:              DefaultHarvestDailyCaps(),
		HarvestBurst:                  10,
		ManualAdjustDailyCap:          1000,
		ManualAdjustApprovalThreshold: 500,
		DailyLimitResetHour:           0,
		CompostInactivityDays:         30,
		CompostMinimumBalance:         100,
		CompostMinimumAmount:          1,
		CompostRate:                   decimal.NewFromFloat(0.1),
		CompostSchedule:               "0 3 * * *",
		RedistributionEnabled:         true,
		RedistributionRate:            decimal.NewFromFloat(0.1),
		RedistributionMinimumActivity: 1,
		RedistributionSchedule:        "0 4 * * 1",
		LogLevel:                      "info",
		LogFormat:                     "text",
	}
}
