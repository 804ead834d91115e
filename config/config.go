package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Run modes for the worker process
const (
	ModeIngest = "ingest"
	ModeScrape = "scrape"
	ModeBoth   = "both"
)

// Config represents the application configuration
type Config struct {
	// Storage configuration
	MongoURI      string
	MongoDatabase string

	// Bulk feed endpoints
	ProductsURL string
	PricesURL   string

	// Cross-reference catalog endpoint
	CTraderAPIURL string
	CTraderToken  string

	// Marketplace page scraping
	MarketBaseURL string
	ProxyList     []string
	ScrapeLimit   int64

	// Scheduling
	CronSchedule string
	Mode         string
	RunOnStart   bool

	// Redis configuration (optional run-summary stream)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int64

	// Memcache configuration (optional block cooldown)
	MemcacheAddr  string
	BlockCooldown time.Duration

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStreamMaxLen, _ := strconv.ParseInt(getEnv("REDIS_STREAM_MAX_LENGTH", "100"), 10, 64)
	scrapeLimit, _ := strconv.ParseInt(getEnv("SCRAPE_LIMIT", "0"), 10, 64)
	blockCooldown, _ := strconv.Atoi(getEnv("BLOCK_COOLDOWN_MINUTES", "360"))

	return &Config{
		MongoURI:             getEnv("MONGO_URI", ""),
		MongoDatabase:        getEnv("MONGO_DATABASE", "marketData"),
		ProductsURL:          getEnv("PRODUCTS_URL", ""),
		PricesURL:            getEnv("PRICES_URL", ""),
		CTraderAPIURL:        getEnv("CTRADER_API_URL", "https://api.cardtrader.com/api/v2/blueprints/export"),
		CTraderToken:         getEnv("CTRADER_TOKEN", ""),
		MarketBaseURL:        getEnv("MARKET_BASE_URL", "https://www.cardmarket.com/en/OnePiece"),
		ProxyList:            splitList(getEnv("PROXY_LIST", "")),
		ScrapeLimit:          scrapeLimit,
		CronSchedule:         getEnv("CRON_SCHEDULE", "0 2 * * *"),
		Mode:                 getEnv("WORKER_MODE", ModeIngest),
		RunOnStart:           getEnv("RUN_ON_START", "false") == "true",
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "pricewatch"),
		RedisStreamMaxLength: redisStreamMaxLen,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		BlockCooldown:        time.Duration(blockCooldown) * time.Minute,
		Environment:          getEnv("ENVIRONMENT", "development"),
	}
}

// Validate checks the values every run mode needs at startup. Feed URLs and
// the cross-reference token are checked at point of first use instead, since
// not every mode touches them.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	switch c.Mode {
	case ModeIngest, ModeScrape, ModeBoth:
	default:
		return fmt.Errorf("WORKER_MODE must be one of %s, %s, %s (got %q)", ModeIngest, ModeScrape, ModeBoth, c.Mode)
	}
	if c.CronSchedule == "" {
		return fmt.Errorf("CRON_SCHEDULE must not be empty")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// splitList parses a comma-separated list, dropping empty entries
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
