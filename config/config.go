package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	Port        string
	Environment string

	// Quote provider
	ProviderBaseURL string
	ProviderAPIKey  string

	// Global rate limit for outbound provider calls
	RateCapPerMinute int

	// Market hours (venue local time) and post-close grace window
	MarketOpenHour    int
	MarketOpenMinute  int
	MarketCloseHour   int
	MarketCloseMinute int
	GraceMinutes      int

	// Per-tier refresh intervals in minutes; cache TTLs are derived from
	// these, never configured separately
	PremiumIntervalMin  int
	StandardIntervalMin int
	ExtendedIntervalMin int

	// Optional per-tier symbol overrides (comma-separated). Empty means
	// the built-in universe.
	PremiumSymbols  []string
	StandardSymbols []string
	ExtendedSymbols []string

	// Storage
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	RedisAddr   string
	MongoURI    string
	ArchivePath string

	JWTSecret string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api.twelvedata.com"),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", "demo"),

		RateCapPerMinute: getEnvInt("RATE_CAP_PER_MINUTE", 8),

		MarketOpenHour:    getEnvInt("MARKET_OPEN_HOUR", 9),
		MarketOpenMinute:  getEnvInt("MARKET_OPEN_MINUTE", 30),
		MarketCloseHour:   getEnvInt("MARKET_CLOSE_HOUR", 16),
		MarketCloseMinute: getEnvInt("MARKET_CLOSE_MINUTE", 0),
		GraceMinutes:      getEnvInt("MARKET_GRACE_MINUTES", 15),

		PremiumIntervalMin:  getEnvInt("PREMIUM_INTERVAL_MIN", 20),
		StandardIntervalMin: getEnvInt("STANDARD_INTERVAL_MIN", 60),
		ExtendedIntervalMin: getEnvInt("EXTENDED_INTERVAL_MIN", 90),

		PremiumSymbols:  getEnvList("PREMIUM_SYMBOLS"),
		StandardSymbols: getEnvList("STANDARD_SYMBOLS"),
		ExtendedSymbols: getEnvList("EXTENDED_SYMBOLS"),

		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "marketdata_db"),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		MongoURI:    getEnv("MONGODB_URI", ""),
		ArchivePath: getEnv("ARCHIVE_PATH", "data/history.db"),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	// Log connection info (masked for security)
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvList parses a comma-separated environment variable into a slice.
// Returns nil when unset so callers can fall back to built-in defaults.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
