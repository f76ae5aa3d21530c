package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Module("config", fx.Provide(Load))

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// InvoiceSubmitTimeout bounds a single submission to the invoicing
	// service; on expiry the checkout transitions to failed.
	InvoiceSubmitTimeout time.Duration

	Loyalty LoyaltyConfig
	Tax     TaxConfig
}

// LoyaltyConfig carries the owner-configurable tier thresholds and the
// points-per-currency-unit redemption ratio. These are fallback defaults;
// the loyalty service re-reads stored settings before each derivation.
type LoyaltyConfig struct {
	SilverThreshold   int64
	GoldThreshold     int64
	PlatinumThreshold int64
	RedeemValue       int64
	// EarnRate is points earned per whole currency unit paid.
	EarnRate int64
}

type TaxConfig struct {
	GSTRatePercent float64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "tally"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tally"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		InvoiceSubmitTimeout: getenvDuration("INVOICE_SUBMIT_TIMEOUT", 15*time.Second),

		Loyalty: LoyaltyConfig{
			SilverThreshold:   getenvInt64("LOYALTY_SILVER_THRESHOLD", 500),
			GoldThreshold:     getenvInt64("LOYALTY_GOLD_THRESHOLD", 2000),
			PlatinumThreshold: getenvInt64("LOYALTY_PLATINUM_THRESHOLD", 5000),
			RedeemValue:       getenvInt64("LOYALTY_REDEEM_VALUE", 100),
			EarnRate:          getenvInt64("LOYALTY_EARN_RATE", 1),
		},
		Tax: TaxConfig{
			GSTRatePercent: getenvFloat("TAX_GST_RATE_PERCENT", 18),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
