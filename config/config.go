package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Payment   PaymentConfig
	Carrier   CarrierConfig
	SMTP      SMTPConfig
	Redis     RedisConfig
	S3        S3Config
	Pricing   PricingConfig
	Scheduler SchedulerConfig
	Returns   ReturnsConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type PaymentConfig struct {
	Razorpay RazorpayConfig
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

// CarrierConfig configures the courier API used for shipments and reverse pickups.
type CarrierConfig struct {
	Name           string
	BaseURL        string
	APIToken       string
	PickupLocation string
	Timeout        time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	BaseURL         string // CloudFront or S3 direct URL
}

type PricingConfig struct {
	TaxRate               float64
	FlatShippingCost      float64
	FreeShippingThreshold float64
}

type SchedulerConfig struct {
	TrackingSpec      string
	TrackingBatchSize int
}

type ReturnsConfig struct {
	MaxPhotos  int
	WindowDays int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "1234"),
			DBName:   getEnv("DB_NAME", "storefront"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "your-secret-key"),
			AccessTokenExpiry: parseDuration(getEnv("JWT_ACCESS_TOKEN_EXPIRY", "15m"), 15*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Payment: PaymentConfig{
			Razorpay: RazorpayConfig{
				KeyID:         getEnv("RAZORPAY_KEY", ""),
				KeySecret:     getEnv("RAZORPAY_SECRET", ""),
				WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
				Currency:      getEnv("RAZORPAY_CURRENCY", "INR"),
				Timeout:       parseDuration(getEnv("RAZORPAY_TIMEOUT", "10s"), 10*time.Second),
			},
		},
		Carrier: CarrierConfig{
			Name:           getEnv("CARRIER_NAME", "delhivery"),
			BaseURL:        getEnv("CARRIER_BASE_URL", "https://track.delhivery.com"),
			APIToken:       getEnv("CARRIER_API_TOKEN", ""),
			PickupLocation: getEnv("CARRIER_PICKUP_LOCATION", "primary-warehouse"),
			Timeout:        parseDuration(getEnv("CARRIER_TIMEOUT", "10s"), 10*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     parseInt(getEnv("SMTP_PORT", "587"), 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			Timeout:  parseDuration(getEnv("SMTP_TIMEOUT", "10s"), 10*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "ap-south-1"),
			Bucket:          getEnv("AWS_S3_BUCKET", "storefront-uploads"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BaseURL:         getEnv("AWS_S3_BASE_URL", ""),
		},
		Pricing: PricingConfig{
			TaxRate:               parseFloat(getEnv("PRICING_TAX_RATE", "0"), 0),
			FlatShippingCost:      parseFloat(getEnv("PRICING_FLAT_SHIPPING", "50"), 50),
			FreeShippingThreshold: parseFloat(getEnv("PRICING_FREE_SHIPPING_THRESHOLD", "999"), 999),
		},
		Scheduler: SchedulerConfig{
			TrackingSpec:      getEnv("TRACKING_CRON_SPEC", "*/30 * * * *"),
			TrackingBatchSize: parseInt(getEnv("TRACKING_BATCH_SIZE", "100"), 100),
		},
		Returns: ReturnsConfig{
			MaxPhotos:  parseInt(getEnv("RETURNS_MAX_PHOTOS", "4"), 4),
			WindowDays: parseInt(getEnv("RETURNS_WINDOW_DAYS", "7"), 7),
		},
	}

	if config.Server.Environment == "production" && config.JWT.Secret == "your-secret-key" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return v
}

func parseFloat(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Printf("Invalid number %s, using default %v", s, fallback)
		return fallback
	}
	return v
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
