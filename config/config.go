package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	OAuth      OAuthConfig
	Cloudinary CloudinaryConfig
	Razorpay   RazorpayConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// RazorpayConfig holds gateway credentials plus the payment acceptance
// policy. KeySecret signs client-callback verification; WebhookSecret is a
// separate secret configured in the Razorpay dashboard for webhook delivery.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Currency      string // accepted settlement currency
	CardCountry   string // accepted card issuer country
}

// Load reads configuration from the environment (a .env file is honored in
// development) with defaults suitable for local runs.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:         env("PORT", "8080"),
			Env:          env("APP_ENV", "development"),
			ReadTimeout:  envDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: envDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             env("DB_DSN", "bazari:bazari@tcp(localhost:3306)/bazari?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret:  env("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: env("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  envDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: envDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
			Issuer:        env("JWT_ISSUER", "bazari"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		},
		Razorpay: RazorpayConfig{
			KeyID:         os.Getenv("RZ_KEY_ID"),
			KeySecret:     os.Getenv("RZ_KEY_SECRET"),
			WebhookSecret: os.Getenv("RZ_WEBHOOK_SECRET"),
			BaseURL:       env("RZ_BASE_URL", "https://api.razorpay.com"),
			Currency:      env("PAYMENT_CURRENCY", "INR"),
			CardCountry:   env("PAYMENT_CARD_COUNTRY", "IN"),
		},
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
