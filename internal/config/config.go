package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Email    EmailConfig
	Inquiry  InquiryConfig
	Admin    AdminConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name     string
	Version  string
	Debug    bool
	Port     string
	Host     string
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	SecretKey          string
	TokenExpiryMinutes int
	Algorithm          string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	Enabled        bool
	Provider       string // "smtp", "sendgrid", "console"
	SMTPHost       string
	SMTPPort       int
	Username       string
	Password       string
	SendgridAPIKey string
	FromEmail      string
	FromName       string
}

// InquiryConfig holds faculty inquiry intake configuration
type InquiryConfig struct {
	NotifyEmail     string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// AdminConfig holds the credentials used by the admin seeding command
type AdminConfig struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "Faculty Inquiry API"),
			Version:  getEnv("APP_VERSION", "1.0.0"),
			Debug:    getEnvAsBool("DEBUG", false),
			Port:     getEnv("PORT", "8000"),
			Host:     getEnv("HOST", "0.0.0.0"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "sqlite:///./lms_inquiries.db"),
		},
		Auth: AuthConfig{
			SecretKey:          getEnv("SECRET_KEY", "your-secret-key-change-in-production"),
			TokenExpiryMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
			Algorithm:          getEnv("ALGORITHM", "HS256"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_HOSTS", []string{"*"}),
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
			AllowedHeaders: []string{"*"},
			MaxAge:         86400,
		},
		Email: EmailConfig{
			Enabled:        getEnvAsBool("EMAIL_ENABLED", false),
			Provider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "smtp")),
			SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:       getEnvAsInt("SMTP_PORT", 587),
			Username:       getEnv("SMTP_USERNAME", ""),
			Password:       getEnv("SMTP_PASSWORD", ""),
			SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("EMAIL_FROM", "noreply@lms.local"),
			FromName:       getEnv("EMAIL_FROM_NAME", "Faculty Desk"),
		},
		Inquiry: InquiryConfig{
			NotifyEmail:     getEnv("INQUIRY_NOTIFY_EMAIL", "faculty@lms.local"),
			RateLimitMax:    getEnvAsInt("INQUIRY_RATE_LIMIT", 5),
			RateLimitWindow: time.Duration(getEnvAsInt("INQUIRY_RATE_WINDOW_SECONDS", 60)) * time.Second,
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Email:    getEnv("ADMIN_EMAIL", "admin@lms.local"),
			Password: getEnv("ADMIN_PASSWORD", "change-me-now"),
			FullName: getEnv("ADMIN_FULL_NAME", "System Administrator"),
		},
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.App.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.Auth.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must be set")
	}
	if cfg.Auth.TokenExpiryMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be greater than 0")
	}
	if cfg.Inquiry.RateLimitMax <= 0 || cfg.Inquiry.RateLimitWindow <= 0 {
		return fmt.Errorf("INQUIRY_RATE_LIMIT and INQUIRY_RATE_WINDOW_SECONDS must be greater than 0")
	}
	switch cfg.Email.Provider {
	case "smtp", "sendgrid", "console":
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER: %s", cfg.Email.Provider)
	}
	return nil
}

// Masked returns the effective settings as key/value pairs with secrets hidden.
func (c *Config) Masked() [][2]string {
	return [][2]string{
		{"APP_NAME", c.App.Name},
		{"APP_VERSION", c.App.Version},
		{"DEBUG", strconv.FormatBool(c.App.Debug)},
		{"HOST", c.App.Host},
		{"PORT", c.App.Port},
		{"LOG_LEVEL", c.App.LogLevel},
		{"DATABASE_URL", maskURL(c.Database.URL)},
		{"SECRET_KEY", mask(c.Auth.SecretKey)},
		{"ACCESS_TOKEN_EXPIRE_MINUTES", strconv.Itoa(c.Auth.TokenExpiryMinutes)},
		{"ALLOWED_HOSTS", strings.Join(c.CORS.AllowedOrigins, ",")},
		{"EMAIL_ENABLED", strconv.FormatBool(c.Email.Enabled)},
		{"EMAIL_PROVIDER", c.Email.Provider},
		{"SMTP_HOST", c.Email.SMTPHost},
		{"SMTP_USERNAME", c.Email.Username},
		{"SMTP_PASSWORD", mask(c.Email.Password)},
		{"SENDGRID_API_KEY", mask(c.Email.SendgridAPIKey)},
		{"INQUIRY_NOTIFY_EMAIL", c.Inquiry.NotifyEmail},
		{"INQUIRY_RATE_LIMIT", strconv.Itoa(c.Inquiry.RateLimitMax)},
		{"INQUIRY_RATE_WINDOW_SECONDS", strconv.Itoa(int(c.Inquiry.RateLimitWindow / time.Second))},
		{"ADMIN_USERNAME", c.Admin.Username},
		{"ADMIN_PASSWORD", mask(c.Admin.Password)},
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func maskURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	creds := url[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":********"
	}
	return url[:scheme+3] + creds + url[at:]
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// IsPostgres checks if the database URL is for PostgreSQL
func (c *DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(c.URL, "postgresql://") || strings.HasPrefix(c.URL, "postgres://") ||
		strings.Contains(c.URL, "host=")
}

// GetPostgresDSN returns the connection string for the postgres driver. URLs
// and keyword DSNs are passed through unchanged, except that a URL without an
// sslmode gets sslmode=disable.
func (c *DatabaseConfig) GetPostgresDSN() string {
	dsn := c.URL
	if !strings.HasPrefix(dsn, "postgresql://") && !strings.HasPrefix(dsn, "postgres://") {
		return dsn
	}
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&sslmode=disable"
	}
	return dsn + "?sslmode=disable"
}

// GetSQLitePath extracts SQLite database path from URL
func (c *DatabaseConfig) GetSQLitePath() string {
	return strings.TrimPrefix(c.URL, "sqlite:///")
}
