package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by the repository layer
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	LogLevel  string
	JWTSecret string
	TimeZone  string
	Database  DatabaseConfig
	Mongo     MongoConfig
	Label     LabelConfig
	Converter ConverterConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool

	// EmbeddedDir and EmbeddedPort are used when Host is localhost and no
	// password is set: the server then runs its own PostgreSQL.
	EmbeddedDir  string
	EmbeddedPort uint32
}

// MongoConfig holds the document store connection used when Driver is "mongo"
type MongoConfig struct {
	URI      string
	Database string
}

// LabelConfig holds label rendering settings
type LabelConfig struct {
	FontPath string
	Brand    string
}

// ConverterConfig points at the external pre-invoice conversion service
type ConverterConfig struct {
	URL     string
	Timeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", DriverPostgres))
	if driver != DriverPostgres && driver != DriverMongo {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	timeout, err := time.ParseDuration(getEnv("CONVERTER_TIMEOUT", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONVERTER_TIMEOUT: %w", err)
	}

	embeddedPort, err := strconv.ParseUint(getEnv("PG_EMBEDDED_PORT", "5433"), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid PG_EMBEDDED_PORT: %w", err)
	}

	tz := getEnv("TIMEZONE", "Asia/Tehran")
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3210"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		JWTSecret: jwtSecret,
		TimeZone:  tz,
		Database: DatabaseConfig{
			Driver:   driver,
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "anbar"),
			Alter:    getEnv("DB_ALTER", "false") == "true",

			EmbeddedDir:  getEnv("PG_DATA_DIR", "./pg_data"),
			EmbeddedPort: uint32(embeddedPort),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DB", "warehouse"),
		},
		Label: LabelConfig{
			FontPath: os.Getenv("LABEL_FONT_PATH"),
			Brand:    getEnv("LABEL_BRAND", "هیبرید بیستون"),
		},
		Converter: ConverterConfig{
			URL:     os.Getenv("CONVERTER_URL"),
			Timeout: timeout,
		},
	}, nil
}

// Location returns the configured time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Embedded reports whether the server should run its own PostgreSQL
func (d DatabaseConfig) Embedded() bool {
	return d.Host == "localhost" && d.Password == ""
}

// IsProduction reports whether NODE_ENV is production
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
