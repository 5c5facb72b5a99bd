package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig        `yaml:"app"`
	Database    DatabaseConfig   `yaml:"database"`
	Redis       RedisConfig      `yaml:"redis"`
	Backup      BackupConfig     `yaml:"backup"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Logging     LoggingConfig    `yaml:"logging"`
	API         APIConfig        `yaml:"api"`
	Auth        AuthConfig       `yaml:"auth"`
	SMTP        SMTPConfig       `yaml:"smtp"`
	Notifier    NotifierConfig   `yaml:"notifier"`
	Booking     BookingConfig    `yaml:"booking"`
	Catalog     CatalogConfig    `yaml:"catalog"`
	FrontendURL string           `yaml:"frontend_url"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP        APIHTTPConfig      `yaml:"http"`
	CORSOrigins []string           `yaml:"cors_origins"`
	RateLimit   APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret           string `yaml:"jwt_secret"`
	TokenTTLMinutes     int    `yaml:"token_ttl_minutes"`
	BcryptCost          int    `yaml:"bcrypt_cost"`
	RequireVerification bool   `yaml:"require_verification"`
	LoginAttempts       int    `yaml:"login_attempts"`
	LoginWindowSeconds  int    `yaml:"login_window_seconds"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

func (a AuthConfig) LoginWindow() time.Duration {
	return time.Duration(a.LoginWindowSeconds) * time.Second
}

type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	TLS       bool   `yaml:"tls"`
}

// Enabled reports whether credentials are present. Without them messages
// are only logged.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.Username != "" && s.Password != ""
}

type NotifierConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	RedisQueue    string        `yaml:"redis_queue"`
	DeadLetterKey string        `yaml:"dead_letter_key"`
	// ClaimLease is how long a row may stay in sending before it is
	// considered abandoned and delivered again.
	ClaimLease time.Duration `yaml:"claim_lease"`
}

type BookingConfig struct {
	NotesMaxLength    int    `yaml:"notes_max_length"`
	DefaultPageSize   int    `yaml:"default_page_size"`
	MaxPageSize       int    `yaml:"max_page_size"`
	StrictTransitions bool   `yaml:"strict_transitions"`
	Timezone          string `yaml:"timezone"`
}

// Location resolves the timezone used to decide what "today" is.
func (b BookingConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Timezone)
}

type CatalogConfig struct {
	SeedPath string `yaml:"seed_path"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth jwt_secret is required")
	}

	if _, err := c.Booking.Location(); err != nil {
		return fmt.Errorf("invalid booking timezone %q: %w", c.Booking.Timezone, err)
	}

	if c.Booking.DefaultPageSize > c.Booking.MaxPageSize {
		return fmt.Errorf("booking default_page_size %d exceeds max_page_size %d", c.Booking.DefaultPageSize, c.Booking.MaxPageSize)
	}

	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return errors.New("logging file_path is required when output is file")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bikeservice"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Auth.TokenTTLMinutes == 0 {
		c.Auth.TokenTTLMinutes = 24 * 60
	}
	if c.Auth.LoginAttempts == 0 {
		c.Auth.LoginAttempts = 5
	}
	if c.Auth.LoginWindowSeconds == 0 {
		c.Auth.LoginWindowSeconds = 15 * 60
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.FromEmail == "" {
		c.SMTP.FromEmail = "noreply@bikeservice.local"
	}
	if c.SMTP.FromName == "" {
		c.SMTP.FromName = "Bike Service Station"
	}

	if c.Notifier.QueueSize == 0 {
		c.Notifier.QueueSize = 1000
	}
	if c.Notifier.PollInterval == 0 {
		c.Notifier.PollInterval = 5 * time.Second
	}
	if c.Notifier.BatchSize == 0 {
		c.Notifier.BatchSize = 20
	}
	if c.Notifier.ClaimLease == 0 {
		c.Notifier.ClaimLease = 5 * time.Minute
	}
	if c.Notifier.RedisQueue == "" {
		c.Notifier.RedisQueue = "bikeservice:notifications"
	}
	if c.Notifier.DeadLetterKey == "" {
		c.Notifier.DeadLetterKey = "bikeservice:notifications:dead"
	}

	if c.Booking.NotesMaxLength == 0 {
		c.Booking.NotesMaxLength = 500
	}
	if c.Booking.DefaultPageSize == 0 {
		c.Booking.DefaultPageSize = 20
	}
	if c.Booking.MaxPageSize == 0 {
		c.Booking.MaxPageSize = 100
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:3000"
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
}
