package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Airtable      AirtableConfig
	Limits        LimitsConfig
	Cache         CacheConfig
	EventTriggers EventTriggerFunctionsConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AppEnv         string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

type AuthConfig struct {
	// APIToken guards the whole API surface. The extension sends it in the
	// X-Api-Token header. Empty disables auth for local development.
	APIToken string
}

type AirtableConfig struct {
	// BaseURL of the Airtable REST API, overridable for integration testing
	BaseURL string
	// RateLimit and RateWindowMS shape the per-base limiter
	RateLimit    int
	RateWindowMS int
}

type LimitsConfig struct {
	// AttachmentTotalBytes caps the decoded attachment total per send session
	AttachmentTotalBytes int
	// MaxBodyBytes caps inbound request bodies
	MaxBodyBytes int64
}

type CacheConfig struct {
	CollaboratorTTLSeconds int
	AttachmentTTLSeconds   int
}

type EventTriggerFunctionsConfig struct {
	ClipSentTriggerURL string
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	ExporterEndpoint string
	ServiceName      string
	ServiceVersion   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("PORT", "8787")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("ALLOWED_CORS_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "/app/logs")
	v.SetDefault("AIRTABLE_BASE_URL", "https://api.airtable.com")
	v.SetDefault("AIRTABLE_RATE_LIMIT", 5)
	v.SetDefault("AIRTABLE_RATE_WINDOW_MS", 1000)
	v.SetDefault("ATTACHMENT_TOTAL_BYTES", 10*1024*1024)
	v.SetDefault("MAX_BODY_BYTES", 16*1024*1024)
	v.SetDefault("COLLABORATOR_CACHE_TTL", 600)
	v.SetDefault("ATTACHMENT_SESSION_TTL", 3600)
	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "")
	v.SetDefault("O11Y_SERVICE_NAME", "clipper-api")
	v.SetDefault("O11Y_SERVICE_VERSION", "1.0.0")

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig()

	// Parse allowed CORS origins (comma-separated). The default empty list
	// means extension-only access: browser extensions send no Origin the CORS
	// layer needs to allow.
	allowedOrigins := []string{}
	originsStr := v.GetString("ALLOWED_CORS_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			AllowedOrigins: allowedOrigins,
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: 10,
			MinConns: 2,
		},
		Auth: AuthConfig{
			APIToken: v.GetString("API_TOKEN"),
		},
		Airtable: AirtableConfig{
			BaseURL:      v.GetString("AIRTABLE_BASE_URL"),
			RateLimit:    v.GetInt("AIRTABLE_RATE_LIMIT"),
			RateWindowMS: v.GetInt("AIRTABLE_RATE_WINDOW_MS"),
		},
		Limits: LimitsConfig{
			AttachmentTotalBytes: v.GetInt("ATTACHMENT_TOTAL_BYTES"),
			MaxBodyBytes:         v.GetInt64("MAX_BODY_BYTES"),
		},
		Cache: CacheConfig{
			CollaboratorTTLSeconds: v.GetInt("COLLABORATOR_CACHE_TTL"),
			AttachmentTTLSeconds:   v.GetInt("ATTACHMENT_SESSION_TTL"),
		},
		EventTriggers: EventTriggerFunctionsConfig{
			ClipSentTriggerURL: v.GetString("CLIP_SENT_TRIGGER_URL"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			ExporterEndpoint: v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:      v.GetString("O11Y_SERVICE_NAME"),
			ServiceVersion:   v.GetString("O11Y_SERVICE_VERSION"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Airtable.RateLimit <= 0 {
		return fmt.Errorf("AIRTABLE_RATE_LIMIT must be positive")
	}
	if c.Airtable.RateWindowMS <= 0 {
		return fmt.Errorf("AIRTABLE_RATE_WINDOW_MS must be positive")
	}
	if c.Limits.AttachmentTotalBytes <= 0 {
		return fmt.Errorf("ATTACHMENT_TOTAL_BYTES must be positive")
	}
	return nil
}

// RateWindow returns the limiter window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Airtable.RateWindowMS) * time.Millisecond
}

// CollaboratorTTL returns the collaborator cache TTL as a duration.
func (c *Config) CollaboratorTTL() time.Duration {
	return time.Duration(c.Cache.CollaboratorTTLSeconds) * time.Second
}

// AttachmentTTL returns the attachment session TTL as a duration.
func (c *Config) AttachmentTTL() time.Duration {
	return time.Duration(c.Cache.AttachmentTTLSeconds) * time.Second
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}
