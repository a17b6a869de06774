package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// DefaultServiceURL is the base URL of the production description service
const DefaultServiceURL = "https://description-generator-backend-production.up.railway.app"

// Font names the page typeface. The theme is fixed for the life of the process.
type Font string

const (
	FontNunitoSans Font = "nunito-sans"
	FontPoppins    Font = "poppins"
)

// Theme is handed to the page renderer
type Theme struct {
	Font Font `env:"THEME_FONT" envDefault:"nunito-sans"`
}

// Config holds the service settings read from the environment
type Config struct {
	Host               string        `env:"HOST" envDefault:"0.0.0.0"`
	Port               string        `env:"PORT" envDefault:"8080"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"45s"`
	MaxRequestBodySize int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"10485760"` // 10MB
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`

	ServiceURL        string        `env:"DESCRIPTION_SERVICE_URL"` // defaults to DefaultServiceURL
	ServicePath       string        `env:"DESCRIPTION_SERVICE_PATH" envDefault:"user123"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"30s"`

	ImageFetchTimeout time.Duration `env:"IMAGE_FETCH_TIMEOUT" envDefault:"15s"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	// Empty allows any public host; "*.example.com" matches subdomains.
	// Internal addresses are refused regardless.
	ImportAllowedHosts []string `env:"IMAGE_IMPORT_ALLOWED_HOSTS" envSeparator:","`

	AzureAccountName string `env:"AZURE_STORAGE_ACCOUNT"`
	AzureAccountKey  string `env:"AZURE_STORAGE_KEY"`

	Theme Theme
}

// ServerAddress returns the host:port the HTTP server listens on
func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob import credentials are configured
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// LoadFromEnv reads an optional .env file, then the process environment
func LoadFromEnv() (*Config, error) {
	// A missing .env is the normal case in containers
	_ = godotenv.Load()

	// env.Parse keeps pre-populated values for unset variables
	cfg := &Config{ServiceURL: DefaultServiceURL}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that struct tags cannot express
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.GenerationTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, generation=%s, fetch=%s)",
			c.RequestTimeout, c.GenerationTimeout, c.ImageFetchTimeout)
	}
	if c.RequestTimeout <= c.GenerationTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed GENERATION_TIMEOUT (%s)", c.RequestTimeout, c.GenerationTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0 (got %s)", c.SessionTTL)
	}
	u, err := url.Parse(c.ServiceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid DESCRIPTION_SERVICE_URL: %q", c.ServiceURL)
	}
	if strings.TrimSpace(c.ServicePath) == "" || strings.Contains(c.ServicePath, "/") {
		return fmt.Errorf("invalid DESCRIPTION_SERVICE_PATH: %q", c.ServicePath)
	}
	switch c.Theme.Font {
	case FontNunitoSans, FontPoppins:
	default:
		return fmt.Errorf("invalid THEME_FONT: %q", c.Theme.Font)
	}
	return nil
}
