package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
)

// Config holds all environment-based configuration for bff-proxy.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":5000"`

	// Upstream token endpoint and the service account exchanged for a
	// bearer token. The account is shared by every session.
	TokenEndpoint string `env:"API_ENDPOINT_TOKEN"`
	TokenUsername string `env:"API_USERNAME_TOKEN"`
	TokenPassword string `env:"API_PASSWORD_TOKEN"`

	// SSLVerify controls TLS certificate verification for all upstream calls.
	SSLVerify bool `env:"API_SSL_VERIFY" envDefault:"true"`

	// Resource base URLs. Item URLs are built as <base><id>, so both
	// must end in a slash.
	EmployeeEndpoint string `env:"API_ENDPOINT_EMPLOYEE"`
	ProductEndpoint  string `env:"API_ENDPOINT_PRODUCT"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`

	// Local administrator login. The password is a bcrypt hash produced
	// by the hash-password subcommand.
	LocalUsername     string `env:"LOCAL_USERNAME"`
	LocalPasswordHash string `env:"LOCAL_PASSWORD_HASH"`

	SessionCookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"bff_session"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	SessionStore        string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionDBPath       string        `env:"SESSION_DB_PATH"`

	// Comma-separated browser origins allowed to call the proxy.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Local login attempts allowed per client IP per minute.
	LoginRateLimit int `env:"LOGIN_RATE_LIMIT" envDefault:"5"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))

	if cfg.SessionStore == StoreBolt && cfg.SessionDBPath == "" {
		path, err := DefaultSessionDBPath()
		if err != nil {
			return nil, err
		}

		cfg.SessionDBPath = path
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TokenEndpoint == "" {
		return fmt.Errorf("API_ENDPOINT_TOKEN is required")
	}

	if err := validateURL("API_ENDPOINT_TOKEN", c.TokenEndpoint); err != nil {
		return err
	}

	if c.TokenUsername == "" || c.TokenPassword == "" {
		return fmt.Errorf("API_USERNAME_TOKEN and API_PASSWORD_TOKEN are required")
	}

	for name, base := range map[string]string{
		"API_ENDPOINT_EMPLOYEE": c.EmployeeEndpoint,
		"API_ENDPOINT_PRODUCT":  c.ProductEndpoint,
	} {
		if base == "" {
			return fmt.Errorf("%s is required", name)
		}

		if err := validateURL(name, base); err != nil {
			return err
		}

		if !strings.HasSuffix(base, "/") {
			return fmt.Errorf("%s must end with '/'", name)
		}
	}

	if (c.LocalUsername == "") != (c.LocalPasswordHash == "") {
		return fmt.Errorf("LOCAL_USERNAME and LOCAL_PASSWORD_HASH must be set together")
	}

	if c.LocalPasswordHash != "" && !strings.HasPrefix(c.LocalPasswordHash, "$2") {
		return fmt.Errorf("LOCAL_PASSWORD_HASH must be a bcrypt hash (see hash-password)")
	}

	switch c.SessionStore {
	case StoreMemory, StoreBolt:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StoreBolt, c.SessionStore)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}

	if c.LoginRateLimit <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be positive")
	}

	return nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}

	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}

	return nil
}

// DefaultSessionDBPath returns the default bolt database location:
// ~/.bff-proxy/sessions.db
func DefaultSessionDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".bff-proxy", "sessions.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LocalLoginEnabled reports whether a local administrator is configured.
func (c *Config) LocalLoginEnabled() bool {
	return c.LocalUsername != "" && c.LocalPasswordHash != ""
}
