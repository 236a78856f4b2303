// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	// ErrMissingCredentials is returned when SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET is not set.
	ErrMissingCredentials = errors.New("missing SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET environment variable")

	// ErrMissingGeniusToken is returned when GENIUS_ACCESS_TOKEN is not set.
	ErrMissingGeniusToken = errors.New("missing GENIUS_ACCESS_TOKEN environment variable")
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultPort         = "3000"
	DefaultBackendURI   = "http://localhost:3000"
	DefaultFrontendURI  = "http://localhost:5173"
	DefaultDatabasePath = "spotify_tokens.db"
	DefaultLogLevel     = "info"
	DefaultPollInterval = 5 * time.Second
	DefaultEmitInterval = 1 * time.Second
)

// Config holds the backend configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	GeniusToken  string

	Port        string
	RedirectURI string
	FrontendURI string

	DatabasePath string
	DatabaseURL  string // optional; selects PostgreSQL when set

	LogLevel     string
	PollInterval time.Duration
	EmitInterval time.Duration
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already present in the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables.
// Returns ErrMissingCredentials or ErrMissingGeniusToken when a required
// variable is not set.
func Load() (*Config, error) {
	cfg := &Config{
		ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		GeniusToken:  os.Getenv("GENIUS_ACCESS_TOKEN"),
		Port:         getenv("PORT", DefaultPort),
		FrontendURI:  getenv("FRONTEND_REDIRECT_URI", DefaultFrontendURI),
		DatabasePath: getenv("DATABASE_PATH", DefaultDatabasePath),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		LogLevel:     getenv("LOG_LEVEL", DefaultLogLevel),
	}

	backend := strings.TrimRight(getenv("BACKEND_BASE_URI", DefaultBackendURI), "/")
	cfg.RedirectURI = backend + "/callback"

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.GeniusToken == "" {
		return nil, ErrMissingGeniusToken
	}

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.EmitInterval, err = getDuration("EMIT_INTERVAL", DefaultEmitInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}
