// Package config provides environment-based configuration for the registrar.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Path suffixes appended to the configured base URLs.
const (
	// PageserversPath registers and looks up pageservers on a control plane.
	PageserversPath = "management/api/v2/pageservers"
	// AdminPageserversPath lists deployed pageservers on the console.
	AdminPageserversPath = "api/v1/admin/pageservers"
)

// DefaultHTTPPort is used when PORT is unset.
const DefaultHTTPPort = 50051

// ErrMissingEnv is returned when one or more required variables are unset.
var ErrMissingEnv = errors.New("required environment variables not set")

// Config holds all configuration for a registration run.
type Config struct {
	// Node identity
	RegionID string
	Zone     string
	Host     string
	HTTPPort int

	// Credentials
	GlobalToken   string // JWT_TOKEN
	LocalToken    string // CONTROL_PLANE_JWT_TOKEN
	ConsoleAPIKey string

	// Fully qualified endpoints, derived from the *_URL base variables.
	GlobalCplaneURL string
	LocalCplaneURL  string
	ConsoleURL      string

	// HTTPTimeout bounds each request. Zero means no timeout.
	HTTPTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	PushgatewayURL string
	JobName        string
}

var requiredKeys = []string{
	"REGION_ID",
	"ZONE",
	"HOST",
	"JWT_TOKEN",
	"CONTROL_PLANE_JWT_TOKEN",
	"CONSOLE_API_KEY",
	"GLOBAL_CPLANE_URL",
	"LOCAL_CPLANE_URL",
	"CONSOLE_URL",
}

// Load reads configuration from environment variables. When ENV_FILE is set
// the file is loaded first; variables already present in the environment win.
func Load() (*Config, error) {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", path, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config using lookup in place of the process environment.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	var missing []string
	for _, key := range requiredKeys {
		if v, ok := lookup(key); !ok || v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	port := DefaultHTTPPort
	if v, ok := lookup("PORT"); ok {
		p, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		port = p
	}

	timeout := time.Duration(0)
	if v, ok := lookup("HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT %q: %w", v, err)
		}
		timeout = d
	}

	cfg := &Config{
		RegionID:        get("REGION_ID"),
		Zone:            get("ZONE"),
		Host:            get("HOST"),
		HTTPPort:        port,
		GlobalToken:     get("JWT_TOKEN"),
		LocalToken:      get("CONTROL_PLANE_JWT_TOKEN"),
		ConsoleAPIKey:   get("CONSOLE_API_KEY"),
		GlobalCplaneURL: JoinURL(get("GLOBAL_CPLANE_URL"), PageserversPath),
		LocalCplaneURL:  JoinURL(get("LOCAL_CPLANE_URL"), PageserversPath),
		ConsoleURL:      JoinURL(get("CONSOLE_URL"), AdminPageserversPath),
		HTTPTimeout:     timeout,
		LogLevel:        getOr(lookup, "LOG_LEVEL", "info"),
		LogFormat:       getOr(lookup, "LOG_FORMAT", "text"),
		PushgatewayURL:  getOr(lookup, "PUSHGATEWAY_URL", ""),
		JobName:         getOr(lookup, "METRICS_JOB_NAME", "storage-controller-registration"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that are set but unusable.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP_TIMEOUT must not be negative")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// JoinURL trims trailing slashes from base and appends path.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func getOr(lookup func(string) (string, bool), key, defaultValue string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}
