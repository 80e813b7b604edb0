package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Property 1: Endpoint URL construction**
// For any base URL with any number of trailing slashes, the derived endpoint
// is the base without trailing slashes followed by exactly one "/" and the path.

func validEnv() map[string]string {
	return map[string]string{
		"REGION_ID":               "aws-us-east-1",
		"ZONE":                    "us-east-1a",
		"HOST":                    "storage-controller-0.example.internal",
		"JWT_TOKEN":               "global-token",
		"CONTROL_PLANE_JWT_TOKEN": "local-token",
		"CONSOLE_API_KEY":         "console-key",
		"GLOBAL_CPLANE_URL":       "https://global.example.com/",
		"LOCAL_CPLANE_URL":        "https://local.example.com",
		"CONSOLE_URL":             "https://console.example.com//",
	}
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestPropertyJoinURL(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("JoinURL strips trailing slashes and joins with one slash", prop.ForAll(
		func(host string, slashes int) bool {
			base := "https://" + host + ".example.com" + strings.Repeat("/", slashes)
			got := JoinURL(base, PageserversPath)
			want := "https://" + host + ".example.com/" + PageserversPath
			if got != want {
				t.Logf("JoinURL(%q) = %q, want %q", base, got, want)
				return false
			}
			return !strings.Contains(strings.TrimPrefix(got, "https://"), "//")
		},
		gen.Identifier(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

// **Property 2: Required variables**
// For any required variable, removing it from an otherwise valid environment
// makes FromLookup fail with ErrMissingEnv naming that variable.
func TestPropertyMissingRequiredVariable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	keys := make([]interface{}, len(requiredKeys))
	for i, k := range requiredKeys {
		keys[i] = k
	}

	properties.Property("missing required variable is reported", prop.ForAll(
		func(key string, blank bool) bool {
			env := validEnv()
			if blank {
				env[key] = ""
			} else {
				delete(env, key)
			}
			_, err := FromLookup(lookupFrom(env))
			if !errors.Is(err, ErrMissingEnv) {
				t.Logf("expected ErrMissingEnv for %s, got %v", key, err)
				return false
			}
			return strings.Contains(err.Error(), key)
		},
		gen.OneConstOf(keys...),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// **Property 3: HTTP port**
// For any valid port, PORT is carried into the config unchanged.
func TestPropertyPortOverride(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("PORT is honoured", prop.ForAll(
		func(port int) bool {
			env := validEnv()
			env["PORT"] = strconv.Itoa(port)
			cfg, err := FromLookup(lookupFrom(env))
			if err != nil {
				t.Logf("unexpected error: %v", err)
				return false
			}
			return cfg.HTTPPort == port
		},
		gen.IntRange(1, 65535),
	))

	properties.TestingRun(t)
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(validEnv()))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}

	if cfg.HTTPPort != DefaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, DefaultHTTPPort)
	}
	if cfg.HTTPTimeout != 0 {
		t.Errorf("HTTPTimeout = %v, want 0", cfg.HTTPTimeout)
	}
	if want := "https://global.example.com/management/api/v2/pageservers"; cfg.GlobalCplaneURL != want {
		t.Errorf("GlobalCplaneURL = %q, want %q", cfg.GlobalCplaneURL, want)
	}
	if want := "https://local.example.com/management/api/v2/pageservers"; cfg.LocalCplaneURL != want {
		t.Errorf("LocalCplaneURL = %q, want %q", cfg.LocalCplaneURL, want)
	}
	if want := "https://console.example.com/api/v1/admin/pageservers"; cfg.ConsoleURL != want {
		t.Errorf("ConsoleURL = %q, want %q", cfg.ConsoleURL, want)
	}
	if cfg.GlobalToken != "global-token" || cfg.LocalToken != "local-token" || cfg.ConsoleAPIKey != "console-key" {
		t.Errorf("credentials not mapped: %+v", cfg)
	}
	if cfg.LogFormat != "text" || cfg.LogLevel != "info" {
		t.Errorf("logging defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.JobName != "storage-controller-registration" {
		t.Errorf("JobName = %q", cfg.JobName)
	}
}

func TestFromLookupReportsAllMissing(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{}))
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("expected ErrMissingEnv, got %v", err)
	}
	for _, key := range requiredKeys {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestFromLookupInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric port", "PORT", "http"},
		{"empty port", "PORT", ""},
		{"empty required value", "HOST", ""},
		{"port out of range", "PORT", "70000"},
		{"bad timeout", "HTTP_TIMEOUT", "soon"},
		{"negative timeout", "HTTP_TIMEOUT", "-1s"},
		{"bad log format", "LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validEnv()
			env[tt.key] = tt.val
			if _, err := FromLookup(lookupFrom(env)); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	for key := range validEnv() {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	var b strings.Builder
	for key, val := range validEnv() {
		b.WriteString(key + "=" + val + "\n")
	}
	b.WriteString("HTTP_TIMEOUT=5s\n")
	path := filepath.Join(t.TempDir(), "register.env")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}

	t.Setenv("ENV_FILE", path)
	t.Setenv("HTTP_TIMEOUT", "")
	os.Unsetenv("HTTP_TIMEOUT")
	// Process environment takes precedence over the file.
	t.Setenv("HOST", "from-environment")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "from-environment" {
		t.Errorf("Host = %q, want value from environment", cfg.Host)
	}
	if cfg.RegionID != "aws-us-east-1" {
		t.Errorf("RegionID = %q, want value from env file", cfg.RegionID)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5s", cfg.HTTPTimeout)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing env file")
	}
}
