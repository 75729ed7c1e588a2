// Package config loads listing editor settings from command-line flags,
// environment variables, and a .env file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rolsen/tinyclassified/internal/validation"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Remote RemoteConfig
	Editor EditorConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"ENV" validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" validate:"required,oneof=debug info warn warning error"`
}

// RemoteConfig describes the listing backend.
type RemoteConfig struct {
	// BaseURL is scheme and host, e.g. http://localhost:5000.
	BaseURL string `env:"LISTING_BASE_URL" validate:"required,http_url"`
	// ListingPath is the collection root; a listing lives at ListingPath/<id>.
	ListingPath string `env:"LISTING_PATH" validate:"required,startswith=/"`
	// ContactResource names the child collection under a listing.
	ContactResource string `env:"CONTACT_RESOURCE" validate:"required,excludes=/"`
	// CategoriesPath serves the read-only category taxonomy.
	CategoriesPath string `env:"CATEGORIES_PATH" validate:"required,startswith=/"`
	// EmulateJSON sends PUT/POST bodies form-encoded as model=<json>.
	EmulateJSON bool `env:"EMULATE_JSON"`
	// RequestsPerSecond limits outbound requests per resource; 0 disables.
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" validate:"gte=0"`
	RequestBurst      int     `env:"REQUEST_BURST" validate:"gte=0"`
	UserAgent         string  `env:"USER_AGENT"`
}

// EditorConfig holds per-session settings.
type EditorConfig struct {
	// Target selects a listing other than the caller's own. Empty means the
	// "_current" listing.
	Target string `env:"LISTING_TARGET"`
}

// Flags carries command-line values. Empty strings fall through to the
// environment, then the .env file, then defaults.
type Flags struct {
	Env               string
	EnvFile           string
	LogLevel          string
	BaseURL           string
	Target            string
	EmulateJSON       string
	RequestsPerSecond string
}

// Load loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(flags Flags) (*Config, error) {
	envFile := flags.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(envFile)

	// EMULATE_JSON defaults on because the backend reads form-encoded
	// "model" payloads. REQUESTS_PER_SECOND of zero disables throttling.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flags.Env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: strings.ToLower(getConfigValue(flags.LogLevel, "LOG_LEVEL", "info")),
		},
		Remote: RemoteConfig{
			// Paths are joined onto the base URL, so trailing slashes are dropped.
			BaseURL:           strings.TrimRight(getConfigValue(flags.BaseURL, "LISTING_BASE_URL", ""), "/"),
			ListingPath:       strings.TrimRight(getConfigValue("", "LISTING_PATH", "/resources/author/content"), "/"),
			ContactResource:   getConfigValue("", "CONTACT_RESOURCE", "contact"),
			CategoriesPath:    getConfigValue("", "CATEGORIES_PATH", "/resources/author/categories.json"),
			EmulateJSON:       getBoolConfigValue(flags.EmulateJSON, "EMULATE_JSON", true),
			RequestsPerSecond: getFloatConfigValue(flags.RequestsPerSecond, "REQUESTS_PER_SECOND", 0),
			RequestBurst:      getIntConfigValue("", "REQUEST_BURST", 1),
			UserAgent:         getConfigValue("", "USER_AGENT", "tinyclassified-editor/1.0"),
		},
		Editor: EditorConfig{
			// Empty means the signed-in user's own listing.
			Target: getConfigValue(flags.Target, "LISTING_TARGET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	return validation.New().Validate(c)
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Environment variables take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
