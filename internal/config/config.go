package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvProduction represents the production environment.
	EnvProduction = "production"
	// MicAccessProbe resolves microphone access from the audio backend.
	MicAccessProbe = "probe"
)

// Config holds all application configuration.
type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	// Session settings
	RecordingPath string `envconfig:"MEMO_RECORDING_PATH"`
	MicAccess     string `envconfig:"MEMO_MIC_ACCESS" default:"probe"`

	// Remote surface settings
	Port       string `envconfig:"PORT" default:"8080"`
	HSTSMaxAge int    `envconfig:"HSTS_MAX_AGE" default:"31536000"`
	CSPMode    string `envconfig:"CSP_MODE" default:"strict"`

	// Logging settings
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"MEMO_LOG_FILE"`
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() (*Config, error) {
	// Try to load .env file (optional for development)
	if err := godotenv.Load(); err != nil {
		// Not an error if file doesn't exist
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	return &config, nil
}

// BuildCSP constructs Content Security Policy based on mode.
// The remote surface serves JSON only, so both modes forbid active content.
func BuildCSP(mode string) string {
	if mode == "strict" {
		return "default-src 'none'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'none'; " +
			"form-action 'none'"
	}

	return "default-src 'self'; " +
		"frame-ancestors 'none'"
}
