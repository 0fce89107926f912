package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Token store backends.
const (
	storeFile   = "file"
	storeBolt   = "bolt"
	storeMemory = "memory"
)

// Config is the client configuration. Priority: flag > env > default.
type Config struct {
	ServerURL      string        `env:"SERVER_URL"      envDefault:"http://localhost:3000"`
	TokenStore     string        `env:"TOKEN_STORE"     envDefault:"file"`
	TokenFile      string        `env:"TOKEN_FILE"      envDefault:".apiclient-tokens.json"`
	Profile        string        `env:"PROFILE"         envDefault:"default"`
	HTTPRetries    int           `env:"HTTP_RETRIES"    envDefault:"0"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT" envDefault:"10s"`
	LogLevel       string        `env:"LOG_LEVEL"       envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT"      envDefault:"pretty"`
	LogFile        string        `env:"LOG_FILE"`
	MetricsAddr    string        `env:"METRICS_ADDR"`
	Password       string        `env:"APICLIENT_PASSWORD"`
}

// Flag names shared by the root command and loadConfig.
const (
	flagServerURL   = "server-url"
	flagTokenStore  = "token-store"
	flagTokenFile   = "token-file"
	flagProfile     = "profile"
	flagRetries     = "retries"
	flagTimeout     = "timeout"
	flagLogLevel    = "log-level"
	flagLogFormat   = "log-format"
	flagMetricsAddr = "metrics-addr"
)

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String(flagServerURL, "", "API server URL (default: http://localhost:3000 or SERVER_URL env)")
	f.String(flagTokenStore, "", "token store backend: file, bolt or memory (TOKEN_STORE env)")
	f.String(flagTokenFile, "", "token store path (default: .apiclient-tokens.json or TOKEN_FILE env)")
	f.String(flagProfile, "", "session profile inside the token store (PROFILE env)")
	f.Int(flagRetries, 0, "transport-level retries for network errors and 5xx (HTTP_RETRIES env)")
	f.Duration(flagTimeout, 0, "per-request timeout (REQUEST_TIMEOUT env)")
	f.String(flagLogLevel, "", "debug, info, warn or error (LOG_LEVEL env)")
	f.String(flagLogFormat, "", "pretty or json (LOG_FORMAT env)")
	f.String(flagMetricsAddr, "", "serve prometheus metrics on this address while watching (METRICS_ADDR env)")
}

// loadConfig reads .env, the environment and then the flags set on cmd.
func loadConfig(cmd *cobra.Command) (Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		v, _ := flags.GetString(name)
		*dst = getConfig(v, *dst)
	}
	str(flagServerURL, &cfg.ServerURL)
	str(flagTokenStore, &cfg.TokenStore)
	str(flagTokenFile, &cfg.TokenFile)
	str(flagProfile, &cfg.Profile)
	str(flagLogLevel, &cfg.LogLevel)
	str(flagLogFormat, &cfg.LogFormat)
	str(flagMetricsAddr, &cfg.MetricsAddr)
	if flags.Changed(flagRetries) {
		cfg.HTTPRetries, _ = flags.GetInt(flagRetries)
	}
	if flags.Changed(flagTimeout) {
		cfg.RequestTimeout, _ = flags.GetDuration(flagTimeout)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// getConfig returns value with priority: flag > env/default
func getConfig(flagValue, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	return fallback
}

func (c Config) validate() error {
	if err := validateServerURL(c.ServerURL); err != nil {
		return fmt.Errorf("invalid SERVER_URL: %w", err)
	}
	switch c.TokenStore {
	case storeFile, storeBolt, storeMemory:
	default:
		return fmt.Errorf("invalid TOKEN_STORE %q: want file, bolt or memory", c.TokenStore)
	}
	if c.TokenStore != storeMemory && c.TokenFile == "" {
		return errors.New("TOKEN_FILE cannot be empty")
	}
	if c.Profile == "" {
		return errors.New("PROFILE cannot be empty")
	}
	if c.HTTPRetries < 0 {
		return fmt.Errorf("HTTP_RETRIES must not be negative, got %d", c.HTTPRetries)
	}
	return nil
}

// plaintext reports whether tokens travel unencrypted.
func (c Config) plaintext() bool {
	return strings.HasPrefix(strings.ToLower(c.ServerURL), "http://")
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}
