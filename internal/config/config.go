package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultStart       = "2021-01"
	defaultOutputDir   = "datasets"
	defaultConcurrency = 15
	defaultTimeout     = 30 * time.Second
	defaultRetries     = 1
	defaultLogLevel    = "info"
	defaultLogFormat   = "console"
)

// Config holds run-level configuration for the extractor. Provider
// credentials and endpoints are loaded separately by the provider's own
// ConfigFromEnv.
type Config struct {
	Start       time.Time
	OutputDir   string
	DBPath      string
	Concurrency int
	Timeout     time.Duration
	Retries     int
	LogLevel    string
	LogFormat   string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		OutputDir:   defaultOutputDir,
		DBPath:      strings.TrimSpace(os.Getenv("EXTRACTOR_DB")),
		Concurrency: defaultConcurrency,
		Timeout:     defaultTimeout,
		Retries:     defaultRetries,
		LogLevel:    defaultLogLevel,
		LogFormat:   defaultLogFormat,
	}

	start := strings.TrimSpace(os.Getenv("EXTRACTOR_START"))
	if start == "" {
		start = defaultStart
	}
	parsed, err := time.Parse("2006-01", start)
	if err != nil {
		return cfg, fmt.Errorf("invalid EXTRACTOR_START (want YYYY-MM): %w", err)
	}
	cfg.Start = parsed

	if v := strings.TrimSpace(os.Getenv("EXTRACTOR_OUTPUT_DIR")); v != "" {
		cfg.OutputDir = v
	}

	if v := strings.TrimSpace(os.Getenv("EXTRACTOR_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid EXTRACTOR_CONCURRENCY: %q", v)
		}
		cfg.Concurrency = n
	}

	if v := strings.TrimSpace(os.Getenv("EXTRACTOR_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid EXTRACTOR_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}

	if v := strings.TrimSpace(os.Getenv("EXTRACTOR_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid EXTRACTOR_RETRIES: %q", v)
		}
		cfg.Retries = n
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}

	return cfg, nil
}
