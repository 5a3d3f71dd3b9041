// Package config assembles the server configuration from an optional
// YAML file, a .env file when present, and environment variables; the
// environment wins over the file for the knobs it names.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModelsDir = "/models"
	DefaultModel     = "base.en"
	DefaultThreads   = 4
	DefaultBeamSize  = 5
	DefaultBin       = "whisper-cli"
	DefaultAddr      = ":8080"

	// Uploads larger than this are rejected with 413.
	DefaultMaxUploadBytes = 512 << 20
)

type Config struct {
	ModelsDir string `yaml:"models_dir"`
	Model     string `yaml:"model"`
	Threads   int    `yaml:"threads"`
	BeamSize  int    `yaml:"beam_size"`
	Bin       string `yaml:"bin"`

	Addr           string   `yaml:"addr"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	SilenceGate          bool    `yaml:"silence_gate"`
	SilenceThresholdDBFS float64 `yaml:"silence_threshold_dbfs"`

	LogJSON bool   `yaml:"log_json"`
	Verbose bool   `yaml:"verbose"`
	LogFile string `yaml:"log_file"`
}

func Default() Config {
	return Config{
		ModelsDir:            DefaultModelsDir,
		Model:                DefaultModel,
		Threads:              DefaultThreads,
		BeamSize:             DefaultBeamSize,
		Bin:                  DefaultBin,
		Addr:                 DefaultAddr,
		MaxUploadBytes:       DefaultMaxUploadBytes,
		SilenceThresholdDBFS: -65,
	}
}

// Load builds the configuration: defaults, then the YAML file when path
// is non-empty, then a .env file when one exists next to the working
// directory, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("WHISPER_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("WHISPER_BIN"); v != "" {
		c.Bin = v
	}
	if v := os.Getenv("WHISPERD_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("WHISPERD_LOG_FILE"); v != "" {
		c.LogFile = v
	}

	var err error
	if c.Threads, err = envInt("WHISPER_THREADS", c.Threads); err != nil {
		return err
	}
	if c.BeamSize, err = envInt("WHISPER_BEAM_SIZE", c.BeamSize); err != nil {
		return err
	}

	if v := os.Getenv("WHISPERD_MAX_UPLOAD_BYTES"); v != "" {
		limit, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse WHISPERD_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = limit
	}

	if v := os.Getenv("WHISPERD_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	return nil
}

func (c *Config) validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}
	if c.BeamSize <= 0 {
		return fmt.Errorf("beam size must be positive, got %d", c.BeamSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
