package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Index modes for MATCH_INDEX.
const (
	IndexExact    = "exact"
	IndexHNSW     = "hnsw"
	IndexPgvector = "pgvector"
)

// Storage backends for STORAGE_BACKEND.
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

type Config struct {
	Match    MatchConfig    `yaml:"match"`
	Registry RegistryConfig `yaml:"registry"`
	Capture  CaptureConfig  `yaml:"capture"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
}

type MatchConfig struct {
	Threshold    float64 `yaml:"threshold"`      // maximum accepted Euclidean distance
	Index        string  `yaml:"index"`          // exact, hnsw or pgvector
	Candidates   int     `yaml:"candidates"`     // neighbours fetched from the index
	MinIndexSize int     `yaml:"min_index_size"` // below this many members the index is skipped
}

type RegistryConfig struct {
	Dim int `yaml:"dim"` // 0 lets the first enrollment decide
}

type CaptureConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	EncoderURL string        `yaml:"encoder_url"`
	MaxSide    int           `yaml:"max_side"` // longest image side uploaded to the encoder
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"` // directory of members.csv and attendance.csv
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins besides localhost
}

// Addr returns host:port for the HTTP listener.
func (c WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the current value if the env var is unset, empty, or invalid.
func envInt(key string, current int) int {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return current
}

func envString(key, current string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return current
}

func envFloat(key string, current float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return current
}

func envBool(key string, current bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return current
}

// envDuration accepts Go durations ("1500ms") and plain seconds ("10").
func envDuration(key string, current time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return current
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string, current []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the defaults, the optional YAML file named
// by FACEGATE_CONFIG and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("FACEGATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Match.Threshold = envFloat("MATCH_THRESHOLD", cfg.Match.Threshold)
	cfg.Match.Index = strings.ToLower(envString("MATCH_INDEX", cfg.Match.Index))
	cfg.Match.Candidates = envInt("MATCH_CANDIDATES", cfg.Match.Candidates)
	cfg.Match.MinIndexSize = envInt("MATCH_MIN_INDEX_SIZE", cfg.Match.MinIndexSize)
	cfg.Registry.Dim = envInt("REGISTRY_DIM", cfg.Registry.Dim)
	cfg.Capture.Timeout = envDuration("CAPTURE_TIMEOUT", cfg.Capture.Timeout)
	cfg.Capture.EncoderURL = envString("ENCODER_URL", cfg.Capture.EncoderURL)
	cfg.Capture.MaxSide = envInt("CAPTURE_MAX_SIDE", cfg.Capture.MaxSide)
	cfg.Storage.Backend = strings.ToLower(envString("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.DataDir = envString("DATA_DIR", cfg.Storage.DataDir)
	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = envBool("LOG_PRETTY", cfg.Log.Pretty)
	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if t := c.Match.Threshold; math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be a non-negative number, got %v", t))
	}
	switch c.Match.Index {
	case IndexExact, IndexHNSW:
	case IndexPgvector:
		if c.Storage.Backend != BackendPostgres {
			errs = append(errs, errors.New("MATCH_INDEX=pgvector requires STORAGE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MATCH_INDEX %q", c.Match.Index))
	}
	if c.Registry.Dim < 0 {
		errs = append(errs, fmt.Errorf("REGISTRY_DIM must not be negative, got %d", c.Registry.Dim))
	}
	if c.Capture.Timeout <= 0 {
		errs = append(errs, errors.New("CAPTURE_TIMEOUT must be positive"))
	}
	switch c.Storage.Backend {
	case BackendCSV:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the csv backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("WEB_PORT out of range: %d", c.Web.Port))
	}

	return errors.Join(errs...)
}
