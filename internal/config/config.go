// Package config loads service settings from TASKDEPS_* environment variables,
// optionally layered over a TOML file named by TASKDEPS_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store       string // TASKDEPS_STORE (default "postgres"; "memory" for development)
	DatabaseURL string // TASKDEPS_DATABASE_URL (required for postgres)
	GRPCAddr    string // TASKDEPS_GRPC_ADDR (default ":9090")
	HTTPAddr    string // TASKDEPS_HTTP_ADDR (default ":8080")
	NATSURL     string // TASKDEPS_NATS_URL (optional, empty = no events)
	AuthToken   string // TASKDEPS_AUTH_TOKEN (optional, empty = auth disabled)

	// Engine settings
	RecomputeDebounce  time.Duration // TASKDEPS_RECOMPUTE_DEBOUNCE (default 500ms; 0 = recompute inline)
	RecomputeTimeout   time.Duration // TASKDEPS_RECOMPUTE_TIMEOUT (default 5s)
	MaxTraversal       int           // TASKDEPS_MAX_TRAVERSAL (default 100000)
	ExternalLagHours   float64       // TASKDEPS_EXTERNAL_LAG_HOURS (default 40)
	AllowLeadInversion bool          // TASKDEPS_ALLOW_LEAD_INVERSION (default false)

	// Export settings
	ExportInterval   time.Duration // TASKDEPS_EXPORT_INTERVAL (default 5m; 0 = disabled)
	ExportS3Bucket   string        // TASKDEPS_EXPORT_S3_BUCKET (enables export when set)
	ExportS3Endpoint string        // TASKDEPS_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // TASKDEPS_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Key      string        // TASKDEPS_EXPORT_S3_KEY (default "taskdeps/dependencies.jsonl")
}

// fileConfig mirrors Config in the TOML file. Durations are Go duration strings.
type fileConfig struct {
	Store       string `toml:"store"`
	DatabaseURL string `toml:"database_url"`
	GRPCAddr    string `toml:"grpc_addr"`
	HTTPAddr    string `toml:"http_addr"`
	NATSURL     string `toml:"nats_url"`
	AuthToken   string `toml:"auth_token"`

	Engine struct {
		RecomputeDebounce  string   `toml:"recompute_debounce"`
		RecomputeTimeout   string   `toml:"recompute_timeout"`
		MaxTraversal       int      `toml:"max_traversal"`
		ExternalLagHours   *float64 `toml:"external_lag_hours"`
		AllowLeadInversion bool     `toml:"allow_lead_inversion"`
	} `toml:"engine"`

	Export struct {
		Interval   string `toml:"interval"`
		S3Bucket   string `toml:"s3_bucket"`
		S3Endpoint string `toml:"s3_endpoint"`
		S3Region   string `toml:"s3_region"`
		S3Key      string `toml:"s3_key"`
	} `toml:"export"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Store:             StorePostgres,
		GRPCAddr:          ":9090",
		HTTPAddr:          ":8080",
		RecomputeDebounce: 500 * time.Millisecond,
		RecomputeTimeout:  5 * time.Second,
		MaxTraversal:      100000,
		ExternalLagHours:  40,
		ExportInterval:    5 * time.Minute,
		ExportS3Region:    "us-east-1",
		ExportS3Key:       "taskdeps/dependencies.jsonl",
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// TASKDEPS_CONFIG if any, then environment variables.
func Load() (*Config, error) {
	c := Defaults()
	if path := os.Getenv("TASKDEPS_CONFIG"); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.loadEnv(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	var f fileConfig
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	setString(&c.Store, f.Store)
	setString(&c.DatabaseURL, f.DatabaseURL)
	setString(&c.GRPCAddr, f.GRPCAddr)
	setString(&c.HTTPAddr, f.HTTPAddr)
	setString(&c.NATSURL, f.NATSURL)
	setString(&c.AuthToken, f.AuthToken)
	setString(&c.ExportS3Bucket, f.Export.S3Bucket)
	setString(&c.ExportS3Endpoint, f.Export.S3Endpoint)
	setString(&c.ExportS3Region, f.Export.S3Region)
	setString(&c.ExportS3Key, f.Export.S3Key)

	for _, d := range []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"engine.recompute_debounce", f.Engine.RecomputeDebounce, &c.RecomputeDebounce},
		{"engine.recompute_timeout", f.Engine.RecomputeTimeout, &c.RecomputeTimeout},
		{"export.interval", f.Export.Interval, &c.ExportInterval},
	} {
		if d.val == "" {
			continue
		}
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", path, d.key, err)
		}
		*d.dst = v
	}
	if f.Engine.MaxTraversal != 0 {
		c.MaxTraversal = f.Engine.MaxTraversal
	}
	if f.Engine.ExternalLagHours != nil {
		c.ExternalLagHours = *f.Engine.ExternalLagHours
	}
	if f.Engine.AllowLeadInversion {
		c.AllowLeadInversion = true
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Store = envOrDefault("TASKDEPS_STORE", c.Store)
	c.DatabaseURL = envOrDefault("TASKDEPS_DATABASE_URL", c.DatabaseURL)
	c.GRPCAddr = envOrDefault("TASKDEPS_GRPC_ADDR", c.GRPCAddr)
	c.HTTPAddr = envOrDefault("TASKDEPS_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = envOrDefault("TASKDEPS_NATS_URL", c.NATSURL)
	c.AuthToken = envOrDefault("TASKDEPS_AUTH_TOKEN", c.AuthToken)
	c.ExportS3Bucket = envOrDefault("TASKDEPS_EXPORT_S3_BUCKET", c.ExportS3Bucket)
	c.ExportS3Endpoint = envOrDefault("TASKDEPS_EXPORT_S3_ENDPOINT", c.ExportS3Endpoint)
	c.ExportS3Region = envOrDefault("TASKDEPS_EXPORT_S3_REGION", c.ExportS3Region)
	c.ExportS3Key = envOrDefault("TASKDEPS_EXPORT_S3_KEY", c.ExportS3Key)

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"TASKDEPS_RECOMPUTE_DEBOUNCE", &c.RecomputeDebounce},
		{"TASKDEPS_RECOMPUTE_TIMEOUT", &c.RecomputeTimeout},
		{"TASKDEPS_EXPORT_INTERVAL", &c.ExportInterval},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}
	if v := os.Getenv("TASKDEPS_MAX_TRAVERSAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKDEPS_MAX_TRAVERSAL: %w", err)
		}
		c.MaxTraversal = n
	}
	if v := os.Getenv("TASKDEPS_EXTERNAL_LAG_HOURS"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TASKDEPS_EXTERNAL_LAG_HOURS: %w", err)
		}
		c.ExternalLagHours = h
	}
	if v := os.Getenv("TASKDEPS_ALLOW_LEAD_INVERSION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TASKDEPS_ALLOW_LEAD_INVERSION: %w", err)
		}
		c.AllowLeadInversion = b
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("TASKDEPS_DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("TASKDEPS_STORE: unknown store %q", c.Store)
	}
	if c.RecomputeDebounce < 0 {
		return fmt.Errorf("TASKDEPS_RECOMPUTE_DEBOUNCE must not be negative")
	}
	if c.RecomputeTimeout <= 0 {
		return fmt.Errorf("TASKDEPS_RECOMPUTE_TIMEOUT must be positive")
	}
	if c.MaxTraversal <= 0 {
		return fmt.Errorf("TASKDEPS_MAX_TRAVERSAL must be positive")
	}
	if c.ExportInterval < 0 {
		return fmt.Errorf("TASKDEPS_EXPORT_INTERVAL must not be negative")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
