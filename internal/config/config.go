package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds runtime configuration for the build-order services.
type Config struct {
	DBURL         string
	RedisURL      string
	RedisQueue    string
	WorkerCount   int
	JobBufferSize int
	HTTPAddr      string
	CatalogPath   string
	// CORSOrigins are the browser origins the HTTP API accepts.
	CORSOrigins []string
}

// NewViper returns a viper instance reading the service environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault("redis_queue", "build_order_jobs")
	v.SetDefault("worker_count", 1)
	v.SetDefault("job_buffer_size", 16)
	v.SetDefault("port", "5000")
	v.SetDefault("cors_origins", "*")
	return v
}

// Load builds a Config from environment variables for the queue worker.
func Load() (*Config, error) {
	cfg := FromViper(NewViper())

	if cfg.DBURL == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}

// FromViper reads a Config without enforcing the worker's required fields.
// The HTTP server and CLI run without a database or queue.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		DBURL:         v.GetString("db_url"),
		RedisURL:      v.GetString("redis_url"),
		RedisQueue:    v.GetString("redis_queue"),
		WorkerCount:   v.GetInt("worker_count"),
		JobBufferSize: v.GetInt("job_buffer_size"),
		HTTPAddr:      v.GetString("http_addr"),
		CatalogPath:   v.GetString("catalog_path"),
		CORSOrigins:   splitList(v.GetString("cors_origins")),
	}

	if cfg.RedisQueue == "" {
		cfg.RedisQueue = "build_order_jobs"
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	if cfg.JobBufferSize < 1 {
		cfg.JobBufferSize = cfg.WorkerCount
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":" + v.GetString("port")
	}

	return cfg
}

// splitList parses a comma separated environment value.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
