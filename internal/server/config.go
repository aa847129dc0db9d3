package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration. Values come from defaults, then an
// optional YAML file named by TW_CONFIG, then environment variables.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	DBPath      string `yaml:"db_path"`

	RefreshTTLSeconds int `yaml:"refresh_ttl_seconds"`
	RefreshWindow     int `yaml:"refresh_window"`
	SnapshotSize      int `yaml:"snapshot_size"`
	QueueSize         int `yaml:"queue_size"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
}

// RefreshTTL returns the prediction cache TTL as a duration.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}

// LoadConfig assembles the effective configuration.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          ":8080",
		MetricsAddr:       ":9090",
		DBPath:            "threatwatch.db",
		RefreshTTLSeconds: 30,
		RefreshWindow:     100,
		SnapshotSize:      10,
		QueueSize:         32,
		NATSSubject:       "threatwatch.events",
	}

	if path := os.Getenv("TW_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.HTTPAddr = getEnv("TW_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getEnv("TW_METRICS_ADDR", cfg.MetricsAddr)
	cfg.DBPath = getEnv("TW_DB_PATH", cfg.DBPath)
	cfg.RefreshTTLSeconds = getEnvInt("TW_REFRESH_TTL_SECONDS", cfg.RefreshTTLSeconds)
	cfg.RefreshWindow = getEnvInt("TW_REFRESH_WINDOW", cfg.RefreshWindow)
	cfg.SnapshotSize = getEnvInt("TW_SNAPSHOT_SIZE", cfg.SnapshotSize)
	cfg.QueueSize = getEnvInt("TW_QUEUE_SIZE", cfg.QueueSize)
	cfg.NATSURL = getEnv("TW_NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = getEnv("TW_NATS_SUBJECT", cfg.NATSSubject)
	cfg.GeminiAPIKey = getEnv("TW_GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = getEnv("TW_GEMINI_MODEL", cfg.GeminiModel)
	return cfg, nil
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
