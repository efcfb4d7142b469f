package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

const (
	DefaultModel         = "all-MiniLM-L6-v2"
	DefaultPort          = 5000
	DefaultAPIEndpoint   = "http://localhost:8080/v1"
	DefaultLocalEndpoint = "http://localhost:11434"
	DefaultCacheSize     = 10000

	// BindHost is fixed: the service accepts connections on every interface.
	BindHost = "0.0.0.0"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Embedding EmbeddingConfig `json:"embedding"`
	Cache     CacheConfig     `json:"cache"`
}

type ServerConfig struct {
	Port            int    `json:"port"`
	LogLevel        string `json:"log_level"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api", "local" or "mock"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

type CacheConfig struct {
	Type     string `json:"type"` // "", "memory" or "redis"
	Size     int    `json:"size"`
	RedisURL string `json:"redis_url"`
	TTL      string `json:"ttl"`
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", BindHost, c.Server.Port)
}

// ShutdownTimeout parses Server.ShutdownTimeout, defaulting to 10s.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// CacheTTL parses Cache.TTL; empty or invalid means no expiry.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load builds the configuration. When path is non-empty the JSON file is read
// first with ${VAR} substitution; environment variables then override it and
// defaults fill the rest.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Embedding.Model, "SBERT_MODEL")
	setString(&cfg.Embedding.Provider, "SBERT_PROVIDER")
	setString(&cfg.Embedding.Endpoint, "SBERT_ENDPOINT")
	setString(&cfg.Embedding.APIKey, "SBERT_API_KEY")
	setString(&cfg.Server.LogLevel, "LOG_LEVEL")
	setString(&cfg.Cache.Type, "SBERT_CACHE")
	setString(&cfg.Cache.RedisURL, "REDIS_URL")
	setString(&cfg.Cache.TTL, "SBERT_CACHE_TTL")

	if err := setInt(&cfg.Server.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Embedding.Dimension, "SBERT_DIMENSION"); err != nil {
		return err
	}
	return setInt(&cfg.Cache.Size, "SBERT_CACHE_SIZE")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultModel
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "api"
	}
	if cfg.Embedding.Endpoint == "" {
		switch cfg.Embedding.Provider {
		case "api":
			cfg.Embedding.Endpoint = DefaultAPIEndpoint
		case "local":
			cfg.Embedding.Endpoint = DefaultLocalEndpoint
		}
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = DefaultCacheSize
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("config: negative embedding dimension %d", c.Embedding.Dimension)
	}
	switch c.Cache.Type {
	case "", "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("config: redis cache requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown cache type %q", c.Cache.Type)
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("config: cache size must be positive, got %d", c.Cache.Size)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}
