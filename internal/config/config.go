package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache backends.
const (
	BackendRedis  = "redis"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type Config struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	CacheBackend   string        `env:"CACHE_BACKEND" envDefault:"redis"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"6h"`
	ResponseMaxAge time.Duration `env:"RESPONSE_MAX_AGE" envDefault:"20m"`
	// AdminSecret gates /admin routes. Empty disables them.
	AdminSecret string `env:"CLEAR_CACHE_PASSWORD"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	Redis    RedisConfig
	Storage  StorageConfig
	Upstream UpstreamConfig
}

type RedisConfig struct {
	Scheme   string `env:"REDIS_SCHEME" envDefault:"redis"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
}

type StorageConfig struct {
	Endpoint        string `env:"S3_ENDPOINT" envDefault:"localhost:9000"`
	AccessKeyID     string `env:"S3_ACCESS_KEY" envDefault:"minioadmin"`
	SecretAccessKey string `env:"S3_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL          bool   `env:"S3_USE_SSL" envDefault:"false"`
	Bucket          string `env:"S3_BUCKET" envDefault:"avatars"`
	Prefix          string `env:"S3_PREFIX" envDefault:"cache/"`
}

type UpstreamConfig struct {
	APIURL     string        `env:"MOJANG_API_URL" envDefault:"https://api.mojang.com"`
	SessionURL string        `env:"MOJANG_SESSION_URL" envDefault:"https://sessionserver.mojang.com"`
	Rate       float64       `env:"UPSTREAM_RATE" envDefault:"10"`
	Burst      int           `env:"UPSTREAM_BURST" envDefault:"20"`
	Timeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	UserAgent  string        `env:"USER_AGENT" envDefault:"ziria/1.0"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.CacheBackend {
	case BackendRedis, BackendS3, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.CacheBackend))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive"))
	}
	if c.ResponseMaxAge < 0 {
		errs = append(errs, errors.New("response max age cannot be negative"))
	}
	if c.Upstream.Rate <= 0 {
		errs = append(errs, errors.New("upstream rate must be positive"))
	}
	if c.Upstream.Burst <= 0 {
		errs = append(errs, errors.New("upstream burst must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.CacheBackend == BackendS3 && c.Storage.Bucket == "" {
		errs = append(errs, errors.New("bucket name cannot be empty"))
	}

	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// URL builds the redis connection string from its parts.
func (r RedisConfig) URL() string {
	u := url.URL{
		Scheme: r.Scheme,
		Host:   net.JoinHostPort(r.Host, r.Port),
		Path:   "/",
	}
	switch {
	case r.Username != "" && r.Password != "":
		u.User = url.UserPassword(r.Username, r.Password)
	case r.Password != "":
		u.User = url.UserPassword("", r.Password)
	case r.Username != "":
		u.User = url.User(r.Username)
	}
	return u.String()
}
