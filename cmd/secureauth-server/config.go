package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/secureauth/middleware"
	"gopkg.in/yaml.v3"
)

// Environment overrides for deployment secrets.
const (
	envDatabaseDSN     = "SECUREAUTH_DATABASE_DSN"
	envRedisAddr       = "SECUREAUTH_REDIS_ADDR"
	envRedisPassword   = "SECUREAUTH_REDIS_PASSWORD"
	envRecaptchaSecret = "SECUREAUTH_RECAPTCHA_SECRET"
)

// serverConfig is the "server" section of the config file. The engine
// sections are read by secureauth.LoadConfig from the same file.
type serverConfig struct {
	Addr    string        `yaml:"addr"`
	Store   storeConfig   `yaml:"store"`
	Limiter limiterConfig `yaml:"limiter"`
	Log     logConfig     `yaml:"log"`
	Captcha captchaConfig `yaml:"captcha"`
	Notify  notifyConfig  `yaml:"notify"`

	// TrustedProxies are CIDR blocks or addresses of reverse proxies whose
	// X-Forwarded-For header is believed. Empty means RemoteAddr only.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// PruneInterval controls how often expired limiter records and old
	// login attempts are removed. Zero disables pruning.
	PruneInterval time.Duration `yaml:"prune_interval"`
	// AttemptRetention is how long login attempts are kept.
	AttemptRetention time.Duration `yaml:"attempt_retention"`
	// MetricsLogInterval periodically logs counters collected through
	// OpenTelemetry. Zero disables it.
	MetricsLogInterval time.Duration `yaml:"metrics_log_interval"`
}

type storeConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type limiterConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type captchaConfig struct {
	Secret    string `yaml:"secret"`
	VerifyURL string `yaml:"verify_url"`
}

type notifyConfig struct {
	BaseURL    string `yaml:"base_url"`
	ShowTokens bool   `yaml:"show_tokens"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:               ":8080",
		Store:              storeConfig{Driver: "memory", Migrate: true},
		Limiter:            limiterConfig{Backend: "memory"},
		Log:                logConfig{Level: "info", Format: "json"},
		Notify:             notifyConfig{BaseURL: "http://localhost:8080"},
		PruneInterval:      5 * time.Minute,
		AttemptRetention:   24 * time.Hour,
		MetricsLogInterval: 0,
	}
}

func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return serverConfig{}, fmt.Errorf("read config: %w", err)
		}
		var file struct {
			Server *serverConfig `yaml:"server"`
		}
		file.Server = &cfg
		if err := yaml.Unmarshal(data, &file); err != nil {
			return serverConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Store.DSN, envDatabaseDSN)
	override(&cfg.Limiter.RedisAddr, envRedisAddr)
	override(&cfg.Limiter.RedisPassword, envRedisPassword)
	override(&cfg.Captcha.Secret, envRecaptchaSecret)

	return cfg, cfg.validate()
}

func (c serverConfig) validate() error {
	if c.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("server.store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported server.store.driver %q", c.Store.Driver)
	}
	switch c.Limiter.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported server.limiter.backend %q", c.Limiter.Backend)
	}
	if c.PruneInterval < 0 || c.AttemptRetention < 0 || c.MetricsLogInterval < 0 {
		return errors.New("server intervals must be >= 0")
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	return nil
}
