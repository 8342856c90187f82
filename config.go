package secureauth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/secureauth/csrf"
	"github.com/MrEthical07/secureauth/lockout"
	"github.com/MrEthical07/secureauth/password"
	"github.com/MrEthical07/secureauth/ratelimit"
	"github.com/MrEthical07/secureauth/twofactor"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig. They override the file.
const (
	EnvAccessSecret  = "SECUREAUTH_ACCESS_SECRET"
	EnvRefreshSecret = "SECUREAUTH_REFRESH_SECRET"
	EnvCSRFSecret    = "SECUREAUTH_CSRF_SECRET"
)

// minSecretLength is the shortest accepted signing secret, in bytes.
const minSecretLength = 32

// Config defines every tunable of the engine.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Tokens            TokenConfig             `yaml:"tokens"`
	CSRF              CSRFConfig              `yaml:"csrf"`
	Password          password.Config         `yaml:"password"`
	RateLimit         RateLimitConfig         `yaml:"rate_limit"`
	Lockout           lockout.Policy          `yaml:"lockout"`
	TwoFactor         twofactor.Config        `yaml:"two_factor"`
	Captcha           CaptchaConfig           `yaml:"captcha"`
	EmailVerification EmailVerificationConfig `yaml:"email_verification"`
	PasswordReset     PasswordResetConfig     `yaml:"password_reset"`
	Audit             AuditConfig             `yaml:"audit"`
	Metrics           MetricsConfig           `yaml:"metrics"`
	Cookies           CookieConfig            `yaml:"cookies"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds the session token secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RememberMeTTL time.Duration `yaml:"remember_me_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig holds the CSRF signing secret and token lifetime.
type CSRFConfig struct {
	Secret string        `yaml:"secret"`
	MaxAge time.Duration `yaml:"max_age"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the per-IP policies of the login and registration
// endpoints and the per-user policy of two-factor management.
type RateLimitConfig struct {
	Login    ratelimit.Policy `yaml:"login"`
	Register ratelimit.Policy `yaml:"register"`
	// PasswordReset throttles reset requests per IP.
	PasswordReset ratelimit.Policy `yaml:"password_reset"`
	// TwoFactor throttles enable, disable and backup-code regeneration per user.
	TwoFactor ratelimit.Policy `yaml:"two_factor"`
}

/*
====================================
CAPTCHA CONFIG
====================================
*/

// CaptchaConfig controls when login demands a CAPTCHA.
//
// Login requires a CAPTCHA once the email has FailureThreshold failed
// attempts within Lookback. AllowMissingToken decides what happens when the
// client sends none: false rejects the login, true lets it through.
type CaptchaConfig struct {
	Enabled           bool          `yaml:"enabled"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	Lookback          time.Duration `yaml:"lookback"`
	MinScore          float64       `yaml:"min_score"`
	AllowMissingToken bool          `yaml:"allow_missing_token"`
	RequireOnRegister bool          `yaml:"require_on_register"`
}

/*
====================================
EMAIL VERIFICATION CONFIG
====================================
*/

// EmailVerificationConfig controls verification tokens.
type EmailVerificationConfig struct {
	RequireForLogin bool          `yaml:"require_for_login"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls the reset-by-email flow.
type PasswordResetConfig struct {
	Enabled  bool          `yaml:"enabled"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig selects synchronous or buffered delivery to the audit sink.
type AuditConfig struct {
	Async      bool `yaml:"async"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and the login latency histogram.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig shapes the session cookies written by the middleware package.
type CookieConfig struct {
	AccessName  string `yaml:"access_name"`
	RefreshName string `yaml:"refresh_name"`
	Domain      string `yaml:"domain"`
	Secure      bool   `yaml:"secure"`
}

// DefaultConfig returns the documented defaults. Secrets are left empty and
// must be supplied before Build.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:     24 * time.Hour,
			RememberMeTTL: 30 * 24 * time.Hour,
			RefreshTTL:    30 * 24 * time.Hour,
			Issuer:        "secureauth",
		},
		CSRF: CSRFConfig{
			MaxAge: csrf.DefaultMaxAge,
		},
		Password: password.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Login:         ratelimit.Policy{MaxAttempts: 5, Window: 15 * time.Minute, Block: 30 * time.Minute},
			Register:      ratelimit.Policy{MaxAttempts: 3, Window: time.Hour, Block: time.Hour},
			PasswordReset: ratelimit.Policy{MaxAttempts: 3, Window: time.Hour, Block: time.Hour},
			TwoFactor:     ratelimit.Policy{MaxAttempts: 5, Window: time.Minute, Block: time.Minute},
		},
		Lockout:   lockout.DefaultPolicy(),
		TwoFactor: twofactor.DefaultConfig(),
		Captcha: CaptchaConfig{
			Enabled:           true,
			FailureThreshold:  2,
			Lookback:          15 * time.Minute,
			MinScore:          0.5,
			RequireOnRegister: true,
		},
		EmailVerification: EmailVerificationConfig{
			RequireForLogin: true,
			TokenTTL:        24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:  true,
			TokenTTL: time.Hour,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Cookies: CookieConfig{
			AccessName:  "accessToken",
			RefreshName: "refreshToken",
			Secure:      true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// LoadConfig reads a YAML file over DefaultConfig, applies the SECUREAUTH_*
// secret overrides from the environment, and validates the result. An
// empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAccessSecret); ok && v != "" {
		c.Tokens.AccessSecret = v
	}
	if v, ok := lookup(EnvRefreshSecret); ok && v != "" {
		c.Tokens.RefreshSecret = v
	}
	if v, ok := lookup(EnvCSRFSecret); ok && v != "" {
		c.CSRF.Secret = v
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Tokens.AccessSecret) < minSecretLength {
		return errors.New("Tokens.AccessSecret must be at least 32 bytes")
	}
	if len(c.Tokens.RefreshSecret) < minSecretLength {
		return errors.New("Tokens.RefreshSecret must be at least 32 bytes")
	}
	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		return errors.New("Tokens.AccessSecret and Tokens.RefreshSecret must differ")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RememberMeTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens TTLs must be > 0")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens.Leeway must be between 0 and 2m")
	}

	if len(c.CSRF.Secret) < minSecretLength {
		return errors.New("CSRF.Secret must be at least 32 bytes")
	}
	if c.CSRF.Secret == c.Tokens.AccessSecret || c.CSRF.Secret == c.Tokens.RefreshSecret {
		return errors.New("CSRF.Secret must differ from token secrets")
	}
	if c.CSRF.MaxAge <= 0 {
		return errors.New("CSRF.MaxAge must be > 0")
	}

	if _, err := password.NewHasher(c.Password); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	if err := c.RateLimit.Login.Validate(); err != nil {
		return fmt.Errorf("RateLimit.Login: %w", err)
	}
	if err := c.RateLimit.Register.Validate(); err != nil {
		return fmt.Errorf("RateLimit.Register: %w", err)
	}
	if err := c.RateLimit.TwoFactor.Validate(); err != nil {
		return fmt.Errorf("RateLimit.TwoFactor: %w", err)
	}
	if c.PasswordReset.Enabled {
		if err := c.RateLimit.PasswordReset.Validate(); err != nil {
			return fmt.Errorf("RateLimit.PasswordReset: %w", err)
		}
		if c.PasswordReset.TokenTTL <= 0 {
			return errors.New("PasswordReset.TokenTTL must be > 0")
		}
	}

	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout.Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout.Duration must be > 0")
	}

	if err := c.TwoFactor.Validate(); err != nil {
		return fmt.Errorf("TwoFactor: %w", err)
	}

	if c.Captcha.Enabled {
		if c.Captcha.FailureThreshold < 0 {
			return errors.New("Captcha.FailureThreshold must be >= 0")
		}
		if c.Captcha.Lookback <= 0 {
			return errors.New("Captcha.Lookback must be > 0")
		}
		if c.Captcha.MinScore < 0 || c.Captcha.MinScore >= 1 {
			return errors.New("Captcha.MinScore must be in [0,1)")
		}
	}

	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification.TokenTTL must be > 0")
	}

	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when Audit.Async is enabled")
	}

	if strings.TrimSpace(c.Cookies.AccessName) == "" || strings.TrimSpace(c.Cookies.RefreshName) == "" {
		return errors.New("Cookies.AccessName and Cookies.RefreshName are required")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName {
		return errors.New("Cookies.AccessName and Cookies.RefreshName must differ")
	}

	return nil
}
