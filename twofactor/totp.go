package twofactor

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// secretSize is 160 bits, the RFC 4226 recommended shared secret length.
const secretSize = 20

var (
	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("invalid two-factor configuration")
	// ErrEmptyLabel is returned by Enroll when no account label is given.
	ErrEmptyLabel = errors.New("account label required")
)

// Config tunes TOTP and backup codes.
type Config struct {
	Issuer           string `yaml:"issuer"`
	Period           uint   `yaml:"period"`
	Skew             uint   `yaml:"skew"`
	Digits           int    `yaml:"digits"`
	BackupCodeCount  int    `yaml:"backup_code_count"`
	BackupCodeLength int    `yaml:"backup_code_length"`
	QRCodeSize       int    `yaml:"qr_code_size"`
}

// DefaultConfig returns 30 second steps, a skew of 2, six digits and eight
// backup codes of ten characters.
func DefaultConfig() Config {
	return Config{
		Issuer:           "SecureAuth",
		Period:           30,
		Skew:             2,
		Digits:           6,
		BackupCodeCount:  8,
		BackupCodeLength: 10,
		QRCodeSize:       256,
	}
}

// Validate checks cfg.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer required", ErrInvalidConfig)
	case c.Period < 15:
		return fmt.Errorf("%w: period must be >= 15 seconds", ErrInvalidConfig)
	case c.Digits != 6 && c.Digits != 8:
		return fmt.Errorf("%w: digits must be 6 or 8", ErrInvalidConfig)
	case c.BackupCodeCount <= 0:
		return fmt.Errorf("%w: backup code count must be > 0", ErrInvalidConfig)
	case c.BackupCodeLength < 8:
		return fmt.Errorf("%w: backup code length must be >= 8", ErrInvalidConfig)
	}
	return nil
}

// Enrollment is a freshly generated, not yet committed, TOTP secret.
type Enrollment struct {
	Secret string
	URI    string
	// QRCode is a data URL of a PNG encoding URI, empty if QR rendering is disabled.
	QRCode string
}

// Engine performs TOTP and backup-code operations. It holds no per-user state.
type Engine struct {
	cfg Config
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's settings.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) digits() otp.Digits {
	if e.cfg.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func (e *Engine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.cfg.Period,
		Skew:      e.cfg.Skew,
		Digits:    e.digits(),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Enroll generates a new shared secret and its otpauth:// provisioning URI.
// Nothing is persisted.
func (e *Engine) Enroll(accountLabel string) (Enrollment, error) {
	accountLabel = strings.TrimSpace(accountLabel)
	if accountLabel == "" {
		return Enrollment{}, ErrEmptyLabel
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.Issuer,
		AccountName: accountLabel,
		Period:      e.cfg.Period,
		SecretSize:  secretSize,
		Digits:      e.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}

	out := Enrollment{Secret: key.Secret(), URI: key.URL()}
	if e.cfg.QRCodeSize > 0 {
		qr, err := qrDataURL(key, e.cfg.QRCodeSize)
		if err != nil {
			return Enrollment{}, err
		}
		out.QRCode = qr
	}
	return out, nil
}

func qrDataURL(key *otp.Key, size int) (string, error) {
	img, err := key.Image(size, size)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Verify reports whether code is valid for secret at the given time. Any
// malformed input yields false.
func (e *Engine) Verify(secret, code string, at time.Time) bool {
	_, ok := e.Match(secret, code, at)
	return ok
}

// Match is Verify that also returns the time step the code belongs to, so
// callers can refuse a step that was already used. Steps are tried from
// oldest to newest within the configured skew.
func (e *Engine) Match(secret, code string, at time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != e.cfg.Digits {
		return 0, false
	}
	opts := e.validateOpts()
	period := int64(e.cfg.Period)
	counter := at.UTC().Unix() / period
	skew := int64(e.cfg.Skew)
	for step := counter - skew; step <= counter+skew; step++ {
		if step < 0 {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// Code returns the code for secret at the given time.
func (e *Engine) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), e.validateOpts())
}
