package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HMAC secret, in bytes.
const MinSecretLength = 32

var (
	// ErrExpiredOrInvalid is returned for every token that does not verify.
	ErrExpiredOrInvalid = errors.New("token expired or invalid")
	// ErrRevocationUnavailable wraps revocation backend failures.
	ErrRevocationUnavailable = errors.New("token revocation backend unavailable")
)

// Kind distinguishes access from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Config holds secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RememberMeTTL time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// DefaultLifetimes fills in 1 day for access, 30 days with remember-me, and
// 30 days for refresh tokens where cfg leaves them zero.
func DefaultLifetimes(cfg Config) Config {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.RememberMeTTL == 0 {
		cfg.RememberMeTTL = 30 * 24 * time.Hour
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return cfg
}

// Claims is the payload of both token kinds.
type Claims struct {
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Kind       Kind   `json:"typ"`
	RememberMe bool   `json:"rem,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what an access token asserts about its subject.
type Identity struct {
	SubjectID string
	Email     string
	Role      string
}

// Identity extracts the asserted identity.
func (c *Claims) Identity() Identity {
	return Identity{SubjectID: c.Subject, Email: c.Email, Role: c.Role}
}

// Issued is a signed token and the metadata callers need for cookies and revocation.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithRevoker enables revocation checks on verification.
func WithRevoker(r Revoker) Option {
	return func(i *Issuer) { i.revoker = r }
}

// Issuer signs and verifies tokens. It is safe for concurrent use.
type Issuer struct {
	cfg     Config
	now     func() time.Time
	revoker Revoker
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	cfg = DefaultLifetimes(cfg)
	if len(cfg.AccessSecret) < MinSecretLength || len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", MinSecretLength)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL < 0 || cfg.RememberMeTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token lifetimes must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	i := &Issuer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Revocable reports whether a Revoker is configured.
func (i *Issuer) Revocable() bool { return i.revoker != nil }

// IssueAccess signs an access token for id. It expires after RememberMeTTL
// when rememberMe is set and after AccessTTL otherwise.
func (i *Issuer) IssueAccess(id Identity, rememberMe bool) (Issued, error) {
	if id.SubjectID == "" {
		return Issued{}, errors.New("subject required")
	}
	ttl := i.cfg.AccessTTL
	if rememberMe {
		ttl = i.cfg.RememberMeTTL
	}
	return i.sign(Claims{
		Email:      id.Email,
		Role:       id.Role,
		Kind:       KindAccess,
		RememberMe: rememberMe,
	}, id.SubjectID, ttl, i.cfg.AccessSecret)
}

// IssueRefresh signs a refresh token that names only subjectID.
func (i *Issuer) IssueRefresh(subjectID string) (Issued, error) {
	if subjectID == "" {
		return Issued{}, errors.New("subject required")
	}
	return i.sign(Claims{Kind: KindRefresh}, subjectID, i.cfg.RefreshTTL, i.cfg.RefreshSecret)
}

func (i *Issuer) sign(claims Claims, subject string, ttl time.Duration, secret []byte) (Issued, error) {
	now := i.now()
	expires := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    i.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// VerifyAccess returns the claims of a valid access token.
func (i *Issuer) VerifyAccess(ctx context.Context, tokenStr string) (*Claims, error) {
	return i.verify(ctx, tokenStr, KindAccess, i.cfg.AccessSecret)
}

// VerifyRefresh returns the claims of a valid refresh token.
func (i *Issuer) VerifyRefresh(ctx context.Context, tokenStr string) (*Claims, error) {
	return i.verify(ctx, tokenStr, KindRefresh, i.cfg.RefreshSecret)
}

func (i *Issuer) verify(ctx context.Context, tokenStr string, kind Kind, secret []byte) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrExpiredOrInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	}
	if i.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.cfg.Leeway))
	}
	if i.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.cfg.Issuer))
	}
	if i.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(i.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrExpiredOrInvalid
	}
	if claims.Kind != kind || claims.Subject == "" || claims.ID == "" {
		return nil, ErrExpiredOrInvalid
	}

	if i.revoker != nil {
		revoked, err := i.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
		if revoked {
			return nil, ErrExpiredOrInvalid
		}
	}
	return claims, nil
}

// Revoke invalidates the token described by claims until its natural expiry.
// Without a Revoker it is a no-op.
func (i *Issuer) Revoke(ctx context.Context, claims *Claims) error {
	if i.revoker == nil || claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	if !claims.ExpiresAt.Time.After(i.now()) {
		return nil
	}
	if err := i.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}
