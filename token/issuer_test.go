package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() Config {
	return Config{
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		Issuer:        "secureauth-test",
	}
}

func newTestIssuer(t *testing.T, opts ...Option) (*Issuer, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	i, err := NewIssuer(testConfig(), append([]Option{WithClock(c.Now)}, opts...)...)
	require.NoError(t, err)
	return i, c
}

var alice = Identity{SubjectID: "u-1", Email: "alice@example.com", Role: "user"}

func TestAccessRoundTrip(t *testing.T) {
	i, _ := newTestIssuer(t)
	ctx := context.Background()

	issued, err := i.IssueAccess(alice, false)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	claims, err := i.VerifyAccess(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, alice, claims.Identity())
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestAccessExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("one day", func(t *testing.T) {
		i, c := newTestIssuer(t)
		issued, err := i.IssueAccess(alice, false)
		require.NoError(t, err)
		assert.Equal(t, c.Now().Add(24*time.Hour), issued.ExpiresAt)

		c.Advance(24*time.Hour - time.Second)
		_, err = i.VerifyAccess(ctx, issued.Token)
		require.NoError(t, err)

		c.Advance(time.Second)
		_, err = i.VerifyAccess(ctx, issued.Token)
		assert.ErrorIs(t, err, ErrExpiredOrInvalid)
	})

	t.Run("remember me", func(t *testing.T) {
		i, c := newTestIssuer(t)
		issued, err := i.IssueAccess(alice, true)
		require.NoError(t, err)
		assert.Equal(t, c.Now().Add(30*24*time.Hour), issued.ExpiresAt)

		c.Advance(29 * 24 * time.Hour)
		claims, err := i.VerifyAccess(ctx, issued.Token)
		require.NoError(t, err)
		assert.True(t, claims.RememberMe)

		c.Advance(24 * time.Hour)
		_, err = i.VerifyAccess(ctx, issued.Token)
		assert.ErrorIs(t, err, ErrExpiredOrInvalid)
	})
}

func TestRefreshCarriesOnlySubject(t *testing.T) {
	i, c := newTestIssuer(t)
	ctx := context.Background()

	issued, err := i.IssueRefresh("u-1")
	require.NoError(t, err)
	assert.Equal(t, c.Now().Add(30*24*time.Hour), issued.ExpiresAt)

	claims, err := i.VerifyRefresh(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Empty(t, claims.Email)
	assert.Empty(t, claims.Role)

	// raw payload must not mention email or role at all
	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "email")
	assert.NotContains(t, string(payload), "role")
}

func TestKindsAreNotInterchangeable(t *testing.T) {
	i, _ := newTestIssuer(t)
	ctx := context.Background()

	access, err := i.IssueAccess(alice, false)
	require.NoError(t, err)
	refresh, err := i.IssueRefresh("u-1")
	require.NoError(t, err)

	_, err = i.VerifyRefresh(ctx, access.Token)
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
	_, err = i.VerifyAccess(ctx, refresh.Token)
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestTamperedTokenRejected(t *testing.T) {
	i, _ := newTestIssuer(t)
	issued, err := i.IssueAccess(alice, false)
	require.NoError(t, err)

	tampered := []byte(issued.Token)
	last := len(tampered) - 2
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	_, err = i.VerifyAccess(context.Background(), string(tampered))
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
	_, err = i.VerifyAccess(context.Background(), "")
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
	_, err = i.VerifyAccess(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestForeignSecretRejected(t *testing.T) {
	i, _ := newTestIssuer(t)
	other := testConfig()
	other.AccessSecret = []byte(strings.Repeat("z", 32))
	o, err := NewIssuer(other)
	require.NoError(t, err)

	issued, err := o.IssueAccess(alice, false)
	require.NoError(t, err)
	_, err = i.VerifyAccess(context.Background(), issued.Token)
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestAlgorithmNoneRejected(t *testing.T) {
	i, c := newTestIssuer(t)
	claims := Claims{Kind: KindAccess, RegisteredClaims: jwt.RegisteredClaims{
		ID:        "x",
		Subject:   "u-1",
		Issuer:    "secureauth-test",
		IssuedAt:  jwt.NewNumericDate(c.Now()),
		ExpiresAt: jwt.NewNumericDate(c.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = i.VerifyAccess(context.Background(), unsigned)
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestNewIssuerValidation(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err := NewIssuer(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.AccessSecret = []byte("short")
	_, err = NewIssuer(cfg)
	assert.Error(t, err)
}

func TestRevocationWithMemoryRevoker(t *testing.T) {
	c := &clock{t: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	i, err := NewIssuer(testConfig(), WithClock(c.Now), WithRevoker(NewMemoryRevoker(c.Now)))
	require.NoError(t, err)
	ctx := context.Background()

	issued, err := i.IssueAccess(alice, false)
	require.NoError(t, err)
	claims, err := i.VerifyAccess(ctx, issued.Token)
	require.NoError(t, err)

	require.NoError(t, i.Revoke(ctx, claims))
	_, err = i.VerifyAccess(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)
}

func TestRevocationWithRedisRevoker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	i, err := NewIssuer(testConfig(), WithRevoker(NewRedisRevoker(rdb, "")))
	require.NoError(t, err)
	ctx := context.Background()

	issued, err := i.IssueRefresh("u-1")
	require.NoError(t, err)
	claims, err := i.VerifyRefresh(ctx, issued.Token)
	require.NoError(t, err)

	require.NoError(t, i.Revoke(ctx, claims))
	assert.True(t, mr.Exists("revoked:"+claims.ID))
	assert.Greater(t, mr.TTL("revoked:"+claims.ID), 29*24*time.Hour)

	_, err = i.VerifyRefresh(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrExpiredOrInvalid)

	mr.Close()
	other, err := i.IssueRefresh("u-2")
	require.NoError(t, err)
	_, err = i.VerifyRefresh(ctx, other.Token)
	assert.ErrorIs(t, err, ErrRevocationUnavailable)
}

func TestRevokeWithoutRevokerIsNoop(t *testing.T) {
	i, _ := newTestIssuer(t)
	assert.False(t, i.Revocable())
	assert.NoError(t, i.Revoke(context.Background(), &Claims{}))
}
