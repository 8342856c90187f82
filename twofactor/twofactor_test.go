package twofactor

import (
	"encoding/base32"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.QRCodeSize = 64
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestEnrollSecretAndURI(t *testing.T) {
	e := newTestEngine(t)

	enr, err := e.Enroll("alice@example.com")
	require.NoError(t, err)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(enr.Secret)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw)*8, 160)

	u, err := url.Parse(enr.URI)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Contains(t, u.Path, "alice@example.com")
	assert.Equal(t, enr.Secret, u.Query().Get("secret"))
	assert.Equal(t, "SecureAuth", u.Query().Get("issuer"))

	assert.True(t, strings.HasPrefix(enr.QRCode, "data:image/png;base64,"))
}

func TestEnrollGeneratesDistinctSecrets(t *testing.T) {
	e := newTestEngine(t)
	a, err := e.Enroll("a")
	require.NoError(t, err)
	b, err := e.Enroll("a")
	require.NoError(t, err)
	assert.NotEqual(t, a.Secret, b.Secret)
}

func TestEnrollRequiresLabel(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Enroll("  ")
	assert.ErrorIs(t, err, ErrEmptyLabel)
}

func TestVerifyToleranceWindow(t *testing.T) {
	e := newTestEngine(t)
	enr, err := e.Enroll("bob")
	require.NoError(t, err)

	// aligned to the start of a 30 second step
	step := time.Unix(1700000010, 0)
	code, err := e.Code(enr.Secret, step)
	require.NoError(t, err)

	for _, offset := range []time.Duration{0, 29 * time.Second, 59 * time.Second, 60 * time.Second, -30 * time.Second, -60 * time.Second} {
		assert.True(t, e.Verify(enr.Secret, code, step.Add(offset)), "offset %s", offset)
	}
	for _, offset := range []time.Duration{90 * time.Second, 120 * time.Second, -61 * time.Second, -5 * time.Minute} {
		assert.False(t, e.Verify(enr.Secret, code, step.Add(offset)), "offset %s", offset)
	}
}

func TestMatchReturnsCodeStep(t *testing.T) {
	e := newTestEngine(t)
	enr, err := e.Enroll("dave")
	require.NoError(t, err)

	step := time.Unix(1700000010, 0)
	code, err := e.Code(enr.Secret, step)
	require.NoError(t, err)
	want := step.Unix() / 30

	for _, offset := range []time.Duration{0, 30 * time.Second, 60 * time.Second, -45 * time.Second} {
		got, ok := e.Match(enr.Secret, code, step.Add(offset))
		require.True(t, ok, "offset %s", offset)
		assert.Equal(t, want, got, "offset %s", offset)
	}

	next, err := e.Code(enr.Secret, step.Add(30*time.Second))
	require.NoError(t, err)
	got, ok := e.Match(enr.Secret, next, step.Add(30*time.Second))
	require.True(t, ok)
	assert.Equal(t, want+1, got)

	_, ok = e.Match(enr.Secret, " "+code+" ", step)
	assert.True(t, ok, "surrounding whitespace is ignored")
	_, ok = e.Match(enr.Secret, code+"0", step)
	assert.False(t, ok)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	e := newTestEngine(t)
	enr, err := e.Enroll("carol")
	require.NoError(t, err)
	now := time.Now()

	assert.False(t, e.Verify(enr.Secret, "", now))
	assert.False(t, e.Verify(enr.Secret, "12345", now))
	assert.False(t, e.Verify(enr.Secret, "abcdef", now))
	assert.False(t, e.Verify("", "123456", now))
	assert.False(t, e.Verify("!!notbase32!!", "123456", now))
}

func TestActivateProducesEightUniqueCodes(t *testing.T) {
	e := newTestEngine(t)
	act, err := e.Activate("user-1", "SECRET")
	require.NoError(t, err)

	assert.Equal(t, "SECRET", act.Secret)
	require.Len(t, act.Codes, 8)
	require.Len(t, act.Hashes, 8)

	seen := map[string]bool{}
	for i, code := range act.Codes {
		canonical := CanonicalizeBackupCode(code)
		assert.Len(t, canonical, 10)
		assert.Equal(t, strings.ToUpper(canonical), canonical)
		for _, r := range canonical {
			assert.Contains(t, BackupCodeAlphabet, string(r))
		}
		assert.True(t, e.ValidBackupCodeShape(code))
		assert.Equal(t, HashBackupCode("user-1", code), act.Hashes[i])
		assert.False(t, seen[canonical])
		seen[canonical] = true
	}
}

func TestHashBackupCodeCanonicalizes(t *testing.T) {
	h := HashBackupCode("u", "ABCDE-FGHJK")
	assert.Equal(t, h, HashBackupCode("u", "abcde fghjk"))
	assert.Equal(t, h, HashBackupCode("u", " ABCDEFGHJK "))
	assert.NotEqual(t, h, HashBackupCode("v", "ABCDEFGHJK"))
	assert.Len(t, h, 64)
}

func TestFormatBackupCode(t *testing.T) {
	assert.Equal(t, "ABCDE-FGHJK", FormatBackupCode("ABCDEFGHJK"))
	assert.Equal(t, "ABC", FormatBackupCode("ABC"))
}

func TestValidBackupCodeShape(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.ValidBackupCodeShape("ABCDE"))
	assert.False(t, e.ValidBackupCodeShape("ABCDE-FGHJ0"))
	assert.True(t, e.ValidBackupCodeShape("abcde-fghjk"))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Digits = 7
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Issuer = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.BackupCodeLength = 4
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
