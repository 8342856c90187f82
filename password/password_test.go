package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestScorePerfectPassword(t *testing.T) {
	s := Score("Aa1!aaaa")
	assert.Equal(t, 100, s.Score)
	assert.Empty(t, s.Violations)
	assert.True(t, s.Acceptable())
}

func TestScoreSingleLowercaseLetter(t *testing.T) {
	s := Score("a")
	// only the lowercase check passes
	assert.Equal(t, 20, s.Score)
	assert.Len(t, s.Violations, 4)
	assert.False(t, s.Acceptable())
}

func TestScoreEmpty(t *testing.T) {
	s := Score("")
	assert.Equal(t, 0, s.Score)
	assert.Len(t, s.Violations, 5)
}

func TestCommonPatternPenaltyAppliedOnce(t *testing.T) {
	base := Score("Zx9!Zx9!kq")
	require.Equal(t, 100, base.Score)
	require.Empty(t, base.Violations)

	for _, pw := range []string{"Zx9!PassWord", "Zx9!admin", "Zx9!QWERTYq", "Zx9!letmeinA", "Zx!123456aB", "Zx9!adminqwerty"} {
		s := Score(pw)
		assert.Equal(t, 90, s.Score, pw)
		assert.Equal(t, []string{ViolationPattern}, s.Violations, pw)
		assert.False(t, s.Acceptable(), pw)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	s := Score("123456")
	// digit check +20, pattern -10
	assert.Equal(t, 10, s.Score)

	s = Score("admin")
	assert.Equal(t, 10, s.Score)
	assert.GreaterOrEqual(t, s.Score, 0)
}

func TestScoreCountsRunesForLength(t *testing.T) {
	assert.Equal(t, 100, Score("Aa1!éééé").Score)

	// ten bytes but only seven characters
	s := Score("Aa1!ééé")
	assert.Equal(t, 80, s.Score)
	assert.Equal(t, []string{ViolationLength}, s.Violations)
}

func TestAcceptableRequiresNoViolations(t *testing.T) {
	s := Strength{Score: 80, Violations: []string{ViolationSpecial}}
	assert.False(t, s.Acceptable())
	assert.True(t, Strength{Score: 80}.Acceptable())
}

func TestBcryptRoundTrip(t *testing.T) {
	h, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	encoded, err := h.Hash("Correct#Horse9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$2a$"))

	ok, err := h.Verify("Correct#Horse9", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Correct#Horse8", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptDefaultCost(t *testing.T) {
	h, err := NewBcrypt(0)
	require.NoError(t, err)
	assert.Equal(t, 12, h.Cost())

	_, err = NewBcrypt(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}

func TestBcryptNeedsRehash(t *testing.T) {
	low, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	encoded, err := low.Hash("Correct#Horse9")
	require.NoError(t, err)

	high, err := NewBcrypt(bcrypt.MinCost + 1)
	require.NoError(t, err)
	assert.True(t, high.NeedsRehash(encoded))
	assert.False(t, low.NeedsRehash(encoded))
	assert.True(t, low.NeedsRehash("$argon2id$v=19$m=65536,t=3,p=2$abc$def"))
}

func testArgon2Config() Argon2Config {
	return Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestArgon2RoundTrip(t *testing.T) {
	h, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)

	encoded, err := h.Hash("Correct#Horse9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := h.Verify("Correct#Horse9", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2RejectsWeakConfig(t *testing.T) {
	cfg := testArgon2Config()
	cfg.SaltLength = 8
	_, err := NewArgon2(cfg)
	assert.Error(t, err)
}

func TestArgon2MalformedHash(t *testing.T) {
	h, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)

	for _, bad := range []string{
		"",
		"$argon2id$v=19$m=8192,t=1,p=1$salt",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
	} {
		_, err := h.Verify("x", bad)
		assert.Error(t, err, bad)
	}
}

func TestArgon2NeedsRehash(t *testing.T) {
	old, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)
	encoded, err := old.Hash("Correct#Horse9")
	require.NoError(t, err)

	stronger := testArgon2Config()
	stronger.Time = 2
	h, err := NewArgon2(stronger)
	require.NoError(t, err)
	assert.True(t, h.NeedsRehash(encoded))
	assert.False(t, old.NeedsRehash(encoded))
}

func TestVerifyDispatchesOnPrefix(t *testing.T) {
	b, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	a, err := NewArgon2(testArgon2Config())
	require.NoError(t, err)

	argonHash, err := a.Hash("Correct#Horse9")
	require.NoError(t, err)
	bcryptHash, err := b.Hash("Correct#Horse9")
	require.NoError(t, err)

	ok, err := Verify(b, "Correct#Horse9", argonHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(a, "Correct#Horse9", bcryptHash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Verify(nil, "x", "plain")
	assert.ErrorIs(t, err, ErrUnknownHashFormat)
}

func TestNewHasherSelectsAlgorithm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	h, err := NewHasher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Bcrypt{}, h)

	cfg.Algorithm = AlgorithmArgon2id
	cfg.Argon2 = testArgon2Config()
	h, err = NewHasher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Argon2{}, h)

	cfg.Algorithm = "md5"
	_, err = NewHasher(cfg)
	assert.Error(t, err)
}
