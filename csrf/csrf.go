// Package csrf issues stateless anti-forgery tokens bound to a session.
//
// A token is the standard base64 encoding of
//
//	sessionID ":" issuedAtUnixMillis ":" hex(HMAC-SHA256(secret, sessionID ":" issuedAtUnixMillis))
//
// Nothing is stored server side. A token validates for MaxAge after issue and
// only for the session it was generated for.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is how long a token stays valid.
const DefaultMaxAge = time.Hour

var (
	// ErrInvalidSessionID is returned by Generate for an empty session ID or one containing ':'.
	ErrInvalidSessionID = errors.New("csrf: invalid session id")
	// ErrWeakSecret is returned by New for secrets shorter than 32 bytes.
	ErrWeakSecret = errors.New("csrf: secret must be at least 32 bytes")
)

// Guard generates and validates tokens.
type Guard struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// New returns a Guard. A zero maxAge means DefaultMaxAge and a nil clock
// means time.Now.
func New(secret []byte, maxAge time.Duration, now func() time.Time) (*Guard, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{secret: append([]byte(nil), secret...), maxAge: maxAge, now: now}, nil
}

func (g *Guard) sign(data string) []byte {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// Generate returns a token for sessionID.
func (g *Guard) Generate(sessionID string) (string, error) {
	if sessionID == "" || strings.Contains(sessionID, ":") {
		return "", ErrInvalidSessionID
	}
	data := sessionID + ":" + strconv.FormatInt(g.now().UnixMilli(), 10)
	return base64.StdEncoding.EncodeToString([]byte(data + ":" + hex.EncodeToString(g.sign(data)))), nil
}

// Validate reports whether token was generated by this Guard for sessionID
// within MaxAge. Malformed input yields false.
func (g *Guard) Validate(token, sessionID string) bool {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	fields := strings.Split(string(raw), ":")
	if len(fields) != 3 {
		return false
	}
	sid, ts, sig := fields[0], fields[1], fields[2]

	if sessionID == "" || sid != sessionID {
		return false
	}

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if g.now().UnixMilli()-issued > g.maxAge.Milliseconds() {
		return false
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, g.sign(sid+":"+ts))
}
