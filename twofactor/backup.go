package twofactor

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// BackupCodeAlphabet is uppercase alphanumeric without the look-alikes 0, O, 1 and I.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var alphabetSize = big.NewInt(int64(len(BackupCodeAlphabet)))

// Activation is what a caller persists when turning two-factor on or
// regenerating backup codes.
type Activation struct {
	Secret string
	// Codes are shown to the user once, in display form.
	Codes []string
	// Hashes are what the store keeps, in the same order as Codes.
	Hashes []string
}

// Activate produces a fresh backup-code set for userID bound to secret.
func (e *Engine) Activate(userID, secret string) (Activation, error) {
	codes, hashes, err := e.NewBackupCodes(userID)
	if err != nil {
		return Activation{}, err
	}
	return Activation{Secret: secret, Codes: codes, Hashes: hashes}, nil
}

// NewBackupCodes returns BackupCodeCount display codes and their digests.
func (e *Engine) NewBackupCodes(userID string) ([]string, []string, error) {
	codes := make([]string, 0, e.cfg.BackupCodeCount)
	hashes := make([]string, 0, e.cfg.BackupCodeCount)
	for i := 0; i < e.cfg.BackupCodeCount; i++ {
		raw, err := randomCode(e.cfg.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, FormatBackupCode(raw))
		hashes = append(hashes, HashBackupCode(userID, raw))
	}
	return codes, hashes, nil
}

func randomCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode splits a code in two halves joined by a dash.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode uppercases code and strips dashes and whitespace,
// so user input matches however it was typed.
func CanonicalizeBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, strings.TrimSpace(code))
}

// HashBackupCode returns the hex SHA-256 of userID, a zero byte and the
// canonical code.
func HashBackupCode(userID, code string) string {
	canonical := CanonicalizeBackupCode(code)
	data := make([]byte, 0, len(userID)+1+len(canonical))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonical...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidBackupCodeShape reports whether code could be a backup code of the
// configured length, without touching any store.
func (e *Engine) ValidBackupCodeShape(code string) bool {
	c := CanonicalizeBackupCode(code)
	if len(c) != e.cfg.BackupCodeLength {
		return false
	}
	for i := 0; i < len(c); i++ {
		if strings.IndexByte(BackupCodeAlphabet, c[i]) < 0 {
			return false
		}
	}
	return true
}
