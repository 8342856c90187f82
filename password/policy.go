package password

import (
	"strings"
	"unicode/utf8"
)

const (
	// MinLength is the shortest password that earns the length points.
	MinLength = 8
	// SpecialCharacters lists the characters that satisfy the special check.
	SpecialCharacters = `!@#$%^&*(),.?":{}|<>`
	// AcceptableScore is the lowest score Acceptable allows.
	AcceptableScore = 80

	checkPoints    = 20
	patternPenalty = 10
)

var commonPatterns = []string{"123456", "password", "qwerty", "admin", "letmein"}

// Violation messages. They are stable so callers can match on them.
const (
	ViolationLength    = "password must be at least 8 characters long"
	ViolationUppercase = "password must contain at least one uppercase letter"
	ViolationLowercase = "password must contain at least one lowercase letter"
	ViolationDigit     = "password must contain at least one number"
	ViolationSpecial   = "password must contain at least one special character"
	ViolationPattern   = "password contains common patterns"
)

// Strength is the result of scoring one password.
type Strength struct {
	Score      int
	Violations []string
}

// Acceptable reports whether the password may be stored.
func (s Strength) Acceptable() bool {
	return s.Score >= AcceptableScore && len(s.Violations) == 0
}

// Score rates pw. It is deterministic and has no side effects.
func Score(pw string) Strength {
	var (
		score      int
		violations []string
	)

	check := func(ok bool, violation string) {
		if ok {
			score += checkPoints
			return
		}
		violations = append(violations, violation)
	}

	check(utf8.RuneCountInString(pw) >= MinLength, ViolationLength)
	check(containsRange(pw, 'A', 'Z'), ViolationUppercase)
	check(containsRange(pw, 'a', 'z'), ViolationLowercase)
	check(containsRange(pw, '0', '9'), ViolationDigit)
	check(strings.ContainsAny(pw, SpecialCharacters), ViolationSpecial)

	if hasCommonPattern(pw) {
		score -= patternPenalty
		violations = append(violations, ViolationPattern)
	}

	return Strength{Score: clamp(score, 0, 100), Violations: violations}
}

func containsRange(s string, lo, hi rune) bool {
	for _, r := range s {
		if r >= lo && r <= hi {
			return true
		}
	}
	return false
}

func hasCommonPattern(pw string) bool {
	lower := strings.ToLower(pw)
	for _, p := range commonPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
