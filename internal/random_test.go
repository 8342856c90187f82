package internal

import (
	"strings"
	"testing"
)

func TestNewOpaqueTokenShapeAndUniqueness(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken: %v", err)
		}
		if !ValidOpaqueToken(tok) {
			t.Fatalf("token %q has wrong shape", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("duplicate token generated")
		}
		seen[tok] = struct{}{}
	}
}

func TestHashTokenIsStableHexDigest(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashToken("abc"); got != want {
		t.Fatalf("HashToken(abc) = %s", got)
	}
	if !EqualDigest(HashToken("abc"), want) || EqualDigest(HashToken("abd"), want) {
		t.Fatal("EqualDigest mismatch")
	}
}

func TestValidOpaqueTokenRejectsMalformed(t *testing.T) {
	cases := []string{"", "abc", strings.Repeat("z", 64), strings.Repeat("a", 63)}
	for _, c := range cases {
		if ValidOpaqueToken(c) {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}
