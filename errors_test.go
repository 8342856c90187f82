package secureauth

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindInternal},
		{"validation", invalid("email", "email is required"), KindValidation},
		{"unknown token", &ValidationError{Field: "token", Message: "invalid", Err: ErrNotFound}, KindValidation},
		{"auth", &AuthError{Reason: ReasonInvalidCredentials}, KindAuth},
		{"two-factor required", ErrTwoFactorRequired, KindAuth},
		{"rate limited", &RateLimitError{ResetAt: time.Now()}, KindRateLimited},
		{"collaborator", storeFailure("create user", errors.New("dial tcp")), KindCollaborator},
		{"wrapped collaborator", fmt.Errorf("register: %w", storeFailure("create user", errors.New("x"))), KindCollaborator},
		{"bare not found", ErrUserNotFound, KindNotFound},
		{"reset disabled", ErrPasswordResetDisabled, KindNotFound},
		{"two-factor already enabled", ErrTwoFactorAlreadyEnabled, KindConflict},
		{"two-factor not enabled", fmt.Errorf("disable: %w", ErrTwoFactorNotEnabled), KindConflict},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublicMessageForStateErrors(t *testing.T) {
	cases := map[error]string{
		ErrTwoFactorAlreadyEnabled: "two-factor authentication already enabled",
		ErrTwoFactorNotEnabled:     "two-factor authentication not enabled",
		ErrPasswordResetDisabled:   "password reset is not available",
	}
	for err, want := range cases {
		if got := PublicMessage(err); got != want {
			t.Fatalf("PublicMessage(%v) = %q, want %q", err, got, want)
		}
	}
	if KindConflict.String() != "conflict" {
		t.Fatalf("unexpected kind name %q", KindConflict.String())
	}
}

func TestAuthErrorMatchesSentinel(t *testing.T) {
	cases := map[AuthReason]error{
		ReasonInvalidCredentials:    ErrInvalidCredentials,
		ReasonAccountLocked:         ErrAccountLocked,
		ReasonEmailUnverified:       ErrEmailUnverified,
		ReasonTokenExpiredOrInvalid: ErrTokenExpiredOrInvalid,
	}
	for reason, sentinel := range cases {
		err := error(&AuthError{Reason: reason})
		if !errors.Is(err, sentinel) {
			t.Fatalf("reason %d does not match %v", reason, sentinel)
		}
	}
}

func TestCollaboratorErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := storeFailure("apply", cause)

	if !errors.Is(err, ErrCollaboratorFailure) || !errors.Is(err, cause) {
		t.Fatalf("collaborator error must match both the sentinel and the cause: %v", err)
	}
	if msg := PublicMessage(err); msg == err.Error() {
		t.Fatal("public message must not expose collaborator detail")
	}
}

func TestPublicMessageDoesNotLeakAccountExistence(t *testing.T) {
	unknown := &AuthError{Reason: ReasonInvalidCredentials}
	wrong := fmt.Errorf("login: %w", &AuthError{Reason: ReasonInvalidCredentials})

	if PublicMessage(unknown) != PublicMessage(wrong) {
		t.Fatal("messages differ for the same reason")
	}
	if PublicMessage(&RateLimitError{}) != "too many attempts, please try again later" {
		t.Fatalf("unexpected rate limit message %q", PublicMessage(&RateLimitError{}))
	}
	if PublicMessage(nil) != "" {
		t.Fatal("nil error must have no message")
	}
}
