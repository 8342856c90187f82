package secureauth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/secureauth"
	"github.com/MrEthical07/secureauth/twofactor"
)

func currentCode(t *testing.T, h *harness, secret string) string {
	t.Helper()
	tf, err := twofactor.New(h.engine.Config().TwoFactor)
	if err != nil {
		t.Fatalf("twofactor.New: %v", err)
	}
	code, err := tf.Code(secret, h.clock.Now())
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	return code
}

// enableTwoFactor runs enrollment for id and returns the secret and backup
// codes. The clock is moved one TOTP period on so the next currentCode is
// not the code spent on enrollment.
func enableTwoFactor(t *testing.T, h *harness, id string) (string, []string) {
	t.Helper()
	enrollment, err := h.engine.BeginTwoFactor(h.ipCtx(), id)
	if err != nil {
		t.Fatalf("BeginTwoFactor: %v", err)
	}
	codes, err := h.engine.EnableTwoFactor(h.ipCtx(), id, enrollment.Secret, currentCode(t, h, enrollment.Secret))
	if err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	h.clock.Advance(time.Duration(h.engine.Config().TwoFactor.Period) * time.Second)
	return enrollment.Secret, codes
}

func totpLogin(h *harness, code string) error {
	_, err := h.engine.Login(h.ipCtx(), secureauth.LoginRequest{
		Email:        "ada@example.com",
		Password:     strongPassword,
		TOTPCode:     code,
		CaptchaToken: "captcha-ok",
	})
	return err
}

func TestBeginTwoFactorStoresNothing(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")

	enrollment, err := h.engine.BeginTwoFactor(h.ipCtx(), id)
	if err != nil {
		t.Fatalf("BeginTwoFactor: %v", err)
	}
	if enrollment.Secret == "" || !strings.HasPrefix(enrollment.URI, "otpauth://totp/") {
		t.Fatalf("unexpected enrollment: %+v", enrollment)
	}
	if !strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,") {
		t.Fatalf("QR code is not a PNG data URL: %.40s", enrollment.QRCode)
	}
	if u := h.user(t, id); u.Security.TwoFactorEnabled || u.Security.TwoFactorSecret != "" {
		t.Fatal("BeginTwoFactor must not persist anything")
	}

	if _, err := h.engine.BeginTwoFactor(h.ipCtx(), "missing"); !errors.Is(err, secureauth.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestEnableTwoFactorRejectsWrongCode(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")

	enrollment, err := h.engine.BeginTwoFactor(h.ipCtx(), id)
	if err != nil {
		t.Fatalf("BeginTwoFactor: %v", err)
	}
	if _, err := h.engine.EnableTwoFactor(h.ipCtx(), id, enrollment.Secret, "not-a-code"); !errors.Is(err, secureauth.ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid, got %v", err)
	}
	if h.user(t, id).Security.TwoFactorEnabled {
		t.Fatal("two-factor must stay disabled after a wrong code")
	}
}

func TestTOTPCodeAcceptedOnce(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	secret, _ := enableTwoFactor(t, h, id)

	code := currentCode(t, h, secret)
	if err := totpLogin(h, code); err != nil {
		t.Fatalf("first TOTP login: %v", err)
	}
	if err := totpLogin(h, code); !errors.Is(err, secureauth.ErrInvalidCredentials) {
		t.Fatalf("replayed TOTP code must fail, got %v", err)
	}
	if got := h.user(t, id).Security.FailedAttempts; got != 1 {
		t.Fatalf("replay should count as a failed attempt, got %d", got)
	}

	h.clock.Advance(time.Duration(h.engine.Config().TwoFactor.Period) * time.Second)
	if err := totpLogin(h, currentCode(t, h, secret)); err != nil {
		t.Fatalf("next period's code: %v", err)
	}
}

func TestEnrollmentCodeCannotLogIn(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")

	enrollment, err := h.engine.BeginTwoFactor(h.ipCtx(), id)
	if err != nil {
		t.Fatalf("BeginTwoFactor: %v", err)
	}
	code := currentCode(t, h, enrollment.Secret)
	if _, err := h.engine.EnableTwoFactor(h.ipCtx(), id, enrollment.Secret, code); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if err := totpLogin(h, code); !errors.Is(err, secureauth.ErrInvalidCredentials) {
		t.Fatalf("enrollment code must not be reusable, got %v", err)
	}
}

func TestRegenerateBackupCodesRejectsUsedCode(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	secret, _ := enableTwoFactor(t, h, id)

	code := currentCode(t, h, secret)
	if err := totpLogin(h, code); err != nil {
		t.Fatalf("TOTP login: %v", err)
	}
	if _, err := h.engine.RegenerateBackupCodes(h.ipCtx(), id, code); !errors.Is(err, secureauth.ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid for a spent code, got %v", err)
	}
}

func TestTwoFactorManagementRateLimitedPerUser(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	secret, _ := enableTwoFactor(t, h, id)
	limit := h.engine.Config().RateLimit.TwoFactor.MaxAttempts

	for i := 0; i < limit; i++ {
		if _, err := h.engine.RegenerateBackupCodes(h.ipCtx(), id, "000000"); !errors.Is(err, secureauth.ErrTwoFactorInvalid) {
			t.Fatalf("attempt %d: expected ErrTwoFactorInvalid, got %v", i+1, err)
		}
	}

	// Fresh client addresses do not reset a per-user limit.
	_, err := h.engine.RegenerateBackupCodes(h.ipCtx(), id, currentCode(t, h, secret))
	if !errors.Is(err, secureauth.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := h.engine.DisableTwoFactor(h.ipCtx(), id, strongPassword); !errors.Is(err, secureauth.ErrRateLimited) {
		t.Fatalf("disable shares the limit, got %v", err)
	}
	if got := len(h.events(secureauth.EventRateLimitExceeded)); got != 2 {
		t.Fatalf("expected 2 rate limit events, got %d", got)
	}

	h.clock.Advance(h.engine.Config().RateLimit.TwoFactor.Block + time.Second)
	if err := h.engine.DisableTwoFactor(h.ipCtx(), id, strongPassword); err != nil {
		t.Fatalf("DisableTwoFactor after block: %v", err)
	}
}

func TestDisableTwoFactorWrongPasswordCountsTowardLock(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	enableTwoFactor(t, h, id)

	for i := 0; i < 3; i++ {
		if err := h.engine.DisableTwoFactor(h.ipCtx(), id, "Wr0ng!Pass"); !errors.Is(err, secureauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	if got := h.user(t, id).Security.FailedAttempts; got != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", got)
	}
	if got := len(h.events(secureauth.EventLoginFailed)); got != 3 {
		t.Fatalf("expected 3 LOGIN_FAILED events, got %d", got)
	}
	if !h.user(t, id).Security.TwoFactorEnabled {
		t.Fatal("two-factor must stay enabled")
	}
}

func TestTwoFactorLoginFlow(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	secret, codes := enableTwoFactor(t, h, id)

	if len(codes) != h.engine.Config().TwoFactor.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", h.engine.Config().TwoFactor.BackupCodeCount, len(codes))
	}
	u := h.user(t, id)
	for _, c := range codes {
		for _, stored := range u.Security.BackupCodeHashes {
			if stored == c {
				t.Fatal("backup codes must be stored hashed")
			}
		}
	}
	if len(h.events(secureauth.EventTwoFactorEnabled)) != 1 {
		t.Fatal("expected TWO_FACTOR_ENABLED event")
	}

	_, err := h.login(h.ipCtx(), "ada@example.com", strongPassword)
	if !errors.Is(err, secureauth.ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}
	if h.user(t, id).Security.FailedAttempts != 0 {
		t.Fatal("a missing second factor is not a failed attempt")
	}

	res, err := h.engine.Login(h.ipCtx(), secureauth.LoginRequest{
		Email:        "ada@example.com",
		Password:     strongPassword,
		TOTPCode:     currentCode(t, h, secret),
		CaptchaToken: "captcha-ok",
	})
	if err != nil {
		t.Fatalf("TOTP login: %v", err)
	}
	if res.Method != secureauth.MethodTOTP || !res.TwoFactorEnabled {
		t.Fatalf("unexpected result: %+v", res)
	}

	backup := secureauth.LoginRequest{
		Email:        "ada@example.com",
		Password:     strongPassword,
		BackupCode:   codes[0],
		CaptchaToken: "captcha-ok",
	}
	res, err = h.engine.Login(h.ipCtx(), backup)
	if err != nil {
		t.Fatalf("backup code login: %v", err)
	}
	if res.Method != secureauth.MethodBackupCode {
		t.Fatalf("expected backup_code method, got %q", res.Method)
	}
	if got := len(h.user(t, id).Security.BackupCodeHashes); got != len(codes)-1 {
		t.Fatalf("expected %d remaining codes, got %d", len(codes)-1, got)
	}

	if _, err := h.engine.Login(h.ipCtx(), backup); !errors.Is(err, secureauth.ErrInvalidCredentials) {
		t.Fatalf("reused backup code must fail, got %v", err)
	}
	if h.user(t, id).Security.FailedAttempts != 1 {
		t.Fatal("a wrong second factor counts toward the lock")
	}
}

func TestWrongTOTPCountsTowardLock(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	enableTwoFactor(t, h, id)

	_, err := h.engine.Login(h.ipCtx(), secureauth.LoginRequest{
		Email:        "ada@example.com",
		Password:     strongPassword,
		TOTPCode:     "12345x",
		CaptchaToken: "captcha-ok",
	})
	if !errors.Is(err, secureauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if h.user(t, id).Security.FailedAttempts != 1 {
		t.Fatal("expected one failed attempt")
	}
}

func TestRegenerateBackupCodesInvalidatesOldSet(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	secret, old := enableTwoFactor(t, h, id)

	fresh, err := h.engine.RegenerateBackupCodes(h.ipCtx(), id, currentCode(t, h, secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(fresh) != len(old) {
		t.Fatalf("expected %d codes, got %d", len(old), len(fresh))
	}

	_, err = h.engine.Login(h.ipCtx(), secureauth.LoginRequest{
		Email: "ada@example.com", Password: strongPassword, BackupCode: old[0], CaptchaToken: "captcha-ok",
	})
	if !errors.Is(err, secureauth.ErrInvalidCredentials) {
		t.Fatalf("old backup code must be rejected, got %v", err)
	}
	if _, err := h.engine.Login(h.ipCtx(), secureauth.LoginRequest{
		Email: "ada@example.com", Password: strongPassword, BackupCode: fresh[0], CaptchaToken: "captcha-ok",
	}); err != nil {
		t.Fatalf("fresh backup code: %v", err)
	}

	regenerated := 0
	for _, e := range h.events(secureauth.EventTwoFactorEnabled) {
		if d, ok := e.Detail.(secureauth.TwoFactorEnabledDetail); ok && d.Regenerated {
			regenerated++
		}
	}
	if regenerated != 1 {
		t.Fatalf("expected one regeneration event, got %d", regenerated)
	}
}

func TestDisableTwoFactor(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	enableTwoFactor(t, h, id)

	if err := h.engine.DisableTwoFactor(h.ipCtx(), id, "Wr0ng!Pass"); !errors.Is(err, secureauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := h.user(t, id).Security.FailedAttempts; got != 1 {
		t.Fatalf("wrong password should count as a failed attempt, got %d", got)
	}
	if err := h.engine.DisableTwoFactor(h.ipCtx(), id, strongPassword); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}

	u := h.user(t, id)
	if u.Security.TwoFactorEnabled || u.Security.TwoFactorSecret != "" || len(u.Security.BackupCodeHashes) != 0 || u.Security.LastTOTPCounter != 0 {
		t.Fatalf("two-factor state not cleared: %+v", u.Security)
	}
	if err := h.engine.DisableTwoFactor(h.ipCtx(), id, strongPassword); !errors.Is(err, secureauth.ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
	if len(h.events(secureauth.EventTwoFactorDisabled)) != 1 {
		t.Fatal("expected TWO_FACTOR_DISABLED event")
	}

	if _, err := h.login(h.ipCtx(), "ada@example.com", strongPassword); err != nil {
		t.Fatalf("password-only login after disable: %v", err)
	}
}
