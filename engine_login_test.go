package secureauth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/secureauth"
	"github.com/MrEthical07/secureauth/store/memstore"
)

func TestLoginSuccessIssuesSession(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")

	res, err := h.login(h.ipCtx(), "ADA@example.com", strongPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.UserID != id || res.Email != "ada@example.com" || res.Method != secureauth.MethodPassword {
		t.Fatalf("unexpected result: %+v", res)
	}
	if want := h.clock.Now().Add(24 * time.Hour); !res.AccessExpiresAt.Equal(want) {
		t.Fatalf("AccessExpiresAt = %v, want %v", res.AccessExpiresAt, want)
	}

	session, err := h.engine.ValidateAccess(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if session.UserID != id || session.Role != secureauth.RoleUser || session.SessionID != res.SessionID {
		t.Fatalf("unexpected session: %+v", session)
	}

	if _, err := h.engine.ValidateAccess(context.Background(), res.RefreshToken); err == nil {
		t.Fatal("refresh token must not validate as an access token")
	}

	u := h.user(t, id)
	if u.LastLoginAt.IsZero() || u.LastLoginIP == "" {
		t.Fatalf("last login not stamped: %+v", u)
	}
	if len(h.events(secureauth.EventLoginSuccess)) != 1 {
		t.Fatal("expected LOGIN_SUCCESS event")
	}
}

func TestLoginRememberMeExtendsAccessLifetime(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t, "ada@example.com")

	res, err := h.engine.Login(h.ipCtx(), secureauth.LoginRequest{
		Email:      "ada@example.com",
		Password:   strongPassword,
		RememberMe: true,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if want := h.clock.Now().Add(30 * 24 * time.Hour); !res.AccessExpiresAt.Equal(want) {
		t.Fatalf("AccessExpiresAt = %v, want %v", res.AccessExpiresAt, want)
	}
	session, err := h.engine.ValidateAccess(context.Background(), res.AccessToken)
	if err != nil || !session.RememberMe {
		t.Fatalf("expected remember-me session, got %+v err=%v", session, err)
	}
}

func TestLoginUnknownAndWrongPasswordAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t, "ada@example.com")

	_, unknown := h.login(h.ipCtx(), "ghost@example.com", strongPassword)
	_, wrong := h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass")

	for _, err := range []error{unknown, wrong} {
		if !errors.Is(err, secureauth.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if secureauth.KindOf(err) != secureauth.KindAuth {
			t.Fatalf("expected auth kind, got %v", secureauth.KindOf(err))
		}
	}
	if secureauth.PublicMessage(unknown) != secureauth.PublicMessage(wrong) {
		t.Fatal("unknown email and wrong password must produce the same message")
	}

	failures := h.events(secureauth.EventLoginFailed)
	if len(failures) != 2 {
		t.Fatalf("expected 2 LOGIN_FAILED events, got %d", len(failures))
	}
	if failures[0].ActorID != "" {
		t.Fatal("unknown account failure must not carry an actor")
	}
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t)

	if _, err := h.login(h.ipCtx(), "", strongPassword); !errors.Is(err, secureauth.ErrValidation) {
		t.Fatalf("expected validation error for empty email, got %v", err)
	}
	if _, err := h.login(h.ipCtx(), "ada@example.com", ""); !errors.Is(err, secureauth.ErrValidation) {
		t.Fatalf("expected validation error for empty password, got %v", err)
	}
}

func TestLoginLocksAccountAfterThreshold(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")
	lockedAt := h.clock.Now()

	for i := 1; i <= 5; i++ {
		if _, err := h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass"); !errors.Is(err, secureauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	u := h.user(t, id)
	if u.Security.FailedAttempts != 5 {
		t.Fatalf("FailedAttempts = %d, want 5", u.Security.FailedAttempts)
	}
	if want := lockedAt.Add(30 * time.Minute); !u.Security.LockedUntil.Equal(want) {
		t.Fatalf("LockedUntil = %v, want %v", u.Security.LockedUntil, want)
	}
	if got := len(h.events(secureauth.EventAccountLocked)); got != 1 {
		t.Fatalf("expected one ACCOUNT_LOCKED event, got %d", got)
	}
	if h.notifier.suspiciousCount() != 1 {
		t.Fatal("expected one suspicious activity email on lock")
	}

	_, err := h.login(h.ipCtx(), "ada@example.com", strongPassword)
	var authErr *secureauth.AuthError
	if !errors.As(err, &authErr) || authErr.Reason != secureauth.ReasonAccountLocked {
		t.Fatalf("expected locked error for the correct password, got %v", err)
	}
	if !authErr.LockedUntil.Equal(u.Security.LockedUntil) {
		t.Fatalf("LockedUntil = %v, want %v", authErr.LockedUntil, u.Security.LockedUntil)
	}
	if !errors.Is(err, secureauth.ErrAccountLocked) {
		t.Fatal("locked error must match ErrAccountLocked")
	}
	if got := h.user(t, id).Security.FailedAttempts; got != 5 {
		t.Fatalf("blocked attempts must not count, got %d", got)
	}
	if len(h.events(secureauth.EventLoginBlocked)) != 1 {
		t.Fatal("expected LOGIN_BLOCKED event")
	}
}

func TestLockExpiresWithoutIntervention(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")

	for i := 0; i < 5; i++ {
		_, _ = h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass")
	}
	h.clock.Advance(30*time.Minute + time.Second)

	if _, err := h.login(h.ipCtx(), "ada@example.com", strongPassword); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	u := h.user(t, id)
	if u.Security.FailedAttempts != 0 || !u.Security.LockedUntil.IsZero() {
		t.Fatalf("lock state not cleared: %+v", u.Security)
	}
}

func TestSuccessfulLoginResetsFailureCount(t *testing.T) {
	h := newHarness(t)
	id := h.registerVerified(t, "ada@example.com")

	for i := 0; i < 2; i++ {
		_, _ = h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass")
	}
	if _, err := h.login(h.ipCtx(), "ada@example.com", strongPassword); err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if got := h.user(t, id).Security.FailedAttempts; got != 0 {
		t.Fatalf("FailedAttempts = %d after success, want 0", got)
	}

	for i := 0; i < 4; i++ {
		_, _ = h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass")
	}
	if _, err := h.login(h.ipCtx(), "ada@example.com", strongPassword); err != nil {
		t.Fatalf("four failures after a reset must not lock: %v", err)
	}
}

func TestLoginRateLimitedPerIP(t *testing.T) {
	h := newHarness(t)
	ctx := h.ipCtx()

	for i := 1; i <= 5; i++ {
		_, err := h.login(ctx, "ghost@example.com", "Wr0ng!Pass")
		if !errors.Is(err, secureauth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := h.login(ctx, "ghost@example.com", "Wr0ng!Pass")
	var rl *secureauth.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("sixth attempt: expected RateLimitError, got %v", err)
	}
	if want := h.clock.Now().Add(30 * time.Minute); !rl.ResetAt.Equal(want) {
		t.Fatalf("ResetAt = %v, want %v", rl.ResetAt, want)
	}
	if got := h.engine.MetricsSnapshot().Counters[secureauth.MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected one rate-limited login, got %d", got)
	}
}

func TestLoginCaptchaGate(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t, "ada@example.com")

	for i := 0; i < 2; i++ {
		_, _ = h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass")
	}

	_, err := h.engine.Login(h.ipCtx(), secureauth.LoginRequest{Email: "ada@example.com", Password: strongPassword})
	var verr *secureauth.ValidationError
	if !errors.As(err, &verr) || verr.Field != "captcha_token" {
		t.Fatalf("expected captcha validation error, got %v", err)
	}

	h.captcha.set(secureauth.CaptchaResult{Success: false}, nil)
	if _, err := h.login(h.ipCtx(), "ada@example.com", strongPassword); !errors.Is(err, secureauth.ErrValidation) {
		t.Fatalf("failed captcha must reject, got %v", err)
	}

	var captchaFailures int
	for _, a := range h.store.Attempts() {
		if a.FailureReason == secureauth.FailureCaptcha {
			captchaFailures++
		}
	}
	if captchaFailures != 2 {
		t.Fatalf("expected 2 CAPTCHA_FAILED attempts, got %d", captchaFailures)
	}

	h.captcha.set(secureauth.CaptchaResult{Success: true, Score: 0.9}, nil)
	if _, err := h.login(h.ipCtx(), "ada@example.com", strongPassword); err != nil {
		t.Fatalf("login with passing captcha: %v", err)
	}
}

func TestLoginCaptchaGateAllowMissingToken(t *testing.T) {
	h := newHarness(t, func(_ *harness, _ *secureauth.Builder, cfg *secureauth.Config) {
		cfg.Captcha.AllowMissingToken = true
	})
	h.registerVerified(t, "ada@example.com")

	for i := 0; i < 3; i++ {
		_, _ = h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass")
	}
	calls := h.captcha.calls

	_, err := h.engine.Login(h.ipCtx(), secureauth.LoginRequest{Email: "ada@example.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("login without captcha token should pass: %v", err)
	}
	if h.captcha.calls != calls {
		t.Fatal("provider must not be called without a token")
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Register(h.ipCtx(), registerRequest("ada@example.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := h.login(h.ipCtx(), "ada@example.com", strongPassword)
	if !errors.Is(err, secureauth.ErrEmailUnverified) {
		t.Fatalf("expected ErrEmailUnverified, got %v", err)
	}

	_, err = h.login(h.ipCtx(), "ada@example.com", "Wr0ng!Pass")
	if !errors.Is(err, secureauth.ErrInvalidCredentials) {
		t.Fatalf("wrong password must not reveal verification state, got %v", err)
	}
}

type failingApplyStore struct {
	*memstore.Store
	fail string
}

func (s *failingApplyStore) Apply(ctx context.Context, userID string, cmd secureauth.Command) (*secureauth.User, error) {
	if cmd.Name() == s.fail {
		return nil, errors.New("connection reset")
	}
	return s.Store.Apply(ctx, userID, cmd)
}

func TestLoginFailsClosedWhenFailureCannotBePersisted(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t, "ada@example.com")

	broken := &failingApplyStore{Store: h.store, fail: secureauth.IncrementFailedAttempts{}.Name()}
	cfg := testConfig()
	cfg.Captcha.Enabled = false
	engine, err := secureauth.New().WithConfig(cfg).WithUserStore(broken).WithClock(h.clock.Now).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	_, err = engine.Login(h.ipCtx(), secureauth.LoginRequest{Email: "ada@example.com", Password: "Wr0ng!Pass"})
	if !errors.Is(err, secureauth.ErrCollaboratorFailure) {
		t.Fatalf("expected collaborator failure, got %v", err)
	}
	if secureauth.KindOf(err) != secureauth.KindCollaborator {
		t.Fatalf("expected collaborator kind, got %v", secureauth.KindOf(err))
	}

	if _, err := engine.Login(h.ipCtx(), secureauth.LoginRequest{Email: "ada@example.com", Password: strongPassword}); err != nil {
		t.Fatalf("correct password still works: %v", err)
	}
}

func TestLoginLatencyHistogram(t *testing.T) {
	h := newHarness(t, func(_ *harness, _ *secureauth.Builder, cfg *secureauth.Config) {
		cfg.Metrics.EnableLatencyHistograms = true
	})
	h.registerVerified(t, "ada@example.com")

	if _, err := h.login(h.ipCtx(), "ada@example.com", strongPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	buckets := h.engine.MetricsSnapshot().Histograms[secureauth.MetricLoginLatency]
	if len(buckets) != secureauth.HistogramBucketCount {
		t.Fatalf("expected %d buckets, got %d", secureauth.HistogramBucketCount, len(buckets))
	}
	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total != 1 {
		t.Fatalf("expected one observation, got %d", total)
	}
}
