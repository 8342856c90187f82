package secureauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/secureauth/lockout"
	"github.com/MrEthical07/secureauth/token"
	"github.com/MrEthical07/secureauth/twofactor"
	"github.com/sirupsen/logrus"
)

const lockActivity = "account locked after repeated failed login attempts"

// Login authenticates req against the store and issues session tokens.
//
// Checks run in a fixed order: IP rate limit, input validation, CAPTCHA
// gate, account lookup, lock state, password, email verification, second
// factor. Wrong passwords and wrong second factors both count toward the
// account lock and both surface as ErrInvalidCredentials. An unknown email
// costs one hash comparison like a known one.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(started)) }()

	if err := e.throttle(ctx, "login", e.config.RateLimit.Login, MetricLoginRateLimited); err != nil {
		return nil, err
	}

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, invalid("password", "password is required")
	}

	if err := e.captchaGate(ctx, email, req.CaptchaToken); err != nil {
		return nil, err
	}

	u, err := e.store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		e.verifyPassword(req.Password, e.dummyHash)
		e.recordAttempt(ctx, email, false, FailureInvalidCredentials)
		e.metricInc(MetricLoginFailure)
		e.emit(ctx, "", LoginFailureDetail{Email: email, Reason: FailureInvalidCredentials, UnknownAccount: true})
		return nil, &AuthError{Reason: ReasonInvalidCredentials}
	}
	if err != nil {
		return nil, storeFailure("find user by email", err)
	}

	now := e.now()
	if st := u.Security.lockState(); e.config.Lockout.StatusAt(st, now) == lockout.Locked {
		e.recordAttempt(ctx, email, false, FailureAccountLocked)
		e.metricInc(MetricLoginBlocked)
		e.emit(ctx, u.ID, LoginBlockedDetail{LockedUntil: st.LockedUntil})
		return nil, &AuthError{Reason: ReasonAccountLocked, LockedUntil: st.LockedUntil}
	}

	if !e.verifyPassword(req.Password, u.PasswordHash) {
		return nil, e.failLogin(ctx, u, FailureInvalidCredentials)
	}

	if e.config.EmailVerification.RequireForLogin && !u.Security.EmailVerified {
		e.recordAttempt(ctx, email, false, FailureEmailNotVerified)
		e.metricInc(MetricLoginFailure)
		e.emit(ctx, u.ID, LoginFailureDetail{
			Email:          email,
			Reason:         FailureEmailNotVerified,
			FailedAttempts: u.Security.FailedAttempts,
		})
		return nil, &AuthError{Reason: ReasonEmailUnverified}
	}

	method := MethodPassword
	if u.Security.TwoFactorEnabled {
		if method, err = e.secondFactor(ctx, u, req); err != nil {
			return nil, err
		}
	}

	if _, err := e.apply(ctx, u.ID, ResetLockout{At: now.UTC(), IP: ClientIPFromContext(ctx)}); err != nil {
		return nil, err
	}
	e.resetThrottle(ctx, "login")
	e.recordAttempt(ctx, email, true, "")
	e.upgradeHash(ctx, u, req.Password)

	result, err := e.issueSession(u, req.RememberMe)
	if err != nil {
		return nil, err
	}
	result.Method = method

	e.metricInc(MetricLoginSuccess)
	e.emit(ctx, u.ID, LoginSuccessDetail{Method: method, RememberMe: req.RememberMe})

	return result, nil
}

// captchaGate demands a CAPTCHA once email has enough recent failures.
func (e *Engine) captchaGate(ctx context.Context, email, captchaToken string) error {
	if !e.config.Captcha.Enabled {
		return nil
	}

	since := e.now().Add(-e.config.Captcha.Lookback).UTC()
	failures, err := e.store.CountRecentFailedAttempts(ctx, email, since)
	if err != nil {
		return storeFailure("count recent failed attempts", err)
	}
	if failures < e.config.Captcha.FailureThreshold {
		return nil
	}

	e.metricInc(MetricLoginCaptchaRequired)
	if strings.TrimSpace(captchaToken) == "" {
		if e.config.Captcha.AllowMissingToken {
			return nil
		}
		e.metricInc(MetricLoginCaptchaFailed)
		e.recordAttempt(ctx, email, false, FailureCaptcha)
		return invalid("captcha_token", "captcha verification required")
	}

	if err := e.checkCaptcha(ctx, captchaToken); err != nil {
		e.metricInc(MetricLoginCaptchaFailed)
		e.recordAttempt(ctx, email, false, FailureCaptcha)
		return err
	}
	return nil
}

// failLogin persists one failed verification. A persistence failure is
// returned as is so the request fails closed.
func (e *Engine) failLogin(ctx context.Context, u *User, reason FailureReason) error {
	now := e.now()
	before := u.Security.lockState()

	updated, err := e.apply(ctx, u.ID, IncrementFailedAttempts{At: now, Policy: e.config.Lockout})
	if err != nil {
		return err
	}

	e.recordAttempt(ctx, u.Email, false, reason)
	e.metricInc(MetricLoginFailure)

	after := updated.Security.lockState()
	if e.config.Lockout.StatusAt(before, now) == lockout.Active && e.config.Lockout.StatusAt(after, now) == lockout.Locked {
		e.metricInc(MetricAccountLocked)
		e.emit(ctx, u.ID, AccountLockedDetail{FailedAttempts: after.FailedAttempts, LockedUntil: after.LockedUntil})
		ip := ClientIPFromContext(ctx)
		e.notify(ctx, "suspicious_activity", func(ctx context.Context) error {
			return e.notifier.SendSuspiciousActivityEmail(ctx, u.Email, u.DisplayName(), lockActivity, ip)
		})
	}

	e.emit(ctx, u.ID, LoginFailureDetail{Email: u.Email, Reason: reason, FailedAttempts: after.FailedAttempts})
	return &AuthError{Reason: ReasonInvalidCredentials}
}

// secondFactor checks the TOTP code when one is given and the backup code
// otherwise. It never checks both.
func (e *Engine) secondFactor(ctx context.Context, u *User, req LoginRequest) (LoginMethod, error) {
	switch {
	case strings.TrimSpace(req.TOTPCode) != "":
		counter, ok := e.twoFactor.Match(u.Security.TwoFactorSecret, req.TOTPCode, e.now())
		if !ok {
			e.metricInc(MetricTwoFactorFailure)
			return "", e.failLogin(ctx, u, FailureInvalidCredentials)
		}
		_, err := e.store.Apply(ctx, u.ID, RecordTOTPCounter{Counter: counter})
		if errors.Is(err, ErrTOTPReplayed) {
			e.metricInc(MetricTwoFactorFailure)
			return "", e.failLogin(ctx, u, FailureInvalidCredentials)
		}
		if err != nil {
			return "", storeFailure(RecordTOTPCounter{}.Name(), err)
		}
		return MethodTOTP, nil

	case strings.TrimSpace(req.BackupCode) != "":
		if !e.twoFactor.ValidBackupCodeShape(req.BackupCode) {
			e.metricInc(MetricTwoFactorFailure)
			return "", e.failLogin(ctx, u, FailureInvalidCredentials)
		}
		_, err := e.store.Apply(ctx, u.ID, ConsumeBackupCode{Hash: twofactor.HashBackupCode(u.ID, req.BackupCode)})
		if errors.Is(err, ErrBackupCodeNotFound) {
			e.metricInc(MetricTwoFactorFailure)
			return "", e.failLogin(ctx, u, FailureInvalidCredentials)
		}
		if err != nil {
			return "", storeFailure(ConsumeBackupCode{}.Name(), err)
		}
		e.metricInc(MetricBackupCodeUsed)
		return MethodBackupCode, nil

	default:
		e.metricInc(MetricTwoFactorRequired)
		return "", ErrTwoFactorRequired
	}
}

// upgradeHash re-hashes with the current parameters after a successful
// login. Failure leaves the old hash in place.
func (e *Engine) upgradeHash(ctx context.Context, u *User, pw string) {
	if !e.hasher.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := e.hasher.Hash(pw)
	if err == nil {
		_, err = e.store.Apply(ctx, u.ID, SetPasswordHash{Hash: hash, At: e.now().UTC()})
	}
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{"user_id": u.ID}).Warn("secureauth: password rehash failed")
	}
}

func (e *Engine) issueSession(u *User, rememberMe bool) (*LoginResult, error) {
	access, err := e.tokens.IssueAccess(token.Identity{
		SubjectID: u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
	}, rememberMe)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserID:           u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Role:             u.Role,
		EmailVerified:    u.Security.EmailVerified,
		TwoFactorEnabled: u.Security.TwoFactorEnabled,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
		SessionID:        access.ID,
		RememberMe:       rememberMe,
	}, nil
}
