package secureauth

import (
	"context"
	"errors"
	"strings"
)

// BeginTwoFactor generates a TOTP secret and provisioning URI for userID.
// Nothing is stored; the secret must come back through EnableTwoFactor.
func (e *Engine) BeginTwoFactor(ctx context.Context, userID string) (TwoFactorEnrollment, error) {
	if err := e.ready(); err != nil {
		return TwoFactorEnrollment{}, err
	}

	u, err := e.loadUser(ctx, userID)
	if err != nil {
		return TwoFactorEnrollment{}, err
	}
	if u.Security.TwoFactorEnabled {
		return TwoFactorEnrollment{}, ErrTwoFactorAlreadyEnabled
	}

	enrollment, err := e.twoFactor.Enroll(u.Email)
	if err != nil {
		return TwoFactorEnrollment{}, err
	}
	return TwoFactorEnrollment{
		Secret: enrollment.Secret,
		URI:    enrollment.URI,
		QRCode: enrollment.QRCode,
	}, nil
}

// EnableTwoFactor commits secret once code proves the authenticator holds
// it. The returned backup codes are the only plaintext copy.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, secret, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, invalid("secret", "secret is required")
	}
	if strings.TrimSpace(code) == "" {
		return nil, invalid("code", "verification code is required")
	}

	u, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Security.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if err := e.throttleUser(ctx, "two_factor", u.ID); err != nil {
		return nil, err
	}

	counter, ok := e.twoFactor.Match(secret, code, e.now())
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorInvalid
	}

	activation, err := e.twoFactor.Activate(u.ID, secret)
	if err != nil {
		return nil, err
	}
	if _, err := e.apply(ctx, u.ID, EnableTwoFactor{
		Secret:           activation.Secret,
		BackupCodeHashes: activation.Hashes,
		Counter:          counter,
	}); err != nil {
		return nil, err
	}

	e.notify(ctx, "two_factor_enabled", func(ctx context.Context) error {
		return e.notifier.SendTwoFactorEnabledEmail(ctx, u.Email, u.DisplayName())
	})

	e.resetUserThrottle(ctx, "two_factor", u.ID)
	e.metricInc(MetricTwoFactorEnabled)
	e.emit(ctx, u.ID, TwoFactorEnabledDetail{BackupCodes: len(activation.Codes)})

	return activation.Codes, nil
}

// DisableTwoFactor removes the second factor after re-checking the account password.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, currentPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if currentPassword == "" {
		return invalid("password", "password is required")
	}

	u, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.Security.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if err := e.throttleUser(ctx, "two_factor", u.ID); err != nil {
		return err
	}
	if !e.verifyPassword(currentPassword, u.PasswordHash) {
		return e.failLogin(ctx, u, FailureInvalidCredentials)
	}

	if _, err := e.apply(ctx, u.ID, DisableTwoFactor{}); err != nil {
		return err
	}
	e.resetUserThrottle(ctx, "two_factor", u.ID)

	e.metricInc(MetricTwoFactorDisabled)
	e.emit(ctx, u.ID, TwoFactorDisabledDetail{})
	return nil
}

// RegenerateBackupCodes replaces the backup-code set after checking a
// current TOTP code. Every previously issued code stops working.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	u, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Security.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if err := e.throttleUser(ctx, "two_factor", u.ID); err != nil {
		return nil, err
	}
	counter, ok := e.twoFactor.Match(u.Security.TwoFactorSecret, code, e.now())
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorInvalid
	}
	_, err = e.store.Apply(ctx, u.ID, RecordTOTPCounter{Counter: counter})
	if errors.Is(err, ErrTOTPReplayed) {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorInvalid
	}
	if err != nil {
		return nil, storeFailure(RecordTOTPCounter{}.Name(), err)
	}

	codes, hashes, err := e.twoFactor.NewBackupCodes(u.ID)
	if err != nil {
		return nil, err
	}
	if _, err := e.apply(ctx, u.ID, ReplaceBackupCodes{Hashes: hashes}); err != nil {
		return nil, err
	}

	e.resetUserThrottle(ctx, "two_factor", u.ID)
	e.metricInc(MetricBackupCodeRegenerated)
	e.emit(ctx, u.ID, TwoFactorEnabledDetail{BackupCodes: len(codes), Regenerated: true})
	return codes, nil
}
