package secureauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/secureauth/internal"
	"github.com/MrEthical07/secureauth/password"
)

// RequestPasswordReset emails a reset link to the account behind email.
// It returns nil whether or not the account exists.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.config.PasswordReset.Enabled {
		return ErrPasswordResetDisabled
	}

	if err := e.throttle(ctx, "password_reset", e.config.RateLimit.PasswordReset, MetricPasswordResetRateLimited); err != nil {
		return err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)

	u, err := e.store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return storeFailure("find user by email", err)
	}

	raw, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}
	cmd := SetResetToken{
		Hash:      internal.HashToken(raw),
		ExpiresAt: e.now().UTC().Add(e.config.PasswordReset.TokenTTL),
	}
	if _, err := e.apply(ctx, u.ID, cmd); err != nil {
		return err
	}

	e.notify(ctx, "password_reset", func(ctx context.Context) error {
		return e.notifier.SendPasswordResetEmail(ctx, u.Email, u.DisplayName(), raw)
	})
	return nil
}

// ConfirmPasswordReset sets a new password using a token from
// RequestPasswordReset. The token is single use. A successful reset also
// clears any account lock.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword, confirmPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.config.PasswordReset.Enabled {
		return ErrPasswordResetDisabled
	}

	rejected := &ValidationError{Field: "token", Message: "invalid or expired reset token", Err: ErrNotFound}

	resetToken = strings.TrimSpace(resetToken)
	if !internal.ValidOpaqueToken(resetToken) {
		e.metricInc(MetricPasswordResetFailure)
		return rejected
	}
	if newPassword == "" {
		return invalid("password", "password is required")
	}
	if len(newPassword) > maxPasswordLength {
		return invalid("password", "password must be at most 72 bytes")
	}
	if newPassword != confirmPassword {
		return invalid("confirm_password", "passwords don't match")
	}
	if strength := password.Score(newPassword); !strength.Acceptable() {
		return passwordProblem(strength)
	}

	u, err := e.store.FindUserByResetToken(ctx, internal.HashToken(resetToken), e.now().UTC())
	if errors.Is(err, ErrUserNotFound) {
		e.metricInc(MetricPasswordResetFailure)
		return rejected
	}
	if err != nil {
		return storeFailure("find user by reset token", err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	cmd := SetPasswordHash{
		Hash:                 hash,
		At:                   e.now().UTC(),
		ClearResetToken:      true,
		ExpectResetTokenHash: u.ResetTokenHash,
	}
	_, err = e.store.Apply(ctx, u.ID, cmd)
	if errors.Is(err, ErrResetTokenMismatch) {
		e.metricInc(MetricPasswordResetFailure)
		return rejected
	}
	if err != nil {
		return storeFailure(cmd.Name(), err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emit(ctx, u.ID, PasswordChangedDetail{Method: "reset"})
	return nil
}
