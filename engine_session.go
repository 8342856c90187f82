package secureauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/secureauth/token"
)

func (e *Engine) tokenFailure(op string, err error) error {
	if errors.Is(err, token.ErrRevocationUnavailable) {
		return &CollaboratorError{Collaborator: "revoker", Op: op, Err: err}
	}
	e.metricInc(MetricTokenRejected)
	return &AuthError{Reason: ReasonTokenExpiredOrInvalid}
}

// ValidateAccess verifies an access token and returns the session it carries.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.VerifyAccess(ctx, strings.TrimSpace(accessToken))
	if err != nil {
		return nil, e.tokenFailure("verify access", err)
	}
	return sessionFromClaims(claims), nil
}

func sessionFromClaims(c *token.Claims) *Session {
	s := &Session{
		UserID:     c.Subject,
		Email:      c.Email,
		Role:       Role(c.Role),
		SessionID:  c.ID,
		RememberMe: c.RememberMe,
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

// Refresh exchanges a refresh token for a new access token. The account is
// reloaded so the new token carries the current email and role.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.VerifyRefresh(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, e.tokenFailure("verify refresh", err)
	}

	u, err := e.store.FindUserByID(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		e.metricInc(MetricTokenRejected)
		return nil, &AuthError{Reason: ReasonTokenExpiredOrInvalid}
	}
	if err != nil {
		return nil, storeFailure("find user by id", err)
	}

	access, err := e.tokens.IssueAccess(token.Identity{
		SubjectID: u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
	}, false)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenRefresh)
	return &RefreshResult{
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
		SessionID:       access.ID,
	}, nil
}

// Logout revokes whichever of the two tokens still verify. Without a
// configured revoker it only counts the logout; clients discard the cookies.
// Tokens that no longer verify are ignored, so Logout is idempotent.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	revoke := func(verify func(context.Context, string) (*token.Claims, error), raw, op string) error {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		claims, err := verify(ctx, raw)
		if errors.Is(err, token.ErrRevocationUnavailable) {
			return &CollaboratorError{Collaborator: "revoker", Op: op, Err: err}
		}
		if err != nil {
			return nil
		}
		if err := e.tokens.Revoke(ctx, claims); err != nil {
			return &CollaboratorError{Collaborator: "revoker", Op: op, Err: err}
		}
		return nil
	}

	if err := revoke(e.tokens.VerifyAccess, accessToken, "revoke access"); err != nil {
		return err
	}
	if err := revoke(e.tokens.VerifyRefresh, refreshToken, "revoke refresh"); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	return nil
}

// RevocationEnabled reports whether Logout invalidates tokens server side.
func (e *Engine) RevocationEnabled() bool {
	return e != nil && e.tokens != nil && e.tokens.Revocable()
}

// CSRFToken issues a CSRF token bound to sessionID, normally Session.SessionID.
func (e *Engine) CSRFToken(sessionID string) (string, error) {
	if e == nil || e.csrf == nil {
		return "", ErrEngineNotReady
	}
	return e.csrf.Generate(sessionID)
}

// ValidateCSRF reports whether csrfToken was issued for sessionID within the
// configured max age.
func (e *Engine) ValidateCSRF(csrfToken, sessionID string) bool {
	if e == nil || e.csrf == nil {
		return false
	}
	if !e.csrf.Validate(csrfToken, sessionID) {
		e.metricInc(MetricCSRFRejected)
		return false
	}
	return true
}

// ReportSuspiciousActivity records a SUSPICIOUS_ACTIVITY event for userID
// and warns the account owner by email. Host applications call it for
// signals the engine cannot see itself.
func (e *Engine) ReportSuspiciousActivity(ctx context.Context, userID, activity string) error {
	if err := e.ready(); err != nil {
		return err
	}
	activity = strings.TrimSpace(activity)
	if activity == "" {
		return invalid("activity", "activity is required")
	}

	u, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	e.emit(ctx, u.ID, SuspiciousActivityDetail{Activity: activity})
	ip := ClientIPFromContext(ctx)
	e.notify(ctx, "suspicious_activity", func(ctx context.Context) error {
		return e.notifier.SendSuspiciousActivityEmail(ctx, u.Email, u.DisplayName(), activity, ip)
	})
	return nil
}
