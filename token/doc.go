// Package token issues and verifies signed session tokens.
//
// Access tokens carry the subject, email and role. Refresh tokens carry only
// the subject. The two kinds are signed with distinct HS256 secrets, so a
// leaked refresh secret cannot mint access tokens and the reverse. Tokens are
// signed, not encrypted.
//
// Verification is strict: only HS256 is accepted, expiry is required, and
// issuer and audience are checked when configured. Every failure collapses to
// [ErrExpiredOrInvalid] so callers cannot distinguish a forged token from an
// expired one.
//
// An optional [Revoker] lets callers invalidate a token before it expires,
// keyed by its jti.
package token
