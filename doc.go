// Package secureauth is an authentication security engine: registration,
// login with account lockout and per-IP rate limiting, email verification,
// TOTP two-factor authentication with single-use backup codes, signed
// session tokens and stateless CSRF tokens.
//
// Build an [Engine] with [New] and the fluent [Builder], supplying a
// [UserStore]. Engine methods are safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// This package orchestrates. The security primitives live in sibling
// packages (ratelimit, password, lockout, twofactor, token, csrf) and hold
// no knowledge of users. Persistence, email delivery and CAPTCHA checks are
// collaborators behind interfaces; every change to a user record goes
// through a named [Command].
//
// # What this package must NOT do
//
//   - Reveal whether an email is registered, through errors or results.
//   - Fail an operation because an audit sink or notifier failed.
//   - Import net/http. HTTP adapters live in the middleware package.
package secureauth
