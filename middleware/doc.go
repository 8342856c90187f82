// Package middleware adapts secureauth.Engine to net/http.
//
// # Handlers
//
//   - [ClientContext] copies the client address and User-Agent into the
//     request context so the engine can key limiters and audit records.
//     [ClientContextWith] does the same behind [TrustedProxies], believing
//     X-Forwarded-For only from those peers.
//   - [RequireAuth] verifies the access token from the session cookie or an
//     Authorization bearer header and stores the session in the context.
//   - [RequireCSRF] enforces the per-session CSRF token on state-changing
//     methods. It must run after RequireAuth.
//
// # Cookies
//
// [SetSessionCookies] and [ClearSessionCookies] write the HttpOnly,
// SameSite=Strict session cookies named by secureauth.CookieConfig.
//
// This package translates HTTP semantics into Engine calls. It makes no
// authentication decision of its own.
package middleware
