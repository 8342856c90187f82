package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/secureauth"
)

// SetSessionCookies writes the access and refresh cookies for a login. The
// access cookie lives for the remember-me lifetime when it was requested.
func SetSessionCookies(w http.ResponseWriter, cfg secureauth.Config, res *secureauth.LoginResult) {
	if res == nil {
		return
	}
	SetAccessCookie(w, cfg, res.AccessToken, res.RememberMe)
	http.SetCookie(w, sessionCookie(cfg, cfg.Cookies.RefreshName, res.RefreshToken, cfg.Tokens.RefreshTTL))
}

// SetAccessCookie replaces the access cookie, typically after a refresh.
func SetAccessCookie(w http.ResponseWriter, cfg secureauth.Config, token string, rememberMe bool) {
	ttl := cfg.Tokens.AccessTTL
	if rememberMe {
		ttl = cfg.Tokens.RememberMeTTL
	}
	http.SetCookie(w, sessionCookie(cfg, cfg.Cookies.AccessName, token, ttl))
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter, cfg secureauth.Config) {
	for _, name := range []string{cfg.Cookies.AccessName, cfg.Cookies.RefreshName} {
		c := sessionCookie(cfg, name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func sessionCookie(cfg secureauth.Config, name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Cookies.Domain,
		MaxAge:   int(ttl / time.Second),
		Secure:   cfg.Cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// RefreshToken returns the refresh cookie value, if any.
func RefreshToken(r *http.Request, cfg secureauth.Config) string {
	c, err := r.Cookie(cfg.Cookies.RefreshName)
	if err != nil {
		return ""
	}
	return c.Value
}
