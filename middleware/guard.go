package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/secureauth"
)

// CSRFHeader carries the CSRF token on API requests.
const CSRFHeader = "X-CSRF-Token"

// CSRFFormField carries the CSRF token on form posts.
const CSRFFormField = "csrf_token"

// RequireAuth rejects requests without a valid access token. The token is
// read from the access cookie first, then from an Authorization bearer
// header.
func RequireAuth(engine *secureauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := AccessToken(r, engine.Config())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				if errors.Is(err, secureauth.ErrCollaboratorFailure) {
					http.Error(w, secureauth.PublicMessage(err), http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(secureauth.WithSession(r.Context(), sess)))
		})
	}
}

// RequireCSRF rejects state-changing requests whose CSRF token does not
// match the session stored by RequireAuth. Safe methods pass through.
func RequireCSRF(engine *secureauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			sess, ok := secureauth.SessionFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			token := r.Header.Get(CSRFHeader)
			if token == "" {
				token = r.PostFormValue(CSRFFormField)
			}
			if !engine.ValidateCSRF(token, sess.SessionID) {
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// AccessToken returns the access token from the access cookie or, failing
// that, an Authorization bearer header.
func AccessToken(r *http.Request, cfg secureauth.Config) (string, bool) {
	if c, err := r.Cookie(cfg.Cookies.AccessName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
