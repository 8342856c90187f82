package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/secureauth"
	"github.com/MrEthical07/secureauth/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// Handlers serves the JSON account API on top of an Engine.
type Handlers struct {
	engine  *secureauth.Engine
	log     logrus.FieldLogger
	proxies middleware.TrustedProxies
}

// Option configures Handlers.
type Option func(*Handlers)

// WithTrustedProxies makes the handlers believe X-Forwarded-For from the
// given peers when resolving the client address.
func WithTrustedProxies(p middleware.TrustedProxies) Option {
	return func(h *Handlers) { h.proxies = p }
}

// NewHandlers returns handlers for engine. A nil logger discards output.
func NewHandlers(engine *secureauth.Engine, log logrus.FieldLogger, opts ...Option) *Handlers {
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	h := &Handlers{engine: engine, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the API under router. Routes that act on the
// signed-in account require a session and, for writes, a CSRF token.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Use(middleware.ClientContextWith(h.proxies))

	auth := router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", h.register).Methods(http.MethodPost)
	auth.HandleFunc("/verify-email", h.verifyEmail).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	auth.HandleFunc("/password/forgot", h.forgotPassword).Methods(http.MethodPost)
	auth.HandleFunc("/password/reset", h.resetPassword).Methods(http.MethodPost)

	session := auth.NewRoute().Subrouter()
	session.Use(middleware.RequireAuth(h.engine), middleware.RequireCSRF(h.engine))
	session.HandleFunc("/me", h.me).Methods(http.MethodGet)
	session.HandleFunc("/csrf", h.csrf).Methods(http.MethodGet)
	session.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	session.HandleFunc("/2fa/setup", h.beginTwoFactor).Methods(http.MethodPost)
	session.HandleFunc("/2fa/enable", h.enableTwoFactor).Methods(http.MethodPost)
	session.HandleFunc("/2fa/disable", h.disableTwoFactor).Methods(http.MethodPost)
	session.HandleFunc("/2fa/backup-codes", h.regenerateBackupCodes).Methods(http.MethodPost)
}

// register handles POST /auth/register
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		CaptchaToken    string `json:"captcha_token"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Register(r.Context(), secureauth.RegisterRequest{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		CaptchaToken:    req.CaptchaToken,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// New and existing emails get the same answer.
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":               "registration received, check your email to verify your account",
		"verification_required": res.VerificationRequired,
	})
}

// verifyEmail handles POST /auth/verify-email
func (h *Handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "email verified"})
}

// login handles POST /auth/login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		TOTPCode     string `json:"totp_code"`
		BackupCode   string `json:"backup_code"`
		CaptchaToken string `json:"captcha_token"`
		RememberMe   bool   `json:"remember_me"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Login(r.Context(), secureauth.LoginRequest{
		Email:        req.Email,
		Password:     req.Password,
		TOTPCode:     req.TOTPCode,
		BackupCode:   req.BackupCode,
		CaptchaToken: req.CaptchaToken,
		RememberMe:   req.RememberMe,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	csrfToken, err := h.engine.CSRFToken(res.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	middleware.SetSessionCookies(w, h.engine.Config(), res)
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":                 res.UserID,
			"email":              res.Email,
			"first_name":         res.FirstName,
			"last_name":          res.LastName,
			"role":               res.Role,
			"email_verified":     res.EmailVerified,
			"two_factor_enabled": res.TwoFactorEnabled,
		},
		"csrf_token":        csrfToken,
		"access_expires_at": res.AccessExpiresAt.UTC().Format(time.RFC3339),
		"method":            res.Method,
	})
}

// refresh handles POST /auth/refresh
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Config()
	res, err := h.engine.Refresh(r.Context(), middleware.RefreshToken(r, cfg))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	csrfToken, err := h.engine.CSRFToken(res.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	middleware.SetAccessCookie(w, cfg, res.AccessToken, false)
	writeJSON(w, http.StatusOK, map[string]string{
		"csrf_token":        csrfToken,
		"access_expires_at": res.AccessExpiresAt.UTC().Format(time.RFC3339),
	})
}

// logout handles POST /auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Config()
	access, _ := middleware.AccessToken(r, cfg)
	if err := h.engine.Logout(r.Context(), access, middleware.RefreshToken(r, cfg)); err != nil {
		h.writeError(w, r, err)
		return
	}

	middleware.ClearSessionCookies(w, cfg)
	w.WriteHeader(http.StatusNoContent)
}

// me handles GET /auth/me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	sess, _ := secureauth.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          sess.UserID,
		"email":       sess.Email,
		"role":        sess.Role,
		"expires_at":  sess.ExpiresAt.UTC().Format(time.RFC3339),
		"remember_me": sess.RememberMe,
	})
}

// csrf handles GET /auth/csrf
func (h *Handlers) csrf(w http.ResponseWriter, r *http.Request) {
	sess, _ := secureauth.SessionFromContext(r.Context())
	token, err := h.engine.CSRFToken(sess.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// forgotPassword handles POST /auth/password/forgot
func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the account exists, a reset link has been sent",
	})
}

// resetPassword handles POST /auth/password/reset
func (h *Handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"token"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// beginTwoFactor handles POST /auth/2fa/setup
func (h *Handlers) beginTwoFactor(w http.ResponseWriter, r *http.Request) {
	sess, _ := secureauth.SessionFromContext(r.Context())
	enrollment, err := h.engine.BeginTwoFactor(r.Context(), sess.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":  enrollment.Secret,
		"uri":     enrollment.URI,
		"qr_code": enrollment.QRCode,
	})
}

// enableTwoFactor handles POST /auth/2fa/enable
func (h *Handlers) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
		Code   string `json:"code"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	sess, _ := secureauth.SessionFromContext(r.Context())
	codes, err := h.engine.EnableTwoFactor(r.Context(), sess.UserID, req.Secret, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

// disableTwoFactor handles POST /auth/2fa/disable
func (h *Handlers) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	sess, _ := secureauth.SessionFromContext(r.Context())
	if err := h.engine.DisableTwoFactor(r.Context(), sess.UserID, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// regenerateBackupCodes handles POST /auth/2fa/backup-codes
func (h *Handlers) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	sess, _ := secureauth.SessionFromContext(r.Context())
	codes, err := h.engine.RegenerateBackupCodes(r.Context(), sess.UserID, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

type errorBody struct {
	Error             string `json:"error"`
	TwoFactorRequired bool   `json:"two_factor_required,omitempty"`
	Field             string `json:"field,omitempty"`
}

// writeError maps an engine error onto a status code. Only PublicMessage
// text reaches the client.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: secureauth.PublicMessage(err)}
	status := http.StatusInternalServerError

	var (
		validation *secureauth.ValidationError
		limited    *secureauth.RateLimitError
	)
	switch {
	case errors.As(err, &validation):
		status, body.Field = http.StatusBadRequest, validation.Field
	case errors.As(err, &limited):
		status = http.StatusTooManyRequests
		if retry := time.Until(limited.ResetAt); retry > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
		}
	default:
		switch secureauth.KindOf(err) {
		case secureauth.KindAuth:
			status = http.StatusUnauthorized
			body.TwoFactorRequired = errors.Is(err, secureauth.ErrTwoFactorRequired)
		case secureauth.KindNotFound:
			status = http.StatusNotFound
		case secureauth.KindConflict:
			status = http.StatusConflict
		case secureauth.KindCollaborator:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		}).Error("request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
