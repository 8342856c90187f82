// Package captcha verifies client CAPTCHA tokens with a provider.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/secureauth"
)

// DefaultVerifyURL is Google's reCAPTCHA siteverify endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// ErrMissingSecret is returned by NewRecaptcha without a secret key.
var ErrMissingSecret = errors.New("recaptcha secret key is required")

// Recaptcha is a secureauth.CaptchaVerifier for reCAPTCHA v2 and v3. A v2
// answer carries no score and is reported as 1.0 on success.
type Recaptcha struct {
	secret    string
	verifyURL string
	client    *http.Client
}

var _ secureauth.CaptchaVerifier = (*Recaptcha)(nil)

// Option configures a Recaptcha.
type Option func(*Recaptcha)

// WithVerifyURL overrides the siteverify endpoint.
func WithVerifyURL(u string) Option {
	return func(r *Recaptcha) { r.verifyURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recaptcha) { r.client = c }
}

// NewRecaptcha returns a verifier using secret.
func NewRecaptcha(secret string, opts ...Option) (*Recaptcha, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	r := &Recaptcha{
		secret:    secret,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify posts token to the provider. Transport and decoding failures are
// returned as errors; a rejected token is a result with Success false.
func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) (secureauth.CaptchaResult, error) {
	form := url.Values{"secret": {r.secret}, "response": {token}}
	if remoteIP != "" && remoteIP != "unknown" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return secureauth.CaptchaResult{}, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return secureauth.CaptchaResult{}, fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return secureauth.CaptchaResult{}, fmt.Errorf("siteverify: unexpected status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return secureauth.CaptchaResult{}, fmt.Errorf("decode siteverify response: %w", err)
	}

	res := secureauth.CaptchaResult{Success: body.Success}
	switch {
	case body.Score != nil:
		res.Score = *body.Score
	case body.Success:
		res.Score = 1
	}
	return res, nil
}
