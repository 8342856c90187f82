package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	var got http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = *r
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestRecaptchaScore(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"success":true,"score":0.9,"action":"login"}`)
	v, err := NewRecaptcha("s3cret", WithVerifyURL(srv.URL))
	require.NoError(t, err)

	res, err := v.Verify(context.Background(), "tok", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 0.9, res.Score, 1e-9)

	assert.Equal(t, "s3cret", got.PostForm.Get("secret"))
	assert.Equal(t, "tok", got.PostForm.Get("response"))
	assert.Equal(t, "203.0.113.7", got.PostForm.Get("remoteip"))
}

func TestRecaptchaV2HasFullScore(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"success":true}`)
	v, err := NewRecaptcha("s3cret", WithVerifyURL(srv.URL))
	require.NoError(t, err)

	res, err := v.Verify(context.Background(), "tok", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Score)
	assert.Empty(t, got.PostForm.Get("remoteip"))
}

func TestRecaptchaRejectedToken(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"success":false,"error-codes":["invalid-input-response"]}`)
	v, err := NewRecaptcha("s3cret", WithVerifyURL(srv.URL))
	require.NoError(t, err)

	res, err := v.Verify(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.Score)
}

func TestRecaptchaTransportErrors(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway, `oops`)
	v, err := NewRecaptcha("s3cret", WithVerifyURL(srv.URL))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), "tok", "")
	assert.Error(t, err)

	srv, _ = newServer(t, http.StatusOK, `not json`)
	v, err = NewRecaptcha("s3cret", WithVerifyURL(srv.URL))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), "tok", "")
	assert.Error(t, err)
}

func TestNewRecaptchaRequiresSecret(t *testing.T) {
	_, err := NewRecaptcha("  ")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
