package secureauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type sessionContextKey struct{}

// unknownClientIP stands in for a missing client address in limiter keys and events.
const unknownClientIP = "unknown"

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// as the rate-limit identifier and records it on every security event.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit records.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithSession attaches a verified session to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// ClientIPFromContext returns the address stored by WithClientIP, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return unknownClientIP
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	if ip == "" {
		return unknownClientIP
	}
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
