package secureauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/secureauth/csrf"
	"github.com/MrEthical07/secureauth/internal/audit"
	"github.com/MrEthical07/secureauth/password"
	"github.com/MrEthical07/secureauth/ratelimit"
	"github.com/MrEthical07/secureauth/token"
	"github.com/MrEthical07/secureauth/twofactor"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine orchestrates registration, login, two-factor and session
// operations. Build one with New().
//
// Engine instances are immutable after Build and safe for concurrent use.
type Engine struct {
	config    Config
	store     UserStore
	notifier  Notifier
	captcha   CaptchaVerifier
	limiter   ratelimit.Limiter
	hasher    password.Hasher
	twoFactor *twofactor.Engine
	tokens    *token.Issuer
	csrf      *csrf.Guard
	auditSink AuditSink
	audit     *audit.Dispatcher[SecurityEvent]
	metrics   *Metrics
	log       logrus.FieldLogger
	now       func() time.Time

	// dummyHash is verified against when the account does not exist so
	// both paths pay for one hash comparison.
	dummyHash string
}

// Close flushes the async audit dispatcher, if any.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped returns the number of events the async dispatcher discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// emit records one security event. Sink failures are logged and counted,
// never returned.
func (e *Engine) emit(ctx context.Context, actorID string, detail EventDetail) {
	event := SecurityEvent{
		ID:         uuid.NewString(),
		Type:       detail.Type(),
		ActorID:    actorID,
		IP:         ClientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		OccurredAt: e.now().UTC(),
		Detail:     detail,
	}

	if e.audit != nil {
		e.audit.Emit(ctx, event)
		return
	}
	if err := e.auditSink.Record(ctx, event); err != nil {
		e.auditFailed(event, err)
	}
}

func (e *Engine) auditFailed(event SecurityEvent, err error) {
	e.metricInc(MetricAuditFailure)
	e.log.WithError(err).WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	}).Warn("secureauth: audit sink failed")
}

// notify runs a notification and logs its failure. Notifications never fail
// the calling operation.
func (e *Engine) notify(ctx context.Context, kind string, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.log.WithError(err).WithField("notification", kind).Warn("secureauth: notification failed")
	}
}

// recordAttempt appends to the login attempt history. The history only feeds
// the CAPTCHA gate, so a write failure is logged rather than returned.
func (e *Engine) recordAttempt(ctx context.Context, email string, success bool, reason FailureReason) {
	attempt := LoginAttempt{
		Email:         email,
		IP:            ClientIPFromContext(ctx),
		UserAgent:     userAgentFromContext(ctx),
		Success:       success,
		FailureReason: reason,
		At:            e.now().UTC(),
	}
	if err := e.store.RecordLoginAttempt(ctx, attempt); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"email":   email,
			"success": success,
		}).Warn("secureauth: recording login attempt failed")
	}
}

// throttle consults the limiter for endpoint under the caller's IP. A
// limiter backend failure fails closed.
func (e *Engine) throttle(ctx context.Context, endpoint string, p ratelimit.Policy, metric MetricID) error {
	decision, err := e.limiter.Check(ctx, endpoint+":"+ClientIPFromContext(ctx), p)
	if err != nil {
		return &CollaboratorError{Collaborator: "rate_limiter", Op: "check " + endpoint, Err: err}
	}
	if decision.Allowed {
		return nil
	}
	e.metricInc(metric)
	e.emit(ctx, "", RateLimitDetail{Endpoint: endpoint, ResetAt: decision.ResetAt})
	return &RateLimitError{ResetAt: decision.ResetAt}
}

// throttleUser is throttle keyed on the account instead of the client address.
func (e *Engine) throttleUser(ctx context.Context, endpoint, userID string) error {
	decision, err := e.limiter.Check(ctx, endpoint+":user:"+userID, e.config.RateLimit.TwoFactor)
	if err != nil {
		return &CollaboratorError{Collaborator: "rate_limiter", Op: "check " + endpoint, Err: err}
	}
	if decision.Allowed {
		return nil
	}
	e.metricInc(MetricTwoFactorRateLimited)
	e.emit(ctx, userID, RateLimitDetail{Endpoint: endpoint, ResetAt: decision.ResetAt})
	return &RateLimitError{ResetAt: decision.ResetAt}
}

func (e *Engine) resetThrottle(ctx context.Context, endpoint string) {
	if err := e.limiter.Reset(ctx, endpoint+":"+ClientIPFromContext(ctx)); err != nil {
		e.log.WithError(err).WithField("endpoint", endpoint).Warn("secureauth: rate limit reset failed")
	}
}

func (e *Engine) resetUserThrottle(ctx context.Context, endpoint, userID string) {
	if err := e.limiter.Reset(ctx, endpoint+":user:"+userID); err != nil {
		e.log.WithError(err).WithField("endpoint", endpoint).Warn("secureauth: rate limit reset failed")
	}
}

func (e *Engine) apply(ctx context.Context, userID string, cmd Command) (*User, error) {
	u, err := e.store.Apply(ctx, userID, cmd)
	if err != nil {
		return nil, storeFailure(cmd.Name(), err)
	}
	return u, nil
}

// loadUser resolves userID, reporting a miss as a validation failure.
func (e *Engine) loadUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, invalid("user_id", "user id is required")
	}
	u, err := e.store.FindUserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, &ValidationError{Field: "user_id", Message: "user not found", Err: ErrNotFound}
	}
	if err != nil {
		return nil, storeFailure("find user by id", err)
	}
	return u, nil
}

func (e *Engine) verifyPassword(pw, encoded string) bool {
	ok, err := password.Verify(e.hasher, pw, encoded)
	if err != nil {
		e.log.WithError(err).Warn("secureauth: stored password hash unreadable")
		return false
	}
	return ok
}
