package secureauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType is the closed set of security event kinds.
type EventType string

const (
	EventUserRegistered        EventType = "USER_REGISTERED"
	EventLoginSuccess          EventType = "LOGIN_SUCCESS"
	EventLoginFailed           EventType = "LOGIN_FAILED"
	EventLoginBlocked          EventType = "LOGIN_BLOCKED"
	EventAccountLocked         EventType = "ACCOUNT_LOCKED"
	EventPasswordChanged       EventType = "PASSWORD_CHANGED"
	EventEmailVerified         EventType = "EMAIL_VERIFIED"
	EventTwoFactorEnabled      EventType = "TWO_FACTOR_ENABLED"
	EventTwoFactorDisabled     EventType = "TWO_FACTOR_DISABLED"
	EventSuspiciousActivity    EventType = "SUSPICIOUS_ACTIVITY"
	EventRateLimitExceeded     EventType = "RATE_LIMIT_EXCEEDED"
	EventDuplicateRegistration EventType = "REGISTRATION_DUPLICATE_EMAIL"
)

// EventDetail is the typed payload of a SecurityEvent. Each implementation
// belongs to exactly one EventType.
type EventDetail interface {
	Type() EventType
	Description() string
	// Metadata flattens the detail for storage.
	Metadata() map[string]string
	isEventDetail()
}

// RegistrationDetail accompanies EventUserRegistered.
type RegistrationDetail struct {
	Email string
}

func (RegistrationDetail) Type() EventType     { return EventUserRegistered }
func (RegistrationDetail) Description() string { return "user registered" }
func (d RegistrationDetail) Metadata() map[string]string {
	return map[string]string{"email": d.Email}
}

// LoginSuccessDetail accompanies EventLoginSuccess.
type LoginSuccessDetail struct {
	Method     LoginMethod
	RememberMe bool
}

func (LoginSuccessDetail) Type() EventType     { return EventLoginSuccess }
func (LoginSuccessDetail) Description() string { return "user logged in successfully" }
func (d LoginSuccessDetail) Metadata() map[string]string {
	return map[string]string{"method": string(d.Method), "remember_me": strconv.FormatBool(d.RememberMe)}
}

// LoginFailureDetail accompanies EventLoginFailed. FailedAttempts is zero
// when the account does not exist.
type LoginFailureDetail struct {
	Email          string
	Reason         FailureReason
	UnknownAccount bool
	FailedAttempts int
}

func (LoginFailureDetail) Type() EventType { return EventLoginFailed }
func (d LoginFailureDetail) Description() string {
	if d.UnknownAccount {
		return "login attempt with non-existent email"
	}
	return "login failed"
}
func (d LoginFailureDetail) Metadata() map[string]string {
	m := map[string]string{"email": d.Email, "reason": string(d.Reason)}
	if d.UnknownAccount {
		m["unknown_account"] = "true"
	} else {
		m["failed_attempts"] = strconv.Itoa(d.FailedAttempts)
	}
	return m
}

// LoginBlockedDetail accompanies EventLoginBlocked.
type LoginBlockedDetail struct {
	LockedUntil time.Time
}

func (LoginBlockedDetail) Type() EventType     { return EventLoginBlocked }
func (LoginBlockedDetail) Description() string { return "login attempt on locked account" }
func (d LoginBlockedDetail) Metadata() map[string]string {
	return map[string]string{"locked_until": d.LockedUntil.UTC().Format(time.RFC3339)}
}

// AccountLockedDetail accompanies EventAccountLocked.
type AccountLockedDetail struct {
	FailedAttempts int
	LockedUntil    time.Time
}

func (AccountLockedDetail) Type() EventType { return EventAccountLocked }
func (AccountLockedDetail) Description() string {
	return "account locked due to multiple failed login attempts"
}
func (d AccountLockedDetail) Metadata() map[string]string {
	return map[string]string{
		"failed_attempts": strconv.Itoa(d.FailedAttempts),
		"locked_until":    d.LockedUntil.UTC().Format(time.RFC3339),
	}
}

// PasswordChangedDetail accompanies EventPasswordChanged.
type PasswordChangedDetail struct {
	Method string
}

func (PasswordChangedDetail) Type() EventType     { return EventPasswordChanged }
func (PasswordChangedDetail) Description() string { return "password changed" }
func (d PasswordChangedDetail) Metadata() map[string]string {
	return map[string]string{"method": d.Method}
}

// EmailVerifiedDetail accompanies EventEmailVerified.
type EmailVerifiedDetail struct {
	Email string
}

func (EmailVerifiedDetail) Type() EventType     { return EventEmailVerified }
func (EmailVerifiedDetail) Description() string { return "email address verified" }
func (d EmailVerifiedDetail) Metadata() map[string]string {
	return map[string]string{"email": d.Email}
}

// TwoFactorEnabledDetail accompanies EventTwoFactorEnabled. Regenerated
// marks a backup-code replacement on an already enabled account.
type TwoFactorEnabledDetail struct {
	BackupCodes int
	Regenerated bool
}

func (TwoFactorEnabledDetail) Type() EventType { return EventTwoFactorEnabled }
func (d TwoFactorEnabledDetail) Description() string {
	if d.Regenerated {
		return "two-factor backup codes regenerated"
	}
	return "two-factor authentication enabled"
}
func (d TwoFactorEnabledDetail) Metadata() map[string]string {
	m := map[string]string{"backup_codes": strconv.Itoa(d.BackupCodes)}
	if d.Regenerated {
		m["regenerated"] = "true"
	}
	return m
}

// TwoFactorDisabledDetail accompanies EventTwoFactorDisabled.
type TwoFactorDisabledDetail struct{}

func (TwoFactorDisabledDetail) Type() EventType              { return EventTwoFactorDisabled }
func (TwoFactorDisabledDetail) Description() string          { return "two-factor authentication disabled" }
func (TwoFactorDisabledDetail) Metadata() map[string]string { return map[string]string{} }

// SuspiciousActivityDetail accompanies EventSuspiciousActivity.
type SuspiciousActivityDetail struct {
	Activity string
}

func (SuspiciousActivityDetail) Type() EventType     { return EventSuspiciousActivity }
func (SuspiciousActivityDetail) Description() string { return "suspicious activity detected" }
func (d SuspiciousActivityDetail) Metadata() map[string]string {
	return map[string]string{"activity": d.Activity}
}

// RateLimitDetail accompanies EventRateLimitExceeded.
type RateLimitDetail struct {
	Endpoint string
	ResetAt  time.Time
}

func (RateLimitDetail) Type() EventType { return EventRateLimitExceeded }
func (d RateLimitDetail) Description() string {
	return d.Endpoint + " rate limit exceeded"
}
func (d RateLimitDetail) Metadata() map[string]string {
	return map[string]string{"endpoint": d.Endpoint, "reset_at": d.ResetAt.UTC().Format(time.RFC3339)}
}

// DuplicateRegistrationDetail accompanies EventDuplicateRegistration.
type DuplicateRegistrationDetail struct {
	Email string
}

func (DuplicateRegistrationDetail) Type() EventType { return EventDuplicateRegistration }
func (DuplicateRegistrationDetail) Description() string {
	return "registration attempt with existing email"
}
func (d DuplicateRegistrationDetail) Metadata() map[string]string {
	return map[string]string{"email": d.Email}
}

func (RegistrationDetail) isEventDetail()          {}
func (LoginSuccessDetail) isEventDetail()          {}
func (LoginFailureDetail) isEventDetail()          {}
func (LoginBlockedDetail) isEventDetail()          {}
func (AccountLockedDetail) isEventDetail()         {}
func (PasswordChangedDetail) isEventDetail()       {}
func (EmailVerifiedDetail) isEventDetail()         {}
func (TwoFactorEnabledDetail) isEventDetail()      {}
func (TwoFactorDisabledDetail) isEventDetail()     {}
func (SuspiciousActivityDetail) isEventDetail()    {}
func (RateLimitDetail) isEventDetail()             {}
func (DuplicateRegistrationDetail) isEventDetail() {}

// SecurityEvent is an immutable audit record.
type SecurityEvent struct {
	ID         string
	Type       EventType
	ActorID    string
	IP         string
	UserAgent  string
	OccurredAt time.Time
	Detail     EventDetail
}

// Description returns the detail's human-readable summary.
func (e SecurityEvent) Description() string {
	if e.Detail == nil {
		return string(e.Type)
	}
	return e.Detail.Description()
}

// Metadata returns the flattened detail, never nil.
func (e SecurityEvent) Metadata() map[string]string {
	if e.Detail == nil {
		return map[string]string{}
	}
	return e.Detail.Metadata()
}

type securityEventJSON struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"event_type"`
	ActorID     string            `json:"actor_id,omitempty"`
	IP          string            `json:"ip"`
	UserAgent   string            `json:"user_agent,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON encodes the event with its flattened metadata.
func (e SecurityEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(securityEventJSON{
		ID:          e.ID,
		Type:        e.Type,
		ActorID:     e.ActorID,
		IP:          e.IP,
		UserAgent:   e.UserAgent,
		OccurredAt:  e.OccurredAt,
		Description: e.Description(),
		Metadata:    e.Metadata(),
	})
}

// AuditSink receives security events. Errors are logged by the engine and
// never reach the caller of the operation that produced the event.
type AuditSink interface {
	Record(ctx context.Context, event SecurityEvent) error
}

// NoOpSink drops every event.
type NoOpSink struct{}

func (NoOpSink) Record(context.Context, SecurityEvent) error { return nil }

// StoreSink appends events through the persistence collaborator.
type StoreSink struct {
	Store UserStore
}

func (s StoreSink) Record(ctx context.Context, event SecurityEvent) error {
	if s.Store == nil {
		return errors.New("store sink has no store")
	}
	return s.Store.AppendSecurityEvent(ctx, event)
}

// ChannelSink writes events into a buffered channel, blocking until there is
// room or ctx is done.
type ChannelSink struct {
	events chan SecurityEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan SecurityEvent, buffer),
	}
}

func (s *ChannelSink) Record(ctx context.Context, event SecurityEvent) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan SecurityEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Record(_ context.Context, event SecurityEvent) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

// LogSink writes events as structured log entries.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s LogSink) Record(_ context.Context, event SecurityEvent) error {
	if s.Logger == nil {
		return nil
	}
	fields := logrus.Fields{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"ip":         event.IP,
	}
	if event.ActorID != "" {
		fields["actor_id"] = event.ActorID
	}
	for k, v := range event.Metadata() {
		fields["meta_"+k] = v
	}
	s.Logger.WithFields(fields).Info(event.Description())
	return nil
}

// MultiSink fans out to every sink and joins their errors.
type MultiSink []AuditSink

func (m MultiSink) Record(ctx context.Context, event SecurityEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
