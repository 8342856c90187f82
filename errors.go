package secureauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid request")
	// ErrInvalidCredentials is returned for unknown accounts, wrong passwords and wrong second factors alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an account lock is in force.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailUnverified is returned when login requires a verified email address.
	ErrEmailUnverified = errors.New("email not verified")
	// ErrTokenExpiredOrInvalid is returned for any session token that fails verification.
	ErrTokenExpiredOrInvalid = errors.New("token expired or invalid")
	// ErrRateLimited matches every *RateLimitError.
	ErrRateLimited = errors.New("too many attempts")
	// ErrNotFound marks lookups that found nothing. The engine returns it wrapped in a *ValidationError.
	ErrNotFound = errors.New("not found")
	// ErrCollaboratorFailure matches every *CollaboratorError.
	ErrCollaboratorFailure = errors.New("collaborator failure")
	// ErrTwoFactorRequired is returned when a correct password needs a second factor to complete login.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorInvalid is returned when a second factor fails outside of login.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnabled is returned by operations that need an enrolled second factor.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrTwoFactorAlreadyEnabled is returned when enrollment is attempted twice.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrPasswordResetDisabled is returned when password reset is switched off in config.
	ErrPasswordResetDisabled = errors.New("password reset disabled")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrUserNotFound is returned by UserStore lookups that match nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by UserStore.CreateUser for an email that is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrBackupCodeNotFound is returned by ConsumeBackupCode when the hash is not in the stored set.
	ErrBackupCodeNotFound = errors.New("backup code not found")
	// ErrTOTPReplayed is returned by RecordTOTPCounter for a time step at or below the last accepted one.
	ErrTOTPReplayed = errors.New("two-factor code already used")
	// ErrResetTokenMismatch is returned by SetPasswordHash when the pending reset token changed underneath it.
	ErrResetTokenMismatch = errors.New("reset token no longer pending")
)

// ErrorKind classifies engine errors for transport layers.
type ErrorKind int

const (
	// KindInternal covers errors outside the documented taxonomy.
	KindInternal ErrorKind = iota
	// KindValidation is malformed input, including unknown one-time tokens.
	KindValidation
	// KindAuth is an authentication refusal.
	KindAuth
	// KindRateLimited is a throttling refusal.
	KindRateLimited
	// KindNotFound is a bare lookup miss.
	KindNotFound
	// KindCollaborator is an I/O failure in a store, notifier or CAPTCHA provider.
	KindCollaborator
	// KindConflict is a request that does not fit the account's current state.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindCollaborator:
		return "collaborator"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// KindOf reports which taxonomy bucket err falls into. A nil error is KindInternal.
func KindOf(err error) ErrorKind {
	var (
		validation   *ValidationError
		auth         *AuthError
		limited      *RateLimitError
		collaborator *CollaboratorError
	)

	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &limited):
		return KindRateLimited
	case errors.As(err, &auth),
		errors.Is(err, ErrTwoFactorRequired),
		errors.Is(err, ErrTwoFactorInvalid):
		return KindAuth
	case errors.As(err, &collaborator):
		return KindCollaborator
	case errors.Is(err, ErrTwoFactorAlreadyEnabled), errors.Is(err, ErrTwoFactorNotEnabled):
		return KindConflict
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPasswordResetDisabled):
		return KindNotFound
	default:
		return KindInternal
	}
}

// ValidationError reports the first rule a request violated.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrValidation
}

// Is lets errors.Is(err, ErrValidation) hold even when Err carries a more specific cause.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AuthReason is the variant carried by an AuthError.
type AuthReason int

const (
	// ReasonInvalidCredentials covers unknown accounts and wrong secrets.
	ReasonInvalidCredentials AuthReason = iota + 1
	// ReasonAccountLocked is a lock still in force.
	ReasonAccountLocked
	// ReasonEmailUnverified is a login before email verification.
	ReasonEmailUnverified
	// ReasonTokenExpiredOrInvalid is a session token that failed verification.
	ReasonTokenExpiredOrInvalid
)

func (r AuthReason) sentinel() error {
	switch r {
	case ReasonAccountLocked:
		return ErrAccountLocked
	case ReasonEmailUnverified:
		return ErrEmailUnverified
	case ReasonTokenExpiredOrInvalid:
		return ErrTokenExpiredOrInvalid
	default:
		return ErrInvalidCredentials
	}
}

// AuthError is an authentication refusal. LockedUntil is set only for ReasonAccountLocked.
type AuthError struct {
	Reason      AuthReason
	LockedUntil time.Time
}

func (e *AuthError) Error() string {
	return e.Reason.sentinel().Error()
}

func (e *AuthError) Unwrap() error {
	return e.Reason.sentinel()
}

// RateLimitError is a throttling refusal carrying the time the caller may retry.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// CollaboratorError wraps an I/O failure from an external collaborator.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaboratorFailure
}

func storeFailure(op string, err error) error {
	return &CollaboratorError{Collaborator: "store", Op: op, Err: err}
}

// PublicMessage returns the text a transport may show to the end user for err.
// It never includes collaborator detail and never distinguishes unknown
// accounts from wrong passwords.
func PublicMessage(err error) string {
	var (
		validation *ValidationError
		auth       *AuthError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &auth):
		switch auth.Reason {
		case ReasonAccountLocked:
			return "account is temporarily locked"
		case ReasonEmailUnverified:
			return "please verify your email before logging in"
		case ReasonTokenExpiredOrInvalid:
			return "session expired, please sign in again"
		default:
			return "invalid credentials"
		}
	case errors.Is(err, ErrRateLimited):
		return "too many attempts, please try again later"
	case errors.Is(err, ErrTwoFactorRequired):
		return "two-factor code required"
	case errors.Is(err, ErrTwoFactorInvalid):
		return "invalid two-factor code"
	case errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return "two-factor authentication already enabled"
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return "two-factor authentication not enabled"
	case errors.Is(err, ErrPasswordResetDisabled):
		return "password reset is not available"
	default:
		return "something went wrong, please try again"
	}
}
