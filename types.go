package secureauth

import (
	"context"
	"time"

	"github.com/MrEthical07/secureauth/lockout"
)

// Role is the authorization role carried in access tokens.
type Role string

const (
	// RoleUser is assigned to every self-registered account.
	RoleUser Role = "user"
	// RoleAdmin is assigned out of band.
	RoleAdmin Role = "admin"
)

// AccountSecurityState is the part of a user record owned by the lockout
// policy and the two-factor lifecycle. It is changed only through Commands.
type AccountSecurityState struct {
	FailedAttempts   int
	LockedUntil      time.Time
	EmailVerified    bool
	TwoFactorEnabled bool
	TwoFactorSecret  string
	BackupCodeHashes []string
	// LastTOTPCounter is the highest TOTP time step accepted so far.
	LastTOTPCounter  int64
}

func (s AccountSecurityState) lockState() lockout.State {
	return lockout.State{FailedAttempts: s.FailedAttempts, LockedUntil: s.LockedUntil}
}

// User is the account record exchanged with a UserStore.
//
// Verification and reset tokens are never stored in plaintext; the
// *TokenHash fields hold hex SHA-256 digests.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	Security     AccountSecurityState

	VerificationTokenHash string
	VerificationExpiresAt time.Time
	ResetTokenHash        string
	ResetExpiresAt        time.Time

	RegistrationIP    string
	LastLoginAt       time.Time
	LastLoginIP       string
	PasswordChangedAt time.Time
	CreatedAt         time.Time
}

// DisplayName is the name used in outbound notifications.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Security.BackupCodeHashes != nil {
		c.Security.BackupCodeHashes = append([]string(nil), u.Security.BackupCodeHashes...)
	}
	return &c
}

// FailureReason is recorded on failed login attempts.
type FailureReason string

const (
	FailureInvalidCredentials FailureReason = "INVALID_CREDENTIALS"
	FailureAccountLocked      FailureReason = "ACCOUNT_LOCKED"
	FailureEmailNotVerified   FailureReason = "EMAIL_NOT_VERIFIED"
	FailureCaptcha            FailureReason = "CAPTCHA_FAILED"
)

// LoginAttempt is one row of the login attempt history used for the CAPTCHA gate.
type LoginAttempt struct {
	Email         string
	IP            string
	UserAgent     string
	Success       bool
	FailureReason FailureReason
	At            time.Time
}

// UserStore is the persistence collaborator.
//
// Lookups return ErrUserNotFound when nothing matches. Apply must execute
// the command atomically for the given user and return the updated record.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	// FindUserByVerificationToken matches only tokens whose expiry is after now.
	FindUserByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	// FindUserByResetToken matches only tokens whose expiry is after now.
	FindUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	// CreateUser assigns u.ID when it is empty and returns ErrDuplicateEmail
	// when the email is taken.
	CreateUser(ctx context.Context, u *User) error
	Apply(ctx context.Context, userID string, cmd Command) (*User, error)
	CountRecentFailedAttempts(ctx context.Context, email string, since time.Time) (int, error)
	RecordLoginAttempt(ctx context.Context, attempt LoginAttempt) error
	AppendSecurityEvent(ctx context.Context, event SecurityEvent) error
}

// Notifier delivers outbound user notifications. The engine never fails an
// operation because a notification failed.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
	SendPasswordResetEmail(ctx context.Context, email, name, token string) error
	SendTwoFactorEnabledEmail(ctx context.Context, email, name string) error
	SendSuspiciousActivityEmail(ctx context.Context, email, name, activity, ip string) error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) SendVerificationEmail(context.Context, string, string, string) error  { return nil }
func (NopNotifier) SendPasswordResetEmail(context.Context, string, string, string) error { return nil }
func (NopNotifier) SendTwoFactorEnabledEmail(context.Context, string, string) error      { return nil }
func (NopNotifier) SendSuspiciousActivityEmail(context.Context, string, string, string, string) error {
	return nil
}

// CaptchaResult is a provider verdict.
type CaptchaResult struct {
	Success bool
	Score   float64
}

// CaptchaVerifier checks a client CAPTCHA token with the provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (CaptchaResult, error)
}

// RegisterRequest is the input of Engine.Register.
type RegisterRequest struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	CaptchaToken    string
}

// RegisterResult is returned for new and already-registered emails alike.
// UserID is empty when the email was already registered.
type RegisterResult struct {
	UserID               string
	VerificationRequired bool
}

// LoginRequest is the input of Engine.Login. When both TOTPCode and
// BackupCode are set only TOTPCode is checked.
type LoginRequest struct {
	Email        string
	Password     string
	TOTPCode     string
	BackupCode   string
	CaptchaToken string
	RememberMe   bool
}

// LoginMethod names the factor that completed a login.
type LoginMethod string

const (
	MethodPassword   LoginMethod = "password"
	MethodTOTP       LoginMethod = "totp"
	MethodBackupCode LoginMethod = "backup_code"
)

// LoginResult carries the issued session material.
type LoginResult struct {
	UserID           string
	Email            string
	FirstName        string
	LastName         string
	Role             Role
	EmailVerified    bool
	TwoFactorEnabled bool

	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	// SessionID is the access token's ID and keys CSRF tokens.
	SessionID  string
	RememberMe bool
	Method     LoginMethod
}

// RefreshResult is returned by Engine.Refresh.
type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
	SessionID       string
}

// Session is the verified view of an access token.
type Session struct {
	UserID     string
	Email      string
	Role       Role
	SessionID  string
	ExpiresAt  time.Time
	RememberMe bool
}

// TwoFactorEnrollment is returned by Engine.BeginTwoFactor. Nothing is
// persisted until Engine.EnableTwoFactor confirms a code.
type TwoFactorEnrollment struct {
	Secret string
	URI    string
	// QRCode is a data:image/png;base64 URL.
	QRCode string
}
