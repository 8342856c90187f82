package secureauth

import (
	"time"

	"github.com/MrEthical07/secureauth/lockout"
)

// Command is a named state transition on a single user record. A UserStore
// executes it atomically; stores without native support for a command may
// load the record, call ApplyTo, and write the record back under a lock.
//
// The set of commands is closed.
type Command interface {
	// Name identifies the command in logs and store errors.
	Name() string
	// ApplyTo mutates u in place.
	ApplyTo(u *User) error
	isCommand()
}

// IncrementFailedAttempts records one failed credential verification under
// Policy. A failure while the account is locked changes nothing. A lock that
// has already expired starts a fresh count.
type IncrementFailedAttempts struct {
	At     time.Time
	Policy lockout.Policy
}

func (IncrementFailedAttempts) Name() string { return "increment_failed_attempts" }

func (c IncrementFailedAttempts) ApplyTo(u *User) error {
	st, _ := c.Policy.RegisterFailure(u.Security.lockState(), c.At)
	u.Security.FailedAttempts = st.FailedAttempts
	u.Security.LockedUntil = st.LockedUntil
	return nil
}

// ResetLockout clears the counter and any lock after a successful login and
// stamps the login time and address.
type ResetLockout struct {
	At time.Time
	IP string
}

func (ResetLockout) Name() string { return "reset_lockout" }

func (c ResetLockout) ApplyTo(u *User) error {
	u.Security.FailedAttempts = 0
	u.Security.LockedUntil = time.Time{}
	u.LastLoginAt = c.At
	u.LastLoginIP = c.IP
	return nil
}

// MarkEmailVerified sets EmailVerified and burns the verification token.
type MarkEmailVerified struct {
	At time.Time
}

func (MarkEmailVerified) Name() string { return "mark_email_verified" }

func (MarkEmailVerified) ApplyTo(u *User) error {
	u.Security.EmailVerified = true
	u.VerificationTokenHash = ""
	u.VerificationExpiresAt = time.Time{}
	return nil
}

// EnableTwoFactor commits a confirmed TOTP secret with a fresh backup-code set.
// Counter is the time step of the confirming code.
type EnableTwoFactor struct {
	Secret           string
	BackupCodeHashes []string
	Counter          int64
}

func (EnableTwoFactor) Name() string { return "enable_two_factor" }

func (c EnableTwoFactor) ApplyTo(u *User) error {
	u.Security.TwoFactorEnabled = true
	u.Security.TwoFactorSecret = c.Secret
	u.Security.BackupCodeHashes = append([]string(nil), c.BackupCodeHashes...)
	u.Security.LastTOTPCounter = c.Counter
	return nil
}

// DisableTwoFactor removes the secret and every backup code.
type DisableTwoFactor struct{}

func (DisableTwoFactor) Name() string { return "disable_two_factor" }

func (DisableTwoFactor) ApplyTo(u *User) error {
	u.Security.TwoFactorEnabled = false
	u.Security.TwoFactorSecret = ""
	u.Security.BackupCodeHashes = nil
	u.Security.LastTOTPCounter = 0
	return nil
}

// RecordTOTPCounter marks a TOTP time step as used. It fails with
// ErrTOTPReplayed unless Counter is newer than every step accepted before.
type RecordTOTPCounter struct {
	Counter int64
}

func (RecordTOTPCounter) Name() string { return "record_totp_counter" }

func (c RecordTOTPCounter) ApplyTo(u *User) error {
	if c.Counter <= u.Security.LastTOTPCounter {
		return ErrTOTPReplayed
	}
	u.Security.LastTOTPCounter = c.Counter
	return nil
}

// ReplaceBackupCodes swaps the whole backup-code set. Old codes stop working.
type ReplaceBackupCodes struct {
	Hashes []string
}

func (ReplaceBackupCodes) Name() string { return "replace_backup_codes" }

func (c ReplaceBackupCodes) ApplyTo(u *User) error {
	u.Security.BackupCodeHashes = append([]string(nil), c.Hashes...)
	return nil
}

// ConsumeBackupCode removes Hash from the set. It fails with
// ErrBackupCodeNotFound when Hash is not present, so a code can be consumed
// at most once.
type ConsumeBackupCode struct {
	Hash string
}

func (ConsumeBackupCode) Name() string { return "consume_backup_code" }

func (c ConsumeBackupCode) ApplyTo(u *User) error {
	for i, h := range u.Security.BackupCodeHashes {
		if h == c.Hash {
			u.Security.BackupCodeHashes = append(u.Security.BackupCodeHashes[:i:i], u.Security.BackupCodeHashes[i+1:]...)
			return nil
		}
	}
	return ErrBackupCodeNotFound
}

// SetPasswordHash replaces the stored hash. ClearResetToken marks a password
// reset: it also burns the pending reset token, clears any lock and stamps
// PasswordChangedAt. Rehash-on-login leaves it false.
//
// A non-empty ExpectResetTokenHash must equal the stored reset token digest
// or the command fails with ErrResetTokenMismatch, so one token completes at
// most one reset.
type SetPasswordHash struct {
	Hash                 string
	At                   time.Time
	ClearResetToken      bool
	ExpectResetTokenHash string
}

func (SetPasswordHash) Name() string { return "set_password_hash" }

func (c SetPasswordHash) ApplyTo(u *User) error {
	if c.ExpectResetTokenHash != "" && c.ExpectResetTokenHash != u.ResetTokenHash {
		return ErrResetTokenMismatch
	}
	u.PasswordHash = c.Hash
	if c.ClearResetToken {
		u.PasswordChangedAt = c.At
		u.ResetTokenHash = ""
		u.ResetExpiresAt = time.Time{}
		u.Security.FailedAttempts = 0
		u.Security.LockedUntil = time.Time{}
	}
	return nil
}

// SetResetToken stores a pending password reset token digest.
type SetResetToken struct {
	Hash      string
	ExpiresAt time.Time
}

func (SetResetToken) Name() string { return "set_reset_token" }

func (c SetResetToken) ApplyTo(u *User) error {
	u.ResetTokenHash = c.Hash
	u.ResetExpiresAt = c.ExpiresAt
	return nil
}

func (IncrementFailedAttempts) isCommand() {}
func (ResetLockout) isCommand()            {}
func (MarkEmailVerified) isCommand()       {}
func (EnableTwoFactor) isCommand()         {}
func (DisableTwoFactor) isCommand()        {}
func (RecordTOTPCounter) isCommand()       {}
func (ReplaceBackupCodes) isCommand()      {}
func (ConsumeBackupCode) isCommand()       {}
func (SetPasswordHash) isCommand()         {}
func (SetResetToken) isCommand()           {}
