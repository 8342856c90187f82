package internaldefs

import (
	"github.com/MrEthical07/secureauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   secureauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   secureauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: secureauth.MetricLoginSuccess, Name: "secureauth_login_success_total", Help: "Successful logins."},
	{ID: secureauth.MetricLoginFailure, Name: "secureauth_login_failure_total", Help: "Failed logins."},
	{ID: secureauth.MetricLoginBlocked, Name: "secureauth_login_blocked_total", Help: "Login attempts on locked accounts."},
	{ID: secureauth.MetricLoginRateLimited, Name: "secureauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: secureauth.MetricLoginCaptchaRequired, Name: "secureauth_login_captcha_required_total", Help: "Logins that crossed the CAPTCHA threshold."},
	{ID: secureauth.MetricLoginCaptchaFailed, Name: "secureauth_login_captcha_failed_total", Help: "Logins rejected by the CAPTCHA gate."},
	{ID: secureauth.MetricTwoFactorRequired, Name: "secureauth_two_factor_required_total", Help: "Logins that stopped for a second factor."},
	{ID: secureauth.MetricRegistrationSuccess, Name: "secureauth_registration_success_total", Help: "New accounts registered."},
	{ID: secureauth.MetricRegistrationDuplicate, Name: "secureauth_registration_duplicate_total", Help: "Registrations for an existing email."},
	{ID: secureauth.MetricRegistrationRateLimited, Name: "secureauth_registration_rate_limited_total", Help: "Rate-limited registrations."},
	{ID: secureauth.MetricEmailVerificationSuccess, Name: "secureauth_email_verification_success_total", Help: "Verified email addresses."},
	{ID: secureauth.MetricEmailVerificationFailure, Name: "secureauth_email_verification_failure_total", Help: "Rejected verification tokens."},
	{ID: secureauth.MetricAccountLocked, Name: "secureauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: secureauth.MetricTwoFactorEnabled, Name: "secureauth_two_factor_enabled_total", Help: "Two-factor enrollments and backup-code regenerations."},
	{ID: secureauth.MetricTwoFactorDisabled, Name: "secureauth_two_factor_disabled_total", Help: "Two-factor removals."},
	{ID: secureauth.MetricTwoFactorFailure, Name: "secureauth_two_factor_failure_total", Help: "Rejected TOTP or backup codes."},
	{ID: secureauth.MetricTwoFactorRateLimited, Name: "secureauth_two_factor_rate_limited_total", Help: "Rate-limited two-factor management attempts."},
	{ID: secureauth.MetricBackupCodeUsed, Name: "secureauth_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: secureauth.MetricBackupCodeRegenerated, Name: "secureauth_backup_code_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: secureauth.MetricPasswordResetRequest, Name: "secureauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: secureauth.MetricPasswordResetSuccess, Name: "secureauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: secureauth.MetricPasswordResetFailure, Name: "secureauth_password_reset_failure_total", Help: "Rejected password reset confirmations."},
	{ID: secureauth.MetricPasswordResetRateLimited, Name: "secureauth_password_reset_rate_limited_total", Help: "Rate-limited password reset requests."},
	{ID: secureauth.MetricCSRFRejected, Name: "secureauth_csrf_rejected_total", Help: "Rejected CSRF tokens."},
	{ID: secureauth.MetricTokenRefresh, Name: "secureauth_token_refresh_total", Help: "Access tokens issued by refresh."},
	{ID: secureauth.MetricTokenRejected, Name: "secureauth_token_rejected_total", Help: "Rejected access or refresh tokens."},
	{ID: secureauth.MetricLogout, Name: "secureauth_logout_total", Help: "Logouts."},
	{ID: secureauth.MetricAuditFailure, Name: "secureauth_audit_failure_total", Help: "Audit sink write failures."},
	{ID: secureauth.MetricNotificationFailure, Name: "secureauth_notification_failure_total", Help: "Failed outbound notifications."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: secureauth.MetricLoginLatency, Name: "secureauth_login_latency_seconds", Help: "Login latency."},
}

// AuditDroppedName is the counter for events dropped by the async dispatcher.
const AuditDroppedName = "secureauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = [secureauth.HistogramBucketCount - 1]float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NormalizeBuckets pads or truncates raw to the engine bucket count.
func NormalizeBuckets(raw []uint64) [secureauth.HistogramBucketCount]uint64 {
	var out [secureauth.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [secureauth.HistogramBucketCount]uint64) [secureauth.HistogramBucketCount]uint64 {
	var out [secureauth.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
