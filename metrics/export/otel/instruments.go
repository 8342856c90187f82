package otel

import (
	"github.com/MrEthical07/secureauth"
	"go.opentelemetry.io/otel/attribute"
)

// outcomeKey labels each data point of an area instrument.
const outcomeKey = attribute.Key("outcome")

// area is one observable counter covering a slice of the auth surface.
type area struct {
	name     string
	help     string
	outcomes []outcome
}

type outcome struct {
	id    secureauth.MetricID
	label string
}

// areas groups every engine counter by the flow that produces it.
var areas = []area{
	{
		name: "secureauth.login",
		help: "Login attempts by outcome.",
		outcomes: []outcome{
			{secureauth.MetricLoginSuccess, "success"},
			{secureauth.MetricLoginFailure, "failure"},
			{secureauth.MetricLoginBlocked, "blocked"},
			{secureauth.MetricLoginRateLimited, "rate_limited"},
			{secureauth.MetricLoginCaptchaRequired, "captcha_required"},
			{secureauth.MetricLoginCaptchaFailed, "captcha_failed"},
			{secureauth.MetricTwoFactorRequired, "two_factor_required"},
		},
	},
	{
		name: "secureauth.registration",
		help: "Registration attempts by outcome.",
		outcomes: []outcome{
			{secureauth.MetricRegistrationSuccess, "success"},
			{secureauth.MetricRegistrationDuplicate, "duplicate"},
			{secureauth.MetricRegistrationRateLimited, "rate_limited"},
		},
	},
	{
		name: "secureauth.email_verification",
		help: "Email verification attempts by outcome.",
		outcomes: []outcome{
			{secureauth.MetricEmailVerificationSuccess, "success"},
			{secureauth.MetricEmailVerificationFailure, "failure"},
		},
	},
	{
		name: "secureauth.account",
		help: "Account state transitions.",
		outcomes: []outcome{
			{secureauth.MetricAccountLocked, "locked"},
		},
	},
	{
		name: "secureauth.two_factor",
		help: "Two-factor management and verification by outcome.",
		outcomes: []outcome{
			{secureauth.MetricTwoFactorEnabled, "enabled"},
			{secureauth.MetricTwoFactorDisabled, "disabled"},
			{secureauth.MetricTwoFactorFailure, "failure"},
			{secureauth.MetricTwoFactorRateLimited, "rate_limited"},
			{secureauth.MetricBackupCodeUsed, "backup_code_used"},
			{secureauth.MetricBackupCodeRegenerated, "backup_codes_regenerated"},
		},
	},
	{
		name: "secureauth.password_reset",
		help: "Password reset requests and confirmations by outcome.",
		outcomes: []outcome{
			{secureauth.MetricPasswordResetRequest, "requested"},
			{secureauth.MetricPasswordResetSuccess, "success"},
			{secureauth.MetricPasswordResetFailure, "failure"},
			{secureauth.MetricPasswordResetRateLimited, "rate_limited"},
		},
	},
	{
		name: "secureauth.session",
		help: "Session token and CSRF checks by outcome.",
		outcomes: []outcome{
			{secureauth.MetricTokenRefresh, "refreshed"},
			{secureauth.MetricTokenRejected, "token_rejected"},
			{secureauth.MetricCSRFRejected, "csrf_rejected"},
			{secureauth.MetricLogout, "logout"},
		},
	},
	{
		name: "secureauth.delivery",
		help: "Failed audit writes and notifications.",
		outcomes: []outcome{
			{secureauth.MetricAuditFailure, "audit_failed"},
			{secureauth.MetricNotificationFailure, "notification_failed"},
		},
	},
}

// auditDroppedLabel is reported on the delivery instrument from the
// dispatcher's own counter rather than the engine snapshot.
const auditDroppedLabel = "audit_dropped"
