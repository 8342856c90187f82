// Package notify holds Notifier implementations for the bundled server.
package notify

import (
	"context"

	"github.com/MrEthical07/secureauth"
	"github.com/sirupsen/logrus"
)

// LogNotifier writes each notification to a logrus logger instead of
// sending mail. Token values are logged only when ShowTokens is set.
type LogNotifier struct {
	Log        logrus.FieldLogger
	BaseURL    string
	ShowTokens bool
}

var _ secureauth.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) entry(kind, email string) *logrus.Entry {
	return n.Log.WithFields(logrus.Fields{"notification": kind, "to": email})
}

func (n *LogNotifier) link(path, token string) string {
	if !n.ShowTokens {
		return "[redacted]"
	}
	return n.BaseURL + path + "?token=" + token
}

func (n *LogNotifier) SendVerificationEmail(_ context.Context, email, name, token string) error {
	n.entry("verify_email", email).WithField("link", n.link("/verify-email", token)).
		Infof("Hi %s, please verify your email address", name)
	return nil
}

func (n *LogNotifier) SendPasswordResetEmail(_ context.Context, email, name, token string) error {
	n.entry("password_reset", email).WithField("link", n.link("/reset-password", token)).
		Infof("Hi %s, a password reset was requested", name)
	return nil
}

func (n *LogNotifier) SendTwoFactorEnabledEmail(_ context.Context, email, name string) error {
	n.entry("two_factor_enabled", email).Infof("Hi %s, two-factor authentication is now on", name)
	return nil
}

func (n *LogNotifier) SendSuspiciousActivityEmail(_ context.Context, email, name, activity, ip string) error {
	n.entry("suspicious_activity", email).WithFields(logrus.Fields{"activity": activity, "ip": ip}).
		Warnf("Hi %s, we noticed unusual activity on your account", name)
	return nil
}
