package secureauth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/secureauth/internal"
	"github.com/MrEthical07/secureauth/password"
)

const (
	maxNameLength     = 50
	maxEmailLength    = 254
	maxPasswordLength = 72
)

// NormalizeEmail trims and lower-cases email and checks that it is a bare
// address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalid("email", "email is required")
	}
	if len(email) > maxEmailLength {
		return "", invalid("email", "invalid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", invalid("email", "invalid email address")
	}
	return email, nil
}

func validateName(field, label, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, label+" is required")
	}
	if utf8.RuneCountInString(v) > maxNameLength {
		return "", invalid(field, label+" must be at most 50 characters")
	}
	return v, nil
}

func (e *Engine) validateRegistration(req RegisterRequest) (RegisterRequest, error) {
	var err error
	if req.FirstName, err = validateName("first_name", "first name", req.FirstName); err != nil {
		return req, err
	}
	if req.LastName, err = validateName("last_name", "last name", req.LastName); err != nil {
		return req, err
	}
	if req.Email, err = NormalizeEmail(req.Email); err != nil {
		return req, err
	}
	if req.Password == "" {
		return req, invalid("password", "password is required")
	}
	if len(req.Password) > maxPasswordLength {
		return req, invalid("password", "password must be at most 72 bytes")
	}
	if req.Password != req.ConfirmPassword {
		return req, invalid("confirm_password", "passwords don't match")
	}
	if e.captchaOnRegister() && strings.TrimSpace(req.CaptchaToken) == "" {
		return req, invalid("captcha_token", "captcha verification required")
	}
	return req, nil
}

func (e *Engine) captchaOnRegister() bool {
	return e.config.Captcha.Enabled && e.config.Captcha.RequireOnRegister
}

// passwordProblem turns a policy verdict into the first user-facing message.
func passwordProblem(s password.Strength) error {
	if len(s.Violations) > 0 {
		return invalid("password", s.Violations[0])
	}
	return invalid("password", "password is too weak")
}

// Register creates an unverified account and sends its verification email.
//
// A registration for an email that already exists succeeds with an empty
// UserID and records REGISTRATION_DUPLICATE_EMAIL, so the response does not
// reveal which emails are registered.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if err := e.ready(); err != nil {
		return RegisterResult{}, err
	}

	if err := e.throttle(ctx, "register", e.config.RateLimit.Register, MetricRegistrationRateLimited); err != nil {
		return RegisterResult{}, err
	}

	req, err := e.validateRegistration(req)
	if err != nil {
		return RegisterResult{}, err
	}

	if e.captchaOnRegister() {
		if err := e.checkCaptcha(ctx, req.CaptchaToken); err != nil {
			return RegisterResult{}, err
		}
	}

	if strength := password.Score(req.Password); !strength.Acceptable() {
		return RegisterResult{}, passwordProblem(strength)
	}

	existing, err := e.store.FindUserByEmail(ctx, req.Email)
	switch {
	case err == nil && existing != nil:
		e.metricInc(MetricRegistrationDuplicate)
		e.emit(ctx, existing.ID, DuplicateRegistrationDetail{Email: req.Email})
		return RegisterResult{VerificationRequired: true}, nil
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return RegisterResult{}, storeFailure("find user by email", err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	verification, err := internal.NewOpaqueToken()
	if err != nil {
		return RegisterResult{}, err
	}

	now := e.now().UTC()
	u := &User{
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		Email:                 req.Email,
		PasswordHash:          hash,
		Role:                  RoleUser,
		VerificationTokenHash: internal.HashToken(verification),
		VerificationExpiresAt: now.Add(e.config.EmailVerification.TokenTTL),
		RegistrationIP:        ClientIPFromContext(ctx),
		PasswordChangedAt:     now,
		CreatedAt:             now,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a race with a concurrent registration of the same email.
			e.metricInc(MetricRegistrationDuplicate)
			e.emit(ctx, "", DuplicateRegistrationDetail{Email: req.Email})
			return RegisterResult{VerificationRequired: true}, nil
		}
		return RegisterResult{}, storeFailure("create user", err)
	}

	e.notify(ctx, "verification", func(ctx context.Context) error {
		return e.notifier.SendVerificationEmail(ctx, u.Email, u.DisplayName(), verification)
	})

	e.metricInc(MetricRegistrationSuccess)
	e.emit(ctx, u.ID, RegistrationDetail{Email: u.Email})

	return RegisterResult{UserID: u.ID, VerificationRequired: true}, nil
}

// VerifyEmail consumes a verification token. Unknown, expired and malformed
// tokens all yield the same validation error.
func (e *Engine) VerifyEmail(ctx context.Context, verificationToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	rejected := &ValidationError{Field: "token", Message: "invalid or expired verification token", Err: ErrNotFound}

	verificationToken = strings.TrimSpace(verificationToken)
	if !internal.ValidOpaqueToken(verificationToken) {
		e.metricInc(MetricEmailVerificationFailure)
		return rejected
	}

	u, err := e.store.FindUserByVerificationToken(ctx, internal.HashToken(verificationToken), e.now().UTC())
	if errors.Is(err, ErrUserNotFound) {
		e.metricInc(MetricEmailVerificationFailure)
		return rejected
	}
	if err != nil {
		return storeFailure("find user by verification token", err)
	}

	if _, err := e.apply(ctx, u.ID, MarkEmailVerified{At: e.now().UTC()}); err != nil {
		return err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emit(ctx, u.ID, EmailVerifiedDetail{Email: u.Email})
	return nil
}

// checkCaptcha verifies token with the provider. Provider errors and low
// scores both fail closed with the same validation error.
func (e *Engine) checkCaptcha(ctx context.Context, captchaToken string) error {
	failed := invalid("captcha_token", "captcha verification failed")
	if e.captcha == nil {
		return failed
	}
	res, err := e.captcha.Verify(ctx, captchaToken, ClientIPFromContext(ctx))
	if err != nil {
		e.log.WithError(err).Warn("secureauth: captcha provider failed")
		return failed
	}
	if !res.Success || res.Score <= e.config.Captcha.MinScore {
		return failed
	}
	return nil
}
