package secureauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/secureauth/csrf"
	"github.com/MrEthical07/secureauth/internal"
	"github.com/MrEthical07/secureauth/internal/audit"
	"github.com/MrEthical07/secureauth/password"
	"github.com/MrEthical07/secureauth/ratelimit"
	"github.com/MrEthical07/secureauth/token"
	"github.com/MrEthical07/secureauth/twofactor"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis key prefixes used when the builder derives backends from WithRedis.
const (
	RedisLimiterPrefix = "secureauth:rl"
	RedisRevokerPrefix = "secureauth:revoked"
)

// Builder assembles an Engine.
//
// Builder instances are intended to be configured during initialization and
// used for a single Build.
type Builder struct {
	config    Config
	store     UserStore
	notifier  Notifier
	captcha   CaptchaVerifier
	auditSink AuditSink
	limiter   ratelimit.Limiter
	revoker   token.Revoker
	redis     redis.UniversalClient
	logger    logrus.FieldLogger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore sets the persistence collaborator. Required.
func (b *Builder) WithUserStore(s UserStore) *Builder {
	b.store = s
	return b
}

// WithNotifier sets the notification collaborator. Defaults to NopNotifier.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithCaptcha sets the CAPTCHA collaborator. Required when Captcha.Enabled.
func (b *Builder) WithCaptcha(c CaptchaVerifier) *Builder {
	b.captcha = c
	return b
}

// WithAuditSink sets where security events go. Defaults to a StoreSink over
// the user store.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRedis shares rate-limit state and token revocation through client.
// An explicit WithLimiter or WithRevoker takes precedence.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLimiter sets the rate limiter. Defaults to an in-process MemoryLimiter.
func (b *Builder) WithLimiter(l ratelimit.Limiter) *Builder {
	b.limiter = l
	return b
}

// WithRevoker enables token revocation on Logout.
func (b *Builder) WithRevoker(r token.Revoker) *Builder {
	b.revoker = r
	return b
}

// WithLogger sets the logger for swallowed failures. Defaults to logrus.New().
func (b *Builder) WithLogger(l logrus.FieldLogger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces time.Now throughout the engine.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can be
// built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("user store required")
	}
	if cfg.Captcha.Enabled && b.captcha == nil {
		return nil, errors.New("captcha verifier required when Captcha is enabled")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.New()
	}

	limiter := b.limiter
	if limiter == nil {
		if b.redis != nil {
			limiter = ratelimit.NewRedisLimiter(b.redis, RedisLimiterPrefix, now)
		} else {
			limiter = ratelimit.NewMemoryLimiter(now)
		}
	}

	revoker := b.revoker
	if revoker == nil && b.redis != nil {
		revoker = token.NewRedisRevoker(b.redis, RedisRevokerPrefix)
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	tf, err := twofactor.New(cfg.TwoFactor)
	if err != nil {
		return nil, err
	}

	issuerOpts := []token.Option{token.WithClock(now)}
	if revoker != nil {
		issuerOpts = append(issuerOpts, token.WithRevoker(revoker))
	}
	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte(cfg.Tokens.AccessSecret),
		RefreshSecret: []byte(cfg.Tokens.RefreshSecret),
		AccessTTL:     cfg.Tokens.AccessTTL,
		RememberMeTTL: cfg.Tokens.RememberMeTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
		Audience:      cfg.Tokens.Audience,
		Leeway:        cfg.Tokens.Leeway,
	}, issuerOpts...)
	if err != nil {
		return nil, err
	}

	guard, err := csrf.New([]byte(cfg.CSRF.Secret), cfg.CSRF.MaxAge, now)
	if err != nil {
		return nil, err
	}

	seed, err := internal.RandomHex(16)
	if err != nil {
		return nil, fmt.Errorf("seed dummy hash: %w", err)
	}
	dummy, err := hasher.Hash(seed)
	if err != nil {
		return nil, fmt.Errorf("compute dummy hash: %w", err)
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		notifier:  b.notifier,
		captcha:   b.captcha,
		limiter:   limiter,
		hasher:    hasher,
		twoFactor: tf,
		tokens:    issuer,
		csrf:      guard,
		auditSink: b.auditSink,
		metrics:   NewMetrics(cfg.Metrics),
		log:       logger,
		now:       now,
		dummyHash: dummy,
	}
	if engine.notifier == nil {
		engine.notifier = NopNotifier{}
	}
	if engine.auditSink == nil {
		engine.auditSink = StoreSink{Store: b.store}
	}
	if cfg.Audit.Async {
		engine.audit = audit.NewDispatcher[SecurityEvent](audit.Config{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, engine.auditSink, engine.auditFailed)
	}

	b.built = true

	return engine, nil
}
