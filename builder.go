package auth

import (
	"context"
	"errors"

	"github.com/infusephp/auth/internal/stores"
	"github.com/infusephp/auth/password"
	"github.com/infusephp/auth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Manager]. Construction is allocation-only until Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider  UserProvider
	mailer    Mailer
	sink      Sink
	hasher    Hasher
	limiter   RateLimiter
	clock     Clock
	twoFactor TwoFactorStrategy

	extraStrategies []Strategy

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing the engine's stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the user-table collaborator. Required.
func (b *Builder) WithUserProvider(provider UserProvider) *Builder {
	b.provider = provider
	return b
}

// WithMailer sets the email collaborator. Optional; without one, issued
// links are stored but no notification goes out.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets the security-event sink.
func (b *Builder) WithAuditSink(sink Sink) *Builder {
	b.sink = sink
	return b
}

// WithHasher replaces the default argon2id password hasher.
func (b *Builder) WithHasher(hasher Hasher) *Builder {
	b.hasher = hasher
	return b
}

// WithRateLimiter replaces the limiter chosen by configuration.
func (b *Builder) WithRateLimiter(limiter RateLimiter) *Builder {
	b.limiter = limiter
	return b
}

// WithClock replaces the system clock, for tests and replayed batch runs.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithTwoFactorStrategy replaces the built-in TOTP strategy.
func (b *Builder) WithTwoFactorStrategy(strategy TwoFactorStrategy) *Builder {
	b.twoFactor = strategy
	return b
}

// WithStrategy registers an additional credential strategy alongside the
// built-in traditional one.
func (b *Builder) WithStrategy(strategy Strategy) *Builder {
	b.extraStrategies = append(b.extraStrategies, strategy)
	return b
}

// Build validates the configuration, wires the stores and strategy registry
// once, and returns the Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := b.config
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.provider == nil {
		return nil, errors.New("user provider is required")
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	hasher := b.hasher
	if hasher == nil {
		var err error
		hasher, err = password.NewArgon2(cfg.Password)
		if err != nil {
			return nil, err
		}
	}

	limiter := b.limiter
	if limiter == nil {
		if cfg.RateLimit.Enabled {
			limiter = NewCountingRateLimiter(b.redis, cfg.Session.RedisPrefix+":fl", cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window)
		} else {
			limiter = NoopRateLimiter{}
		}
	}

	links := stores.NewUserLinks(b.redis, cfg.Session.RedisPrefix+":ul")
	persistent := stores.NewPersistentSessions(b.redis, cfg.Session.RedisPrefix+":pr", cfg.Remember.TokenKey)
	active := stores.NewActiveSessions(b.redis, cfg.Session.RedisPrefix+":as")

	codec, err := session.NewRememberCodec(cfg.Remember.SigningKey)
	if err != nil {
		return nil, err
	}

	storage := session.NewStore(
		cfg.sessionConfig(),
		codec,
		persistent,
		active,
		providerResolver{provider: b.provider},
		clock.Now,
	)

	registry := newStrategyRegistry()
	if err := registry.register(newTraditionalStrategy(cfg.Login, b.provider, hasher, limiter, links)); err != nil {
		return nil, err
	}
	for _, strategy := range b.extraStrategies {
		if err := registry.register(strategy); err != nil {
			return nil, err
		}
	}

	twoFactor := b.twoFactor
	if twoFactor == nil && cfg.TwoFactor.Enabled {
		twoFactor = NewTOTPStrategy(cfg.TwoFactor, clock)
	}

	return &Manager{
		cfg:        cfg,
		registry:   registry,
		twoFactor:  twoFactor,
		storage:    storage,
		provider:   b.provider,
		links:      links,
		active:     active,
		persistent: persistent,
		limiter:    limiter,
		hasher:     hasher,
		mailer:     b.mailer,
		audit:      newAuditDispatcher(cfg.Audit, b.sink),
		metrics:    newMetrics(cfg.Metrics),
		clock:      clock,
	}, nil
}

// providerResolver adapts [UserProvider] to the session package's narrow
// email lookup.
type providerResolver struct {
	provider UserProvider
}

func (r providerResolver) UserIDByEmail(ctx context.Context, email string) (int64, bool, error) {
	record, err := r.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return 0, false, err
	}
	if record == nil {
		return 0, false, nil
	}
	return record.ID, true, nil
}
