package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/mfakit/pkg/email"
	"github.com/dmitrymomot/mfakit/pkg/logger"
	"github.com/dmitrymomot/mfakit/pkg/mfa"
	"github.com/dmitrymomot/mfakit/pkg/mfa/pgstore"
	"github.com/dmitrymomot/mfakit/pkg/pg"
	"github.com/dmitrymomot/mfakit/pkg/qrcode"
	"github.com/dmitrymomot/mfakit/pkg/redis"
	"github.com/dmitrymomot/mfakit/pkg/throttle"
)

// Engine is a fully wired MFA engine backed by PostgreSQL.
type Engine struct {
	Registry *mfa.Registry
	TOTP     *mfa.TOTPFactor
	Email    *mfa.EmailFactor
	Backup   *mfa.BackupFactor
	Sweeper  *mfa.Sweeper
	Store    *pgstore.Store
	Logger   *slog.Logger

	sweepInterval time.Duration
	pool          *pgxpool.Pool
	redis         *goredis.Client
	memStore      *throttle.MemoryStore
	checks        []func(context.Context) error
}

type options struct {
	logger    *slog.Logger
	directory mfa.UserDirectory
	sender    email.Sender
	clock     func() time.Time
}

// Option customizes New.
type Option func(*options)

// WithLogger replaces the logger built from Config.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDirectory replaces the table-backed pgstore.UserDirectory.
func WithDirectory(d mfa.UserDirectory) Option {
	return func(o *options) { o.directory = d }
}

// WithSender replaces the sender selected from Config.Mail.
func WithSender(s email.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithClock overrides the time source of factors, registry and limiters.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New connects to PostgreSQL (and Redis when configured), applies migrations
// and builds the factors and the registry.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.FromConfig(cfg.Log, os.Stdout)
	}
	log := o.logger

	e := &Engine{Logger: log, sweepInterval: cfg.SweepInterval}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	e.checks = append(e.checks, pg.Healthcheck(pool))

	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx, pool, cfg.PG, pgstore.Migrations(), log); err != nil {
			return nil, err
		}
	}
	e.Store = pgstore.New(pool)

	directory := o.directory
	if directory == nil {
		directory = pgstore.NewUserDirectory(pool, cfg.Users)
	}
	sender := o.sender
	if sender == nil {
		if sender, err = email.NewSender(cfg.Mail); err != nil {
			return nil, err
		}
	}

	limits, err := e.limitStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	common := []mfa.Option{mfa.WithLogger(log), mfa.WithClock(o.clock)}

	factorOpts := append([]mfa.Option{}, common...)
	if qr := qrRenderer(cfg.QR); qr != nil {
		factorOpts = append(factorOpts, mfa.WithQRRenderer(qr))
	}
	if cfg.Email.SendBurst > 0 {
		l, err := throttle.New(limits, throttle.Config{
			Capacity:       cfg.Email.SendBurst,
			RefillRate:     1,
			RefillInterval: positive(cfg.Email.SendCooldown, time.Minute),
		}, throttle.WithKeyPrefix("mfa:send:"), throttle.WithClock(o.clock))
		if err != nil {
			return nil, err
		}
		factorOpts = append(factorOpts, mfa.WithSendLimiter(l))
	}

	if e.TOTP, err = mfa.NewTOTPFactor(cfg.TOTP, e.Store, directory, factorOpts...); err != nil {
		return nil, err
	}
	if e.Email, err = mfa.NewEmailFactor(cfg.Email, e.Store, directory, sender, factorOpts...); err != nil {
		return nil, err
	}
	if e.Backup, err = mfa.NewBackupFactor(cfg.Backup, e.Store, factorOpts...); err != nil {
		return nil, err
	}

	regOpts := append([]mfa.Option{mfa.WithDirectory(directory)}, common...)
	if cfg.Limits.VerifyBurst > 0 {
		l, err := throttle.New(limits, throttle.Config{
			Capacity:       cfg.Limits.VerifyBurst,
			RefillRate:     1,
			RefillInterval: positive(cfg.Limits.VerifyCooldown, time.Minute),
		}, throttle.WithKeyPrefix("mfa:verify:"), throttle.WithClock(o.clock))
		if err != nil {
			return nil, err
		}
		regOpts = append(regOpts, mfa.WithVerifyLimiter(l))
	}
	if e.Registry, err = mfa.NewRegistry(cfg.Registry, e.Store, e.Store, regOpts...); err != nil {
		return nil, err
	}
	for _, f := range []mfa.Factor{e.TOTP, e.Email, e.Backup} {
		if err := e.Registry.Register(f); err != nil {
			return nil, err
		}
	}

	e.Sweeper = mfa.NewSweeper([]mfa.Cleaner{e.Email}, mfa.WithLogger(log))

	log.InfoContext(ctx, "mfa engine ready",
		slog.Bool("enabled", e.Registry.Enabled()),
		slog.Bool("required", cfg.Registry.Required),
		slog.Bool("redis", e.redis != nil),
		slog.Bool("totp_encryption", cfg.TOTP.EncryptionKey != ""),
	)
	ok = true
	return e, nil
}

// limitStore returns the Redis-backed bucket store when Redis is configured
// and an in-process one otherwise.
func (e *Engine) limitStore(ctx context.Context, cfg Config) (throttle.Store, error) {
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		e.redis = client
		e.checks = append(e.checks, redis.Healthcheck(client))
		return throttle.NewRedisStore(client), nil
	}
	e.memStore = throttle.NewMemoryStore(
		throttle.WithCleanupInterval(cfg.Limits.MemoryCleanup, time.Hour),
	)
	return e.memStore, nil
}

func qrRenderer(cfg QRConfig) qrcode.Renderer {
	switch cfg.Mode {
	case QRModeNone:
		return nil
	case QRModeService:
		return qrcode.ServiceRenderer{Endpoint: cfg.Endpoint, Size: cfg.Size}
	default:
		return qrcode.DataURIRenderer{Size: cfg.Size}
	}
}

func positive(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// StartSweeper schedules the expired code cleanup at Config.SweepInterval.
// A zero interval leaves cleanup to an external scheduler.
func (e *Engine) StartSweeper() error {
	if e.sweepInterval <= 0 {
		return nil
	}
	return e.Sweeper.Start(e.sweepInterval)
}

// Healthcheck pings every backing service.
func (e *Engine) Healthcheck(ctx context.Context) error {
	var errs []error
	for _, check := range e.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops background work and releases connections.
func (e *Engine) Close() {
	if e.Sweeper != nil {
		e.Sweeper.Stop()
	}
	if e.memStore != nil {
		e.memStore.Close()
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.Logger.Error("failed to close redis client", logger.Error(err))
		}
	}
	if e.pool != nil {
		e.pool.Close()
	}
}
