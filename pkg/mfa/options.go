package mfa

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/mfakit/pkg/qrcode"
	"github.com/dmitrymomot/mfakit/pkg/throttle"
)

// RateLimiter is satisfied by *throttle.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (*throttle.Result, error)
}

type options struct {
	logger        *slog.Logger
	now           func() time.Time
	qr            qrcode.Renderer
	sendLimiter   RateLimiter
	verifyLimiter RateLimiter
	policy        Policy
	directory     UserDirectory
}

// Option configures factors, the registry and the sweeper. Options that do
// not apply to the constructed component are ignored.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithQRRenderer sets the renderer producing QR image URLs for TOTP setup.
func WithQRRenderer(r qrcode.Renderer) Option {
	return func(o *options) { o.qr = r }
}

// WithSendLimiter limits how often email codes are issued per user.
func WithSendLimiter(l RateLimiter) Option {
	return func(o *options) { o.sendLimiter = l }
}

// WithVerifyLimiter limits verification attempts per user and factor in the registry.
func WithVerifyLimiter(l RateLimiter) Option {
	return func(o *options) { o.verifyLimiter = l }
}

// WithPolicy sets the policy deciding which users must use MFA.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithDirectory gives the registry access to user records for grace periods.
func WithDirectory(d UserDirectory) Option {
	return func(o *options) { o.directory = d }
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
