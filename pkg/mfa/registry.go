package mfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/mfakit/pkg/logger"
)

// Registry is the entry point for login flows: it knows every factor, which
// of them a user has configured and whether the user must use MFA.
type Registry struct {
	cfg       RegistryConfig
	configs   ConfigStore
	audit     auditor
	policy    Policy
	directory UserDirectory
	limiter   RateLimiter
	logger    *slog.Logger
	now       func() time.Time

	enabled atomic.Bool

	mu      sync.RWMutex
	factors map[string]Factor
}

// Stats summarizes a user's MFA usage over RegistryConfig.StatsWindow.
type Stats struct {
	ConfiguredFactors []string      `json:"configured_factors"`
	Verifications     int           `json:"verifications"`
	Successful        int           `json:"successful"`
	Failed            int           `json:"failed"`
	Window            time.Duration `json:"window"`
}

// NewRegistry creates an empty registry. audit may be nil to disable the
// audit trail.
func NewRegistry(cfg RegistryConfig, configs ConfigStore, audit AuditStore, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if configs == nil {
		return nil, fmt.Errorf("%w: registry requires a config store", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	o := newOptions(opts)
	log := o.logger.With(logger.Component("mfa"))

	r := &Registry{
		cfg:       cfg,
		configs:   configs,
		audit:     auditor{store: audit, logger: log, now: o.now},
		policy:    o.policy,
		directory: o.directory,
		limiter:   o.verifyLimiter,
		logger:    log,
		now:       o.now,
		factors:   make(map[string]Factor),
	}
	r.enabled.Store(!cfg.Disabled)
	return r, nil
}

// Register adds a factor. Names must be unique.
func (r *Registry) Register(f Factor) error {
	if f == nil {
		return fmt.Errorf("%w: nil factor", ErrInvalidConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factors[f.Name()]; ok {
		return fmt.Errorf("%w: factor %q already registered", ErrInvalidConfig, f.Name())
	}
	r.factors[f.Name()] = f
	return nil
}

// Factor returns the registered factor with the given name.
func (r *Registry) Factor(name string) (Factor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFactorNotRegistered, name)
	}
	return f, nil
}

// Factors returns all registered factors ordered by SortOrder, then name.
func (r *Registry) Factors() []Factor {
	r.mu.RLock()
	out := make([]Factor, 0, len(r.factors))
	for _, f := range r.factors {
		out = append(out, f)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Factor) int {
		if a.SortOrder() != b.SortOrder() {
			return a.SortOrder() - b.SortOrder()
		}
		return strings.Compare(a.Name(), b.Name())
	})
	return out
}

func (r *Registry) Enable()       { r.enabled.Store(true) }
func (r *Registry) Disable()      { r.enabled.Store(false) }
func (r *Registry) Enabled() bool { return r.enabled.Load() }

// ConfiguredFactors returns the factors the user can verify with, in
// SortOrder.
func (r *Registry) ConfiguredFactors(ctx context.Context, userID string) ([]Factor, error) {
	var out []Factor
	for _, f := range r.Factors() {
		ok, err := f.IsConfigured(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("check %s factor: %w", f.Name(), err)
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// PrimaryFactor returns the first configured factor that can be used on its
// own, or ErrNoPrimaryFactor.
func (r *Registry) PrimaryFactor(ctx context.Context, userID string) (Factor, error) {
	factors, err := r.ConfiguredFactors(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, f := range factors {
		if f.CanBePrimary() {
			return f, nil
		}
	}
	return nil, ErrNoPrimaryFactor
}

// HasPrimaryFactor reports whether PrimaryFactor would succeed.
func (r *Registry) HasPrimaryFactor(ctx context.Context, userID string) (bool, error) {
	_, err := r.PrimaryFactor(ctx, userID)
	if errors.Is(err, ErrNoPrimaryFactor) {
		return false, nil
	}
	return err == nil, err
}

// HasMFA reports whether the user has any configured factor.
func (r *Registry) HasMFA(ctx context.Context, userID string) (bool, error) {
	factors, err := r.ConfiguredFactors(ctx, userID)
	return len(factors) > 0, err
}

// IsRequired reports whether the user must complete MFA. Always false while
// the engine is disabled.
func (r *Registry) IsRequired(ctx context.Context, userID string) (bool, error) {
	if !r.Enabled() {
		return false, nil
	}
	if r.cfg.Required {
		return true, nil
	}
	if r.policy == nil {
		return false, nil
	}
	return r.policy.Required(ctx, userID)
}

// CheckPolicy returns ErrPrimaryFactorRequired when the user must use MFA,
// has no primary factor and the grace period is over. Backup codes alone
// never satisfy the policy.
func (r *Registry) CheckPolicy(ctx context.Context, userID string) error {
	required, err := r.IsRequired(ctx, userID)
	if err != nil || !required {
		return err
	}
	ok, err := r.HasPrimaryFactor(ctx, userID)
	if err != nil || ok {
		return err
	}
	if r.directory != nil {
		inGrace, err := r.InGracePeriod(ctx, userID)
		if err != nil {
			return err
		}
		if inGrace {
			return nil
		}
	}
	return ErrPrimaryFactorRequired
}

// GracePeriodEnd returns the account creation time plus the grace period.
func (r *Registry) GracePeriodEnd(ctx context.Context, userID string) (time.Time, error) {
	if r.directory == nil {
		return time.Time{}, fmt.Errorf("%w: grace period needs a user directory", ErrInvalidConfig)
	}
	u, err := r.directory.GetUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if u.CreatedAt.IsZero() {
		return time.Time{}, nil
	}
	return u.CreatedAt.Add(r.cfg.GracePeriod), nil
}

// InGracePeriod reports whether a user without MFA may still sign in.
func (r *Registry) InGracePeriod(ctx context.Context, userID string) (bool, error) {
	end, err := r.GracePeriodEnd(ctx, userID)
	if err != nil {
		return false, err
	}
	return r.now().Before(end), nil
}

// Verify checks a code with the named factor and records the attempt.
// Unknown and unconfigured factors verify as false.
func (r *Registry) Verify(ctx context.Context, userID, factorName, code string) (bool, error) {
	if !r.Enabled() {
		return false, ErrMFADisabled
	}
	if r.limiter != nil {
		res, err := r.limiter.Allow(ctx, userID+":"+factorName)
		if err != nil {
			return false, err
		}
		if !res.Allowed {
			r.audit.record(ctx, userID, factorName, ActionVerify, false, map[string]any{"reason": "rate_limited"})
			return false, ErrTooManyRequests
		}
	}

	f, err := r.Factor(factorName)
	if err != nil {
		r.audit.record(ctx, userID, factorName, ActionVerify, false, map[string]any{"reason": "factor_not_registered"})
		return false, nil
	}
	configured, err := f.IsConfigured(ctx, userID)
	if err != nil {
		return false, err
	}
	if !configured {
		r.audit.record(ctx, userID, factorName, ActionVerify, false, map[string]any{"reason": "factor_not_configured"})
		return false, nil
	}

	ok, err := f.Verify(ctx, userID, code)
	if err != nil {
		r.logger.ErrorContext(ctx, "factor verification failed", logger.UserID(userID), logger.Factor(factorName), logger.Error(err))
		return false, err
	}
	r.audit.record(ctx, userID, factorName, ActionVerify, ok, nil)
	return ok, nil
}

// Setup enrolls the user in the named factor.
func (r *Registry) Setup(ctx context.Context, userID, factorName string, data map[string]any) (*SetupResult, error) {
	f, err := r.Factor(factorName)
	if err != nil {
		return nil, err
	}
	res, err := f.Setup(ctx, userID, data)
	r.audit.record(ctx, userID, factorName, ActionSetup, err == nil, errDetails(err))
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "factor configured", logger.UserID(userID), logger.Factor(factorName))
	return res, nil
}

// SendCode issues a code for factors that deliver codes out of band.
func (r *Registry) SendCode(ctx context.Context, userID, factorName string) (*SendResult, error) {
	if !r.Enabled() {
		return nil, ErrMFADisabled
	}
	f, err := r.Factor(factorName)
	if err != nil {
		return nil, err
	}
	sender, ok := f.(CodeSender)
	if !ok {
		return nil, fmt.Errorf("%w: factor %q does not send codes", ErrInvalidConfig, factorName)
	}
	res, err := sender.SendCode(ctx, userID)
	r.audit.record(ctx, userID, factorName, ActionSendCode, err == nil, errDetails(err))
	return res, err
}

// Revoke removes the user's state for the named factor.
func (r *Registry) Revoke(ctx context.Context, userID, factorName string) error {
	f, err := r.Factor(factorName)
	if err != nil {
		return err
	}
	err = f.Revoke(ctx, userID)
	r.audit.record(ctx, userID, factorName, ActionRevoke, err == nil, errDetails(err))
	if err == nil {
		r.logger.InfoContext(ctx, "factor revoked", logger.UserID(userID), logger.Factor(factorName))
	}
	return err
}

// RevokeAll revokes every registered factor, continuing past failures.
func (r *Registry) RevokeAll(ctx context.Context, userID string) error {
	var errs []error
	for _, f := range r.Factors() {
		if err := r.Revoke(ctx, userID, f.Name()); err != nil {
			errs = append(errs, fmt.Errorf("revoke %s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SetFactorEnabled toggles a configured factor without discarding its state.
func (r *Registry) SetFactorEnabled(ctx context.Context, userID, factorName string, enabled bool) error {
	if _, err := r.Factor(factorName); err != nil {
		return err
	}
	action := ActionDisable
	if enabled {
		action = ActionEnable
	}
	err := r.configs.SetFactorEnabled(ctx, userID, factorName, enabled)
	if errors.Is(err, ErrNotFound) {
		err = ErrFactorNotConfigured
	} else if err != nil {
		err = errors.Join(ErrStorage, err)
	}
	r.audit.record(ctx, userID, factorName, action, err == nil, errDetails(err))
	return err
}

// VerifyInfo returns the form metadata of the named factor.
func (r *Registry) VerifyInfo(ctx context.Context, userID, factorName string) (*VerifyInfo, error) {
	f, err := r.Factor(factorName)
	if err != nil {
		return nil, err
	}
	if p, ok := f.(VerifyInfoProvider); ok {
		return p.VerifyInfo(ctx, userID)
	}
	return &VerifyInfo{Factor: f.Name(), DisplayName: f.DisplayName()}, nil
}

// Stats returns configured factors and verification counts for the user.
func (r *Registry) Stats(ctx context.Context, userID string) (*Stats, error) {
	factors, err := r.ConfiguredFactors(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &Stats{ConfiguredFactors: make([]string, 0, len(factors)), Window: r.cfg.StatsWindow}
	for _, f := range factors {
		st.ConfiguredFactors = append(st.ConfiguredFactors, f.Name())
	}
	if r.audit.store == nil {
		return st, nil
	}
	total, ok, err := r.audit.store.CountVerifications(ctx, userID, r.now().Add(-r.cfg.StatsWindow))
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	st.Verifications, st.Successful, st.Failed = total, ok, total-ok
	return st, nil
}

func errDetails(err error) map[string]any {
	if err == nil {
		return nil
	}
	return map[string]any{"error": err.Error()}
}
