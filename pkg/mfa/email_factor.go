package mfa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mfakit/pkg/email"
	"github.com/dmitrymomot/mfakit/pkg/email/templates"
	"github.com/dmitrymomot/mfakit/pkg/logger"
	"github.com/dmitrymomot/mfakit/pkg/otpcode"
)

// EmailStore is the storage needed by EmailFactor.
type EmailStore interface {
	ConfigStore
	EmailCodeStore
}

// EmailFactor delivers short-lived numeric codes by email.
type EmailFactor struct {
	cfg       EmailConfig
	store     EmailStore
	directory UserDirectory
	sender    email.Sender
	limiter   RateLimiter
	logger    *slog.Logger
	now       func() time.Time
}

var (
	_ Factor             = (*EmailFactor)(nil)
	_ CodeSender         = (*EmailFactor)(nil)
	_ Cleaner            = (*EmailFactor)(nil)
	_ VerifyInfoProvider = (*EmailFactor)(nil)
)

func NewEmailFactor(cfg EmailConfig, store EmailStore, directory UserDirectory, sender email.Sender, opts ...Option) (*EmailFactor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || directory == nil || sender == nil {
		return nil, fmt.Errorf("%w: email factor requires a store, a user directory and a sender", ErrInvalidConfig)
	}
	o := newOptions(opts)
	return &EmailFactor{
		cfg:       cfg,
		store:     store,
		directory: directory,
		sender:    sender,
		limiter:   o.sendLimiter,
		logger:    o.logger.With(logger.Component("mfa"), logger.Factor(FactorEmail)),
		now:       o.now,
	}, nil
}

func (f *EmailFactor) Name() string        { return FactorEmail }
func (f *EmailFactor) DisplayName() string { return "Email code" }
func (f *EmailFactor) Description() string {
	return fmt.Sprintf("Receive a %d-digit verification code by email", f.cfg.CodeLength)
}
func (f *EmailFactor) CanBePrimary() bool { return true }
func (f *EmailFactor) SortOrder() int     { return 2 }

// IsConfigured requires an enabled enrollment and a current address in the
// directory.
func (f *EmailFactor) IsConfigured(ctx context.Context, userID string) (bool, error) {
	ok, err := enrolled(ctx, f.store, userID, FactorEmail)
	if err != nil || !ok {
		return false, err
	}
	_, err = f.address(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrSetupPrecondition):
		return false, nil
	default:
		return false, err
	}
}

// Setup enrolls the user's current address and drops previously issued codes.
func (f *EmailFactor) Setup(ctx context.Context, userID string, _ map[string]any) (*SetupResult, error) {
	address, err := f.address(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := f.store.DeleteEmailCodes(ctx, userID); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	now := f.now()
	if err := f.store.UpsertFactorConfig(ctx, FactorConfig{
		UserID:    userID,
		Factor:    FactorEmail,
		Enabled:   true,
		Data:      map[string]any{"email": address},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return &SetupResult{Factor: FactorEmail, MaskedEmail: MaskEmail(address)}, nil
}

// SendCode issues a new code and mails it. Earlier codes stay in storage but
// are no longer selected for verification.
func (f *EmailFactor) SendCode(ctx context.Context, userID string) (*SendResult, error) {
	configured, err := f.IsConfigured(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !configured {
		return nil, ErrFactorNotConfigured
	}
	if f.limiter != nil {
		res, err := f.limiter.Allow(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return nil, ErrTooManyRequests
		}
	}

	u, err := f.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	code, err := otpcode.Numeric(f.cfg.CodeLength)
	if err != nil {
		return nil, err
	}

	now := f.now()
	if err := f.store.CreateEmailCode(ctx, EmailCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		Code:      code,
		ExpiresAt: now.Add(f.cfg.CodeExpiry),
		CreatedAt: now,
	}); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	if err := f.deliver(ctx, u, code); err != nil {
		return nil, err
	}

	return &SendResult{ExpiresIn: f.cfg.CodeExpiry, MaskedEmail: MaskEmail(u.Email)}, nil
}

func (f *EmailFactor) deliver(ctx context.Context, u *User, code string) error {
	props := templates.VerificationCodeProps{
		AppName:       f.cfg.AppName,
		RecipientName: u.DisplayName,
		Code:          code,
		ExpiresIn:     int(f.cfg.CodeExpiry / time.Minute),
	}
	html, err := templates.Render(ctx, templates.VerificationCode(props))
	if err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	if err := f.sender.Send(ctx, email.Message{
		To:       u.Email,
		Subject:  f.cfg.Subject,
		HTMLBody: html,
		TextBody: templates.VerificationCodeText(props),
		Tag:      "mfa-email-code",
	}); err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	return nil
}

// Verify checks the code against the newest eligible code only. The attempt
// counter is raised before the comparison, so every guess counts.
func (f *EmailFactor) Verify(ctx context.Context, userID, code string) (bool, error) {
	code = otpcode.StripSpace(code)
	if len(code) != f.cfg.CodeLength {
		f.reject(ctx, userID, "length")
		return false, nil
	}
	ok, err := enrolled(ctx, f.store, userID, FactorEmail)
	if err != nil {
		return false, err
	}
	if !ok {
		f.reject(ctx, userID, "not_enrolled")
		return false, nil
	}

	now := f.now()
	rec, err := f.store.LatestEligibleEmailCode(ctx, userID, now, f.cfg.MaxAttempts)
	if errors.Is(err, ErrNotFound) {
		f.reject(ctx, userID, "no_eligible_code")
		return false, nil
	}
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}

	counted, err := f.store.IncrementEmailCodeAttempts(ctx, rec.ID, f.cfg.MaxAttempts, now)
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	if !counted {
		// Another request exhausted or consumed the code in between.
		f.reject(ctx, userID, "attempt_not_counted")
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		rec.Attempts++
		f.reject(ctx, userID, "mismatch", slog.String("state", string(rec.State(now, f.cfg.MaxAttempts))))
		return false, nil
	}

	consumed, err := f.store.ConsumeEmailCode(ctx, rec.ID, now)
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	if !consumed {
		f.reject(ctx, userID, "already_used")
		return false, nil
	}
	return true, nil
}

// Revoke removes the enrollment and all issued codes.
func (f *EmailFactor) Revoke(ctx context.Context, userID string) error {
	if err := f.store.DeleteEmailCodes(ctx, userID); err != nil {
		return errors.Join(ErrStorage, err)
	}
	if err := f.store.DeleteFactorConfig(ctx, userID, FactorEmail); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// CleanExpiredCodes removes expired codes and used codes older than the
// retention window.
func (f *EmailFactor) CleanExpiredCodes(ctx context.Context) (int64, error) {
	now := f.now()
	n, err := f.store.DeleteStaleEmailCodes(ctx, now, now.Add(-f.cfg.Retention))
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return n, nil
}

func (f *EmailFactor) VerifyInfo(ctx context.Context, userID string) (*VerifyInfo, error) {
	info := &VerifyInfo{
		Factor:        FactorEmail,
		DisplayName:   f.DisplayName(),
		CodeLength:    f.cfg.CodeLength,
		ExpiryMinutes: int(f.cfg.CodeExpiry / time.Minute),
		MaskedEmail:   MaskEmail(""),
	}
	if address, err := f.address(ctx, userID); err == nil {
		info.MaskedEmail = MaskEmail(address)
	} else if !errors.Is(err, ErrSetupPrecondition) {
		return nil, err
	}
	return info, nil
}

// address resolves the user's current address. Unknown users and users
// without an address are setup precondition failures.
func (f *EmailFactor) address(ctx context.Context, userID string) (string, error) {
	u, err := f.directory.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return "", errors.Join(ErrSetupPrecondition, ErrUserNotFound)
	}
	if err != nil {
		return "", err
	}
	if u.Email == "" || !email.IsValidAddress(u.Email) {
		return "", errors.Join(ErrSetupPrecondition, ErrNoEmailAddress)
	}
	return u.Email, nil
}

func (f *EmailFactor) reject(ctx context.Context, userID, reason string, attrs ...slog.Attr) {
	args := []any{logger.UserID(userID), logger.Reason(reason)}
	for _, a := range attrs {
		args = append(args, a)
	}
	f.logger.DebugContext(ctx, "email code verification rejected", args...)
}
