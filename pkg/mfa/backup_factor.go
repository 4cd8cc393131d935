package mfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/mfakit/pkg/logger"
	"github.com/dmitrymomot/mfakit/pkg/otpcode"
)

// BackupStore is the storage needed by BackupFactor.
type BackupStore interface {
	ConfigStore
	BackupCodeStore
}

// BackupFactor manages printable single-use fallback codes. Only bcrypt
// hashes are stored.
type BackupFactor struct {
	cfg    BackupConfig
	store  BackupStore
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ Factor             = (*BackupFactor)(nil)
	_ VerifyInfoProvider = (*BackupFactor)(nil)
)

func NewBackupFactor(cfg BackupConfig, store BackupStore, opts ...Option) (*BackupFactor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: backup factor requires a store", ErrInvalidConfig)
	}
	o := newOptions(opts)
	return &BackupFactor{
		cfg:    cfg,
		store:  store,
		logger: o.logger.With(logger.Component("mfa"), logger.Factor(FactorBackup)),
		now:    o.now,
	}, nil
}

func (f *BackupFactor) Name() string        { return FactorBackup }
func (f *BackupFactor) DisplayName() string { return "Backup codes" }
func (f *BackupFactor) Description() string {
	return "Single-use codes to sign in when your other methods are unavailable"
}

// CanBePrimary is false: backup codes are a fallback only.
func (f *BackupFactor) CanBePrimary() bool { return false }
func (f *BackupFactor) SortOrder() int     { return 999 }

// IsConfigured requires an enabled enrollment with at least one unused code.
func (f *BackupFactor) IsConfigured(ctx context.Context, userID string) (bool, error) {
	ok, err := enrolled(ctx, f.store, userID, FactorBackup)
	if err != nil || !ok {
		return false, err
	}
	remaining, err := f.RemainingCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Setup replaces every previous code with a fresh batch and returns the
// plain codes. They cannot be retrieved again.
func (f *BackupFactor) Setup(ctx context.Context, userID string, _ map[string]any) (*SetupResult, error) {
	plain, err := otpcode.Batch(otpcode.HumanAlphabet, f.cfg.Length, f.cfg.Count)
	if err != nil {
		return nil, err
	}

	now := f.now()
	rows := make([]BackupCode, 0, len(plain))
	display := make([]string, 0, len(plain))
	for _, code := range plain {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), f.cfg.HashCost)
		if err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
		rows = append(rows, BackupCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  string(hash),
			CreatedAt: now,
		})
		display = append(display, otpcode.Format(code))
	}

	if err := f.store.ReplaceBackupCodes(ctx, userID, rows); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	if err := f.store.UpsertFactorConfig(ctx, FactorConfig{
		UserID:  userID,
		Factor:  FactorBackup,
		Enabled: true,
		Data: map[string]any{
			"generated_at": now.UTC().Format(time.RFC3339),
			"count":        len(rows),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	return &SetupResult{Factor: FactorBackup, Codes: display}, nil
}

// Verify accepts the code with or without separators and in any case. A
// match is consumed with a compare-and-set, so concurrent submissions of the
// same code succeed at most once.
func (f *BackupFactor) Verify(ctx context.Context, userID, code string) (bool, error) {
	code = otpcode.NormalizeAlphanumeric(code)
	if len(code) != f.cfg.Length {
		f.reject(ctx, userID, "length")
		return false, nil
	}
	ok, err := enrolled(ctx, f.store, userID, FactorBackup)
	if err != nil {
		return false, err
	}
	if !ok {
		f.reject(ctx, userID, "not_enrolled")
		return false, nil
	}

	codes, err := f.store.ListUnusedBackupCodes(ctx, userID)
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	for _, c := range codes {
		if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(code)) != nil {
			continue
		}
		consumed, err := f.store.ConsumeBackupCode(ctx, userID, c.ID, f.now())
		if err != nil {
			return false, errors.Join(ErrStorage, err)
		}
		if !consumed {
			f.reject(ctx, userID, "already_used")
			return false, nil
		}
		remaining, err := f.RemainingCodes(ctx, userID)
		if err == nil && remaining <= 2 {
			f.logger.InfoContext(ctx, "backup codes running low", logger.UserID(userID), slog.Int("remaining", remaining))
		}
		return true, nil
	}

	f.reject(ctx, userID, "mismatch")
	return false, nil
}

// Revoke deletes all codes and the enrollment.
func (f *BackupFactor) Revoke(ctx context.Context, userID string) error {
	if err := f.store.DeleteBackupCodes(ctx, userID); err != nil {
		return errors.Join(ErrStorage, err)
	}
	if err := f.store.DeleteFactorConfig(ctx, userID, FactorBackup); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// RemainingCodes returns the number of unused codes.
func (f *BackupFactor) RemainingCodes(ctx context.Context, userID string) (int, error) {
	st, err := f.UsageStats(ctx, userID)
	if err != nil {
		return 0, err
	}
	return st.Remaining, nil
}

// UsageStats summarizes the current batch.
func (f *BackupFactor) UsageStats(ctx context.Context, userID string) (BackupCodeStats, error) {
	st, err := f.store.BackupCodeStats(ctx, userID)
	if err != nil {
		return BackupCodeStats{}, errors.Join(ErrStorage, err)
	}
	return st, nil
}

func (f *BackupFactor) VerifyInfo(ctx context.Context, userID string) (*VerifyInfo, error) {
	remaining, err := f.RemainingCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &VerifyInfo{
		Factor:         FactorBackup,
		DisplayName:    f.DisplayName(),
		CodeLength:     f.cfg.Length,
		RemainingCodes: remaining,
	}, nil
}

func (f *BackupFactor) reject(ctx context.Context, userID, reason string) {
	f.logger.DebugContext(ctx, "backup code verification rejected", logger.UserID(userID), logger.Reason(reason))
}
