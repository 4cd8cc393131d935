package mfa

import (
	"context"
	"errors"
	"time"
)

// FactorConfig is the per user, per factor enrollment row.
type FactorConfig struct {
	UserID    string
	Factor    string
	Enabled   bool
	Secret    string         // TOTP only; encrypted when a key is configured
	Data      map[string]any // factor specific, stored as JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BackupCode is one hashed single-use code.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// BackupCodeStats summarizes a user's current batch.
type BackupCodeStats struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// EmailCode is one issued email code.
type EmailCode struct {
	ID        string
	UserID    string
	Code      string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	Attempts  int
	CreatedAt time.Time
}

// EmailCodeState is the lifecycle position of an EmailCode.
type EmailCodeState string

const (
	EmailCodeIssued    EmailCodeState = "issued"
	EmailCodeAttempted EmailCodeState = "attempted"
	EmailCodeConsumed  EmailCodeState = "consumed"
	EmailCodeExpired   EmailCodeState = "expired"
	EmailCodeExhausted EmailCodeState = "exhausted"
)

// State derives the lifecycle state at now. Consumed wins over the other
// terminal states, then exhausted, then expired.
func (c EmailCode) State(now time.Time, maxAttempts int) EmailCodeState {
	switch {
	case c.Used:
		return EmailCodeConsumed
	case c.Attempts >= maxAttempts:
		return EmailCodeExhausted
	case !now.Before(c.ExpiresAt):
		return EmailCodeExpired
	case c.Attempts > 0:
		return EmailCodeAttempted
	default:
		return EmailCodeIssued
	}
}

// enrolled reports whether the user has an enabled row for factor. A missing
// row is not an error.
func enrolled(ctx context.Context, store ConfigStore, userID, factor string) (bool, error) {
	cfg, err := store.GetFactorConfig(ctx, userID, factor)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	return cfg.Enabled, nil
}

// ConfigStore persists FactorConfig rows.
type ConfigStore interface {
	// GetFactorConfig returns ErrNotFound when the user has no row for factor.
	GetFactorConfig(ctx context.Context, userID, factor string) (*FactorConfig, error)
	// UpsertFactorConfig creates or replaces the row for (UserID, Factor).
	UpsertFactorConfig(ctx context.Context, cfg FactorConfig) error
	// DeleteFactorConfig removes the row; missing rows are not an error.
	DeleteFactorConfig(ctx context.Context, userID, factor string) error
	ListFactorConfigs(ctx context.Context, userID string) ([]FactorConfig, error)
	// SetFactorEnabled returns ErrNotFound when the row does not exist.
	SetFactorEnabled(ctx context.Context, userID, factor string, enabled bool) error
}

// BackupCodeStore persists backup codes.
type BackupCodeStore interface {
	// ReplaceBackupCodes deletes every code of the user and inserts codes as
	// one atomic unit.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCode) error
	ListUnusedBackupCodes(ctx context.Context, userID string) ([]BackupCode, error)
	// ConsumeBackupCode marks the code used only if it is still unused and
	// reports whether this call performed the transition.
	ConsumeBackupCode(ctx context.Context, userID, codeID string, usedAt time.Time) (bool, error)
	BackupCodeStats(ctx context.Context, userID string) (BackupCodeStats, error)
	DeleteBackupCodes(ctx context.Context, userID string) error
}

// EmailCodeStore persists issued email codes.
type EmailCodeStore interface {
	CreateEmailCode(ctx context.Context, code EmailCode) error
	// LatestEligibleEmailCode returns the newest code that is unused, not
	// expired at now and has fewer than maxAttempts attempts, or ErrNotFound.
	LatestEligibleEmailCode(ctx context.Context, userID string, now time.Time, maxAttempts int) (*EmailCode, error)
	// IncrementEmailCodeAttempts adds one attempt if the code is still unused,
	// unexpired and below maxAttempts, and reports whether it did.
	IncrementEmailCodeAttempts(ctx context.Context, codeID string, maxAttempts int, now time.Time) (bool, error)
	// ConsumeEmailCode marks the code used if it is unused and unexpired at
	// usedAt, and reports whether this call performed the transition.
	ConsumeEmailCode(ctx context.Context, codeID string, usedAt time.Time) (bool, error)
	DeleteEmailCodes(ctx context.Context, userID string) error
	// DeleteStaleEmailCodes removes codes expired before now and used codes
	// created before usedBefore.
	DeleteStaleEmailCodes(ctx context.Context, now, usedBefore time.Time) (int64, error)
}

// AuditStore persists audit events.
type AuditStore interface {
	StoreAuditEvent(ctx context.Context, event AuditEvent) error
	// CountVerifications counts verify events since the given time.
	CountVerifications(ctx context.Context, userID string, since time.Time) (total, succeeded int, err error)
}

// Storage is implemented by complete backends such as MemoryStorage and pgstore.
type Storage interface {
	ConfigStore
	BackupCodeStore
	EmailCodeStore
	AuditStore
}
