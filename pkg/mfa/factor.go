package mfa

import (
	"context"
	"time"
)

// Names of the built-in factors.
const (
	FactorTOTP   = "totp"
	FactorEmail  = "email"
	FactorBackup = "backup"
)

// Factor is one independent verification method.
//
// Verify reports a wrong, expired, exhausted or already used code as
// (false, nil); a non-nil error always means an infrastructure failure.
// Revoke is idempotent.
type Factor interface {
	Name() string
	DisplayName() string
	Description() string

	IsConfigured(ctx context.Context, userID string) (bool, error)
	Setup(ctx context.Context, userID string, data map[string]any) (*SetupResult, error)
	Verify(ctx context.Context, userID, code string) (bool, error)
	Revoke(ctx context.Context, userID string) error

	// CanBePrimary reports whether the factor alone satisfies an MFA challenge.
	CanBePrimary() bool
	// SortOrder orders factors for presentation, lowest first.
	SortOrder() int
}

// SetupResult carries the artifacts shown to the user once after Setup.
// Only the fields relevant to the factor are set.
type SetupResult struct {
	Factor string `json:"factor"`

	// TOTP
	Secret          string `json:"secret,omitempty"`
	FormattedSecret string `json:"formatted_secret,omitempty"`
	OTPAuthURI      string `json:"otpauth_uri,omitempty"`
	QRCodeURL       string `json:"qr_code_url,omitempty"`

	// Backup codes, formatted for display.
	Codes []string `json:"codes,omitempty"`

	// Email
	MaskedEmail string `json:"masked_email,omitempty"`
}

// VerifyInfo describes what a verification form for a factor needs to show.
type VerifyInfo struct {
	Factor         string `json:"factor"`
	DisplayName    string `json:"display_name"`
	CodeLength     int    `json:"code_length"`
	MaskedEmail    string `json:"masked_email,omitempty"`
	ExpiryMinutes  int    `json:"expiry_minutes,omitempty"`
	RemainingCodes int    `json:"remaining_codes,omitempty"`
}

// VerifyInfoProvider is implemented by factors that expose form metadata.
type VerifyInfoProvider interface {
	VerifyInfo(ctx context.Context, userID string) (*VerifyInfo, error)
}

// SendResult is returned after a one-time code has been issued.
type SendResult struct {
	ExpiresIn   time.Duration `json:"expires_in"`
	MaskedEmail string        `json:"masked_email"`
}

// CodeSender is implemented by factors that deliver codes out of band.
type CodeSender interface {
	SendCode(ctx context.Context, userID string) (*SendResult, error)
}

// Cleaner is implemented by factors whose stale rows need periodic removal.
type Cleaner interface {
	CleanExpiredCodes(ctx context.Context) (int64, error)
}
