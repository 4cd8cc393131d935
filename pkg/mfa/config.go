package mfa

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/mfakit/pkg/totp"
)

// TOTPConfig configures the authenticator app factor.
type TOTPConfig struct {
	Issuer    string        `env:"MFA_TOTP_ISSUER" envDefault:"ISER Auth System"`
	Digits    int           `env:"MFA_TOTP_DIGITS" envDefault:"6"`
	Period    time.Duration `env:"MFA_TOTP_PERIOD" envDefault:"30s"`
	Algorithm string        `env:"MFA_TOTP_ALGORITHM" envDefault:"SHA1"`
	Skew      int           `env:"MFA_TOTP_SKEW" envDefault:"1"`
	// EncryptionKey is a base64 encoded 32-byte key. Secrets are stored in
	// plain base32 when it is empty.
	EncryptionKey string `env:"MFA_TOTP_ENCRYPTION_KEY"`
}

func (c TOTPConfig) withDefaults() TOTPConfig {
	if c.Issuer == "" {
		c.Issuer = "ISER Auth System"
	}
	if c.Digits == 0 {
		c.Digits = totp.DefaultDigits
	}
	if c.Period == 0 {
		c.Period = totp.DefaultPeriod * time.Second
	}
	if c.Algorithm == "" {
		c.Algorithm = string(totp.DefaultAlgorithm)
	}
	c.Algorithm = strings.ToUpper(c.Algorithm)
	if c.Skew == 0 {
		c.Skew = totp.DefaultSkew
	}
	return c
}

func (c TOTPConfig) params() totp.Params {
	return totp.Params{
		Digits:    c.Digits,
		Period:    int(c.Period / time.Second),
		Algorithm: totp.Algorithm(c.Algorithm),
		Skew:      c.Skew,
	}
}

// Validate checks the configuration after defaults are applied.
func (c TOTPConfig) Validate() error {
	c = c.withDefaults()
	if c.Period%time.Second != 0 || c.Period < time.Second {
		return fmt.Errorf("%w: totp period must be a whole number of seconds, got %s", ErrInvalidConfig, c.Period)
	}
	if err := c.params().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// EmailConfig configures the emailed one-time code factor.
type EmailConfig struct {
	CodeLength  int           `env:"MFA_EMAIL_CODE_LENGTH" envDefault:"6"`
	CodeExpiry  time.Duration `env:"MFA_EMAIL_CODE_EXPIRY" envDefault:"10m"`
	MaxAttempts int           `env:"MFA_EMAIL_MAX_ATTEMPTS" envDefault:"3"`
	Subject     string        `env:"MFA_EMAIL_SUBJECT" envDefault:"Your verification code"`
	AppName     string        `env:"MFA_EMAIL_APP_NAME" envDefault:"ISER Auth System"`
	// Retention keeps consumed codes for audit before the sweep removes them.
	Retention time.Duration `env:"MFA_EMAIL_RETENTION" envDefault:"24h"`
	// SendBurst codes may be sent back to back; one more becomes available
	// every SendCooldown. Zero SendBurst disables the limit.
	SendBurst    int           `env:"MFA_EMAIL_SEND_BURST" envDefault:"3"`
	SendCooldown time.Duration `env:"MFA_EMAIL_SEND_COOLDOWN" envDefault:"1m"`
}

func (c EmailConfig) withDefaults() EmailConfig {
	if c.CodeLength == 0 {
		c.CodeLength = 6
	}
	if c.CodeExpiry == 0 {
		c.CodeExpiry = 10 * time.Minute
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Subject == "" {
		c.Subject = "Your verification code"
	}
	if c.AppName == "" {
		c.AppName = "ISER Auth System"
	}
	if c.Retention == 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SendCooldown == 0 {
		c.SendCooldown = time.Minute
	}
	return c
}

func (c EmailConfig) Validate() error {
	c = c.withDefaults()
	if c.CodeLength < 4 || c.CodeLength > 10 {
		return fmt.Errorf("%w: email code length must be between 4 and 10, got %d", ErrInvalidConfig, c.CodeLength)
	}
	if c.CodeExpiry < 0 {
		return fmt.Errorf("%w: email code expiry must be positive, got %s", ErrInvalidConfig, c.CodeExpiry)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.SendBurst < 0 {
		return fmt.Errorf("%w: send burst must not be negative, got %d", ErrInvalidConfig, c.SendBurst)
	}
	return nil
}

// BackupConfig configures printable backup codes.
type BackupConfig struct {
	Count    int `env:"MFA_BACKUP_CODES_COUNT" envDefault:"10"`
	Length   int `env:"MFA_BACKUP_CODES_LENGTH" envDefault:"8"`
	HashCost int `env:"MFA_BACKUP_CODES_HASH_COST" envDefault:"10"`
}

func (c BackupConfig) withDefaults() BackupConfig {
	if c.Count == 0 {
		c.Count = 10
	}
	if c.Length == 0 {
		c.Length = 8
	}
	if c.HashCost == 0 {
		c.HashCost = bcrypt.DefaultCost
	}
	return c
}

func (c BackupConfig) Validate() error {
	c = c.withDefaults()
	if c.Count < 1 || c.Count > 100 {
		return fmt.Errorf("%w: backup code count must be between 1 and 100, got %d", ErrInvalidConfig, c.Count)
	}
	if c.Length < 6 || c.Length > 32 {
		return fmt.Errorf("%w: backup code length must be between 6 and 32, got %d", ErrInvalidConfig, c.Length)
	}
	if c.HashCost < bcrypt.MinCost || c.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("%w: bcrypt cost must be between %d and %d, got %d",
			ErrInvalidConfig, bcrypt.MinCost, bcrypt.MaxCost, c.HashCost)
	}
	return nil
}

// RegistryConfig holds engine-wide policy. The zero value is an enabled,
// optional MFA engine.
type RegistryConfig struct {
	Disabled    bool          `env:"MFA_DISABLED" envDefault:"false"`
	Required    bool          `env:"MFA_REQUIRED" envDefault:"false"`
	GracePeriod time.Duration `env:"MFA_GRACE_PERIOD" envDefault:"168h"`
	StatsWindow time.Duration `env:"MFA_STATS_WINDOW" envDefault:"720h"`
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.StatsWindow == 0 {
		c.StatsWindow = 30 * 24 * time.Hour
	}
	return c
}

func (c RegistryConfig) Validate() error {
	if c.GracePeriod < 0 {
		return fmt.Errorf("%w: grace period must not be negative, got %s", ErrInvalidConfig, c.GracePeriod)
	}
	if c.StatsWindow < 0 {
		return fmt.Errorf("%w: stats window must not be negative, got %s", ErrInvalidConfig, c.StatsWindow)
	}
	return nil
}
