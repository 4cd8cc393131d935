package engine

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/mfakit/pkg/email"
	"github.com/dmitrymomot/mfakit/pkg/logger"
	"github.com/dmitrymomot/mfakit/pkg/mfa"
	"github.com/dmitrymomot/mfakit/pkg/mfa/pgstore"
	"github.com/dmitrymomot/mfakit/pkg/pg"
	"github.com/dmitrymomot/mfakit/pkg/redis"
)

// QR renderer modes.
const (
	QRModeDataURI = "datauri"
	QRModeService = "service"
	QRModeNone    = "none"
)

// QRConfig selects how provisioning URIs are turned into images.
type QRConfig struct {
	Mode     string `env:"MFA_QR_MODE" envDefault:"datauri"`
	Size     int    `env:"MFA_QR_SIZE" envDefault:"256"`
	Endpoint string `env:"MFA_QR_ENDPOINT" envDefault:"https://api.qrserver.com/v1/create-qr-code/"`
}

// LimitsConfig configures the verification throttle shared by all factors.
// Email issuance is throttled by EmailConfig.SendBurst and SendCooldown.
type LimitsConfig struct {
	VerifyBurst    int           `env:"MFA_VERIFY_BURST" envDefault:"10"`
	VerifyCooldown time.Duration `env:"MFA_VERIFY_COOLDOWN" envDefault:"1m"`
	// MemoryCleanup drops idle in-process buckets when Redis is not configured.
	MemoryCleanup time.Duration `env:"MFA_LIMITS_MEMORY_CLEANUP" envDefault:"10m"`
}

// Config aggregates everything needed to run the engine.
type Config struct {
	Log      logger.Config
	PG       pg.Config
	Redis    redis.Config
	Mail     email.Config
	Users    pgstore.DirectoryConfig
	TOTP     mfa.TOTPConfig
	Email    mfa.EmailConfig
	Backup   mfa.BackupConfig
	Registry mfa.RegistryConfig
	QR       QRConfig
	Limits   LimitsConfig

	AutoMigrate   bool          `env:"MFA_AUTO_MIGRATE" envDefault:"true"`
	SweepInterval time.Duration `env:"MFA_SWEEP_INTERVAL" envDefault:"1h"`
}

// Validate checks the factor and registry sections.
func (c Config) Validate() error {
	if err := c.TOTP.Validate(); err != nil {
		return err
	}
	if err := c.Email.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	switch c.QR.Mode {
	case "", QRModeDataURI, QRModeService, QRModeNone:
	default:
		return fmt.Errorf("%w: unknown qr mode %q", mfa.ErrInvalidConfig, c.QR.Mode)
	}
	if c.Limits.VerifyBurst < 0 {
		return fmt.Errorf("%w: verify burst must not be negative, got %d", mfa.ErrInvalidConfig, c.Limits.VerifyBurst)
	}
	return nil
}
