package engine_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mfakit/pkg/config"
	"github.com/dmitrymomot/mfakit/pkg/email"
	"github.com/dmitrymomot/mfakit/pkg/engine"
	"github.com/dmitrymomot/mfakit/pkg/mfa"
	"github.com/dmitrymomot/mfakit/pkg/pg"
)

var silent = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestConfig_LoadDefaults(t *testing.T) {
	t.Parallel()

	var cfg engine.Config
	err := config.Load(&cfg, config.WithEnvironment(map[string]string{
		"PG_CONN_URL":  "postgres://localhost:5432/mfa",
		"SENDER_EMAIL": "noreply@example.com",
	}))
	require.NoError(t, err)

	assert.Equal(t, "ISER Auth System", cfg.TOTP.Issuer)
	assert.Equal(t, 30*time.Second, cfg.TOTP.Period)
	assert.Equal(t, 10*time.Minute, cfg.Email.CodeExpiry)
	assert.Equal(t, 3, cfg.Email.MaxAttempts)
	assert.Equal(t, 10, cfg.Backup.Count)
	assert.Equal(t, 168*time.Hour, cfg.Registry.GracePeriod)
	assert.False(t, cfg.Registry.Disabled)
	assert.Equal(t, engine.QRModeDataURI, cfg.QR.Mode)
	assert.Equal(t, "users", cfg.Users.Table)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Mail.UsePostmark())
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LoadOverrides(t *testing.T) {
	t.Parallel()

	var cfg engine.Config
	err := config.Load(&cfg, config.WithEnvironment(map[string]string{
		"PG_CONN_URL":            "postgres://localhost:5432/mfa",
		"SENDER_EMAIL":           "noreply@example.com",
		"MFA_DISABLED":           "true",
		"MFA_REQUIRED":           "true",
		"MFA_TOTP_DIGITS":        "8",
		"MFA_EMAIL_CODE_EXPIRY":  "5m",
		"MFA_BACKUP_CODES_COUNT": "12",
		"MFA_QR_MODE":            "none",
		"REDIS_URL":              "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.Registry.Disabled)
	assert.True(t, cfg.Registry.Required)
	assert.Equal(t, 8, cfg.TOTP.Digits)
	assert.Equal(t, 5*time.Minute, cfg.Email.CodeExpiry)
	assert.Equal(t, 12, cfg.Backup.Count)
	assert.Equal(t, engine.QRModeNone, cfg.QR.Mode)
	assert.True(t, cfg.Redis.Enabled())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*engine.Config)
	}{
		{"qr mode", func(c *engine.Config) { c.QR.Mode = "ascii" }},
		{"totp algorithm", func(c *engine.Config) { c.TOTP.Algorithm = "MD5" }},
		{"email code length", func(c *engine.Config) { c.Email.CodeLength = 2 }},
		{"backup count", func(c *engine.Config) { c.Backup.Count = 1000 }},
		{"grace period", func(c *engine.Config) { c.Registry.GracePeriod = -time.Hour }},
		{"verify burst", func(c *engine.Config) { c.Limits.VerifyBurst = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg engine.Config
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), mfa.ErrInvalidConfig)
		})
	}
}

func TestNew_RequiresDatabase(t *testing.T) {
	t.Parallel()
	_, err := engine.New(context.Background(), engine.Config{}, engine.WithLogger(silent))
	assert.ErrorIs(t, err, pg.ErrEmptyConnectionString)
}

func TestNew_Integration(t *testing.T) {
	url := os.Getenv("MFA_TEST_PG_URL")
	if url == "" {
		t.Skip("MFA_TEST_PG_URL is not set")
	}
	t.Parallel()
	ctx := context.Background()

	var sent []email.Message
	sender := email.SenderFunc(func(_ context.Context, msg email.Message) error {
		sent = append(sent, msg)
		return nil
	})
	users := mfa.StaticDirectory{"u-engine": {Email: "engine@example.com", CreatedAt: time.Now()}}

	e, err := engine.New(ctx, engine.Config{
		PG:          pg.Config{ConnectionString: url, RetryAttempts: 1},
		AutoMigrate: true,
		QR:          engine.QRConfig{Mode: engine.QRModeNone},
	}, engine.WithLogger(silent), engine.WithSender(sender), engine.WithDirectory(users))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	require.NoError(t, e.Healthcheck(ctx))
	assert.Len(t, e.Registry.Factors(), 3)

	_, err = e.Registry.Setup(ctx, "u-engine", mfa.FactorEmail, nil)
	require.NoError(t, err)
	_, err = e.Registry.SendCode(ctx, "u-engine", mfa.FactorEmail)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "engine@example.com", sent[0].To)

	require.NoError(t, e.Registry.RevokeAll(ctx, "u-engine"))
}
