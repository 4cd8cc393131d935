package mfa_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mfakit/pkg/mfa"
	"github.com/dmitrymomot/mfakit/pkg/qrcode"
	"github.com/dmitrymomot/mfakit/pkg/totp"
)

func newTOTP(t *testing.T, cfg mfa.TOTPConfig, store mfa.ConfigStore, clock *fakeClock, opts ...mfa.Option) *mfa.TOTPFactor {
	t.Helper()
	opts = append([]mfa.Option{mfa.WithClock(clock.Now), mfa.WithLogger(silent)}, opts...)
	f, err := mfa.NewTOTPFactor(cfg, store, users(), opts...)
	require.NoError(t, err)
	return f
}

func TestTOTPFactor_SetupAndVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock()
	store := mfa.NewMemoryStorage()
	f := newTOTP(t, mfa.TOTPConfig{Issuer: "Acme"}, store, clock)

	configured, err := f.IsConfigured(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, configured)

	res, err := f.Setup(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, mfa.FactorTOTP, res.Factor)
	assert.Len(t, res.Secret, 32)
	assert.Equal(t, totp.FormatSecret(res.Secret), res.FormattedSecret)
	assert.Contains(t, res.OTPAuthURI, "otpauth://totp/Acme:alice@example.com?")
	assert.Contains(t, res.OTPAuthURI, "secret="+res.Secret)
	assert.Empty(t, res.QRCodeURL)

	configured, err = f.IsConfigured(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, configured)

	codeAt := func(offset time.Duration) string {
		code, err := totp.GenerateCodeAt(res.Secret, clock.Now().Add(offset), totp.Params{})
		require.NoError(t, err)
		return code
	}

	tests := []struct {
		name string
		code string
		want bool
	}{
		{"current step", codeAt(0), true},
		{"previous step", codeAt(-30 * time.Second), true},
		{"next step", codeAt(30 * time.Second), true},
		{"two steps back", codeAt(-60 * time.Second), false},
		{"spaces are ignored", codeAt(0)[:3] + " " + codeAt(0)[3:], true},
		{"wrong length", "12345", false},
		{"garbage", "abcdef", false},
	}
	for _, tt := range tests {
		ok, err := f.Verify(ctx, "u1", tt.code)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, ok, tt.name)
	}

	current, err := f.CurrentCode(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, codeAt(0), current)
}

func TestTOTPFactor_AccountLabel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTOTP(t, mfa.TOTPConfig{Issuer: "Acme"}, mfa.NewMemoryStorage(), newClock())

	res, err := f.Setup(ctx, "u1", map[string]any{"account": "custom-label"})
	require.NoError(t, err)
	assert.Contains(t, res.OTPAuthURI, "Acme:custom-label")

	res, err = f.Setup(ctx, "noemail", nil)
	require.NoError(t, err)
	assert.Contains(t, res.OTPAuthURI, "Acme:No%20Mail")

	_, err = f.Setup(ctx, "ghost", nil)
	assert.ErrorIs(t, err, mfa.ErrSetupPrecondition)
	assert.ErrorIs(t, err, mfa.ErrUserNotFound)
}

func TestTOTPFactor_SetupReplacesSecret(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock()
	f := newTOTP(t, mfa.TOTPConfig{}, mfa.NewMemoryStorage(), clock)

	first, err := f.Setup(ctx, "u1", nil)
	require.NoError(t, err)
	second, err := f.Setup(ctx, "u1", nil)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	code, err := totp.GenerateCodeAt(second.Secret, clock.Now(), totp.Params{})
	require.NoError(t, err)
	ok, err := f.Verify(ctx, "u1", code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTOTPFactor_EncryptedSecret(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock()
	store := mfa.NewMemoryStorage()

	key, err := totp.GenerateEncodedEncryptionKey()
	require.NoError(t, err)
	f := newTOTP(t, mfa.TOTPConfig{EncryptionKey: key}, store, clock)

	res, err := f.Setup(ctx, "u1", nil)
	require.NoError(t, err)

	row, err := store.GetFactorConfig(ctx, "u1", mfa.FactorTOTP)
	require.NoError(t, err)
	assert.NotEqual(t, res.Secret, row.Secret)
	assert.Equal(t, true, row.Data["encrypted"])

	code, err := totp.GenerateCodeAt(res.Secret, clock.Now(), totp.Params{})
	require.NoError(t, err)
	ok, err := f.Verify(ctx, "u1", code)
	require.NoError(t, err)
	assert.True(t, ok)

	// A factor without the key cannot read the sealed secret.
	plain := newTOTP(t, mfa.TOTPConfig{}, store, clock)
	configured, err := plain.IsConfigured(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, configured)
	ok, err = plain.Verify(ctx, "u1", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTOTPFactor_InvalidStoredSecret(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := mfa.NewMemoryStorage()
	f := newTOTP(t, mfa.TOTPConfig{}, store, newClock())

	require.NoError(t, store.UpsertFactorConfig(ctx, mfa.FactorConfig{
		UserID:  "u1",
		Factor:  mfa.FactorTOTP,
		Enabled: true,
		Secret:  "not base32 at all!",
	}))

	configured, err := f.IsConfigured(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, configured)

	ok, err := f.Verify(ctx, "u1", "123456")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.CurrentCode(ctx, "u1")
	assert.ErrorIs(t, err, mfa.ErrInvalidSecret)
}

func TestTOTPFactor_StoredParamsWin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock()
	store := mfa.NewMemoryStorage()
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

	require.NoError(t, store.UpsertFactorConfig(ctx, mfa.FactorConfig{
		UserID:  "u1",
		Factor:  mfa.FactorTOTP,
		Enabled: true,
		Secret:  secret,
		Data:    map[string]any{"digits": float64(8), "period": float64(60), "algorithm": "SHA256"},
	}))
	f := newTOTP(t, mfa.TOTPConfig{}, store, clock)

	code, err := totp.GenerateCodeAt(secret, clock.Now(), totp.Params{Digits: 8, Period: 60, Algorithm: totp.SHA256})
	require.NoError(t, err)
	ok, err := f.Verify(ctx, "u1", code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTOTPFactor_VerifyInfoUsesEnrolledDigits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := mfa.NewMemoryStorage()

	require.NoError(t, store.UpsertFactorConfig(ctx, mfa.FactorConfig{
		UserID:  "u1",
		Factor:  mfa.FactorTOTP,
		Enabled: true,
		Secret:  "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
		Data:    map[string]any{"digits": float64(8)},
	}))
	f := newTOTP(t, mfa.TOTPConfig{Digits: 6}, store, newClock())

	tests := []struct {
		user string
		want int
	}{
		{user: "u1", want: 8},
		{user: "fresh", want: 6},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			t.Parallel()
			info, err := f.VerifyInfo(ctx, tt.user)
			require.NoError(t, err)
			assert.Equal(t, mfa.FactorTOTP, info.Factor)
			assert.Equal(t, tt.want, info.CodeLength)
		})
	}
}

func TestTOTPFactor_DisabledAndRevoked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newClock()
	store := mfa.NewMemoryStorage()
	f := newTOTP(t, mfa.TOTPConfig{}, store, clock)

	res, err := f.Setup(ctx, "u1", nil)
	require.NoError(t, err)
	code, err := totp.GenerateCodeAt(res.Secret, clock.Now(), totp.Params{})
	require.NoError(t, err)

	require.NoError(t, store.SetFactorEnabled(ctx, "u1", mfa.FactorTOTP, false))
	ok, err := f.Verify(ctx, "u1", code)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Revoke(ctx, "u1"))
	require.NoError(t, f.Revoke(ctx, "u1"))
	configured, err := f.IsConfigured(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, configured)
}

func TestTOTPFactor_QRCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var rendered string
	ok := qrcode.RendererFunc(func(_ context.Context, content string) (string, error) {
		rendered = content
		return "data:image/png;base64,AAAA", nil
	})
	f := newTOTP(t, mfa.TOTPConfig{}, mfa.NewMemoryStorage(), newClock(), mfa.WithQRRenderer(ok))
	res, err := f.Setup(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", res.QRCodeURL)
	assert.Equal(t, res.OTPAuthURI, rendered)

	broken := qrcode.RendererFunc(func(context.Context, string) (string, error) {
		return "", errors.New("renderer down")
	})
	f = newTOTP(t, mfa.TOTPConfig{}, mfa.NewMemoryStorage(), newClock(), mfa.WithQRRenderer(broken))
	res, err = f.Setup(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, res.QRCodeURL)
	assert.NotEmpty(t, res.Secret)
}

func TestNewTOTPFactor_InvalidConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  mfa.TOTPConfig
	}{
		{"bad algorithm", mfa.TOTPConfig{Algorithm: "MD5"}},
		{"too many digits", mfa.TOTPConfig{Digits: 12}},
		{"fractional period", mfa.TOTPConfig{Period: 1500 * time.Millisecond}},
		{"bad key", mfa.TOTPConfig{EncryptionKey: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := mfa.NewTOTPFactor(tt.cfg, mfa.NewMemoryStorage(), nil)
			assert.ErrorIs(t, err, mfa.ErrInvalidConfig)
		})
	}
}
