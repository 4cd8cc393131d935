package mfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/mfakit/pkg/logger"
	"github.com/dmitrymomot/mfakit/pkg/otpcode"
	"github.com/dmitrymomot/mfakit/pkg/qrcode"
	"github.com/dmitrymomot/mfakit/pkg/totp"
)

// TOTPFactor verifies codes from authenticator apps (RFC 6238).
type TOTPFactor struct {
	cfg       TOTPConfig
	store     ConfigStore
	directory UserDirectory
	cipher    *totp.SecretCipher
	qr        qrcode.Renderer
	logger    *slog.Logger
	now       func() time.Time
}

var (
	_ Factor             = (*TOTPFactor)(nil)
	_ VerifyInfoProvider = (*TOTPFactor)(nil)
)

// NewTOTPFactor creates the factor. The directory supplies the account label
// of the provisioning URI and may be nil.
func NewTOTPFactor(cfg TOTPConfig, store ConfigStore, directory UserDirectory, opts ...Option) (*TOTPFactor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: totp factor requires a config store", ErrInvalidConfig)
	}
	o := newOptions(opts)

	f := &TOTPFactor{
		cfg:       cfg,
		store:     store,
		directory: directory,
		qr:        o.qr,
		logger:    o.logger.With(logger.Component("mfa"), logger.Factor(FactorTOTP)),
		now:       o.now,
	}
	if cfg.EncryptionKey != "" {
		c, err := totp.NewSecretCipherFromBase64(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		f.cipher = c
	}
	return f, nil
}

func (f *TOTPFactor) Name() string        { return FactorTOTP }
func (f *TOTPFactor) DisplayName() string { return "Authenticator app" }
func (f *TOTPFactor) Description() string {
	return "Use an app such as Google Authenticator or Authy to generate verification codes"
}
func (f *TOTPFactor) CanBePrimary() bool { return true }
func (f *TOTPFactor) SortOrder() int     { return 1 }

// IsConfigured reports whether an enabled, decodable secret is stored.
func (f *TOTPFactor) IsConfigured(ctx context.Context, userID string) (bool, error) {
	_, _, err := f.load(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrStorage):
		return false, err
	default:
		return false, nil
	}
}

// Setup generates a new secret, replacing any previous one. data["account"]
// overrides the label shown in the authenticator app.
func (f *TOTPFactor) Setup(ctx context.Context, userID string, data map[string]any) (*SetupResult, error) {
	account, err := f.accountName(ctx, userID, data)
	if err != nil {
		return nil, err
	}

	secret, err := totp.GenerateSecretKey()
	if err != nil {
		return nil, err
	}
	stored := secret
	if f.cipher != nil {
		if stored, err = f.cipher.Encrypt(secret); err != nil {
			return nil, err
		}
	}

	p := f.cfg.params()
	now := f.now()
	if err := f.store.UpsertFactorConfig(ctx, FactorConfig{
		UserID:  userID,
		Factor:  FactorTOTP,
		Enabled: true,
		Secret:  stored,
		Data: map[string]any{
			"digits":    p.Digits,
			"period":    p.Period,
			"algorithm": string(p.Algorithm),
			"encrypted": f.cipher != nil,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	uri, err := totp.GetTOTPURI(totp.URIParams{
		Secret:      secret,
		AccountName: account,
		Issuer:      f.cfg.Issuer,
		Params:      p,
	})
	if err != nil {
		return nil, err
	}

	res := &SetupResult{
		Factor:          FactorTOTP,
		Secret:          secret,
		FormattedSecret: totp.FormatSecret(secret),
		OTPAuthURI:      uri,
	}
	if f.qr != nil {
		// The secret is already persisted, so a failing renderer only costs
		// the image; the user can still type the secret.
		if res.QRCodeURL, err = f.qr.Render(ctx, uri); err != nil {
			f.logger.WarnContext(ctx, "failed to render qr code", logger.UserID(userID), logger.Error(err))
		}
	}
	return res, nil
}

// Verify checks the code against the current time step and its neighbours
// within the configured skew.
func (f *TOTPFactor) Verify(ctx context.Context, userID, code string) (bool, error) {
	secret, p, err := f.load(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStorage) {
			return false, err
		}
		f.logger.DebugContext(ctx, "totp verification rejected", logger.UserID(userID), logger.Reason("not_configured"))
		return false, nil
	}

	ok, err := totp.ValidateAt(secret, otpcode.StripSpace(code), f.now(), p)
	if err != nil {
		f.logger.ErrorContext(ctx, "stored totp secret is unusable", logger.UserID(userID), logger.Error(err))
		return false, nil
	}
	if !ok {
		f.logger.DebugContext(ctx, "totp verification rejected", logger.UserID(userID), logger.Reason("mismatch"))
	}
	return ok, nil
}

// Revoke deletes the stored secret.
func (f *TOTPFactor) Revoke(ctx context.Context, userID string) error {
	if err := f.store.DeleteFactorConfig(ctx, userID, FactorTOTP); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// CurrentCode returns the code valid right now. Intended for diagnostics
// and support tooling only.
func (f *TOTPFactor) CurrentCode(ctx context.Context, userID string) (string, error) {
	secret, p, err := f.load(ctx, userID)
	if err != nil {
		return "", err
	}
	return totp.GenerateCodeAt(secret, f.now(), p)
}

// VerifyInfo reports the digit count the user enrolled with. Users without
// an enrollment get the configured default.
func (f *TOTPFactor) VerifyInfo(ctx context.Context, userID string) (*VerifyInfo, error) {
	digits := f.cfg.Digits
	cfg, err := f.store.GetFactorConfig(ctx, userID, FactorTOTP)
	switch {
	case err == nil:
		digits = dataInt(cfg.Data, "digits", digits)
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Join(ErrStorage, err)
	}
	return &VerifyInfo{
		Factor:      FactorTOTP,
		DisplayName: f.DisplayName(),
		CodeLength:  digits,
	}, nil
}

// load returns the plain secret and the parameters it was enrolled with.
// Missing or disabled rows yield ErrFactorNotConfigured, corrupt secrets
// ErrInvalidSecret (logged at error level).
func (f *TOTPFactor) load(ctx context.Context, userID string) (string, totp.Params, error) {
	cfg, err := f.store.GetFactorConfig(ctx, userID, FactorTOTP)
	if errors.Is(err, ErrNotFound) {
		return "", totp.Params{}, ErrFactorNotConfigured
	}
	if err != nil {
		return "", totp.Params{}, errors.Join(ErrStorage, err)
	}
	if !cfg.Enabled || cfg.Secret == "" {
		return "", totp.Params{}, ErrFactorNotConfigured
	}

	secret := cfg.Secret
	if dataBool(cfg.Data, "encrypted") {
		if f.cipher == nil {
			f.logger.ErrorContext(ctx, "totp secret is encrypted but no key is configured", logger.UserID(userID))
			return "", totp.Params{}, ErrInvalidSecret
		}
		if secret, err = f.cipher.Decrypt(secret); err != nil {
			f.logger.ErrorContext(ctx, "failed to decrypt totp secret", logger.UserID(userID), logger.Error(err))
			return "", totp.Params{}, errors.Join(ErrInvalidSecret, err)
		}
	}
	if _, err := totp.DecodeSecret(secret); err != nil {
		f.logger.ErrorContext(ctx, "stored totp secret is invalid", logger.UserID(userID), logger.Error(err))
		return "", totp.Params{}, errors.Join(ErrInvalidSecret, err)
	}

	def := f.cfg.params()
	p := totp.Params{
		Digits:    dataInt(cfg.Data, "digits", def.Digits),
		Period:    dataInt(cfg.Data, "period", def.Period),
		Algorithm: totp.Algorithm(dataString(cfg.Data, "algorithm", string(def.Algorithm))),
		Skew:      def.Skew,
	}
	return secret, p, nil
}

func (f *TOTPFactor) accountName(ctx context.Context, userID string, data map[string]any) (string, error) {
	if account := strings.TrimSpace(dataString(data, "account", "")); account != "" {
		return account, nil
	}
	if f.directory == nil {
		return userID, nil
	}
	u, err := f.directory.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return "", errors.Join(ErrSetupPrecondition, ErrUserNotFound)
	}
	if err != nil {
		return "", err
	}
	switch {
	case u.Email != "":
		return u.Email, nil
	case u.DisplayName != "":
		return u.DisplayName, nil
	default:
		return userID, nil
	}
}
