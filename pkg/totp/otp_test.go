package totp_test

import (
	"encoding/base32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mfakit/pkg/totp"
)

var noPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RFC 6238 Appendix B seeds.
var (
	seedSHA1   = []byte("12345678901234567890")
	seedSHA256 = []byte("12345678901234567890123456789012")
	seedSHA512 = []byte("1234567890123456789012345678901234567890123456789012345678901234")
)

func TestGenerateSecretKey(t *testing.T) {
	t.Parallel()
	secret, err := totp.GenerateSecretKey()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
	assert.Regexp(t, totp.ValidateSecretKeyRegex, secret)

	key, err := totp.DecodeSecret(secret)
	require.NoError(t, err)
	assert.Len(t, key, totp.SecretSize)

	other, err := totp.GenerateSecretKey()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestDecodeSecret(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		secret  string
		want    []byte
		wantErr error
	}{
		{name: "rfc seed", secret: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", want: seedSHA1},
		{name: "lower case with spaces", secret: "gezd gnbv gy3t qojq gezd gnbv gy3t qojq", want: seedSHA1},
		{name: "valid padding", secret: "MFRGG===", want: []byte("abc")},
		{name: "empty", secret: "", wantErr: totp.ErrMissingSecret},
		{name: "invalid characters", secret: "invalid-base32!@#$", wantErr: totp.ErrInvalidSecret},
		{name: "digit outside alphabet", secret: "ABCDEFG1", wantErr: totp.ErrInvalidSecret},
		{name: "malformed padding", secret: "MFRGG=", wantErr: totp.ErrInvalidSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := totp.DecodeSecret(tt.secret)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateHOTP_RFC4226Vectors(t *testing.T) {
	t.Parallel()
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}
	for counter, code := range want {
		got, err := totp.GenerateHOTP(seedSHA1, uint64(counter), totp.Params{Digits: 6})
		require.NoError(t, err)
		assert.Equal(t, code, got, "counter %d", counter)
	}
}

func TestGenerateCodeAt_RFC6238Vectors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		unix   int64
		sha1   string
		sha256 string
		sha512 string
	}{
		{59, "94287082", "46119246", "90693936"},
		{1111111109, "07081804", "68084774", "25091201"},
		{1111111111, "14050471", "67062674", "99943326"},
		{1234567890, "89005924", "91819424", "93441116"},
		{2000000000, "69279037", "90698825", "38618901"},
		{20000000000, "65353130", "77737706", "47863826"},
	}

	seeds := map[totp.Algorithm][]byte{
		totp.SHA1:   seedSHA1,
		totp.SHA256: seedSHA256,
		totp.SHA512: seedSHA512,
	}

	for _, tt := range tests {
		at := time.Unix(tt.unix, 0).UTC()
		expected := map[totp.Algorithm]string{
			totp.SHA1:   tt.sha1,
			totp.SHA256: tt.sha256,
			totp.SHA512: tt.sha512,
		}
		for alg, code := range expected {
			secret := noPadding.EncodeToString(seeds[alg])

			got, err := totp.GenerateCodeAt(secret, at, totp.Params{Digits: 8, Algorithm: alg})
			require.NoError(t, err)
			assert.Equal(t, code, got, "%s at %d", alg, tt.unix)

			// Six digit codes are the low six digits of the same truncated value.
			got6, err := totp.GenerateCodeAt(secret, at, totp.Params{Algorithm: alg})
			require.NoError(t, err)
			assert.Equal(t, code[2:], got6, "%s at %d (6 digits)", alg, tt.unix)
		}
	}
}

func TestValidateAt_DriftTolerance(t *testing.T) {
	t.Parallel()
	secret := noPadding.EncodeToString(seedSHA1)
	now := time.Unix(1111111111, 0)

	codeAt := func(offset time.Duration) string {
		code, err := totp.GenerateCodeAt(secret, now.Add(offset), totp.Params{})
		require.NoError(t, err)
		return code
	}

	tests := []struct {
		name   string
		code   string
		result bool
	}{
		{name: "current step", code: codeAt(0), result: true},
		{name: "previous step", code: codeAt(-30 * time.Second), result: true},
		{name: "next step", code: codeAt(30 * time.Second), result: true},
		{name: "two steps back", code: codeAt(-60 * time.Second), result: false},
		{name: "two steps ahead", code: codeAt(60 * time.Second), result: false},
		{name: "wrong length", code: "12345", result: false},
		{name: "empty", code: "", result: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, err := totp.ValidateAt(secret, tt.code, now, totp.Params{})
			require.NoError(t, err)
			assert.Equal(t, tt.result, ok)
		})
	}
}

func TestValidateAt_ZeroSkew(t *testing.T) {
	t.Parallel()
	secret := noPadding.EncodeToString(seedSHA1)
	now := time.Unix(1234567890, 0)

	prev, err := totp.GenerateCodeAt(secret, now.Add(-30*time.Second), totp.Params{})
	require.NoError(t, err)

	ok, err := totp.ValidateAt(secret, prev, now, totp.Params{Skew: 0})
	require.NoError(t, err)
	// Skew zero falls back to the default of one step.
	assert.True(t, ok)

	ok, err = totp.ValidateAt(secret, prev, now, totp.Params{Skew: -1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateAt_Errors(t *testing.T) {
	t.Parallel()
	_, err := totp.ValidateAt("not base32!", "123456", time.Now(), totp.Params{})
	assert.ErrorIs(t, err, totp.ErrInvalidSecret)

	_, err = totp.ValidateAt("GEZDGNBVGY3TQOJQ", "123456", time.Now(), totp.Params{Algorithm: "MD5"})
	assert.ErrorIs(t, err, totp.ErrUnsupportedAlgorithm)

	_, err = totp.ValidateAt("GEZDGNBVGY3TQOJQ", "123456", time.Now(), totp.Params{Digits: 11})
	assert.ErrorIs(t, err, totp.ErrInvalidParams)
}

func TestValidateTOTP_CurrentCode(t *testing.T) {
	t.Parallel()
	secret, err := totp.GenerateSecretKey()
	require.NoError(t, err)

	code, err := totp.GenerateTOTP(secret, totp.Params{})
	require.NoError(t, err)

	ok, err := totp.ValidateTOTP(secret, code, totp.Params{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFormatSecret(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "GEZD GNBV GY3T QOJQ GEZD GNBV GY3T QOJQ", totp.FormatSecret("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"))
	assert.Equal(t, "ABCD EF", totp.FormatSecret("ABCDEF"))
	assert.Equal(t, "", totp.FormatSecret(""))
}

func TestGetTOTPURI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		params  totp.URIParams
		want    string
		wantErr error
	}{
		{
			name: "Basic URI",
			params: totp.URIParams{
				Secret:      "ABCDEFGHIJKLMNOP",
				AccountName: "test@example.com",
				Issuer:      "TestApp",
			},
			want: "otpauth://totp/TestApp:test@example.com?algorithm=SHA1&digits=6&issuer=TestApp&period=30&secret=ABCDEFGHIJKLMNOP",
		},
		{
			name: "URI with special characters",
			params: totp.URIParams{
				Secret:      "ABCDEFGHIJKLMNOP",
				AccountName: "test+user@example.com",
				Issuer:      "Test & App",
				Params:      totp.Params{Digits: 8, Period: 60},
			},
			want: "otpauth://totp/Test%20&%20App:test+user@example.com?algorithm=SHA1&digits=8&issuer=Test+%26+App&period=60&secret=ABCDEFGHIJKLMNOP",
		},
		{
			name:    "Missing secret",
			params:  totp.URIParams{AccountName: "a@b.c", Issuer: "X"},
			wantErr: totp.ErrMissingSecret,
		},
		{
			name:    "Missing account",
			params:  totp.URIParams{Secret: "ABCDEFGHIJKLMNOP", Issuer: "X"},
			wantErr: totp.ErrMissingAccountName,
		},
		{
			name:    "Missing issuer",
			params:  totp.URIParams{Secret: "ABCDEFGHIJKLMNOP", AccountName: "a@b.c"},
			wantErr: totp.ErrMissingIssuer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := totp.GetTOTPURI(tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
