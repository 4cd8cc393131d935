package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Algorithm names the HMAC hash used for code generation.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

const (
	DefaultDigits    = 6    // Standard 6-digit TOTP codes
	DefaultPeriod    = 30   // 30-second validity window (RFC 6238 standard)
	DefaultAlgorithm = SHA1 // HMAC-SHA1 algorithm (RFC 6238 standard)
	DefaultSkew      = 1    // Accept one step of clock drift in either direction

	// SecretSize is the raw secret length in bytes. 20 bytes encode to exactly
	// 32 base32 characters without padding.
	SecretSize = 20

	maxDigits = 10
)

var (
	// ValidateSecretKeyRegex ensures Base32 format: uppercase A-Z, digits 2-7, optional padding
	ValidateSecretKeyRegex = regexp.MustCompile("^[A-Z2-7]+=*$")

	encoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Params controls code generation. Zero values fall back to RFC 6238 defaults.
type Params struct {
	Digits    int
	Period    int
	Algorithm Algorithm
	Skew      int // Steps accepted on each side of the current one; negative disables drift
}

// WithDefaults returns a copy with RFC 6238 standard defaults applied to zero-valued fields.
func (p Params) WithDefaults() Params {
	if p.Algorithm == "" {
		p.Algorithm = DefaultAlgorithm
	}
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	if p.Skew == 0 {
		p.Skew = DefaultSkew
	}
	return p
}

// Validate reports whether the parameters can be used for generation.
func (p Params) Validate() error {
	if p.Digits < 1 || p.Digits > maxDigits {
		return fmt.Errorf("%w: digits must be between 1 and %d, got %d", ErrInvalidParams, maxDigits, p.Digits)
	}
	if p.Period < 1 {
		return fmt.Errorf("%w: period must be positive, got %d", ErrInvalidParams, p.Period)
	}
	if _, err := p.Algorithm.hash(); err != nil {
		return err
	}
	return nil
}

func (a Algorithm) hash() (func() hash.Hash, error) {
	switch Algorithm(strings.ToUpper(string(a))) {
	case SHA1, "":
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
}

// GenerateSecretKey generates a new Base32-encoded secret key for TOTP.
// The result is always 32 characters from the RFC 4648 alphabet.
func GenerateSecretKey() (string, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", errors.Join(ErrFailedToGenerateSecretKey, err)
	}
	return encoding.EncodeToString(secret), nil
}

// DecodeSecret normalizes and decodes a Base32 secret into raw key bytes.
// Malformed input, including bad padding, is rejected.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if !ValidateSecretKeyRegex.MatchString(secret) {
		return nil, ErrInvalidSecret
	}

	var (
		key []byte
		err error
	)
	if strings.HasSuffix(secret, "=") {
		key, err = base32.StdEncoding.DecodeString(secret)
	} else {
		key, err = encoding.DecodeString(secret)
	}
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

// FormatSecret splits the secret into space separated groups of four characters
// for manual entry into authenticator apps.
func FormatSecret(secret string) string {
	var sb strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// GenerateHOTP implements RFC 4226 HMAC-based One-Time Password algorithm.
// The result is zero-padded to the requested number of digits.
func GenerateHOTP(key []byte, counter uint64, p Params) (string, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return "", err
	}
	newHash, err := p.Algorithm.hash()
	if err != nil {
		return "", err
	}
	return formatCode(truncate(key, counter, newHash), p.Digits), nil
}

// truncate computes the HMAC over the big-endian counter and applies RFC 4226
// dynamic truncation, returning the 31-bit value.
func truncate(key []byte, counter uint64, newHash func() hash.Hash) uint32 {
	// Convert counter to big-endian 8-byte array (RFC 4226 requirement)
	counterBytes := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		counterBytes[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(newHash, key)
	mac.Write(counterBytes)
	sum := mac.Sum(nil)

	// Dynamic truncation: low 4 bits of the last byte select the offset
	offset := sum[len(sum)-1] & 0x0f
	return uint32(sum[offset]&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])
}

func formatCode(value uint32, digits int) string {
	mod := uint64(1)
	for range digits {
		mod *= 10
	}
	code := strconv.FormatUint(uint64(value)%mod, 10)
	if pad := digits - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code
}

// Counter returns the RFC 6238 time step containing t.
func Counter(t time.Time, period int) uint64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix) / uint64(period)
}

// GenerateCodeAt generates the code for the time step containing t.
func GenerateCodeAt(secret string, t time.Time, p Params) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", errors.Join(ErrFailedToGenerateTOTP, err)
	}
	p = p.WithDefaults()
	return GenerateHOTP(key, Counter(t, p.Period), p)
}

// GenerateTOTP generates a time-based one-time password for the current window.
func GenerateTOTP(secret string, p Params) (string, error) {
	return GenerateCodeAt(secret, time.Now(), p)
}

// ValidateAt checks the code against the time steps around t within p.Skew.
// A wrong code is reported as (false, nil); only malformed secrets or
// parameters produce an error.
func ValidateAt(secret, otp string, t time.Time, p Params) (bool, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return false, err
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return false, err
	}
	newHash, err := p.Algorithm.hash()
	if err != nil {
		return false, err
	}

	otp = strings.TrimSpace(otp)
	if len(otp) != p.Digits {
		return false, nil
	}

	counter := int64(Counter(t, p.Period))
	matched := 0
	skew := max(p.Skew, 0)
	// Every candidate is computed and compared so timing does not reveal
	// which window matched.
	for i := -skew; i <= skew; i++ {
		step := counter + int64(i)
		if step < 0 {
			continue
		}
		candidate := formatCode(truncate(key, uint64(step), newHash), p.Digits)
		matched |= subtle.ConstantTimeCompare([]byte(candidate), []byte(otp))
	}
	return matched == 1, nil
}

// ValidateTOTP validates the code provided by the user against the current time.
func ValidateTOTP(secret, otp string, p Params) (bool, error) {
	return ValidateAt(secret, otp, time.Now(), p)
}

// URIParams contains the parameters for TOTP URI generation
type URIParams struct {
	Secret      string // Base32-encoded TOTP secret key (required)
	AccountName string // User identifier like email (required)
	Issuer      string // Service name displayed in authenticator apps (required)
	Params
}

// Validate ensures all required TOTP parameters are present and valid
func (p URIParams) Validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if !ValidateSecretKeyRegex.MatchString(p.Secret) {
		return ErrInvalidSecret
	}
	if p.AccountName == "" {
		return ErrMissingAccountName
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

// GetTOTPURI creates a properly encoded TOTP URI for use with authenticator apps.
// The URI format follows the Key Uri Format specification:
// https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func GetTOTPURI(p URIParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	p.Params = p.Params.WithDefaults()

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(p.Issuer),
		url.PathEscape(p.AccountName),
	)

	query := url.Values{}
	query.Set("secret", p.Secret)
	query.Set("issuer", p.Issuer)
	query.Set("algorithm", string(p.Algorithm))
	query.Set("digits", strconv.Itoa(p.Digits))
	query.Set("period", strconv.Itoa(p.Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}
