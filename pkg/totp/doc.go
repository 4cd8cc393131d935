// Package totp implements RFC 4226 HOTP and RFC 6238 TOTP code generation and
// validation together with the helpers an enrollment flow needs: secret key
// generation, otpauth:// provisioning URIs and AES-256-GCM sealing of secrets
// before they are persisted.
//
// # Architecture
//
//   • otp.go    – secret generation and decoding (GenerateSecretKey, DecodeSecret),
//     HOTP dynamic truncation (GenerateHOTP), time-step codes (GenerateCodeAt,
//     GenerateTOTP) and drift-tolerant validation (ValidateAt, ValidateTOTP).
//
//   • cipher.go – SecretCipher seals secrets with AES-256-GCM. Keys are derived
//     from a base64 master key with HKDF-SHA256 so the same master key can be
//     shared with other subsystems without key reuse.
//
// Params carries digits, period, HMAC algorithm (SHA1, SHA256, SHA512) and the
// number of drift steps accepted on each side of the current one. Zero values
// select the RFC 6238 defaults: 6 digits, 30 seconds, SHA1, one step of skew.
//
// # Usage
//
//	secret, _ := totp.GenerateSecretKey()
//
//	uri, _ := totp.GetTOTPURI(totp.URIParams{
//	    Secret:      secret,
//	    AccountName: "alice@example.com",
//	    Issuer:      "Acme",
//	})
//
//	ok, err := totp.ValidateTOTP(secret, "123456", totp.Params{})
//
// A wrong code is not an error: ValidateAt returns (false, nil). Errors are
// reserved for secrets that cannot be decoded and unusable parameters.
//
// # Error Handling
//
// Errors are package level sentinels, possibly joined with the underlying cause
// via errors.Join. Inspect them with errors.Is, e.g. ErrInvalidSecret or
// ErrFailedToDecryptSecret.
package totp
