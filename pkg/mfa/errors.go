package mfa

import "errors"

var (
	// ErrSetupPrecondition is returned by Setup when the user cannot enroll in
	// a factor, for example because no email address is on file.
	ErrSetupPrecondition = errors.New("mfa: setup precondition not met")
	ErrNoEmailAddress    = errors.New("mfa: user has no email address")
	ErrUserNotFound      = errors.New("mfa: user not found")

	// ErrInvalidSecret marks a stored TOTP secret that cannot be decoded or decrypted.
	ErrInvalidSecret = errors.New("mfa: invalid stored secret")

	// ErrNotFound is returned by storage implementations for missing rows.
	ErrNotFound = errors.New("mfa: not found")

	ErrFactorNotRegistered   = errors.New("mfa: factor not registered")
	ErrFactorNotConfigured   = errors.New("mfa: factor not configured for user")
	ErrNoPrimaryFactor       = errors.New("mfa: no primary factor configured")
	ErrPrimaryFactorRequired = errors.New("mfa: a primary factor is required")
	ErrDeliveryFailed        = errors.New("mfa: code delivery failed")
	ErrTooManyRequests       = errors.New("mfa: too many requests")
	ErrMFADisabled           = errors.New("mfa: multi-factor authentication is disabled")
	ErrInvalidConfig         = errors.New("mfa: invalid configuration")

	// ErrStorage wraps failures of the storage collaborator.
	ErrStorage = errors.New("mfa: storage failure")
)
