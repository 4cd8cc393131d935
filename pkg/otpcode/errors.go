package otpcode

import "errors"

var (
	ErrInvalidLength   = errors.New("otpcode: length must be positive")
	ErrInvalidCount    = errors.New("otpcode: count must be positive")
	ErrInvalidAlphabet = errors.New("otpcode: alphabet must contain at least two symbols")
	ErrGenerateFailed  = errors.New("otpcode: failed to generate code")
)
