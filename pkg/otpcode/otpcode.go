package otpcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

const (
	// Digits is the alphabet for numeric codes.
	Digits = "0123456789"

	// HumanAlphabet excludes the 0/O and 1/I look-alikes.
	HumanAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// GroupSeparator joins display groups of a formatted backup code.
	GroupSeparator = "-"
)

// Generate returns a random code of the given length drawn from alphabet.
func Generate(alphabet string, length int) (string, error) {
	if length < 1 {
		return "", ErrInvalidLength
	}
	if len(alphabet) < 2 {
		return "", ErrInvalidAlphabet
	}

	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Join(ErrGenerateFailed, err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Numeric returns a random all-digit code.
func Numeric(length int) (string, error) {
	return Generate(Digits, length)
}

// Batch returns count distinct codes drawn from alphabet.
func Batch(alphabet string, length, count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := Generate(alphabet, length)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// Format inserts the group separator in the middle of 8-character codes
// (XXXX-XXXX). Other lengths are returned unchanged.
func Format(code string) string {
	if len(code) != 8 {
		return code
	}
	return code[:4] + GroupSeparator + code[4:]
}

// NormalizeAlphanumeric folds width, strips everything that is not an ASCII
// letter or digit and uppercases the rest.
func NormalizeAlphanumeric(input string) string {
	input = width.Narrow.String(input)
	var sb strings.Builder
	sb.Grow(len(input))
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r >= 'a' && r <= 'z':
			sb.WriteRune(unicode.ToUpper(r))
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// StripSpace folds width and removes all whitespace. Other characters are
// preserved so a malformed submission still fails the comparison.
func StripSpace(input string) string {
	input = width.Narrow.String(input)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
}
