// Package otpcode generates and normalizes short one-time codes: numeric codes
// sent by email and printable backup codes drawn from an alphabet without
// visually ambiguous characters.
//
// Generation samples alphabet indexes with crypto/rand.Int, so every symbol is
// equally likely.
//
// Normalization folds full-width characters produced by some mobile input
// methods into their ASCII forms (golang.org/x/text/width) before stripping
// separators, so "１２３ ４５６" and "123456" compare equal.
package otpcode
