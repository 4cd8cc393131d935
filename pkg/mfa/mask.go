package mfa

import "strings"

// MaskEmail keeps the first two characters of the local part and the whole
// domain, replacing the rest of the local part with '*'. Input without '@'
// yields "***".
func MaskEmail(address string) string {
	at := strings.IndexByte(address, '@')
	if address == "" || at < 0 {
		return "***"
	}
	local, domain := []rune(address[:at]), address[at+1:]

	keep := min(len(local), 2)
	return string(local[:keep]) + strings.Repeat("*", len(local)-keep) + "@" + domain
}
