package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// VerificationCodeProps holds the values shown in a verification code email.
type VerificationCodeProps struct {
	AppName       string
	RecipientName string
	Code          string
	ExpiresIn     int // minutes
}

func (p VerificationCodeProps) greeting() string {
	if p.RecipientName == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", p.RecipientName)
}

func (p VerificationCodeProps) expiryLine() string {
	if p.ExpiresIn == 1 {
		return "This code expires in 1 minute."
	}
	return fmt.Sprintf("This code expires in %d minutes.", p.ExpiresIn)
}

// VerificationCode is the HTML body of the email carrying a one-time code.
// All interpolated values are escaped.
func VerificationCode(p VerificationCodeProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sb strings.Builder
		sb.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		sb.WriteString(templ.EscapeString(p.AppName))
		sb.WriteString(` verification code</title></head>`)
		sb.WriteString(`<body style="font-family:Arial,sans-serif;line-height:1.5;color:#222">`)
		sb.WriteString(`<p>`)
		sb.WriteString(templ.EscapeString(p.greeting()))
		sb.WriteString(`</p><p>Your verification code for `)
		sb.WriteString(templ.EscapeString(p.AppName))
		sb.WriteString(` is:</p>`)
		sb.WriteString(`<p style="font-size:28px;font-weight:bold;letter-spacing:6px;font-family:monospace">`)
		sb.WriteString(templ.EscapeString(p.Code))
		sb.WriteString(`</p><p>`)
		sb.WriteString(templ.EscapeString(p.expiryLine()))
		sb.WriteString(`</p><p>If you did not request this code, you can ignore this email.</p>`)
		sb.WriteString(`</body></html>`)

		_, err := io.WriteString(w, sb.String())
		return err
	})
}

// VerificationCodeText is the plain text alternative of VerificationCode.
func VerificationCodeText(p VerificationCodeProps) string {
	var sb strings.Builder
	sb.WriteString(p.greeting())
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Your verification code for %s is: %s\n\n", p.AppName, p.Code)
	sb.WriteString(p.expiryLine())
	sb.WriteString("\n\nIf you did not request this code, you can ignore this email.\n")
	return sb.String()
}
