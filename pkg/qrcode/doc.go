// Package qrcode renders provisioning URIs as QR code image URLs.
//
// Two Renderer implementations are provided:
//
//   • DataURIRenderer rasterizes with github.com/skip2/go-qrcode and returns a
//     data:image/png;base64 URL that can be embedded directly into HTML.
//
//   • ServiceRenderer builds a URL pointing at an external QR image service
//     (for example https://api.qrserver.com/v1/create-qr-code/). The returned
//     image is not validated.
//
// # Usage
//
//	var r qrcode.Renderer = qrcode.DataURIRenderer{Size: 256}
//	src, err := r.Render(ctx, "otpauth://totp/Acme:alice?secret=...")
//	if err != nil {
//		// handle error
//	}
//
// # Error Handling
//
//   • ErrEmptyContent           – the content argument was empty.
//   • ErrFailedToGenerateQRCode – the underlying library could not encode it.
//   • ErrInvalidEndpoint        – ServiceRenderer has no absolute endpoint URL.
package qrcode
