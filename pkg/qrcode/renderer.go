package qrcode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	// ErrEmptyContent is returned when content string is empty or only whitespace
	ErrEmptyContent = errors.New("content cannot be empty")
	// ErrFailedToGenerateQRCode is returned when the QR code generation fails.
	ErrFailedToGenerateQRCode = errors.New("failed to generate QR code")
	// ErrInvalidEndpoint is returned when a service renderer has no usable endpoint.
	ErrInvalidEndpoint = errors.New("invalid QR service endpoint")
)

// DefaultSize is the size in pixels used when no size is specified
const DefaultSize = 200

// Renderer turns an opaque string (usually an otpauth:// URI) into a URL that
// an <img> tag can load.
type Renderer interface {
	Render(ctx context.Context, content string) (string, error)
}

// RendererFunc adapts a plain function to Renderer.
type RendererFunc func(ctx context.Context, content string) (string, error)

func (f RendererFunc) Render(ctx context.Context, content string) (string, error) {
	return f(ctx, content)
}

// PNG encodes content as a square PNG with medium error correction.
func PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrFailedToGenerateQRCode, err)
	}
	return png, nil
}

// DataURIRenderer rasterizes locally and returns a data:image/png;base64 URL.
// The secret embedded in the URI never leaves the process.
type DataURIRenderer struct {
	Size int
}

func (r DataURIRenderer) Render(_ context.Context, content string) (string, error) {
	png, err := PNG(content, r.Size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// ServiceRenderer delegates rasterization to an external image service by
// building a URL of the form {Endpoint}?size=WxH&data={content}.
type ServiceRenderer struct {
	Endpoint string
	Size     int
}

func (r ServiceRenderer) Render(_ context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	u, err := url.Parse(r.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidEndpoint
	}
	size := r.Size
	if size <= 0 {
		size = DefaultSize
	}
	q := u.Query()
	q.Set("size", fmt.Sprintf("%dx%d", size, size))
	q.Set("data", content)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
