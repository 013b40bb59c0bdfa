// Package qr renders join URLs as QR codes so a session can be shared
// by pointing a phone at the table.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered PNG edge length in pixels.
const DefaultSize = 256

// Base64PNG encodes content as a QR code and returns the PNG as a
// base64 string suitable for a data URI.
func Base64PNG(content string, size int) (string, error) {
	if content == "" {
		return "", fmt.Errorf("qr: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("qr: encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// DataURI wraps Base64PNG in an image/png data URI.
func DataURI(content string, size int) (string, error) {
	b64, err := Base64PNG(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + b64, nil
}
