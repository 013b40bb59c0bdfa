package qr_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-patungan/internal/qr"
)

func TestBase64PNG(t *testing.T) {
	t.Parallel()

	b64, err := qr.Base64PNG("https://split.example.com/join/abc", 0)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "\x89PNG"), "expected PNG magic bytes")
}

func TestBase64PNGEmptyContent(t *testing.T) {
	t.Parallel()

	_, err := qr.Base64PNG("", qr.DefaultSize)
	require.Error(t, err)
}

func TestDataURI(t *testing.T) {
	t.Parallel()

	uri, err := qr.DataURI("https://split.example.com/join/abc", 128)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
