package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectImageMIMEMagicBytes(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg"},
		{"gif87a", []byte("GIF87a....."), "image/gif"},
		{"gif89a", []byte("GIF89a....."), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Filename deliberately misleading: magic bytes win.
			mime, err := DetectImageMIME(tc.data, "photo.bin")
			require.NoError(t, err)
			assert.Equal(t, tc.want, mime)
		})
	}
}

func TestDetectImageMIMEExtensionFallback(t *testing.T) {
	mime, err := DetectImageMIME([]byte("not an image header"), "upload.JPEG")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
}

func TestDetectImageMIMEFailsOnUnknown(t *testing.T) {
	_, err := DetectImageMIME([]byte("plain text"), "notes.txt")
	assert.Error(t, err)

	_, err = DetectImageMIME(nil, "")
	assert.Error(t, err)
}

func TestDetectImageMIMERiffButNotWebp(t *testing.T) {
	// RIFF container that is not WEBP (e.g. WAV) must not classify as webp.
	_, err := DetectImageMIME([]byte("RIFF\x00\x00\x00\x00WAVEfmt "), "sound.wav")
	assert.Error(t, err)
}

func TestCountTokensFallback(t *testing.T) {
	var tc *TokenCounter
	assert.Equal(t, len("abcdefgh")/4, tc.CountTokens("abcdefgh"))
}
