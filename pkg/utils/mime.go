// Package utils provides small shared helpers: image MIME detection and
// token counting.
package utils

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Magic-byte signatures for the image formats the vision models accept.
//
//nolint:gochecknoglobals // Static lookup tables
var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	gif87aTag = []byte("GIF87a")
	gif89aTag = []byte("GIF89a")
	riffTag   = []byte("RIFF")
	webpTag   = []byte("WEBP")

	extToMIME = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
	}
)

// DetectImageMIME classifies raw bytes into an image MIME type using fixed
// magic-byte prefixes, falling back to the filename extension, and failing
// when neither yields a type.
func DetectImageMIME(data []byte, filename string) (string, error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return "image/png", nil
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg", nil
	case bytes.HasPrefix(data, gif87aTag) || bytes.HasPrefix(data, gif89aTag):
		return "image/gif", nil
	case len(data) >= 12 && bytes.HasPrefix(data, riffTag) && bytes.Equal(data[8:12], webpTag):
		return "image/webp", nil
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if mime, ok := extToMIME[ext]; ok {
			return mime, nil
		}
	}

	return "", fmt.Errorf("unsupported image format for %q: unknown magic bytes and extension", filename)
}
