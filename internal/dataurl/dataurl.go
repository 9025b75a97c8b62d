// Package dataurl encodes and decodes base64 data URLs, the interchange
// form used for signature images and synthesized contract documents.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Media types handled by the services.
const (
	MediaTypePDF = "application/pdf"
	MediaTypePNG = "image/png"
)

const (
	scheme       = "data:"
	base64Marker = ";base64,"
)

// ErrInvalid reports input that is not a base64 data URL.
var ErrInvalid = errors.New("invalid data url")

// Format encodes raw bytes as a base64 data URL with the given media type.
func Format(mediaType string, data []byte) string {
	return scheme + mediaType + base64Marker + base64.StdEncoding.EncodeToString(data)
}

// Parse splits a base64 data URL into its media type and decoded payload.
func Parse(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, scheme) {
		return "", nil, fmt.Errorf("%w: missing data scheme", ErrInvalid)
	}
	rest := s[len(scheme):]
	idx := strings.Index(rest, base64Marker)
	if idx < 0 {
		return "", nil, fmt.Errorf("%w: missing base64 marker", ErrInvalid)
	}
	mediaType := strings.TrimSpace(rest[:idx])
	payload := rest[idx+len(base64Marker):]
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return mediaType, data, nil
}

// MediaType returns the declared media type without decoding the payload.
func MediaType(s string) string {
	if !strings.HasPrefix(s, scheme) {
		return ""
	}
	rest := s[len(scheme):]
	idx := strings.Index(rest, base64Marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:idx])
}
