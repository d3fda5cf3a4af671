// Package checksum computes content digests for track exports.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a strong HTTP entity tag for data.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Matches reports whether an If-None-Match header value names data's tag.
// A bare "*" matches anything.
func Matches(header string, data []byte) bool {
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	tag := ETag(data)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == tag || "W/"+tag == part {
			return true
		}
	}
	return false
}
