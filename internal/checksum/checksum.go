// Package checksum fingerprints snapshot documents. The digest doubles as
// the note's version for optimistic concurrency: the API exposes it as an
// ETag and compares it against If-Match on replacement writes.
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

// ETag renders a digest as a quoted HTTP entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// FromETag extracts the digest from an If-Match header value. Weak
// validator prefixes and surrounding quotes are tolerated.
func FromETag(header string) string {
	header = strings.TrimPrefix(header, "W/")
	return strings.Trim(header, `"`)
}
