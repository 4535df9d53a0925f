package checksum

import (
	"crypto/md5" //nolint:gosec // used as a filename key, not for integrity
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Key returns the hex-encoded MD5 digest of s. Thumbnail filenames are keyed
// by this value computed over the source image URL.
func Key(s string) string {
	h := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(h[:])
}
