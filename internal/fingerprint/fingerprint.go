// Package fingerprint derives stable keys for profile texts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

const prefix = "text:"

// TextKey returns a stable key for the given profile text. Identical texts always yield the
// same key; the text is hashed byte-for-byte with no normalization, so any change to the
// looking-for statement or the answer history produces a new key.
func TextKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return prefix + hex.EncodeToString(hash[:])
}
