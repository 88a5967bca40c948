// Package signature verifies that a submission payload was produced by a
// holder of the shared device secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Compute returns the hex-encoded HMAC-SHA256 of the canonical signing
// string for a submission. The canonical form is
// id + "|" + capturedAt + "|" + deviceID, with deviceID defaulting to
// "unknown" when empty. Field order and separators are fixed; any deviation
// produces a different MAC.
func Compute(id, capturedAt, deviceID string, secret []byte) string {
	if deviceID == "" {
		deviceID = "unknown"
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id + "|" + capturedAt + "|" + deviceID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig matches the expected MAC for the given fields.
// The comparison is constant-time. A malformed signature (wrong length or
// encoding) fails closed: it never matches and never panics.
func Verify(id, capturedAt, deviceID, sig string, secret []byte) bool {
	expected := Compute(id, capturedAt, deviceID, secret)
	// ConstantTimeCompare returns 0 on length mismatch, which covers
	// truncated or garbage signatures.
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}
