package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	SignaturePrefix = "sha256="
)

// Sign returns the X-Hub-Signature-256 value for payload: "sha256=" followed
// by the hex HMAC-SHA256 digest keyed with secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates payload under secret.
// An empty secret disables verification and every request is accepted.
func Verify(payload []byte, secret, signature string) bool {
	if secret == "" {
		return true
	}

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
