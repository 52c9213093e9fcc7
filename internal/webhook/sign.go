package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue formats the X-Webhook-Signature header.
func SignatureHeaderValue(secret string, body []byte) string {
	return signaturePrefix + Sign(secret, body)
}

// Verify checks a received X-Webhook-Signature header against body. It is
// the receiver-side counterpart of SignatureHeaderValue.
func Verify(secret string, body []byte, header string) bool {
	got, ok := strings.CutPrefix(strings.TrimSpace(header), signaturePrefix)
	if !ok {
		return false
	}
	want := Sign(secret, body)
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}
