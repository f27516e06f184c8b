package intercom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the header Intercom sends the payload signature in.
const SignatureHeader = "X-Hub-Signature-256"

// Sign computes the hex-encoded HMAC-SHA256 signature of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook payload signature in constant time.
// An optional "sha256=" prefix on the header value is accepted.
func VerifySignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(expected, mac.Sum(nil))
}
