package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Interaction signature headers.
const (
	SignatureHeader = "X-Signature-Ed25519"
	TimestampHeader = "X-Signature-Timestamp"
)

// InteractionVerifier checks Ed25519 signatures on interaction requests.
type InteractionVerifier struct {
	publicKey ed25519.PublicKey
}

// NewInteractionVerifier parses the hex-encoded application public key from
// the Discord developer portal.
func NewInteractionVerifier(hexKey string) (*InteractionVerifier, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return &InteractionVerifier{publicKey: ed25519.PublicKey(key)}, nil
}

// Verify checks the signature over timestamp+body.
func (v *InteractionVerifier) Verify(timestamp string, body []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)

	return ed25519.Verify(v.publicKey, msg, sig)
}
