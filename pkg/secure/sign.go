package secure

import (
	"crypto/ed25519"
	"encoding/base64"
)

// Sign produces a detached Ed25519 signature over message, base64-encoded
// for JSON transport.
func Sign(message []byte, priv ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, message))
}

// Verify checks a detached base64 signature. It is total: malformed or
// truncated input returns false rather than an error or a panic.
func Verify(message []byte, signature string, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, raw)
}
