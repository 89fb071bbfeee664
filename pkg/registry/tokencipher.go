package registry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrTokenCorrupted is returned when stored token ciphertext fails
	// base64 decoding or is too short to hold a nonce.
	ErrTokenCorrupted = errors.New("registry: token ciphertext corrupted")
	// ErrTokenDecryptFailed is returned when AES-GCM authentication fails,
	// meaning tampering or a different registry key.
	ErrTokenDecryptFailed = errors.New("registry: token decryption failed")
)

const (
	tokenKeyIterations = 100000
	tokenKeyContext    = "burrow-registry-token-v1"
)

// TokenCipher is AES-256-GCM over bot tokens at rest. Tokens grant full
// posting access to a workspace, so a registry dump must not expose them in
// the clear even though the broker itself can read them.
type TokenCipher struct {
	key []byte
}

// DeriveTokenCipher derives the registry-local symmetric key from the
// broker's own encryption private key, so there is no second secret to
// provision. The fixed context string domain-separates this derivation from
// any other use of the key material.
func DeriveTokenCipher(brokerBoxPrivate []byte) *TokenCipher {
	key := pbkdf2.Key(brokerBoxPrivate, []byte(tokenKeyContext), tokenKeyIterations, 32, sha256.New)
	return &TokenCipher{key: key}
}

// Seal encrypts a token for storage. Empty in, empty out.
func (tc *TokenCipher) Seal(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	block, err := aes.NewCipher(tc.key)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("token nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored token.
func (tc *TokenCipher) Open(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrTokenCorrupted
	}
	block, err := aes.NewCipher(tc.key)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < aead.NonceSize() {
		return "", ErrTokenCorrupted
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	token, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrTokenDecryptFailed
	}
	return string(token), nil
}
