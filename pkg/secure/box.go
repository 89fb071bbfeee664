package secure

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

var (
	// ErrDecryptFailed is returned for any undecryptable input: truncated
	// ciphertext, a wrong key, or tampering. Callers treat it as poison, so
	// it deliberately carries no detail about which check failed.
	ErrDecryptFailed = errors.New("secure: decryption failed")
	// ErrBadNonce is returned when an authenticated-box nonce has the wrong length.
	ErrBadNonce = errors.New("secure: nonce must be 24 bytes")
)

// SealedEncrypt encrypts plaintext to the recipient with an ephemeral sender
// key pair generated inside the sealed-box construction. The ciphertext
// carries no sender identity; authenticity comes from the detached signature
// over the enclosing canonical string, never from the cipher.
func SealedEncrypt(plaintext []byte, recipientPub [BoxKeySize]byte) ([]byte, error) {
	out, err := box.SealAnonymous(nil, plaintext, &recipientPub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return out, nil
}

// SealedDecrypt opens a sealed box. It never returns partial plaintext.
func SealedDecrypt(ciphertext []byte, recipientPub, recipientPriv [BoxKeySize]byte) ([]byte, error) {
	plaintext, ok := box.OpenAnonymous(nil, ciphertext, &recipientPub, &recipientPriv)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// AuthBoxEncrypt encrypts plaintext under the curve25519 shared secret of
// (recipientPub, senderPriv) with a fresh random nonce. The recipient can
// only open it with the matching sender public key, binding the ciphertext to
// the sender at the encryption layer as well as at the signature layer.
func AuthBoxEncrypt(plaintext []byte, recipientPub, senderPriv [BoxKeySize]byte) (ciphertext, nonce []byte, err error) {
	var n [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return nil, nil, fmt.Errorf("nonce: %w", err)
	}
	out := box.Seal(nil, plaintext, &n, &recipientPub, &senderPriv)
	return out, n[:], nil
}

// AuthBoxDecrypt opens an authenticated box. A wrong nonce length, wrong
// keys, or a flipped ciphertext byte all fail the same way.
func AuthBoxDecrypt(ciphertext, nonce []byte, senderPub, recipientPriv [BoxKeySize]byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrBadNonce
	}
	var n [NonceSize]byte
	copy(n[:], nonce)
	plaintext, ok := box.Open(nil, ciphertext, &n, &senderPub, &recipientPriv)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
