// Package secure implements the envelope cryptography shared by the broker
// and the bridge: anonymous sealed boxes for inbound event payloads,
// authenticated boxes for outbound action payloads, Ed25519 detached
// signatures, and the canonical byte strings that are the exclusive input to
// signing and verification.
package secure

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

const (
	// BoxKeySize is the length of a curve25519 box key in bytes.
	BoxKeySize = 32
	// NonceSize is the length of an authenticated-box nonce in bytes.
	NonceSize = 24
)

var ErrBadKey = errors.New("secure: malformed key material")

// KeySet holds one party's full key material: a curve25519 box pair for
// encryption and an Ed25519 pair for signing. Private halves never cross the
// wire; public halves are exchanged during registration and key discovery.
type KeySet struct {
	BoxPublic   [BoxKeySize]byte
	BoxPrivate  [BoxKeySize]byte
	SignPublic  ed25519.PublicKey
	SignPrivate ed25519.PrivateKey
}

// GenerateKeySet mints a fresh box pair and signing pair from crypto/rand.
func GenerateKeySet() (*KeySet, error) {
	boxPub, boxPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate box keys: %w", err)
	}
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing keys: %w", err)
	}
	ks := &KeySet{SignPublic: signPub, SignPrivate: signPriv}
	ks.BoxPublic = *boxPub
	ks.BoxPrivate = *boxPriv
	return ks, nil
}

// DecodeKeySet parses the four base64 key values of one party's full key
// material, as carried in config.
func DecodeKeySet(boxPub, boxPriv, signPub, signPriv string) (*KeySet, error) {
	ks := &KeySet{}
	var err error
	if ks.BoxPublic, err = DecodeBoxKey(boxPub); err != nil {
		return nil, fmt.Errorf("box public key: %w", err)
	}
	if ks.BoxPrivate, err = DecodeBoxKey(boxPriv); err != nil {
		return nil, fmt.Errorf("box private key: %w", err)
	}
	if ks.SignPublic, err = DecodeSignPublicKey(signPub); err != nil {
		return nil, fmt.Errorf("signing public key: %w", err)
	}
	if ks.SignPrivate, err = DecodeSignPrivateKey(signPriv); err != nil {
		return nil, fmt.Errorf("signing private key: %w", err)
	}
	return ks, nil
}

// EncodeKey renders raw key bytes as standard base64 for config and wire use.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeBoxKey parses a base64 curve25519 key.
func DecodeBoxKey(encoded string) ([BoxKeySize]byte, error) {
	var key [BoxKeySize]byte
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(raw) != BoxKeySize {
		return key, fmt.Errorf("%w: box key is %d bytes, want %d", ErrBadKey, len(raw), BoxKeySize)
	}
	copy(key[:], raw)
	return key, nil
}

// DecodeSignPublicKey parses a base64 Ed25519 public key.
func DecodeSignPublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: signing public key is %d bytes, want %d", ErrBadKey, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// DecodeSignPrivateKey parses a base64 Ed25519 private key.
func DecodeSignPrivateKey(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: signing private key is %d bytes, want %d", ErrBadKey, len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}
