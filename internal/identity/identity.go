// Package identity defines the opaque key type that represents a participant.
// There is no separate user id anywhere in the system: the key is the identity.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// KeySize is the fixed byte length of an identity key.
const KeySize = 32

// Key is a participant's public key. Keys are compared byte-wise and
// rendered as lowercase hex (64 chars) on the wire and in storage.
type Key [KeySize]byte

// Parse decodes a hex-encoded identity key. Anything that is not exactly
// KeySize bytes of valid hex is rejected.
func Parse(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("identity: invalid hex: %w", err)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("identity: key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// MustParse is Parse for tests and seeds with known-good input.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// New generates a fresh ed25519 identity and returns its public key.
// Used by the seeder; production identities arrive from callers.
func New() (Key, error) {
	var k Key
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return k, fmt.Errorf("identity: generate: %w", err)
	}
	copy(k[:], pub)
	return k, nil
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Bytes returns the raw key material, for use as address key parts.
func (k Key) Bytes() []byte { return k[:] }

// IsZero reports whether the key is the all-zero value.
func (k Key) IsZero() bool { return k == Key{} }
