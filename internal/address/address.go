// Package address derives the storage location of every record from its
// logical key. Derivation is a pure function of (relation kind, ordered key
// parts), so any caller can recompute a record's address without an index.
package address

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/pairmatch/ledger/internal/identity"
)

// Kind tags the address space of a relation. Kinds are part of the hash
// input, so records of different kinds can never collide even for equal
// key parts.
type Kind string

const (
	KindProfile Kind = "profile"
	KindLike    Kind = "like"
	KindMessage Kind = "message"
	KindBlock   Kind = "block"
)

// domainTag separates this ledger's address space from any other user of
// the same hash. Bump the version if the derivation scheme ever changes;
// mixing schemes strands records at unreachable addresses.
const domainTag = "pairmatch.ledger.v1"

// MaxNonce bounds the disambiguation search. The nonce walks downward from
// here until the candidate address clears the key-collision check.
const MaxNonce = 255

// ErrNonceExhausted is returned when no nonce in [0, MaxNonce] produces a
// usable address. With a 256-bit digest this is not reachable in practice,
// but the search is bounded and the failure is surfaced rather than hidden.
var ErrNonceExhausted = errors.New("address: nonce space exhausted")

// Size is the byte length of a derived address.
const Size = 32

// Address is a derived storage location, rendered as lowercase hex.
type Address [Size]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// Parse decodes a hex-encoded address.
func Parse(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != Size {
		return a, errors.New("address: invalid address encoding")
	}
	copy(a[:], b)
	return a, nil
}

// Derive maps (kind, key parts) to a stable address and the nonce that
// produced it. Key-part order is significant and is never normalized:
// directed relations must derive distinct addresses per direction.
//
// A candidate digest equal to any key part is rejected and the nonce is
// decremented, so a derived address can never shadow a raw identity key.
func Derive(kind Kind, parts ...[]byte) (Address, uint8, error) {
	for nonce := MaxNonce; nonce >= 0; nonce-- {
		addr := digest(kind, parts, uint8(nonce))
		if !shadowsKeyPart(addr, parts) {
			return addr, uint8(nonce), nil
		}
	}
	return Address{}, 0, ErrNonceExhausted
}

// digest computes BLAKE2b-256 over the length-prefixed derivation input.
// Length prefixes keep ("ab","c") and ("a","bc") distinct.
func digest(kind Kind, parts [][]byte, nonce uint8) Address {
	h, _ := blake2b.New256(nil)
	var lp [4]byte

	h.Write([]byte(domainTag))
	binary.LittleEndian.PutUint32(lp[:], uint32(len(kind)))
	h.Write(lp[:])
	h.Write([]byte(kind))
	for _, p := range parts {
		binary.LittleEndian.PutUint32(lp[:], uint32(len(p)))
		h.Write(lp[:])
		h.Write(p)
	}
	h.Write([]byte{nonce})

	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

func shadowsKeyPart(a Address, parts [][]byte) bool {
	for _, p := range parts {
		if len(p) == Size && bytes.Equal(a[:], p) {
			return true
		}
	}
	return false
}

// ForProfile derives the address of an identity's profile record.
func ForProfile(owner identity.Key) (Address, uint8, error) {
	return Derive(KindProfile, owner.Bytes())
}

// ForLike derives the address of the directed like sender -> receiver.
func ForLike(sender, receiver identity.Key) (Address, uint8, error) {
	return Derive(KindLike, sender.Bytes(), receiver.Bytes())
}

// ForMessage derives the address of a message in the directed thread
// sender -> receiver. The message id is encoded little-endian.
func ForMessage(sender, receiver identity.Key, messageID uint64) (Address, uint8, error) {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], messageID)
	return Derive(KindMessage, sender.Bytes(), receiver.Bytes(), id[:])
}

// ForBlock derives the address of the directed block blocker -> blocked.
func ForBlock(blocker, blocked identity.Key) (Address, uint8, error) {
	return Derive(KindBlock, blocker.Bytes(), blocked.Bytes())
}
