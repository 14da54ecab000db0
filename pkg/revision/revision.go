// Package revision provides the identifier type anchored into the audit contract.
//
// An ID is always 32 bytes wide. Git object ids (20-byte SHA-1 or 32-byte SHA-256)
// are left-padded with zeros, so the big-endian integer value of an ID equals the
// integer value of the object id it was built from:
//
//	6a0c1f…e3 (SHA-1)  →  000000000000000000000000 6a0c1f…e3
//
// Conversions never truncate: values wider than 256 bits are rejected.
package revision

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Size is the width of an ID in bytes.
const Size = 32

// sha1Size is the width of a git SHA-1 object id.
const sha1Size = 20

// ID is a 32-byte revision identifier.
type ID [Size]byte

// FromBytes left-pads b into an ID. It fails if b is wider than Size.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) > Size {
		return id, fmt.Errorf("revision id is %d bytes, at most %d allowed", len(b), Size)
	}
	copy(id[Size-len(b):], b)
	return id, nil
}

// Parse parses a hex revision id with an optional 0x prefix. Both the 40-char
// git SHA-1 form and the full 64-char form are accepted.
func Parse(raw string) (ID, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(s) != 2*sha1Size && len(s) != 2*Size {
		return ID{}, fmt.Errorf("invalid revision id %q: expected 40 or 64 hex characters", raw)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid revision id %q: %w", raw, err)
	}
	return FromBytes(b)
}

// MustParse parses a revision id and panics on error. Useful in tests.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// FromBig converts a 256-bit unsigned integer into an ID.
func FromBig(v *big.Int) (ID, error) {
	var id ID
	if v == nil {
		return id, fmt.Errorf("nil revision value")
	}
	if v.Sign() < 0 {
		return id, fmt.Errorf("negative revision value %s", v)
	}
	if v.BitLen() > 8*Size {
		return id, fmt.Errorf("revision value is %d bits wide, at most %d allowed", v.BitLen(), 8*Size)
	}
	v.FillBytes(id[:])
	return id, nil
}

// Big returns the ID as an unsigned 256-bit integer.
func (id ID) Big() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Bytes returns a copy of the full 32 bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// Hex returns all 64 hex characters.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String returns the git SHA-1 form when the id fits in 20 bytes and the full
// form otherwise.
func (id ID) String() string {
	if bytes.Count(id[:Size-sha1Size], []byte{0}) == Size-sha1Size {
		return hex.EncodeToString(id[Size-sha1Size:])
	}
	return id.Hex()
}

// IsZero reports whether every byte is zero.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Set is an unordered collection of IDs.
type Set map[ID]struct{}

// NewSet builds a Set from ids.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is a member of s.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members ordered by their byte value.
func (s Set) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Strings formats ids with String, preserving order.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
