// Package ids provides the 128-bit identifiers used for graph nodes and edges.
//
// Identifiers are time-ordered UUIDs (RFC 9562 version 7): the high 48 bits hold a
// millisecond Unix timestamp and the remaining bits hold a sub-millisecond sequence and
// random data. Their big-endian byte form sorts in creation order, which is what lets the
// storage layer write primary records with an append hint.
//
// Example:
//
//	id := ids.New()
//	fmt.Println(id)            // 01928c3e-7b4a-7c1d-9f0e-3a5b6c7d8e9f
//	key := id.Bytes()          // 16 bytes, big-endian
//	back, _ := ids.FromBytes(key)
package ids

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Size is the length of an encoded ID in bytes.
const Size = 16

// ErrInvalidLength is returned when decoding an ID from a slice that is not 16 bytes long.
var ErrInvalidLength = errors.New("invalid id length")

// ID is a 128-bit unsigned identifier stored big-endian.
type ID [Size]byte

// Nil is the zero ID. It is never produced by a Generator.
var Nil ID

// FromBytes decodes a 16-byte big-endian slice.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FromUint128 builds an ID from its high and low 64-bit halves.
func FromUint128(hi, lo uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[:8], hi)
	binary.BigEndian.PutUint64(id[8:], lo)
	return id
}

// Parse parses the canonical textual UUID form.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("parsing id %q: %w", s, err)
	}
	return ID(u), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Bytes returns a copy of the big-endian representation.
func (id ID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// Hi returns the high 64 bits.
func (id ID) Hi() uint64 { return binary.BigEndian.Uint64(id[:8]) }

// Lo returns the low 64 bits.
func (id ID) Lo() uint64 { return binary.BigEndian.Uint64(id[8:]) }

// String returns the canonical UUID text form.
func (id ID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is Nil.
func (id ID) IsZero() bool { return id == Nil }

// Compare orders ids by their unsigned 128-bit value.
func (id ID) Compare(other ID) int { return bytes.Compare(id[:], other[:]) }

// Next returns id+1. The maximum ID saturates.
func (id ID) Next() ID {
	hi, lo := id.Hi(), id.Lo()
	lo++
	if lo == 0 {
		if hi == ^uint64(0) {
			return id
		}
		hi++
	}
	return FromUint128(hi, lo)
}

// Time returns the timestamp embedded in a version 7 id, or the zero time for ids
// that do not carry one.
func (id ID) Time() time.Time {
	u := uuid.UUID(id)
	if u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
