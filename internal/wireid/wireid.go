// Package wireid gives the 128-bit opaque identifiers GIST passes around
// on the wire (Session Identifier, Peer Identity) and across the API
// boundary (NSLP-message-handle) a single concrete representation.
package wireid

import (
	"github.com/google/uuid"
)

// ID is a 128-bit opaque identifier (SID, Peer Identity, or
// nslp-message-handle). The wire encoding is the raw 16 bytes, network
// byte order, exactly as uuid.UUID already lays out.
type ID uuid.UUID

// Nil is the zero-valued ID, used as a sentinel for "not yet chosen".
var Nil ID

// New chooses a fresh random ID, suitable for a Q-Node picking a SID or
// a GIST instance picking its own Peer Identity at startup.
func New() ID {
	return ID(uuid.New())
}

// Bytes returns the 16-byte network-byte-order encoding used on the wire.
func (id ID) Bytes() []byte {
	b := uuid.UUID(id)
	out := make([]byte, 16)
	copy(out, b[:])
	return out
}

// FromBytes reconstructs an ID from a 16-byte wire slice.
func FromBytes(b []byte) (ID, error) {
	var u uuid.UUID
	if len(b) != 16 {
		return Nil, errShortID
	}
	copy(u[:], b)
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}
