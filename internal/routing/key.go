// Package routing implements the GIST routing-state table: per-(MRI,
// NSLP-ID, direction) soft-state entries with RS-validity and refresh
// timers, plus the peer-NLI and MA secondary indices (§4.3).
package routing

import (
	"fmt"

	"gist/internal/wire"
)

// Key is the routing table's primary index: (MRI, NSLP-ID, direction)
// (§4.3 "Primary index"). MRI is folded to its canonical wire encoding
// so two MRIs that compare Equal also hash identically (§3: "MRIs
// compare by all populated fields").
type Key struct {
	MRICanonical string
	NSLPID       uint16
	Direction    wire.Direction
}

// NewKey derives a Key from a decoded MRI.
func NewKey(mri wire.MRI, nslpID uint16) Key {
	return Key{
		MRICanonical: mri.CanonicalKey(),
		NSLPID:       nslpID,
		Direction:    mri.Direction,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("Key(nslp=%d dir=%d mri=%x)", k.NSLPID, k.Direction, k.MRICanonical)
}
