package statemachine

import (
	"bytes"

	"gist/internal/wireid"
)

// localWinsQRole implements §4.6's race-resolution rule for crossing
// Queries on the same (MRI, NSLP-ID, direction): "resolved by comparing
// NLIs (lexicographic on Peer-Identity); the lower wins the Q-role, the
// other silently adopts the R-role on the next exchange."
func localWinsQRole(local, remote wireid.ID) bool {
	return bytes.Compare(local.Bytes(), remote.Bytes()) < 0
}
