package routing

import (
	"time"

	"github.com/rs/xid"

	"gist/internal/wire"
	"gist/internal/wireid"
)

// State is a routing entry's lifecycle state (§3 "Routing Entry",
// §4.3 "Lifecycle").
type State int

const (
	AwaitingResponse State = iota
	Established
	AwaitingRefresh
	Dead
)

var stateStr = map[State]string{
	AwaitingResponse: "Awaiting-Response",
	Established:      "Established",
	AwaitingRefresh:  "Awaiting-Refresh",
	Dead:             "Dead",
}

func (s State) String() string {
	if str, ok := stateStr[s]; ok {
		return str
	}
	return "Unknown"
}

// Entry is one soft-state routing entry (§3 "Routing Entry"): the
// per-flow handshake/refresh bookkeeping the state machine (C6) drives
// and the routing table indexes.
type Entry struct {
	ID xid.ID

	Key    Key
	MRI    wire.MRI
	NSLPID uint16
	SID    wire.SessionID

	State State

	UpstreamPeer   *wire.NLI
	DownstreamPeer *wire.NLI

	// MAID is the bound messaging association's id, or "" for
	// datagram/Q-mode (§3 "bound MA (or datagram/Q-mode)").
	MAID string

	LastQueryCookie     []byte
	LastResponderCookie []byte

	RSValidityDeadline time.Time
	RefreshDeadline    time.Time

	NoResponseRetries int
	NoResponseTimeout time.Duration

	// NSLPMessageHandle is the handle the NSLP passed to SendMessage for
	// the send that is currently driving this entry's handshake, so a
	// failed handshake can surface MessageStatus against the right
	// handle (§4.7 "MessageStatus(nslp-message-handle, ...)").
	NSLPMessageHandle wireid.ID

	// PendingNSLPData holds NSLP payloads queued while the entry is not
	// yet Established (§3 "pending-NSLP-data queue").
	PendingNSLPData [][]byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntry constructs a fresh entry in the Awaiting-Response state; a
// caller creating state for a validated incoming Confirm sets the
// state itself (§4.3 "Lifecycle").
func NewEntry(mri wire.MRI, nslpID uint16, sid wire.SessionID) *Entry {
	now := time.Now()
	return &Entry{
		ID:        xid.New(),
		Key:       NewKey(mri, nslpID),
		MRI:       mri,
		NSLPID:    nslpID,
		SID:       sid,
		State:     AwaitingResponse,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *Entry) touch() { e.UpdatedAt = time.Now() }

// ArmTimers sets the refresh and RS-validity deadlines from the given
// intervals (§4.3: "refresh interval default 30s, RS validity 3x
// refresh").
func (e *Entry) ArmTimers(now time.Time, refreshInterval, rsValidity time.Duration) {
	e.RefreshDeadline = now.Add(refreshInterval)
	e.RSValidityDeadline = now.Add(rsValidity)
	e.touch()
}
