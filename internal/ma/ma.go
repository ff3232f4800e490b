// Package ma models a Messaging Association: the bidirectional,
// reference-counted transport channel GIST multiplexes multiple
// sessions' signaling over (§3 "Messaging Association", §4.2).
//
// MAs and routing entries never hold pointers to each other. Per the
// "manual-memory object graphs" redesign note (§9 in this repo's
// expanded spec), both sides are modeled as an arena keyed by a stable
// id string; a routing entry references its bound MA by id, and an MA
// tracks its refcount as a plain integer, not a set of back-pointers.
package ma

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"gist/internal/wire"
	"gist/internal/wireid"
)

// HelloState tracks this MA's keepalive handshake (§3 "Hello state").
type HelloState int

const (
	HelloIdle HelloState = iota
	HelloPending
	HelloConfirmed
)

// MA is one messaging association: a transport-layer channel shared by
// every routing entry whose handshake negotiated it (§3).
type MA struct {
	ID xid.ID

	LocalPeerID  wireid.ID
	RemotePeerID wireid.ID
	RemoteAddr   string // negotiated remote interface address

	Profile wire.Profile // the negotiated MA-protocol stack (§4.5)

	HoldTime     time.Duration
	LastActivity time.Time

	refcount int
	mu       sync.Mutex

	Hello HelloState
}

// New constructs an MA in the idle state with the given hold-time.
func New(local, remote wireid.ID, remoteAddr string, profile wire.Profile, holdTime time.Duration) *MA {
	return &MA{
		ID:           xid.New(),
		LocalPeerID:  local,
		RemotePeerID: remote,
		RemoteAddr:   remoteAddr,
		Profile:      profile,
		HoldTime:     holdTime,
		LastActivity: time.Now(),
	}
}

// IDString is the stable arena key routing.Entry.MAID stores.
func (m *MA) IDString() string { return m.ID.String() }

// Acquire increments the refcount when a routing entry binds to this
// MA (§8 invariant: "M.refcount >= 1 and M in C2.active_mas" for every
// Established entry referencing it).
func (m *MA) Acquire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refcount++
	m.LastActivity = time.Now()
}

// Release decrements the refcount when a routing entry unbinds
// (teardown, expiry, or rebinding to a different MA).
func (m *MA) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refcount > 0 {
		m.refcount--
		if m.refcount == 0 {
			m.LastActivity = time.Now()
		}
	}
}

// RefCount reports the number of routing entries currently bound to
// this MA (§3 "reference count").
func (m *MA) RefCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refcount
}

// Touch records activity, postponing hold-time garbage collection.
func (m *MA) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastActivity = time.Now()
}

// IdleFor reports how long this MA has had zero references, the
// quantity the arena's GC sweep compares against HoldTime
// (§4.2 "garbage-collected by MA-hold-time").
func (m *MA) IdleFor(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refcount > 0 {
		return 0
	}
	return now.Sub(m.LastActivity)
}
