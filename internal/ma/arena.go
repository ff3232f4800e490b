package ma

import (
	"sync"
	"time"
)

// Arena owns every live MA, keyed by its stable id string
// (§9 "Manual-memory object graphs" redesign note: arena keyed by
// stable integer/opaque ids, cross-references are ids not pointers).
type Arena struct {
	mu   sync.RWMutex
	byID map[string]*MA
}

// NewArena constructs an empty MA arena.
func NewArena() *Arena {
	return &Arena{byID: make(map[string]*MA)}
}

// Put registers a new MA in the arena.
func (a *Arena) Put(m *MA) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID[m.IDString()] = m
}

// Get resolves an MA by its arena id.
func (a *Arena) Get(id string) (*MA, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.byID[id]
	return m, ok
}

// Remove evicts an MA from the arena (torn down on hold-time expiry or
// an unrecoverable transport error, §4.2/§7).
func (a *Arena) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byID, id)
}

// Len reports the number of live MAs, for metrics.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byID)
}

// FindByRemote looks up an existing MA to the given remote peer at the
// given address (the MA's profile is not compared), so the state machine can
// reuse a connection rather than opening a second one to the same peer
// (§3: "Multiple sessions share a connection (an MA)").
func (a *Arena) FindByRemote(remotePeerID, remoteAddr string) (*MA, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, m := range a.byID {
		if m.RemotePeerID.String() == remotePeerID && m.RemoteAddr == remoteAddr {
			return m, true
		}
	}
	return nil, false
}

// Sweep evicts every MA idle (refcount==0) for at least its own
// HoldTime, returning the evicted ids so the caller can unwind any
// transport-layer connection state (§4.2: "garbage-collected by
// MA-hold-time").
func (a *Arena) Sweep(now time.Time) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var evicted []string
	for id, m := range a.byID {
		if m.IdleFor(now) >= m.HoldTime {
			evicted = append(evicted, id)
			delete(a.byID, id)
		}
	}
	return evicted
}
