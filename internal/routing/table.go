package routing

import (
	"sync"
	"time"
)

// Table is the GIST routing-state table: the primary (MRI, NSLP-ID,
// direction) index plus the peer-NLI and MA secondary indices (§4.3).
// All lookups are O(1) average, matching "hash of the normalised MRI".
type Table struct {
	mu sync.RWMutex

	primary map[Key]*Entry
	byID    map[string]*Entry // xid string -> entry, for O(1) eviction by id
	byPeer  map[string]map[string]*Entry
	byMA    map[string]map[string]*Entry
}

// NewTable constructs an empty routing table.
func NewTable() *Table {
	return &Table{
		primary: make(map[Key]*Entry),
		byID:    make(map[string]*Entry),
		byPeer:  make(map[string]map[string]*Entry),
		byMA:    make(map[string]map[string]*Entry),
	}
}

// Insert adds or replaces the entry under its primary key, reindexing
// the peer and MA secondary indices.
func (t *Table) Insert(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(e.Key)
	t.primary[e.Key] = e
	t.byID[e.ID.String()] = e
	t.indexSecondaryLocked(e)
}

func (t *Table) indexSecondaryLocked(e *Entry) {
	if e.UpstreamPeer != nil {
		t.addToSetLocked(t.byPeer, e.UpstreamPeer.PeerIdentity.String(), e)
	}
	if e.DownstreamPeer != nil {
		t.addToSetLocked(t.byPeer, e.DownstreamPeer.PeerIdentity.String(), e)
	}
	if e.MAID != "" {
		t.addToSetLocked(t.byMA, e.MAID, e)
	}
}

func (t *Table) addToSetLocked(index map[string]map[string]*Entry, key string, e *Entry) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]*Entry)
		index[key] = set
	}
	set[e.ID.String()] = e
}

func (t *Table) removeFromSetLocked(index map[string]map[string]*Entry, key string, e *Entry) {
	if set, ok := index[key]; ok {
		delete(set, e.ID.String())
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

// Lookup returns the entry for a (MRI, NSLP-ID, direction) key.
func (t *Table) Lookup(k Key) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.primary[k]
	return e, ok
}

// ByPeer returns every entry bound to the named peer identity
// (§4.3 "secondary indices: (peer-NLI) -> set-of-entries").
func (t *Table) ByPeer(peerIdentity string) []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.byPeer[peerIdentity]
	out := make([]*Entry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}

// ByMA returns every entry bound to the named messaging association
// (§4.3 "secondary indices: ... MA -> set-of-entries").
func (t *Table) ByMA(maID string) []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.byMA[maID]
	out := make([]*Entry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}

// Delete evicts the entry under k, if present, from every index.
func (t *Table) Delete(k Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(k)
}

func (t *Table) removeLocked(k Key) {
	e, ok := t.primary[k]
	if !ok {
		return
	}
	delete(t.primary, k)
	delete(t.byID, e.ID.String())
	if e.UpstreamPeer != nil {
		t.removeFromSetLocked(t.byPeer, e.UpstreamPeer.PeerIdentity.String(), e)
	}
	if e.DownstreamPeer != nil {
		t.removeFromSetLocked(t.byPeer, e.DownstreamPeer.PeerIdentity.String(), e)
	}
	if e.MAID != "" {
		t.removeFromSetLocked(t.byMA, e.MAID, e)
	}
}

// Reindex adds an entry to the secondary indices for its current
// peer/MA fields after they change in place (e.g. binding an MA
// mid-handshake). Memberships under the fields' previous values are
// not removed.
func (t *Table) Reindex(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexSecondaryLocked(e)
}

// Len reports the number of live entries, for metrics (§9 supplemented
// observability).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.primary)
}

// ExpiryEvent names which of an entry's two timers fired (§4.3).
type ExpiryEvent int

const (
	RefreshFired ExpiryEvent = iota
	RSValidityFired
)

// Expired is one entry whose refresh or RS-validity deadline has
// passed as of the Tick time.
type Expired struct {
	Entry *Entry
	Event ExpiryEvent
}

// Tick scans every entry for a refresh or RS-validity deadline that has
// passed as of now, returning one Expired per fired timer (an entry
// whose RS-validity has also passed is reported only for
// RSValidityFired — there is no point also re-issuing a refresh for an
// entry about to be declared Dead). The Timer module (§5) drives this
// on its own periodic wakeup; Tick never mutates entries itself, so
// handling refresh/eviction policy stays in the state machine (C6).
func (t *Table) Tick(now time.Time) []Expired {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Expired
	for _, e := range t.primary {
		if e.State == Dead {
			continue
		}
		if !e.RSValidityDeadline.IsZero() && now.After(e.RSValidityDeadline) {
			out = append(out, Expired{Entry: e, Event: RSValidityFired})
			continue
		}
		if !e.RefreshDeadline.IsZero() && now.After(e.RefreshDeadline) {
			out = append(out, Expired{Entry: e, Event: RefreshFired})
		}
	}
	return out
}
