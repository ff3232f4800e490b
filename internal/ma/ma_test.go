package ma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gist/internal/wire"
	"gist/internal/wireid"
)

func TestAcquireReleaseRefcount(t *testing.T) {
	m := New(wireid.New(), wireid.New(), "198.51.100.2:270", wire.Profile{wire.MAProtoTCP}, 30*time.Second)
	assert.Equal(t, 0, m.RefCount())

	m.Acquire()
	m.Acquire()
	assert.Equal(t, 2, m.RefCount())

	m.Release()
	assert.Equal(t, 1, m.RefCount())
}

func TestIdleForZeroWhileReferenced(t *testing.T) {
	m := New(wireid.New(), wireid.New(), "198.51.100.2:270", wire.Profile{wire.MAProtoTCP}, 30*time.Second)
	m.Acquire()
	assert.Equal(t, time.Duration(0), m.IdleFor(time.Now().Add(time.Hour)))
}

func TestArenaPutGetRemove(t *testing.T) {
	a := NewArena()
	m := New(wireid.New(), wireid.New(), "198.51.100.2:270", wire.Profile{wire.MAProtoTCP}, 30*time.Second)
	a.Put(m)

	got, ok := a.Get(m.IDString())
	require.True(t, ok)
	assert.Equal(t, m.ID, got.ID)

	a.Remove(m.IDString())
	_, ok = a.Get(m.IDString())
	assert.False(t, ok)
}

func TestArenaFindByRemoteReusesConnection(t *testing.T) {
	a := NewArena()
	remote := wireid.New()
	m := New(wireid.New(), remote, "198.51.100.2:270", wire.Profile{wire.MAProtoTCP}, 30*time.Second)
	a.Put(m)

	got, ok := a.FindByRemote(remote.String(), "198.51.100.2:270")
	require.True(t, ok)
	assert.Equal(t, m.ID, got.ID)

	_, ok = a.FindByRemote(remote.String(), "203.0.113.9:270")
	assert.False(t, ok)
}

func TestArenaSweepEvictsIdleMAsPastHoldTime(t *testing.T) {
	a := NewArena()
	m := New(wireid.New(), wireid.New(), "198.51.100.2:270", wire.Profile{wire.MAProtoTCP}, 30*time.Second)
	m.LastActivity = time.Now().Add(-time.Minute)
	a.Put(m)

	evicted := a.Sweep(time.Now())
	require.Len(t, evicted, 1)
	assert.Equal(t, m.IDString(), evicted[0])
	assert.Equal(t, 0, a.Len())
}

func TestArenaSweepKeepsReferencedMAs(t *testing.T) {
	a := NewArena()
	m := New(wireid.New(), wireid.New(), "198.51.100.2:270", wire.Profile{wire.MAProtoTCP}, 30*time.Second)
	m.Acquire()
	m.LastActivity = time.Now().Add(-time.Hour)
	a.Put(m)

	evicted := a.Sweep(time.Now())
	assert.Empty(t, evicted)
	assert.Equal(t, 1, a.Len())
}
