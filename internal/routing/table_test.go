package routing

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gist/internal/wire"
	"gist/internal/wireid"
)

func sampleMRI() wire.MRI {
	return wire.MRI{
		Kind:     wire.MRIPathCoupled,
		SrcIP:    net.ParseIP("10.0.0.1"),
		DstIP:    net.ParseIP("10.0.0.2"),
		Protocol: 17,
		SrcPort:  5000,
		DstPort:  6000,
	}
}

func TestInsertLookupDelete(t *testing.T) {
	tbl := NewTable()
	e := NewEntry(sampleMRI(), 32, wire.SessionID{ID: wireid.New()})

	tbl.Insert(e)
	got, ok := tbl.Lookup(e.Key)
	require.True(t, ok)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, 1, tbl.Len())

	tbl.Delete(e.Key)
	_, ok = tbl.Lookup(e.Key)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())
}

func TestSecondaryIndicesByPeerAndMA(t *testing.T) {
	tbl := NewTable()
	e := NewEntry(sampleMRI(), 32, wire.SessionID{ID: wireid.New()})
	peer := wireid.New()
	e.UpstreamPeer = &wire.NLI{PeerIdentity: peer, InterfaceAddress: net.ParseIP("10.0.0.1")}
	e.MAID = "ma-1"

	tbl.Insert(e)

	byPeer := tbl.ByPeer(peer.String())
	require.Len(t, byPeer, 1)
	assert.Equal(t, e.ID, byPeer[0].ID)

	byMA := tbl.ByMA("ma-1")
	require.Len(t, byMA, 1)
	assert.Equal(t, e.ID, byMA[0].ID)

	tbl.Delete(e.Key)
	assert.Empty(t, tbl.ByPeer(peer.String()))
	assert.Empty(t, tbl.ByMA("ma-1"))
}

func TestTickReportsRefreshBeforeRSValidity(t *testing.T) {
	tbl := NewTable()
	e := NewEntry(sampleMRI(), 32, wire.SessionID{ID: wireid.New()})
	e.State = Established
	now := time.Now()
	e.RefreshDeadline = now.Add(-time.Second)
	e.RSValidityDeadline = now.Add(time.Hour)
	tbl.Insert(e)

	expired := tbl.Tick(now)
	require.Len(t, expired, 1)
	assert.Equal(t, RefreshFired, expired[0].Event)
}

func TestTickReportsRSValidityWhenBothFire(t *testing.T) {
	tbl := NewTable()
	e := NewEntry(sampleMRI(), 32, wire.SessionID{ID: wireid.New()})
	e.State = Established
	now := time.Now()
	e.RefreshDeadline = now.Add(-time.Hour)
	e.RSValidityDeadline = now.Add(-time.Second)
	tbl.Insert(e)

	expired := tbl.Tick(now)
	require.Len(t, expired, 1)
	assert.Equal(t, RSValidityFired, expired[0].Event)
}

func TestTickSkipsDeadEntries(t *testing.T) {
	tbl := NewTable()
	e := NewEntry(sampleMRI(), 32, wire.SessionID{ID: wireid.New()})
	e.State = Dead
	now := time.Now()
	e.RefreshDeadline = now.Add(-time.Hour)
	tbl.Insert(e)

	assert.Empty(t, tbl.Tick(now))
}
