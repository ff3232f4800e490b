package nattraversal

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gist/internal/wire"
)

func mriWithSrc(ip string) wire.MRI {
	return wire.MRI{Kind: wire.MRIPathCoupled, SrcIP: net.ParseIP(ip), DstIP: net.ParseIP("198.51.100.9"), Protocol: 17}
}

func TestApplyInsertsNATTraversalObject(t *testing.T) {
	original := mriWithSrc("10.0.0.1")
	pdu := wire.PDU{Objects: []wire.Object{mriWithSrc("1.2.3.4")}}

	fixed := Apply(pdu, original)
	nt, ok := fixed.Find(wire.TypeNATTraversal).(wire.NATTraversal)
	require.True(t, ok)
	assert.Equal(t, uint8(1), nt.NATCount)
	assert.True(t, nt.OriginalMRI.Equal(original))
}

func TestApplyIncrementsOnSecondNAT(t *testing.T) {
	original := mriWithSrc("10.0.0.1")
	pdu := wire.PDU{Objects: []wire.Object{
		mriWithSrc("1.2.3.4"),
		wire.NATTraversal{OriginalMRI: original, NATCount: 1},
	}}

	fixed := Apply(pdu, original)
	nt, ok := fixed.Find(wire.TypeNATTraversal).(wire.NATTraversal)
	require.True(t, ok)
	assert.Equal(t, uint8(2), nt.NATCount)
}

func TestUndoRestoresOriginalMRIAndStripsObjectAtLastHop(t *testing.T) {
	original := mriWithSrc("10.0.0.1")
	pdu := wire.PDU{Objects: []wire.Object{
		mriWithSrc("1.2.3.4"),
		wire.NATTraversal{OriginalMRI: original, NATCount: 1},
	}}

	undone, ok := Undo(pdu)
	require.True(t, ok)
	assert.Nil(t, undone.Find(wire.TypeNATTraversal))
	got, ok := undone.MRI()
	require.True(t, ok)
	assert.True(t, got.Equal(original))
}

func TestUndoDecrementsWhenMultipleNATsRemain(t *testing.T) {
	original := mriWithSrc("10.0.0.1")
	pdu := wire.PDU{Objects: []wire.Object{
		mriWithSrc("1.2.3.4"),
		wire.NATTraversal{OriginalMRI: original, NATCount: 2},
	}}

	undone, ok := Undo(pdu)
	require.True(t, ok)
	nt, ok := undone.Find(wire.TypeNATTraversal).(wire.NATTraversal)
	require.True(t, ok)
	assert.Equal(t, uint8(1), nt.NATCount)
}

func TestUndoNoopWithoutNATTraversalObject(t *testing.T) {
	pdu := wire.PDU{Objects: []wire.Object{mriWithSrc("10.0.0.1")}}
	_, ok := Undo(pdu)
	assert.False(t, ok)
}
