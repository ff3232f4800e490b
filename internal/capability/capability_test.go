package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gist/internal/wire"
)

func TestSelectPicksFirstSupportedOfferedProfile(t *testing.T) {
	offered := wire.StackProposal{Profiles: []wire.Profile{
		{wire.MAProtoSCTP},
		{wire.MAProtoTCP},
	}}
	supported := []wire.Profile{{wire.MAProtoTCP}}

	got, idx, err := Select(offered, supported)
	require.NoError(t, err)
	assert.Equal(t, wire.Profile{wire.MAProtoTCP}, got)
	assert.Equal(t, 1, idx)
}

func TestSelectHonoursQuerierOrderingOverLocalPreference(t *testing.T) {
	offered := wire.StackProposal{Profiles: []wire.Profile{
		{wire.MAProtoTCP},
		{wire.MAProtoTLS},
	}}
	supported := DefaultSupportedProfiles() // prefers TLS first locally

	got, idx, err := Select(offered, supported)
	require.NoError(t, err)
	assert.Equal(t, wire.Profile{wire.MAProtoTCP}, got)
	assert.Equal(t, 0, idx)
}

func TestSelectReturnsErrorOnNoMatch(t *testing.T) {
	offered := wire.StackProposal{Profiles: []wire.Profile{{wire.MAProtoSCTP}}}
	supported := []wire.Profile{{wire.MAProtoTCP}}

	_, _, err := Select(offered, supported)
	require.Error(t, err)

	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	perr := selErr.ToParseError()
	assert.Equal(t, wire.ErrObjectValueError, perr.Code)
	assert.Equal(t, int(wire.SubSPSCPMismatch), perr.Subcode)
}

func TestConfirmNoDowngradeAcceptsIdenticalProfile(t *testing.T) {
	p := wire.Profile{wire.MAProtoTLS, wire.MAProtoSCTP}
	assert.NoError(t, ConfirmNoDowngrade(p, p))
}

func TestConfirmNoDowngradeRejectsWeakerProfile(t *testing.T) {
	selected := wire.Profile{wire.MAProtoTLS}
	confirmed := wire.Profile{wire.MAProtoTCP}
	assert.Error(t, ConfirmNoDowngrade(selected, confirmed))
}
