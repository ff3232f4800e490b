package statemachine

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gist/internal/config"
	"gist/internal/ma"
	"gist/internal/routing"
	"gist/internal/secret"
	"gist/internal/transport"
	"gist/internal/wire"
	"gist/internal/wireid"
)

type fakeDeliverer struct {
	received  []wire.SessionID
	statuses  []StatusErrorType
	handles   []wireid.ID
	notifieds []NotificationKind
}

func (f *fakeDeliverer) RecvMessage(sid wire.SessionID, mri wire.MRI, nslpID uint16, data []byte, meta RecvMeta) {
	f.received = append(f.received, sid)
}
func (f *fakeDeliverer) MessageStatus(handle wireid.ID, errType StatusErrorType) {
	f.statuses = append(f.statuses, errType)
	f.handles = append(f.handles, handle)
}
func (f *fakeDeliverer) NetworkNotification(sid wire.SessionID, kind NotificationKind) {
	f.notifieds = append(f.notifieds, kind)
}

func newTestMachine(t *testing.T) (*Machine, *fakeDeliverer) {
	t.Helper()
	qmode, err := transport.ListenQMode("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { qmode.Close() })

	secrets, err := secret.NewManager(2, time.Hour)
	require.NoError(t, err)

	deliverer := &fakeDeliverer{}
	log := logrus.NewEntry(logrus.New())

	cfg := config.Default().GIST
	m := New(&cfg, routing.NewTable(), ma.NewArena(), secrets,
		transport.NewMultiplexer(qmode), qmode, wireid.New(), net.ParseIP("127.0.0.1"),
		deliverer, log, nil)
	return m, deliverer
}

func testMRI() wire.MRI {
	return wire.MRI{
		Kind:      wire.MRIPathCoupled,
		Direction: wire.DirDownstream,
		SrcIP:     net.ParseIP("127.0.0.1"),
		DstIP:     net.ParseIP("127.0.0.1"),
	}
}

func TestSendMessageIssuesQueryAndAwaitsResponse(t *testing.T) {
	m, _ := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}

	err := m.SendMessage(sid, mri, 42, []byte("hello"), SendOptions{})
	assert.NoError(t, err)

	entry, ok := m.table.Lookup(routing.NewKey(mri, 42))
	require.True(t, ok)
	assert.Equal(t, routing.AwaitingResponse, entry.State)
	assert.Len(t, entry.LastQueryCookie, 8)
	assert.Equal(t, [][]byte{[]byte("hello")}, entry.PendingNSLPData)
}

func TestSendMessageLocalProcessingShortCircuits(t *testing.T) {
	m, deliverer := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}

	err := m.SendMessage(sid, mri, 42, []byte("local"), SendOptions{LocalProcessing: true})
	require.NoError(t, err)

	assert.Equal(t, []wire.SessionID{sid}, deliverer.received)
	_, ok := m.table.Lookup(routing.NewKey(mri, 42))
	assert.False(t, ok, "local processing must not create routing state")
}

func TestHandleResponseDropsOnCookieMismatch(t *testing.T) {
	m, _ := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}

	entry := routing.NewEntry(mri, 42, sid)
	entry.LastQueryCookie = []byte("abcdefgh")
	m.table.Insert(entry)

	resp := wire.PDU{
		Header: wire.CommonHeader{Version: wire.GISTVersion, NSLPID: 42, Type: wire.PDUResponse, Flags: wire.Flags{R: true, S: true}},
		Objects: []wire.Object{
			mri,
			wire.SessionID{ID: sid.ID},
			wire.QueryCookie{Value: []byte("WRONGCOOKIE!")},
			wire.ResponderCookie{Value: make([]byte, secret.CookieSize)},
			wire.NLI{PeerIdentity: wireid.New(), InterfaceAddress: net.ParseIP("127.0.0.2")},
			wire.StackProposal{Profiles: []wire.Profile{{}}},
		},
	}
	m.handleResponse(transport.Inbound{PDU: resp, Encapsulation: transport.EncapQMode})

	got, ok := m.table.Lookup(routing.NewKey(mri, 42))
	require.True(t, ok)
	assert.Equal(t, routing.AwaitingResponse, got.State, "a mismatched Q-cookie must not advance the handshake")
}

func TestHandleResponseEstablishesOnValidCookie(t *testing.T) {
	m, _ := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}

	entry := routing.NewEntry(mri, 42, sid)
	entry.LastQueryCookie = []byte("abcdefgh")
	m.table.Insert(entry)

	resp := wire.PDU{
		Header: wire.CommonHeader{Version: wire.GISTVersion, NSLPID: 42, Type: wire.PDUResponse, Flags: wire.Flags{R: true, S: true}},
		Objects: []wire.Object{
			mri,
			wire.SessionID{ID: sid.ID},
			wire.QueryCookie{Value: []byte("abcdefgh")},
			wire.ResponderCookie{Value: make([]byte, secret.CookieSize)},
			wire.NLI{PeerIdentity: wireid.New(), InterfaceAddress: net.ParseIP("127.0.0.2")},
			wire.StackProposal{Profiles: []wire.Profile{{}}}, // datagram-only: no MA to bind
		},
	}
	m.handleResponse(transport.Inbound{PDU: resp, Encapsulation: transport.EncapQMode})

	got, ok := m.table.Lookup(routing.NewKey(mri, 42))
	require.True(t, ok)
	assert.Equal(t, routing.Established, got.State)
	assert.False(t, got.RSValidityDeadline.IsZero())
}

func TestHandleQueryRespondsStatelessly(t *testing.T) {
	m, _ := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}
	qCookie, err := secret.NewQueryCookie()
	require.NoError(t, err)

	query := wire.PDU{
		Header: wire.CommonHeader{Version: wire.GISTVersion, HopCount: 64, NSLPID: 7, Type: wire.PDUQuery, Flags: wire.Flags{R: true, S: true}},
		Objects: []wire.Object{
			mri,
			wire.SessionID{ID: sid.ID},
			wire.StackProposal{Profiles: []wire.Profile{{}}},
			wire.QueryCookie{Value: qCookie},
		},
	}
	m.handleQuery(transport.Inbound{PDU: query, Encapsulation: transport.EncapQMode, PeerAddr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 270}})

	_, ok := m.table.Lookup(routing.NewKey(mri, 7))
	assert.False(t, ok, "the Responder must remain stateless across a bare Query")
}

func TestHandleConfirmValidatesCookieBeforeCreatingState(t *testing.T) {
	m, _ := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}
	nslpID := uint16(9)

	srcAddr := addrBytes(mri.SrcIP, mri.IPv6)
	dstAddr := addrBytes(mri.DstIP, mri.IPv6)
	qCookie, err := secret.NewQueryCookie()
	require.NoError(t, err)
	rCookie, err := m.secrets.Mint(qCookie, srcAddr, dstAddr, sid.ID.Bytes(), nslpID)
	require.NoError(t, err)

	confirm := wire.PDU{
		Header: wire.CommonHeader{Version: wire.GISTVersion, NSLPID: nslpID, Type: wire.PDUConfirm, Flags: wire.Flags{S: true}},
		Objects: []wire.Object{
			mri,
			wire.SessionID{ID: sid.ID},
			wire.QueryCookie{Value: qCookie},
			wire.ResponderCookie{Value: rCookie},
			wire.NLI{PeerIdentity: wireid.New(), InterfaceAddress: net.ParseIP("127.0.0.2")},
			wire.StackProposal{Profiles: []wire.Profile{{}}},
		},
	}
	m.handleConfirm(transport.Inbound{PDU: confirm})

	entry, ok := m.table.Lookup(routing.NewKey(mri, nslpID))
	require.True(t, ok)
	assert.Equal(t, routing.Established, entry.State)
}

func TestHandleConfirmRejectsForgedCookie(t *testing.T) {
	m, _ := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}

	confirm := wire.PDU{
		Header: wire.CommonHeader{Version: wire.GISTVersion, NSLPID: 9, Type: wire.PDUConfirm, Flags: wire.Flags{S: true}},
		Objects: []wire.Object{
			mri,
			wire.SessionID{ID: sid.ID},
			wire.QueryCookie{Value: []byte("aaaaaaaa")},
			wire.ResponderCookie{Value: make([]byte, secret.CookieSize)},
			wire.NLI{PeerIdentity: wireid.New(), InterfaceAddress: net.ParseIP("127.0.0.2")},
			wire.StackProposal{Profiles: []wire.Profile{{}}},
		},
	}
	m.handleConfirm(transport.Inbound{PDU: confirm})

	_, ok := m.table.Lookup(routing.NewKey(mri, 9))
	assert.False(t, ok, "a forged Responder Cookie must not create routing state")
}

func TestRetryExhaustionSurfacesMessageStatus(t *testing.T) {
	m, deliverer := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}
	handle := wireid.New()

	entry := routing.NewEntry(mri, 5, sid)
	entry.NSLPMessageHandle = handle
	entry.NoResponseRetries = m.cfg.NoResponseMaxAttempts
	entry.RefreshDeadline = time.Now().Add(-time.Second)
	m.table.Insert(entry)

	m.Tick(time.Now())

	assert.Equal(t, []StatusErrorType{StatusUnableToEstablishRoutingState}, deliverer.statuses)
	require.Len(t, deliverer.handles, 1)
	assert.Equal(t, handle, deliverer.handles[0], "MessageStatus must report the NSLP's own send handle, not the session id")
	_, ok := m.table.Lookup(entry.Key)
	assert.False(t, ok, "an exhausted handshake entry must be evicted")
}

func TestRefreshExpiryReopensHandshake(t *testing.T) {
	m, _ := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}

	entry := routing.NewEntry(mri, 5, sid)
	entry.State = routing.Established
	entry.RefreshDeadline = time.Now().Add(-time.Second)
	entry.RSValidityDeadline = time.Now().Add(time.Hour)
	m.table.Insert(entry)

	m.Tick(time.Now())

	got, ok := m.table.Lookup(entry.Key)
	require.True(t, ok)
	assert.Equal(t, routing.AwaitingRefresh, got.State)
	assert.Len(t, got.LastQueryCookie, 8)
}

func TestRSValidityExpiryEvictsEstablishedEntry(t *testing.T) {
	m, deliverer := newTestMachine(t)
	mri := testMRI()
	sid := wire.SessionID{ID: wireid.New()}

	entry := routing.NewEntry(mri, 5, sid)
	entry.State = routing.Established
	entry.RSValidityDeadline = time.Now().Add(-time.Second)
	m.table.Insert(entry)

	m.Tick(time.Now())

	_, ok := m.table.Lookup(entry.Key)
	assert.False(t, ok)
	assert.Equal(t, []NotificationKind{NotifyRoutingStateChange}, deliverer.notifieds)
}

func TestCrossingQueryRaceLowerPeerIdentityWins(t *testing.T) {
	lower := wireid.ID{0x01}
	higher := wireid.ID{0x02}
	assert.True(t, localWinsQRole(lower, higher))
	assert.False(t, localWinsQRole(higher, lower))
}
