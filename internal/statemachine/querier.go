package statemachine

import (
	"fmt"
	"net"
	"time"

	"gist/internal/capability"
	"gist/internal/ma"
	"gist/internal/nattraversal"
	"gist/internal/routing"
	"gist/internal/secret"
	"gist/internal/transport"
	"gist/internal/wire"
	"gist/internal/wireid"
)

// SendMessage implements the Q-Node outbound primitive (§4.6 "Q-Node
// outbound", §4.7 SendMessage): if routing state is already Established
// on a suitable MA, the NSLP payload rides a Data PDU immediately;
// otherwise a handshake is kicked off and the payload is queued to ride
// the eventual Confirm/Data exchange.
func (m *Machine) SendMessage(sid wire.SessionID, mri wire.MRI, nslpID uint16, data []byte, opts SendOptions) error {
	if opts.LocalProcessing {
		m.deliverer.RecvMessage(sid, mri, nslpID, data, RecvMeta{NoGISTState: true})
		return nil
	}

	key := routing.NewKey(mri, nslpID)
	entry, ok := m.table.Lookup(key)

	if ok && entry.State == routing.Established {
		return m.sendData(entry, sid, nslpID, data, opts.NSLPMessageHandle)
	}

	if !ok {
		entry = routing.NewEntry(mri, nslpID, sid)
		m.table.Insert(entry)
	}
	entry.NSLPMessageHandle = opts.NSLPMessageHandle
	entry.PendingNSLPData = append(entry.PendingNSLPData, data)
	return m.issueQuery(entry, 0)
}

// issueQuery emits (or re-emits, on retry attempt>0) a Query for entry,
// arming T-NoResponse per §4.6 step 2 ("exponential backoff <=5
// retries, ceiling 30s").
func (m *Machine) issueQuery(entry *routing.Entry, attempt int) error {
	qCookie, err := secret.NewQueryCookie()
	if err != nil {
		return fmt.Errorf("statemachine: minting query cookie: %w", err)
	}
	entry.LastQueryCookie = qCookie
	entry.NoResponseRetries = attempt
	entry.NoResponseTimeout = initialBackoff(m.cfg, attempt)
	entry.RefreshDeadline = time.Now().Add(entry.NoResponseTimeout)
	m.table.Insert(entry)

	// LE-MRM addresses a specific next peer directly rather than relying
	// on on-path interception (§3), so it is sent explicitly routed; a
	// NAT on path between here and that peer needs a fix-up object if
	// this flow hasn't already crossed one (§4.8, SPEC_FULL.md open
	// question 3).
	explicit := entry.MRI.Kind == wire.MRILooseEnd

	sp := wire.StackProposal{Profiles: m.supported}
	pdu := wire.PDU{
		Header: wire.CommonHeader{
			Version:  wire.GISTVersion,
			HopCount: 64,
			NSLPID:   entry.NSLPID,
			Type:     wire.PDUQuery,
			Flags:    wire.Flags{R: true, S: true, E: explicit},
		},
		Objects: []wire.Object{
			entry.MRI,
			wire.SessionID{ID: entry.SID.ID},
			sp,
			wire.QueryCookie{Value: qCookie},
		},
	}
	if explicit && !entry.MRI.NATTraversed {
		pdu = nattraversal.Apply(pdu, entry.MRI)
	}

	dst := &net.UDPAddr{IP: entry.MRI.DstIP, Port: transport.QModePort}
	m.record("query-sent", entry.Key.String())
	if m.metrics != nil && attempt > 0 {
		m.metrics.IncRetransmission(fmt.Sprint(entry.NSLPID))
	}
	return m.sendPDU(pdu, nil, dst)
}

// sendData sends an NSLP payload over an Established entry's bound MA
// (§4.6 step 1: "If Established and MA suitable -> send Data over MA").
// When the entry has a bound MA, the payload rides that MA's bounded
// outgoing queue instead of writing straight through, so a burst of
// Data under backpressure drops its own oldest queued entry rather than
// blocking or growing unbounded (§5); Q-mode-only entries (no MA) have
// no per-MA queue to speak of and send directly.
func (m *Machine) sendData(entry *routing.Entry, sid wire.SessionID, nslpID uint16, data []byte, handle wireid.ID) error {
	pdu := wire.PDU{
		Header: wire.CommonHeader{
			Version: wire.GISTVersion,
			NSLPID:  nslpID,
			Type:    wire.PDUData,
			Flags:   wire.Flags{S: true},
		},
		Objects: []wire.Object{entry.MRI, wire.SessionID{ID: sid.ID}, wire.NSLPData{Data: data}},
	}

	if entry.MAID == "" {
		return m.sendPDU(pdu, entry, &net.UDPAddr{IP: entry.MRI.DstIP, Port: transport.QModePort})
	}

	m.queues.Enqueue(entry.MAID, pdu.Encode(), handle)
	return m.queues.Drain(entry.MAID)
}

// handleResponse implements §4.6 step 3: validate the echoed Q-cookie,
// extract the R-cookie/peer NLI/chosen profile, establish or reuse an
// MA if the profile selects C-mode, send Confirm, transition to
// Established.
func (m *Machine) handleResponse(in transport.Inbound) {
	pdu := in.PDU
	if fixed, ok := nattraversal.Undo(pdu); ok {
		pdu = fixed
	}
	mri, ok := pdu.MRI()
	if !ok {
		return
	}
	sid, ok := pdu.SessionID()
	if !ok {
		return
	}

	key := routing.NewKey(mri, pdu.Header.NSLPID)
	entry, ok := m.table.Lookup(key)
	if !ok || (entry.State != routing.AwaitingResponse && entry.State != routing.AwaitingRefresh) {
		return
	}

	qc, ok := pdu.Find(wire.TypeQueryCookie).(wire.QueryCookie)
	if !ok || string(qc.Value) != string(entry.LastQueryCookie) {
		return // §4.6 step 3: "else drop"
	}

	rc, ok := pdu.Find(wire.TypeResponderCookie).(wire.ResponderCookie)
	if !ok {
		return
	}
	peerNLI, ok := pdu.NLI()
	if !ok {
		return
	}
	sp, ok := pdu.Find(wire.TypeStackProposal).(wire.StackProposal)
	if !ok || len(sp.Profiles) == 0 {
		return
	}
	chosen := sp.Profiles[0]

	entry.LastResponderCookie = rc.Value
	entry.DownstreamPeer = &peerNLI

	if requiresConnection(chosen) && entry.MAID == "" {
		if _, err := m.bindMA(entry, peerNLI, chosen); err != nil {
			m.log.WithError(err).Warn("failed to establish messaging association")
			return
		}
	}

	confirm := wire.PDU{
		Header: wire.CommonHeader{
			Version: wire.GISTVersion,
			NSLPID:  entry.NSLPID,
			Type:    wire.PDUConfirm,
			Flags:   wire.Flags{S: true},
		},
		Objects: []wire.Object{
			entry.MRI,
			wire.SessionID{ID: entry.SID.ID},
			wire.NLI{PeerIdentity: m.localPeerID, InterfaceAddress: m.localAddr},
			wire.StackProposal{Profiles: []wire.Profile{chosen}},
			wire.QueryCookie{Value: entry.LastQueryCookie},
			rc,
		},
	}
	if err := capability.ConfirmOffered(m.supported, chosen); err != nil {
		m.log.WithError(err).Error("refusing to Confirm a profile we never offered")
		return
	}

	dst := &net.UDPAddr{IP: entry.MRI.DstIP, Port: transport.QModePort}
	if err := m.sendPDU(confirm, entry, dst); err != nil {
		m.log.WithError(err).Warn("failed to send Confirm")
		return
	}

	entry.State = routing.Established
	entry.ArmTimers(time.Now(), m.cfg.RefreshInterval, m.cfg.RSValidity())
	m.table.Insert(entry)
	m.record("established", entry.Key.String())
	if m.metrics != nil {
		m.metrics.ObserveHandshakeLatencySeconds(time.Since(entry.CreatedAt).Seconds())
	}

	for _, payload := range entry.PendingNSLPData {
		_ = m.sendData(entry, entry.SID, entry.NSLPID, payload, entry.NSLPMessageHandle)
	}
	entry.PendingNSLPData = nil
}

func requiresConnection(p wire.Profile) bool {
	for _, proto := range p {
		switch proto {
		case wire.MAProtoTCP, wire.MAProtoTLS, wire.MAProtoSCTP:
			return true
		}
	}
	return false
}

// bindMA reuses an existing MA to the peer if one exists, otherwise
// dials a fresh one on the negotiated profile (§4.2, §4.5).
func (m *Machine) bindMA(entry *routing.Entry, peer wire.NLI, profile wire.Profile) (string, error) {
	addr := net.JoinHostPort(peer.InterfaceAddress.String(), fmt.Sprint(m.cfg.QModePort+1))
	if existing, ok := m.mas.FindByRemote(peer.PeerIdentity.String(), addr); ok {
		existing.Acquire()
		entry.MAID = existing.IDString()
		m.table.Reindex(entry)
		return existing.IDString(), nil
	}

	conn, err := transport.Dial(profile[0], addr, nil)
	if err != nil {
		return "", err
	}
	assoc := ma.New(m.localPeerID, peer.PeerIdentity, addr, profile, m.cfg.MAHoldTime)
	assoc.Acquire()
	m.mas.Put(assoc)
	m.mux.RegisterConn(assoc.IDString(), conn)
	entry.MAID = assoc.IDString()
	m.table.Reindex(entry)
	if m.metrics != nil {
		m.metrics.SetMACount(m.mas.Len())
	}
	return assoc.IDString(), nil
}
