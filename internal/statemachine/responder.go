package statemachine

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"gist/internal/capability"
	"gist/internal/routing"
	"gist/internal/transport"
	"gist/internal/wire"
)

// handleQuery implements the R-Node side of §4.6 step 1-2: the
// Responder stays stateless across a Query, minting a self-contained
// Responder Cookie (Invariant 4) rather than recording anything.
func (m *Machine) handleQuery(in transport.Inbound) {
	pdu := in.PDU

	sourceIdentifiable := in.PeerAddr != nil || in.MAID != ""

	if pdu.Header.HopCount == 0 {
		if shouldSendError(sourceIdentifiable, wire.ErrHopLimitExceeded) {
			m.replyError(in, buildErrorPDU(pdu.Header, nil, wire.ErrHopLimitExceeded, -1))
		}
		return
	}
	if in.Encapsulation != transport.EncapQMode {
		mri, _ := pdu.MRI()
		if shouldSendError(sourceIdentifiable, wire.ErrIncorrectEncapsulation) {
			m.replyError(in, buildErrorPDU(pdu.Header, &mri, wire.ErrIncorrectEncapsulation, -1))
		}
		return
	}

	mri, ok := pdu.MRI()
	if !ok {
		return
	}
	sid, ok := pdu.SessionID()
	if !ok {
		return
	}
	qc, ok := pdu.Find(wire.TypeQueryCookie).(wire.QueryCookie)
	if !ok {
		return
	}
	sp, ok := pdu.Find(wire.TypeStackProposal).(wire.StackProposal)
	if !ok {
		return
	}
	nslpID := pdu.Header.NSLPID

	// Crossing-query race (§4.6): if we are concurrently Querier for
	// this same flow and lose the Peer-Identity comparison, drop our
	// own half and answer this Query as Responder instead.
	if peerNLI, ok := pdu.NLI(); ok {
		key := routing.NewKey(mri, nslpID)
		if existing, found := m.table.Lookup(key); found && existing.State == routing.AwaitingResponse {
			if !localWinsQRole(m.localPeerID, peerNLI.PeerIdentity) {
				m.table.Delete(key)
			}
		}
	}

	chosen, _, err := capability.Select(sp, m.supported)
	if err != nil {
		if serr, ok := err.(*capability.SelectionError); ok && shouldSendError(sourceIdentifiable, wire.ErrObjectValueError) {
			pe := serr.ToParseError()
			m.replyError(in, buildErrorPDU(pdu.Header, &mri, pe.Code, pe.Subcode))
		}
		return
	}

	srcAddr := addrBytes(mri.SrcIP, mri.IPv6)
	dstAddr := addrBytes(mri.DstIP, mri.IPv6)
	rc, err := m.secrets.Mint(qc.Value, srcAddr, dstAddr, sid.ID.Bytes(), nslpID)
	if err != nil {
		m.log.WithError(err).Error("failed to mint responder cookie")
		return
	}

	response := wire.PDU{
		Header: wire.CommonHeader{
			Version: wire.GISTVersion,
			NSLPID:  nslpID,
			Type:    wire.PDUResponse,
			Flags:   wire.Flags{S: true},
		},
		Objects: []wire.Object{
			mri,
			wire.SessionID{ID: sid.ID},
			wire.NLI{PeerIdentity: m.localPeerID, InterfaceAddress: m.localAddr},
			wire.StackProposal{Profiles: []wire.Profile{chosen}},
			qc,
			wire.ResponderCookie{Value: rc},
		},
	}
	m.record("query-received", mri.CanonicalKey())
	m.sendTo(in, response)
}

// handleConfirm implements §4.6 step 4 (R-Node): the Responder's first
// durable state for this flow is created here, once the self-contained
// cookie is revalidated.
func (m *Machine) handleConfirm(in transport.Inbound) {
	pdu := in.PDU

	mri, ok := pdu.MRI()
	if !ok {
		return
	}
	sid, ok := pdu.SessionID()
	if !ok {
		return
	}
	qc, ok := pdu.Find(wire.TypeQueryCookie).(wire.QueryCookie)
	if !ok {
		return
	}
	rc, ok := pdu.Find(wire.TypeResponderCookie).(wire.ResponderCookie)
	if !ok {
		return
	}
	sp, ok := pdu.Find(wire.TypeStackProposal).(wire.StackProposal)
	if !ok || len(sp.Profiles) == 0 {
		return
	}
	nslpID := pdu.Header.NSLPID

	srcAddr := addrBytes(mri.SrcIP, mri.IPv6)
	dstAddr := addrBytes(mri.DstIP, mri.IPv6)
	if !m.secrets.Validate(rc.Value, qc.Value, srcAddr, dstAddr, sid.ID.Bytes(), nslpID) {
		if m.metrics != nil {
			m.metrics.IncCookieValidation("rejected")
		}
		return // forged or stale cookie: stay stateless, drop silently
	}
	if m.metrics != nil {
		m.metrics.IncCookieValidation("accepted")
	}

	key := routing.NewKey(mri, nslpID)
	entry, ok := m.table.Lookup(key)
	if !ok {
		entry = routing.NewEntry(mri, nslpID, sid)
	}

	if peerNLI, ok := pdu.NLI(); ok {
		entry.UpstreamPeer = &peerNLI
		if requiresConnection(sp.Profiles[0]) && in.MAID != "" {
			if assoc, ok := m.mas.Get(in.MAID); ok {
				if entry.MAID != in.MAID {
					m.releaseMA(entry.MAID)
					assoc.Acquire()
					entry.MAID = in.MAID
				}
			}
		}
	}

	entry.State = routing.Established
	entry.ArmTimers(time.Now(), m.cfg.RefreshInterval, m.cfg.RSValidity())
	m.table.Insert(entry)
	m.record("established", entry.Key.String())
	if m.metrics != nil {
		m.metrics.ObserveHandshakeLatencySeconds(time.Since(entry.CreatedAt).Seconds())
	}
}

// handleData delivers an in-sequence NSLP payload upward (§4.7
// RecvMessage) without touching routing state beyond the liveness
// timestamp.
func (m *Machine) handleData(in transport.Inbound) {
	pdu := in.PDU
	mri, ok := pdu.MRI()
	if !ok {
		return
	}
	sid, ok := pdu.SessionID()
	if !ok {
		return
	}
	nd, ok := pdu.Find(wire.TypeNSLPData).(wire.NSLPData)
	if !ok {
		return
	}

	if entry, ok := m.table.Lookup(routing.NewKey(mri, pdu.Header.NSLPID)); ok {
		entry.UpdatedAt = time.Now()
	}

	m.deliverer.RecvMessage(sid, mri, pdu.Header.NSLPID, nd.Data, RecvMeta{
		IPTTL:        in.ObservedTTL,
		GISTHopCount: pdu.Header.HopCount,
	})
}

// handleErrorPDU surfaces a peer-reported error to the NSLP layer
// (§7): GIST itself performs no routing-state transition on receipt.
func (m *Machine) handleErrorPDU(in transport.Inbound) {
	pdu := in.PDU
	eo, ok := pdu.Find(wire.TypeErrorObject).(wire.ErrorObject)
	if !ok {
		return
	}
	m.log.WithFields(logrus.Fields{
		"class":   eo.Class,
		"code":    eo.Code,
		"subcode": eo.Subcode,
	}).Warn("received GIST error PDU")

	if sid, ok := pdu.SessionID(); ok {
		m.deliverer.NetworkNotification(sid, NotifyRoutingStateChange)
	}
}

// handleHello answers a messaging-association keepalive (§3 "Hello
// state"): touch the MA's liveness clock and, if this Hello demands a
// response (R flag set), echo one back.
func (m *Machine) handleHello(in transport.Inbound) {
	if in.MAID == "" {
		return
	}
	assoc, ok := m.mas.Get(in.MAID)
	if !ok {
		return
	}
	assoc.Touch()

	if !in.PDU.Header.Flags.R {
		return
	}
	reply := wire.PDU{
		Header: wire.CommonHeader{
			Version: wire.GISTVersion,
			NSLPID:  in.PDU.Header.NSLPID,
			Type:    wire.PDUHello,
			Flags:   wire.Flags{},
		},
	}
	if err := m.mux.WriteTo(in.MAID, reply.Encode()); err != nil {
		m.log.WithError(err).Warn("failed to send Hello reply")
	}
}

// replyError sends a constructed Error PDU back toward in's source.
func (m *Machine) replyError(in transport.Inbound, errPDU wire.PDU) {
	m.sendTo(in, errPDU)
}

// sendTo replies to an Inbound using the same path it arrived on: over
// its bound MA for C-mode, or back to PeerAddr for Q-mode datagrams.
func (m *Machine) sendTo(in transport.Inbound, p wire.PDU) {
	if in.MAID != "" {
		if err := m.mux.WriteTo(in.MAID, p.Encode()); err != nil {
			m.log.WithError(err).Warn("failed to send reply over MA")
		}
		return
	}
	udpAddr, ok := in.PeerAddr.(*net.UDPAddr)
	if !ok || m.qmode == nil {
		m.log.Warn("no reply path available for inbound Q-mode datagram")
		return
	}
	if err := m.qmode.SendTo(wire.EncodeQMode(p), udpAddr); err != nil {
		m.log.WithError(err).Warn("failed to send Q-mode reply")
	}
}
