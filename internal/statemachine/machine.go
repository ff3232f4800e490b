package statemachine

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"gist/internal/capability"
	"gist/internal/config"
	"gist/internal/ma"
	"gist/internal/metrics"
	"gist/internal/routing"
	"gist/internal/secret"
	"gist/internal/telemetry"
	"gist/internal/transport"
	"gist/internal/wire"
	"gist/internal/wireid"
)

// Machine is the GIST peer's Querier/Responder state machine (C6): it
// owns the routing table, drives the handshake/refresh/race logic of
// §4.6, and hands parsed NSLP payloads to the upcall NSLPDeliverer.
type Machine struct {
	cfg *config.GISTConfig

	table   *routing.Table
	mas     *ma.Arena
	secrets *secret.Manager
	mux     *transport.Multiplexer
	qmode   *transport.QModeSocket

	localPeerID wireid.ID
	localAddr   net.IP
	supported   []wire.Profile

	deliverer NSLPDeliverer
	log       *logrus.Entry
	metrics   *metrics.Metrics
	journal   *telemetry.Journal

	queues *OutgoingQueues
}

// New constructs a Machine. journal may be nil (production path);
// passing one turns on the opt-in benchmark fixture (Design Note §9).
func New(
	cfg *config.GISTConfig,
	table *routing.Table,
	mas *ma.Arena,
	secrets *secret.Manager,
	mux *transport.Multiplexer,
	qmode *transport.QModeSocket,
	localPeerID wireid.ID,
	localAddr net.IP,
	deliverer NSLPDeliverer,
	log *logrus.Entry,
	metr *metrics.Metrics,
) *Machine {
	m := &Machine{
		cfg:         cfg,
		table:       table,
		mas:         mas,
		secrets:     secrets,
		mux:         mux,
		qmode:       qmode,
		localPeerID: localPeerID,
		localAddr:   localAddr,
		supported:   capability.DefaultSupportedProfiles(),
		deliverer:   deliverer,
		log:         log,
		metrics:     metr,
	}
	m.queues = NewOutgoingQueues(cfg.MaxOutgoingQueueDepth, mux.WriteTo, func(maID string, handle wireid.ID) {
		log.WithField("ma_id", maID).Warn("statemachine: dropped queued NSLP Data under backpressure")
		if !handle.IsNil() {
			m.deliverer.MessageStatus(handle, StatusErrorWhileSending)
		}
	})
	return m
}

// WithJournal attaches the opt-in benchmark journal.
func (m *Machine) WithJournal(j *telemetry.Journal) *Machine {
	m.journal = j
	return m
}

func (m *Machine) record(phase, note string) {
	if m.journal != nil {
		m.journal.Record(phase, note)
	}
}

func addrBytes(ip net.IP, v6 bool) []byte {
	if v6 {
		return ip.To16()
	}
	return ip.To4()
}

func initialBackoff(cfg *config.GISTConfig, attempt int) time.Duration {
	d := cfg.NoResponseTimeout
	for i := 0; i < attempt; i++ {
		d *= time.Duration(cfg.NoResponseBackoffFactor)
		if d > cfg.NoResponseCeiling {
			return cfg.NoResponseCeiling
		}
	}
	return d
}

// HandleInbound dispatches one parsed PDU to its per-PDU-type handler.
// The caller only decodes; hop-count and encapsulation checks for a
// Query are made in handleQuery.
func (m *Machine) HandleInbound(in transport.Inbound) {
	switch in.PDU.Header.Type {
	case wire.PDUQuery:
		m.handleQuery(in)
	case wire.PDUResponse:
		m.handleResponse(in)
	case wire.PDUConfirm:
		m.handleConfirm(in)
	case wire.PDUData:
		m.handleData(in)
	case wire.PDUError:
		m.handleErrorPDU(in)
	case wire.PDUHello:
		m.handleHello(in)
	default:
		m.log.WithField("type", in.PDU.Header.Type).Warn("unhandled PDU type")
	}
}

// DropQueue discards maID's pending outgoing queue (the MA went down,
// so nothing queued for it can ever be delivered).
func (m *Machine) DropQueue(maID string) {
	m.queues.Remove(maID)
}

// releaseMA decrements the refcount of the MA a routing entry is
// giving up its binding to, whether the entry is being torn down,
// evicted, or rebound to a different MA (§3 Invariant 3: an entry's
// MA binding is reference-counted, not weak).
func (m *Machine) releaseMA(maID string) {
	if maID == "" {
		return
	}
	if assoc, ok := m.mas.Get(maID); ok {
		assoc.Release()
	}
}

// sendPDU emits a PDU over the entry's bound MA if one exists, or falls
// back to Q-mode UDP to dstAddr (§4.6: "re-send Query over the existing
// MA (C-mode) or over Q-mode as originally established").
func (m *Machine) sendPDU(p wire.PDU, entry *routing.Entry, dstAddr *net.UDPAddr) error {
	if entry != nil && entry.MAID != "" {
		return m.mux.WriteTo(entry.MAID, p.Encode())
	}
	if m.qmode == nil || dstAddr == nil {
		return fmt.Errorf("statemachine: no MA bound and no Q-mode destination available")
	}
	return m.qmode.SendTo(wire.EncodeQMode(p), dstAddr)
}
