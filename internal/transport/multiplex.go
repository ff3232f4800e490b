package transport

import (
	"net"

	"gist/internal/wire"
)

// Encapsulation names which transport mode delivered a PDU (§4.2,
// §4.1 "IncorrectEncapsulation").
type Encapsulation int

const (
	EncapQMode Encapsulation = iota
	EncapCMode
)

// Inbound is one PDU arriving off the wire, tagged with the delivery
// metadata the state machine (C6) and NAT fix-up (C8) need: which
// local/peer addresses carried it, how it was encapsulated, the
// observed IP TTL, and the MA it arrived on (empty for Q-mode).
type Inbound struct {
	PDU           wire.PDU
	Encapsulation Encapsulation
	LocalAddr     net.Addr
	PeerAddr      net.Addr
	ObservedTTL   uint8
	MAID          string // "" for Q-mode datagrams
}

// Multiplexer fans inbound PDUs from every live Q-mode socket and
// C-mode connection into one channel, tagging each with its delivery
// metadata, and fans outbound per-MA writes the other way
// (§4.2 "Transport Multiplex").
type Multiplexer struct {
	qmode *QModeSocket
	conns map[string]Conn // MAID -> connection

	Inbound chan Inbound
	Events  chan Event
}

// NewMultiplexer wires a Q-mode socket (may be nil if this node only
// speaks C-mode) into a fresh multiplexer.
func NewMultiplexer(q *QModeSocket) *Multiplexer {
	return &Multiplexer{
		qmode:   q,
		conns:   make(map[string]Conn),
		Inbound: make(chan Inbound, 256),
		Events:  make(chan Event, 64),
	}
}

// RegisterConn attaches an already-established C-mode connection under
// an MA id and starts reading PDUs from it until it errors or closes.
func (m *Multiplexer) RegisterConn(maID string, conn Conn) {
	m.conns[maID] = conn
	go m.readLoop(maID, conn)
}

func (m *Multiplexer) readLoop(maID string, conn Conn) {
	buf := make([]byte, 65535)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			m.Events <- Event{Kind: ConnDown, MAID: maID, Err: err}
			return
		}
		pdu, perr := wire.Decode(buf[:n])
		if perr != nil {
			// Malformed C-mode traffic is a protocol-level parse
			// failure, not a connection failure; drop and keep reading
			// (§7 "the offending PDU is dropped ... no routing state is
			// changed").
			continue
		}
		m.Inbound <- Inbound{
			PDU:           pdu,
			Encapsulation: EncapCMode,
			PeerAddr:      conn.RemoteAddr(),
			LocalAddr:     conn.LocalAddr(),
			MAID:          maID,
		}
	}
}

// WriteTo sends an encoded PDU out over the named MA's connection.
func (m *Multiplexer) WriteTo(maID string, buf []byte) error {
	conn, ok := m.conns[maID]
	if !ok {
		return errConnNotFound(maID)
	}
	_, err := conn.Write(buf)
	return err
}

// CloseConn tears down and deregisters an MA's connection.
func (m *Multiplexer) CloseConn(maID string) {
	if conn, ok := m.conns[maID]; ok {
		_ = conn.Close()
		delete(m.conns, maID)
	}
}

type errConnNotFound string

func (e errConnNotFound) Error() string { return "transport: no connection registered for MA " + string(e) }
