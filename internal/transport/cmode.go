package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/ishidawataru/sctp"

	"gist/internal/wire"
)

// DialTimer bounds how long a C-mode dial may block, mirroring
// gnbsim's recvTimer constant (cmd/gnbsim_sctp.go).
const DialTimer = 5 * time.Second

// Conn is a transport-agnostic C-mode connection: TCP, TLS-over-TCP, or
// SCTP, unified so the state machine never branches on protocol.
type Conn interface {
	net.Conn
	Protocol() wire.MAProtocol
}

type tcpConn struct{ net.Conn }

func (c tcpConn) Protocol() wire.MAProtocol { return wire.MAProtoTCP }

type tlsConn struct{ *tls.Conn }

func (c tlsConn) Protocol() wire.MAProtocol { return wire.MAProtoTLS }

// sctpConn adapts *sctp.SCTPConn to the Conn interface; it carries the
// PPID the teacher's NGAP connection used (cmd/gnbsim_sctp.go
// newN2Conn), repurposed here for GIST's own SCTP payload protocol id.
type sctpConn struct {
	*sctp.SCTPConn
	info *sctp.SndRcvInfo
}

func (c sctpConn) Protocol() wire.MAProtocol { return wire.MAProtoSCTP }

func (c sctpConn) Write(b []byte) (int, error) {
	return c.SCTPConn.SCTPWrite(b, c.info)
}

func (c sctpConn) Read(b []byte) (int, error) {
	n, _, err := c.SCTPConn.SCTPRead(b)
	return n, err
}

// gistPPID is the Payload Protocol Identifier this repo registers for
// GIST-over-SCTP messaging associations, by analogy with gnbsim's
// hard-coded NGAP PPID (0x3c000000) on its N2 SCTP association.
const gistPPID = 0x47495354 // "GIST"

// Dial opens a C-mode connection to addr using the given protocol,
// bounded by DialTimer. Grounded on gnbsim's newN2Conn: a dial goroutine
// signals success over a buffered channel, raced against time.After.
func Dial(proto wire.MAProtocol, addr string, tlsConfig *tls.Config) (Conn, error) {
	type result struct {
		conn Conn
		err  error
	}
	c := make(chan result, 1)

	go func() {
		switch proto {
		case wire.MAProtoTCP:
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				c <- result{err: fmt.Errorf("transport: TCP dial: %w", err)}
				return
			}
			c <- result{conn: tcpConn{conn}}
		case wire.MAProtoTLS:
			conn, err := tls.Dial("tcp", addr, tlsConfig)
			if err != nil {
				c <- result{err: fmt.Errorf("transport: TLS dial: %w", err)}
				return
			}
			c <- result{conn: tlsConn{conn}}
		case wire.MAProtoSCTP:
			sctpAddr, err := sctp.ResolveSCTPAddr("sctp", addr)
			if err != nil {
				c <- result{err: fmt.Errorf("transport: resolving SCTP address: %w", err)}
				return
			}
			conn, err := sctp.DialSCTP("sctp", nil, sctpAddr)
			if err != nil {
				c <- result{err: fmt.Errorf("transport: SCTP dial: %w", err)}
				return
			}
			conn.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO)
			c <- result{conn: sctpConn{SCTPConn: conn, info: &sctp.SndRcvInfo{Stream: 0, PPID: gistPPID}}}
		default:
			c <- result{err: fmt.Errorf("transport: unsupported MA protocol %s", proto)}
		}
	}()

	select {
	case r := <-c:
		return r.conn, r.err
	case <-time.After(DialTimer):
		return nil, fmt.Errorf("transport: dial to %s timed out after %s", addr, DialTimer)
	}
}

// Listener accepts inbound C-mode connections for one protocol.
type Listener struct {
	proto wire.MAProtocol
	net.Listener
	tlsConfig *tls.Config
}

// Listen opens a listener for the given protocol on addr.
func Listen(proto wire.MAProtocol, addr string, tlsConfig *tls.Config) (*Listener, error) {
	switch proto {
	case wire.MAProtoTCP:
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &Listener{proto: proto, Listener: l}, nil
	case wire.MAProtoTLS:
		l, err := tls.Listen("tcp", addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return &Listener{proto: proto, Listener: l, tlsConfig: tlsConfig}, nil
	case wire.MAProtoSCTP:
		sctpAddr, err := sctp.ResolveSCTPAddr("sctp", addr)
		if err != nil {
			return nil, err
		}
		l, err := sctp.ListenSCTP("sctp", sctpAddr)
		if err != nil {
			return nil, err
		}
		return &Listener{proto: proto, Listener: l}, nil
	default:
		return nil, fmt.Errorf("transport: unsupported MA protocol %s", proto)
	}
}

// Accept blocks for the next inbound connection, wrapping it to the
// unified Conn interface.
func (l *Listener) Accept() (Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	switch l.proto {
	case wire.MAProtoTCP:
		return tcpConn{conn}, nil
	case wire.MAProtoTLS:
		return tlsConn{conn.(*tls.Conn)}, nil
	case wire.MAProtoSCTP:
		sc := conn.(*sctp.SCTPConn)
		sc.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO)
		return sctpConn{SCTPConn: sc, info: &sctp.SndRcvInfo{Stream: 0, PPID: gistPPID}}, nil
	default:
		return nil, fmt.Errorf("transport: unsupported MA protocol %s", l.proto)
	}
}
