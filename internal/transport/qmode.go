package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/higebu/netfd"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// QModePort is GIST's registered Q-mode well-known port (§6 "UDP port
// 270").
const QModePort = 270

// routerAlertOption is the IPv4 Router Alert Option (RFC 2113): option
// type 0x94, length 4, value 0 — inserted so on-path routers that look
// for it (§1: "discovers peers via Query encapsulation with the IP
// Router Alert Option") intercept the Query datagram even though it is
// addressed elsewhere on the data path.
var routerAlertOption = []byte{0x94, 0x04, 0x00, 0x00}

// QModeSocket is a UDP socket carrying Q-mode-encapsulated Query/Data
// PDUs with the IP Router Alert Option set, grounded on gnbsim's
// timeout-guarded dial idiom (buffered channel + select/time.After,
// cmd/gnbsim_sctp.go newN2Conn/recv) generalized from a blocking SCTP
// dial to a UDP socket whose options are tuned after creation.
type QModeSocket struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	fd   int
}

// ListenQMode opens a UDP socket on the given local address (default
// port 270) and attempts to set the Router Alert Option and a
// conservative IP TTL on it. Router Alert is best-effort: platforms
// that reject IP_OPTIONS still function as a Q-mode socket, just
// without on-path router interception.
func ListenQMode(localAddr string) (*QModeSocket, error) {
	addr, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving Q-mode local address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening Q-mode UDP: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	_ = pc.SetTTL(1) // Query traverses one GIST hop at a time (§4.1 GIST-hop-count)
	_ = pc.SetControlMessage(ipv4.FlagTTL, true) // observe the peer's IP-TTL on receive (§4.1)

	s := &QModeSocket{conn: conn, pc: pc, fd: netfd.GetFdFromConn(conn)}
	_ = unix.SetsockoptString(s.fd, unix.IPPROTO_IP, unix.IP_OPTIONS, string(routerAlertOption))

	return s, nil
}

// SendTo writes an already-encapsulated Q-mode datagram to dst.
func (s *QModeSocket) SendTo(buf []byte, dst *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(buf, dst)
	return err
}

// Datagram is one received Q-mode packet plus the TTL the kernel
// observed on it, when available (§4.1 "IP-TTL observed").
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
	TTL     uint8
}

// Receive blocks for the next datagram or until ctx is cancelled,
// mirroring gnbsim's recv(t time.Duration) pattern but using context
// cancellation instead of a fixed timer.
func (s *QModeSocket) Receive(ctx context.Context) (Datagram, error) {
	type result struct {
		d   Datagram
		err error
	}
	c := make(chan result, 1)
	go func() {
		buf := make([]byte, 65535)
		n, cm, from, err := s.pc.ReadFrom(buf)
		if err != nil {
			c <- result{err: fmt.Errorf("transport: Q-mode read: %w", err)}
			return
		}
		d := Datagram{Payload: buf[:n], From: from.(*net.UDPAddr)}
		if cm != nil {
			d.TTL = uint8(cm.TTL)
		}
		c <- result{d: d}
	}()

	select {
	case r := <-c:
		return r.d, r.err
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	}
}

// Close releases the underlying socket.
func (s *QModeSocket) Close() error { return s.conn.Close() }

// DialTimeout dials a UDP "connection" to dst for the caller's
// convenience when it wants a fixed peer without binding a new
// listener; Q-mode itself is connectionless.
func DialTimeout(dst string, timeout time.Duration) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", dst)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("udp4", addr.String())
	if err != nil {
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}
