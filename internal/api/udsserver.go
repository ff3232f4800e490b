package api

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"gist/internal/statemachine"
	"gist/internal/wire"
	"gist/internal/wireid"
)

// UDSServer is the external-daemon half of the §6 API boundary: it
// accepts connections on a Unix-domain socket, decodes one
// length-prefixed Frame per primitive off each connection, and calls
// into the Dispatcher exactly as an in-process NSLP would. Outbound
// RecvMessage/MessageStatus/NetworkNotification deliveries for NSLP-IDs
// that registered from a UDS connection are framed back out the same
// connection.
//
// Each frame on the wire is a uint32 little-endian byte-length prefix
// followed by that many Frame-encoded bytes. (The C-mode Multiplexer
// uses no such prefix: it decodes each connection read as one PDU.)
type UDSServer struct {
	listener net.Listener
	disp     *Dispatcher
	log      *logrus.Entry

	mu    sync.RWMutex
	conns map[uint16]net.Conn // NSLP-ID -> owning connection, for external daemons
}

// NewUDSServer wraps an already-bound UDS listener (see
// transport.ListenUDS).
func NewUDSServer(l net.Listener, disp *Dispatcher, log *logrus.Entry) *UDSServer {
	return &UDSServer{
		listener: l,
		disp:     disp,
		log:      log,
		conns:    make(map[uint16]net.Conn),
	}
}

// Serve accepts connections until the listener closes. Run it in its
// own goroutine; it returns the listener's terminal error (nil on a
// clean Close).
func (s *UDSServer) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *UDSServer) handleConn(conn net.Conn) {
	defer conn.Close()
	var registered []uint16

	for {
		frame, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.log.WithError(err).Warn("uds connection read failed")
			}
			break
		}

		s.mu.Lock()
		if _, ok := s.conns[frame.NSLPID]; !ok {
			s.conns[frame.NSLPID] = conn
			registered = append(registered, frame.NSLPID)
		}
		s.mu.Unlock()

		s.dispatch(frame)
	}

	s.mu.Lock()
	for _, id := range registered {
		if s.conns[id] == conn {
			delete(s.conns, id)
		}
	}
	s.mu.Unlock()
}

func (s *UDSServer) dispatch(f Frame) {
	switch f.Primitive {
	case PrimitiveSendMessage:
		mri, err := decodeMRI(f.MRI)
		if err != nil {
			s.log.WithError(err).Warn("uds: malformed SendMessage frame")
			return
		}
		if err := s.disp.SendMessage(f.NSLPID, wire.SessionID{ID: f.SID}, mri, f.NSLPData, sendOptionsFromFrame(f)); err != nil {
			s.log.WithError(err).Warn("uds: SendMessage failed")
		}
	default:
		s.log.WithField("primitive", f.Primitive).Warn("uds: unexpected inbound primitive")
	}
}

// Deliver forwards a RecvMessage upcall to the external daemon
// registered for nslpID, if any.
func (s *UDSServer) Deliver(nslpID uint16, sid wire.SessionID, mri wire.MRI, data []byte, meta statemachine.RecvMeta) {
	conn, ok := s.conn(nslpID)
	if !ok {
		return
	}
	f := Frame{
		Primitive:        PrimitiveRecvMessage,
		NSLPID:           nslpID,
		SID:              sid.ID,
		ExplicitlyRouted: meta.ExplicitlyRouted,
		NoGISTState:      meta.NoGISTState,
		IPTTL:            meta.IPTTL,
		IPDistance:       int32(meta.IPDistance),
		GISTHopCount:     meta.GISTHopCount,
		SIIHandle:        meta.SIIHandle,
		NSLPData:         data,
		MRI:              encodeMRI(mri),
	}
	s.write(conn, f)
}

// DeliverStatus forwards a MessageStatus upcall to the external daemon
// registered for nslpID, if any.
func (s *UDSServer) DeliverStatus(nslpID uint16, handle wireid.ID, errType statemachine.StatusErrorType) {
	conn, ok := s.conn(nslpID)
	if !ok {
		return
	}
	f := Frame{
		Primitive:         PrimitiveMessageStatus,
		NSLPID:            nslpID,
		NSLPMessageHandle: handle,
		StatusErrorType:   errType,
	}
	s.write(conn, f)
}

// DeliverNotification forwards a NetworkNotification upcall to the
// external daemon registered for nslpID, if any.
func (s *UDSServer) DeliverNotification(nslpID uint16, sid wire.SessionID, kind statemachine.NotificationKind) {
	conn, ok := s.conn(nslpID)
	if !ok {
		return
	}
	f := Frame{
		Primitive:  PrimitiveNetworkNotification,
		NSLPID:     nslpID,
		SID:        sid.ID,
		NotifyKind: kind,
	}
	s.write(conn, f)
}

func (s *UDSServer) conn(nslpID uint16) (net.Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[nslpID]
	return c, ok
}

func (s *UDSServer) write(conn net.Conn, f Frame) {
	if err := writeFrame(conn, f); err != nil {
		s.log.WithError(err).Warn("uds: failed to deliver frame")
	}
}

func writeFrame(w io.Writer, f Frame) error {
	body := f.Encode()
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) (Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Frame{}, err
	}
	body := make([]byte, binary.LittleEndian.Uint32(prefix[:]))
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	return DecodeFrame(body)
}
