package qos

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gist/internal/api"
	"gist/internal/statemachine"
	"gist/internal/wire"
	"gist/internal/wireid"
)

// Operation names a QoS-NSLP message kind, mirroring natfw's
// Operation shape.
type Operation uint8

const (
	OpReserve Operation = iota + 1
	OpRelease
	OpResponse
)

// Manager registers as api.NSLP under NSLPID and owns every RESERVE
// session this node is party to, keyed by GIST session id — mirrors
// natfw.Manager's shape exactly, since both NSLPs share the
// create/refresh/teardown lifecycle described in §4.7.
type Manager struct {
	mu       sync.Mutex
	sessions map[wireid.ID]*Session

	installer TunnelInstaller
	disp      *api.Dispatcher
	log       *logrus.Entry
}

// NewManager constructs a Manager that installs accepted reservations'
// tunnels via installer and sends through disp. It registers itself
// with disp.
func NewManager(installer TunnelInstaller, disp *api.Dispatcher, log *logrus.Entry) *Manager {
	m := &Manager{
		sessions:  make(map[wireid.ID]*Session),
		installer: installer,
		disp:      disp,
		log:       log,
	}
	disp.Register(m)
	return m
}

func (m *Manager) NSLPID() uint16 { return NSLPID }

// Reserve starts a Reserver session along mri, sending a RESERVE via
// GIST SendMessage.
func (m *Manager) Reserve(mri wire.MRI, tunnel TunnelSpec, lifetime time.Duration) (wireid.ID, error) {
	sess := NewReserverSession(tunnel, lifetime)
	sid := wire.SessionID{ID: wireid.New()}

	m.mu.Lock()
	m.sessions[sid.ID] = sess
	m.mu.Unlock()

	sess.State = StateReserving
	if err := m.disp.SendMessage(NSLPID, sid, mri, encodeMessage(OpReserve, tunnel, lifetime), statemachine.SendOptions{
		Reliability: true,
	}); err != nil {
		return sid.ID, fmt.Errorf("qos: sending RESERVE: %w", err)
	}
	return sid.ID, nil
}

// Release tears down a Reserver-owned session, sending a RELEASE.
func (m *Manager) Release(sid wireid.ID, mri wire.MRI) error {
	m.mu.Lock()
	sess, ok := m.sessions[sid]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("qos: unknown session %s", sid)
	}
	if sess.Role != RoleReserver {
		return errWrongRole
	}
	if err := m.disp.SendMessage(NSLPID, wire.SessionID{ID: sid}, mri, encodeMessage(OpRelease, sess.Tunnel, 0), statemachine.SendOptions{
		Reliability: true,
	}); err != nil {
		return fmt.Errorf("qos: sending RELEASE: %w", err)
	}
	return nil
}

// RecvMessage implements api.NSLP: handles inbound RESERVE/RELEASE on
// the reservee side and Response echoes on the reserver side.
func (m *Manager) RecvMessage(sid wire.SessionID, mri wire.MRI, data []byte, meta statemachine.RecvMeta) {
	op, tunnel, lifetime, err := decodeMessage(data)
	if err != nil {
		m.log.WithError(err).Warn("qos: malformed message")
		return
	}

	m.mu.Lock()
	sess, ok := m.sessions[sid.ID]
	m.mu.Unlock()

	switch op {
	case OpReserve:
		if !ok {
			sess = NewReserveeSession(tunnel, lifetime, m.installer)
			m.mu.Lock()
			m.sessions[sid.ID] = sess
			m.mu.Unlock()
		}
		if err := sess.HandleReserve(time.Now()); err != nil {
			m.log.WithError(err).Warn("qos: failed to install tunnel override")
			return
		}
		if err := m.disp.SendMessage(NSLPID, sid, mri, encodeMessage(OpResponse, tunnel, lifetime), statemachine.SendOptions{}); err != nil {
			m.log.WithError(err).Warn("qos: failed to send Response")
		}
	case OpRelease:
		if !ok {
			return
		}
		if err := sess.Release(); err != nil {
			m.log.WithError(err).Warn("qos: failed to remove tunnel override")
		}
	case OpResponse:
		if ok && sess.Role == RoleReserver {
			sess.State = StateReserved
			sess.Lifetime = lifetime
			sess.ExpiresAt = time.Now().Add(lifetime)
		}
	}
}

// MessageStatus implements api.NSLP.
func (m *Manager) MessageStatus(handle wireid.ID, errType statemachine.StatusErrorType) {
	m.log.WithField("error_type", errType).Warn("qos: SendMessage failed")
}

// NetworkNotification implements api.NSLP: a routing-state change
// releases the affected reservation rather than leaving it referencing
// a dead path.
func (m *Manager) NetworkNotification(sid wire.SessionID, kind statemachine.NotificationKind) {
	m.mu.Lock()
	sess, ok := m.sessions[sid.ID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := sess.Release(); err != nil {
		m.log.WithError(err).Warn("qos: failed to release session after network notification")
	}
}

// Sweep removes expired sessions of either role whose soft-state lifetime has
// lapsed without a refresh (driven by the engine's Timer module).
func (m *Manager) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, sess := range m.sessions {
		if sess.Expired(now) {
			if err := sess.Release(); err != nil {
				m.log.WithError(err).Warn("qos: failed to release expired reservation")
			}
			delete(m.sessions, sid)
		}
	}
}

// encodeMessage packs a QoS-NSLP payload for NSLP-Data: op(1)
// lifetimeSecs(4) localTEID(4) peerTEID(4) peerAddr ueAddr, mirroring
// natfw's length-prefixed-string encoding idiom.
func encodeMessage(op Operation, t TunnelSpec, lifetime time.Duration) []byte {
	buf := make([]byte, 0, 16+len(t.PeerAddr)+len(t.UEAddr))
	buf = append(buf, byte(op))
	var lt, localTEID, peerTEID [4]byte
	binary.BigEndian.PutUint32(lt[:], uint32(lifetime/time.Second))
	binary.BigEndian.PutUint32(localTEID[:], t.LocalTEID)
	binary.BigEndian.PutUint32(peerTEID[:], t.PeerTEID)
	buf = append(buf, lt[:]...)
	buf = append(buf, localTEID[:]...)
	buf = append(buf, peerTEID[:]...)
	buf = appendLenPrefixedString(buf, t.PeerAddr)
	buf = appendLenPrefixedString(buf, t.UEAddr)
	return buf
}

func appendLenPrefixedString(buf []byte, s string) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

func decodeMessage(buf []byte) (Operation, TunnelSpec, time.Duration, error) {
	if len(buf) < 13 {
		return 0, TunnelSpec{}, 0, fmt.Errorf("qos: message too short")
	}
	op := Operation(buf[0])
	lifetime := time.Duration(binary.BigEndian.Uint32(buf[1:5])) * time.Second
	tunnel := TunnelSpec{
		LocalTEID: binary.BigEndian.Uint32(buf[5:9]),
		PeerTEID:  binary.BigEndian.Uint32(buf[9:13]),
	}
	off := 13
	peerAddr, off, err := readLenPrefixedString(buf, off)
	if err != nil {
		return 0, TunnelSpec{}, 0, err
	}
	ueAddr, _, err := readLenPrefixedString(buf, off)
	if err != nil {
		return 0, TunnelSpec{}, 0, err
	}
	tunnel.PeerAddr = peerAddr
	tunnel.UEAddr = ueAddr
	return op, tunnel, lifetime, nil
}

func readLenPrefixedString(buf []byte, off int) (string, int, error) {
	if len(buf)-off < 2 {
		return "", off, fmt.Errorf("qos: truncated string length")
	}
	l := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if len(buf)-off < l {
		return "", off, fmt.Errorf("qos: truncated string body")
	}
	return string(buf[off : off+l]), off + l, nil
}
