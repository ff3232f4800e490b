package natfw

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

// Operation names a NATFW message kind (nsis-ka's natfw_create.cpp /
// natfw_response.cpp / natfw_notify.cpp, reduced to the three verbs this
// implementation needs).
type Operation uint8

const (
	OpCreate Operation = iota + 1
	OpRemove
	OpResponse
)

// Manager registers as api.NSLP under NSLPID and owns every NI/NR
// Session this node is party to, keyed by GIST session id — the
// natfw-NSLP analogue of nsis-ka's session_manager.cpp.
type Manager struct {
	mu       sync.Mutex
	sessions map[wireid.ID]*Session

	installer PolicyRuleInstaller
	disp      *api.Dispatcher
	log       *logrus.Entry
}

// NewManager constructs a Manager that installs accepted rules via
// installer and sends through disp. It registers itself with disp.
func NewManager(installer PolicyRuleInstaller, disp *api.Dispatcher, log *logrus.Entry) *Manager {
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

// OpenFlow starts an NI session soliciting a rule for flow along mri,
// sending a CREATE via GIST SendMessage (§4.7).
func (m *Manager) OpenFlow(mri wire.MRI, flow FlowSignature, lifetime time.Duration) (wireid.ID, error) {
	sess := NewInitiatorSession(flow, lifetime)
	sid := wire.SessionID{ID: wireid.New()}

	m.mu.Lock()
	m.sessions[sid.ID] = sess
	m.mu.Unlock()

	sess.State = StatePending
	if err := m.disp.SendMessage(NSLPID, sid, mri, encodeMessage(OpCreate, flow, lifetime), statemachine.SendOptions{
		Reliability: true,
	}); err != nil {
		return sid.ID, fmt.Errorf("natfw: sending CREATE: %w", err)
	}
	return sid.ID, nil
}

// CloseFlow tears down an NI-owned session, sending a REMOVE.
func (m *Manager) CloseFlow(sid wireid.ID, mri wire.MRI) error {
	m.mu.Lock()
	sess, ok := m.sessions[sid]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("natfw: unknown session %s", sid)
	}
	if sess.Role != RoleInitiator {
		return errWrongRole
	}
	if err := m.disp.SendMessage(NSLPID, wire.SessionID{ID: sid}, mri, encodeMessage(OpRemove, sess.Flow, 0), statemachine.SendOptions{
		Reliability: true,
	}); err != nil {
		return fmt.Errorf("natfw: sending REMOVE: %w", err)
	}
	return nil
}

// RecvMessage implements api.NSLP: handles inbound CREATE/REMOVE on the
// NR side and Response echoes on the NI side.
func (m *Manager) RecvMessage(sid wire.SessionID, mri wire.MRI, data []byte, meta statemachine.RecvMeta) {
	op, flow, lifetime, err := decodeMessage(data)
	if err != nil {
		m.log.WithError(err).Warn("natfw: malformed message")
		return
	}

	m.mu.Lock()
	sess, ok := m.sessions[sid.ID]
	m.mu.Unlock()

	switch op {
	case OpCreate:
		if !ok {
			sess = NewResponderSession(flow, lifetime, m.installer)
			m.mu.Lock()
			m.sessions[sid.ID] = sess
			m.mu.Unlock()
		}
		if err := sess.HandleCreate(time.Now()); err != nil {
			m.log.WithError(err).Warn("natfw: failed to install policy rule")
			return
		}
		if err := m.disp.SendMessage(NSLPID, sid, mri, encodeMessage(OpResponse, flow, lifetime), statemachine.SendOptions{}); err != nil {
			m.log.WithError(err).Warn("natfw: failed to send Response")
		}
	case OpRemove:
		if !ok {
			return
		}
		if err := sess.Teardown(); err != nil {
			m.log.WithError(err).Warn("natfw: failed to remove policy rule")
		}
	case OpResponse:
		if ok && sess.Role == RoleInitiator {
			sess.State = StateInstalled
			sess.Lifetime = lifetime
			sess.ExpiresAt = time.Now().Add(lifetime)
		}
	}
}

// MessageStatus implements api.NSLP: a send failure is logged; no
// session state is changed.
func (m *Manager) MessageStatus(handle wireid.ID, errType statemachine.StatusErrorType) {
	m.log.WithField("error_type", errType).Warn("natfw: SendMessage failed")
}

// NetworkNotification implements api.NSLP: a routing-state change tears
// the affected session down rather than leaving it referencing a dead
// path.
func (m *Manager) NetworkNotification(sid wire.SessionID, kind statemachine.NotificationKind) {
	m.mu.Lock()
	sess, ok := m.sessions[sid.ID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := sess.Teardown(); err != nil {
		m.log.WithError(err).Warn("natfw: failed to tear down session after network notification")
	}
}

// Sweep removes expired Installed sessions (either role) whose soft-state lifetime
// has lapsed without a refresh (driven by the engine's Timer module).
func (m *Manager) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, sess := range m.sessions {
		if sess.Expired(now) {
			if err := sess.Teardown(); err != nil {
				m.log.WithError(err).Warn("natfw: failed to remove expired policy rule")
			}
			delete(m.sessions, sid)
		}
	}
}

// encodeMessage packs a NATFW payload for NSLP-Data: op(1) lifetimeSecs(4)
// flow fields. This is deliberately simpler than nsis-ka's full IE
// catalogue (data_terminal_info, extended_flow_info, icmp_types, ...);
// only the fields CREATE/REMOVE/Response actually need here are carried.
func encodeMessage(op Operation, flow FlowSignature, lifetime time.Duration) []byte {
	buf := make([]byte, 0, 16+len(flow.SrcAddr)+len(flow.DstAddr))
	buf = append(buf, byte(op))
	var lt [4]byte
	binary.BigEndian.PutUint32(lt[:], uint32(lifetime/time.Second))
	buf = append(buf, lt[:]...)
	buf = append(buf, flow.Protocol)
	var sp, dp [2]byte
	binary.BigEndian.PutUint16(sp[:], flow.SrcPort)
	binary.BigEndian.PutUint16(dp[:], flow.DstPort)
	buf = append(buf, sp[:]...)
	buf = append(buf, dp[:]...)
	buf = appendLenPrefixedString(buf, flow.SrcAddr)
	buf = appendLenPrefixedString(buf, flow.DstAddr)
	return buf
}

func appendLenPrefixedString(buf []byte, s string) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

func decodeMessage(buf []byte) (Operation, FlowSignature, time.Duration, error) {
	if len(buf) < 10 {
		return 0, FlowSignature{}, 0, fmt.Errorf("natfw: message too short")
	}
	op := Operation(buf[0])
	lifetime := time.Duration(binary.BigEndian.Uint32(buf[1:5])) * time.Second
	flow := FlowSignature{
		Protocol: buf[5],
		SrcPort:  binary.BigEndian.Uint16(buf[6:8]),
		DstPort:  binary.BigEndian.Uint16(buf[8:10]),
	}
	off := 10
	src, off, err := readLenPrefixedString(buf, off)
	if err != nil {
		return 0, FlowSignature{}, 0, err
	}
	dst, _, err := readLenPrefixedString(buf, off)
	if err != nil {
		return 0, FlowSignature{}, 0, err
	}
	flow.SrcAddr = src
	flow.DstAddr = dst
	return op, flow, lifetime, nil
}

func readLenPrefixedString(buf []byte, off int) (string, int, error) {
	if len(buf)-off < 2 {
		return "", off, fmt.Errorf("natfw: truncated string length")
	}
	l := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if len(buf)-off < l {
		return "", off, fmt.Errorf("natfw: truncated string body")
	}
	return string(buf[off : off+l]), off + l, nil
}
