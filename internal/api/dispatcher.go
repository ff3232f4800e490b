// Package api implements §4.7's GIST/NSLP primitives (SendMessage,
// RecvMessage, MessageStatus, NetworkNotification) as a dispatcher
// that fans deliveries out to in-process NSLPs and to external NSLP
// daemons across the UDS frame boundary (§6).
package api

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"gist/internal/statemachine"
	"gist/internal/wire"
	"gist/internal/wireid"
)

// NSLP is the in-process upcall surface a signaling application
// registers with the Dispatcher to receive GIST deliveries for its
// NSLP-ID (§4.7).
type NSLP interface {
	NSLPID() uint16
	RecvMessage(sid wire.SessionID, mri wire.MRI, data []byte, meta statemachine.RecvMeta)
	MessageStatus(handle wireid.ID, errType statemachine.StatusErrorType)
	NetworkNotification(sid wire.SessionID, kind statemachine.NotificationKind)
}

// Dispatcher implements statemachine.NSLPDeliverer, routing each
// upcall to the NSLP that owns the session/message it concerns, and
// provides the SendMessage entry point NSLPs call to go back down into
// GIST. It is the in-process half of §4.7; udsframe.go/udsserver.go
// extend the same routing to NSLPs running as external daemons.
type Dispatcher struct {
	mu      sync.RWMutex
	nslps   map[uint16]NSLP
	sidOwns map[string]uint16 // session id -> owning NSLP-ID
	hdlOwns map[string]uint16 // message handle -> owning NSLP-ID

	machine *statemachine.Machine
	uds     *UDSServer
	log     *logrus.Entry
}

// NewDispatcher constructs an empty Dispatcher. Attach a Machine with
// AttachMachine once the engine has constructed one (the two have a
// circular dependency: Machine needs a deliverer at construction time,
// Dispatcher needs a Machine to forward SendMessage calls to).
func NewDispatcher(log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		nslps:   make(map[uint16]NSLP),
		sidOwns: make(map[string]uint16),
		hdlOwns: make(map[string]uint16),
		log:     log,
	}
}

// AttachMachine wires the Dispatcher to the state machine it forwards
// outbound SendMessage calls to.
func (d *Dispatcher) AttachMachine(m *statemachine.Machine) { d.machine = m }

// AttachUDS wires in the external-daemon transport (optional: a
// Dispatcher with no UDS server only serves in-process NSLPs).
func (d *Dispatcher) AttachUDS(u *UDSServer) { d.uds = u }

// Register attaches an in-process NSLP under its NSLP-ID.
func (d *Dispatcher) Register(n NSLP) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nslps[n.NSLPID()] = n
}

// SendMessage is the entry point both in-process NSLPs and the UDS
// frame boundary call to hand a payload down into GIST (§4.7
// SendMessage). Session and message-handle ownership are recorded here
// so a later MessageStatus/NetworkNotification upcall can be routed
// back to nslpID without the state machine needing to know about NSLPs.
func (d *Dispatcher) SendMessage(nslpID uint16, sid wire.SessionID, mri wire.MRI, data []byte, opts statemachine.SendOptions) error {
	if d.machine == nil {
		return fmt.Errorf("api: dispatcher has no attached state machine")
	}
	d.mu.Lock()
	d.sidOwns[sid.ID.String()] = nslpID
	if !opts.NSLPMessageHandle.IsNil() {
		d.hdlOwns[opts.NSLPMessageHandle.String()] = nslpID
	}
	d.mu.Unlock()

	return d.machine.SendMessage(sid, mri, nslpID, data, opts)
}

// RecvMessage implements statemachine.NSLPDeliverer: GIST always knows
// the NSLP-ID off the wire, so this routes directly without consulting
// the ownership maps.
func (d *Dispatcher) RecvMessage(sid wire.SessionID, mri wire.MRI, nslpID uint16, data []byte, meta statemachine.RecvMeta) {
	d.mu.Lock()
	d.sidOwns[sid.ID.String()] = nslpID
	d.mu.Unlock()

	if n, ok := d.lookup(nslpID); ok {
		n.RecvMessage(sid, mri, data, meta)
		return
	}
	if d.uds != nil {
		d.uds.Deliver(nslpID, sid, mri, data, meta)
		return
	}
	d.log.WithField("nslp_id", nslpID).Warn("dropped inbound message: no NSLP registered")
}

// MessageStatus implements statemachine.NSLPDeliverer, routed by the
// message handle SendMessage recorded.
func (d *Dispatcher) MessageStatus(handle wireid.ID, errType statemachine.StatusErrorType) {
	d.mu.RLock()
	nslpID, ok := d.hdlOwns[handle.String()]
	d.mu.RUnlock()
	if !ok {
		d.log.WithField("handle", handle.String()).Warn("message status for unknown handle")
		return
	}
	if n, ok := d.lookup(nslpID); ok {
		n.MessageStatus(handle, errType)
		return
	}
	if d.uds != nil {
		d.uds.DeliverStatus(nslpID, handle, errType)
	}
}

// NetworkNotification implements statemachine.NSLPDeliverer, routed by
// the session id RecvMessage/SendMessage last recorded.
func (d *Dispatcher) NetworkNotification(sid wire.SessionID, kind statemachine.NotificationKind) {
	d.mu.RLock()
	nslpID, ok := d.sidOwns[sid.ID.String()]
	d.mu.RUnlock()
	if !ok {
		return
	}
	if n, ok := d.lookup(nslpID); ok {
		n.NetworkNotification(sid, kind)
		return
	}
	if d.uds != nil {
		d.uds.DeliverNotification(nslpID, sid, kind)
	}
}

func (d *Dispatcher) lookup(nslpID uint16) (NSLP, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nslps[nslpID]
	return n, ok
}
