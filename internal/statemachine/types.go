// Package statemachine implements GIST's Querier/Responder state
// machine (§4.6): the 3-way handshake, crossing-query race resolution,
// soft-state refresh, and the Error-PDU generation policy of §7.
package statemachine

import (
	"gist/internal/wire"
	"gist/internal/wireid"
)

// StatusErrorType enumerates MessageStatus's error-type values (§4.7).
type StatusErrorType int

const (
	StatusUnknownError StatusErrorType = iota
	StatusErrorWhileSending
	StatusUnableToEstablishRoutingState
)

// NotificationKind enumerates NetworkNotification's kind values (§4.7).
type NotificationKind int

const (
	NotifyLastNode NotificationKind = iota
	NotifyRoutingStateChange
)

// RecvMeta carries RecvMessage's delivery metadata (§4.7).
type RecvMeta struct {
	ExplicitlyRouted bool
	NoGISTState      bool
	IPTTL            uint8
	IPDistance       int
	GISTHopCount     uint8
	SIIHandle        string
}

// SendOptions carries SendMessage's per-call flags (§4.7).
type SendOptions struct {
	Reliability         bool
	Security            bool
	LocalProcessing     bool
	InstallRoutingState bool
	IPTTL               uint8
	GISTHopCount        uint8
	NSLPMessageHandle   wireid.ID
	SIIHandle           string
}

// NSLPDeliverer is the upcall interface the state machine uses to hand
// messages and status back to the NSLP layer (§4.7's RecvMessage,
// MessageStatus, and NetworkNotification primitives). internal/api
// implements this to fan deliveries out to in-process NSLPs and to the
// UDS frame boundary for external daemons.
type NSLPDeliverer interface {
	RecvMessage(sid wire.SessionID, mri wire.MRI, nslpID uint16, data []byte, meta RecvMeta)
	MessageStatus(handle wireid.ID, errType StatusErrorType)
	NetworkNotification(sid wire.SessionID, kind NotificationKind)
}
