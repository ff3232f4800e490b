package statemachine

import "gist/internal/wire"

// errorClassFor maps an ErrorCode to the severity class it carries on
// the wire (§7 "Error codes"). Parse/semantic failures on inbound PDUs
// are Protocol-class; retransmission exhaustion and transport teardown
// are surfaced to the NSLP rather than wired, so they never reach here.
func errorClassFor(code wire.ErrorCode) wire.ErrorClass {
	switch code {
	case wire.ErrHopLimitExceeded, wire.ErrMessageTooLarge:
		return wire.ErrClassTransient
	case wire.ErrNoRoutingState, wire.ErrUnknownNSLPID, wire.ErrEndpointFound:
		return wire.ErrClassPermanent
	default:
		return wire.ErrClassProtocol
	}
}

// buildErrorPDU constructs the Error PDU §4.6/§7 requires: "Error PDUs
// include a copy of the offending common header and MRI." subcode is
// -1 when the error code carries none.
func buildErrorPDU(offending wire.CommonHeader, offendingMRI *wire.MRI, code wire.ErrorCode, subcode int) wire.PDU {
	eo := wire.ErrorObject{
		Class:           errorClassFor(code),
		Code:            code,
		Subcode:         subcode,
		OffendingHeader: offending,
		OffendingMRI:    offendingMRI,
	}
	return wire.PDU{
		Header: wire.CommonHeader{
			Version:  wire.GISTVersion,
			HopCount: offending.HopCount,
			NSLPID:   offending.NSLPID,
			Type:     wire.PDUError,
			Flags:    wire.Flags{S: offending.Flags.S},
		},
		Objects: []wire.Object{eo},
	}
}

// shouldSendError reports whether a parse/semantic failure warrants an
// Error PDU back to the source, per §7's policy: "parse/semantic
// errors on inbound PDUs yield an Error PDU back to the source (if the
// source is identifiable and the class is not Informational)".
func shouldSendError(sourceIdentifiable bool, code wire.ErrorCode) bool {
	return sourceIdentifiable && errorClassFor(code) != wire.ErrClassInformational
}
