// Package capability implements the stack-proposal selection rule
// between a Querier's offered profiles and a Responder's supported
// profiles (§4.5 "Capability / Stack Proposals").
package capability

import (
	"fmt"

	"gist/internal/wire"
)

// SelectionError reports a StackProposal/StackConfigurationData
// mismatch, wired to wire.ErrObjectValueError/SubSPSCPMismatch per §4.5
// ("Mismatch -> ObjectValueError(sp-scp-mismatch)").
type SelectionError struct {
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("capability: stack proposal mismatch: %s", e.Reason)
}

// ToParseError renders a SelectionError as the wire-level error the
// Responder/Querier would send back.
func (e *SelectionError) ToParseError() *wire.ParseError {
	return &wire.ParseError{
		Code:    wire.ErrObjectValueError,
		Subcode: int(wire.SubSPSCPMismatch),
		Msg:     e.Reason,
	}
}

// supportsProfile reports whether a locally supported profile and an
// offered profile list the same protocol identifiers in the same order.
func supportsProfile(local wire.Profile, offered wire.Profile) bool {
	if len(local) != len(offered) {
		return false
	}
	for i := range offered {
		if local[i] != offered[i] {
			return false
		}
	}
	return true
}

// Select implements §4.5's rule: "pick the first profile in the
// Querier's list that the Responder supports; within the profile,
// honour the Querier's ordering." supported is the Responder's locally
// configured set of acceptable profiles, tried in the Querier's
// presented order.
func Select(offered wire.StackProposal, supported []wire.Profile) (wire.Profile, int, error) {
	for i, profile := range offered.Profiles {
		for _, s := range supported {
			if supportsProfile(s, profile) {
				return profile, i, nil
			}
		}
	}
	return nil, -1, &SelectionError{Reason: "no offered profile is supported locally"}
}

// ConfirmNoDowngrade enforces "On Confirm the Querier MUST NOT
// downgrade" (§4.5): the profile echoed on Confirm must be
// index-for-index identical to the one the Responder selected out of
// the original Query.
func ConfirmNoDowngrade(selected, confirmed wire.Profile) error {
	if len(selected) != len(confirmed) {
		return &SelectionError{Reason: "Confirm profile length differs from selected profile"}
	}
	for i := range selected {
		if selected[i] != confirmed[i] {
			return &SelectionError{Reason: "Confirm profile downgrades the selected protocol stack"}
		}
	}
	return nil
}

// ConfirmOffered enforces the Querier-side half of "On Confirm the
// Querier MUST NOT downgrade" (§4.5): before echoing the Responder's
// chosen profile back in a Confirm, verify it is actually one of the
// profiles this node put in its own Query, rather than trusting the
// Responder's echo blindly.
func ConfirmOffered(offered []wire.Profile, chosen wire.Profile) error {
	for _, p := range offered {
		if ConfirmNoDowngrade(p, chosen) == nil {
			return nil
		}
	}
	return &SelectionError{Reason: "Responder selected a profile this node never offered"}
}

// DefaultSupportedProfiles is this node's configured capability set,
// tried in descending preference (TLS over plain TCP, SCTP as the
// fallback transport for multi-streamed MAs).
func DefaultSupportedProfiles() []wire.Profile {
	return []wire.Profile{
		{wire.MAProtoTLS},
		{wire.MAProtoTCP},
		{wire.MAProtoSCTP},
	}
}
