// Package natfw implements a minimal NAT/Firewall NSLP (RFC 5973): an
// Initiator (NI) and Responder (NR) session pair that asks the network
// path to open or remove a pinhole/rule, riding GIST's SendMessage /
// RecvMessage primitives. This is the SUPPLEMENTED-FEATURES analogue of
// nsis-ka's ni_session/nr_session/policy_rule_installer, reduced to the
// CREATE / soft-state-refresh / teardown lifecycle: per spec.md's
// Non-goal, no netfilter backend ships, only the PolicyRuleInstaller
// seam and its in-memory/no-op implementations.
package natfw

import (
	"time"

	"github.com/rs/xid"
)

// NSLPID is the well-known NSLP identifier NATFW registers under at
// the API boundary (§4.7), matching RFC 5973's IANA allocation.
const NSLPID = 15

// State is a NATFW session's lifecycle state, named and logged the way
// internal/routing.State is (gnbsim's state-enum + string-table idiom).
type State int

const (
	StateIdle State = iota
	StatePending
	StateInstalled
	StateTearingDown
)

var stateStr = map[State]string{
	StateIdle:        "Idle",
	StatePending:     "Pending",
	StateInstalled:   "Installed",
	StateTearingDown: "Tearing-Down",
}

func (s State) String() string {
	if str, ok := stateStr[s]; ok {
		return str
	}
	return "Unknown"
}

// Role distinguishes which end of the NI/NR pair a Session plays.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// FlowSignature names the flow a policy rule controls (nsis-ka's
// "MSG_SEQUENCE_NUMBER"/flow-identification IEs, reduced to the 5-tuple
// a pinhole or GTP tunnel override needs).
type FlowSignature struct {
	SrcAddr  string
	DstAddr  string
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Session is one NI or NR NATFW-NSLP session (nsis-ka's ni_session /
// nr_session, collapsed into a single struct distinguished by Role since
// both sides share the same CREATE/refresh/teardown shape and this repo
// carries no message-sequencing IEs to diverge on).
type Session struct {
	ID    xid.ID
	Role  Role
	State State

	Flow     FlowSignature
	Lifetime time.Duration

	CreatedAt time.Time
	ExpiresAt time.Time

	// installer is nil on an NI session (the Initiator never installs a
	// local rule; it only solicits one downstream).
	installer PolicyRuleInstaller
	ruleID    string
}

// NewInitiatorSession starts an NI session asking for flow to be opened
// with the given soft-state lifetime.
func NewInitiatorSession(flow FlowSignature, lifetime time.Duration) *Session {
	return &Session{
		ID:       xid.New(),
		Role:     RoleInitiator,
		State:    StateIdle,
		Flow:     flow,
		Lifetime: lifetime,
	}
}

// NewResponderSession starts an NR session that will install a rule for
// flow via installer once CREATE arrives.
func NewResponderSession(flow FlowSignature, lifetime time.Duration, installer PolicyRuleInstaller) *Session {
	return &Session{
		ID:        xid.New(),
		Role:      RoleResponder,
		State:     StateIdle,
		Flow:      flow,
		Lifetime:  lifetime,
		installer: installer,
	}
}

// HandleCreate processes an inbound CREATE on an NR session: install the
// rule (unless one is already installed for this session) and arm the
// soft-state lifetime.
func (s *Session) HandleCreate(now time.Time) error {
	if s.Role != RoleResponder {
		return errWrongRole
	}
	if s.installer != nil && s.ruleID == "" {
		ruleID, err := s.installer.Install(s.Flow, s.Lifetime)
		if err != nil {
			return err
		}
		s.ruleID = ruleID
	}
	s.State = StateInstalled
	s.CreatedAt = now
	s.ExpiresAt = now.Add(s.Lifetime)
	return nil
}

// Refresh re-arms an Installed session's soft-state lifetime (a
// resent CREATE with the same flow signature, per RFC 5973 §5.2's
// "refresh reuses CREATE").
func (s *Session) Refresh(now time.Time) {
	if s.State != StateInstalled {
		return
	}
	s.ExpiresAt = now.Add(s.Lifetime)
}

// Expired reports whether the session's soft state has timed out.
func (s *Session) Expired(now time.Time) bool {
	return s.State == StateInstalled && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Teardown removes an installed rule (explicit teardown or soft-state
// timeout); idempotent once already torn down.
func (s *Session) Teardown() error {
	if s.State != StateInstalled && s.State != StateTearingDown {
		return nil
	}
	s.State = StateTearingDown
	if s.installer != nil && s.ruleID != "" {
		if err := s.installer.Remove(s.ruleID); err != nil {
			return err
		}
	}
	s.State = StateIdle
	s.ruleID = ""
	return nil
}
