// Package qos implements a minimal QoS NSLP RESERVE session (the
// SUPPLEMENTED-FEATURES analogue of nsis-ka's NATFW NI/NR pair,
// mirroring its CREATE/refresh/teardown shape but installing a GTP-U
// tunnel override on success instead of a firewall rule — grounded on
// the teacher's own data-plane wiring in example/example.go's
// setupN3Tunnel2).
package qos

import (
	"time"

	"github.com/rs/xid"
)

// NSLPID is the well-known NSLP identifier the QoS NSLP registers
// under at the API boundary (§4.7).
const NSLPID = 26

// State mirrors natfw.State's shape (gnbsim's state-enum + string-table
// idiom), specialised to RESERVE/refresh/release.
type State int

const (
	StateIdle State = iota
	StateReserving
	StateReserved
	StateReleasing
)

var stateStr = map[State]string{
	StateIdle:      "Idle",
	StateReserving: "Reserving",
	StateReserved:  "Reserved",
	StateReleasing: "Releasing",
}

func (s State) String() string {
	if str, ok := stateStr[s]; ok {
		return str
	}
	return "Unknown"
}

// Role distinguishes the reserving (NI-equivalent) end from the
// reserved-for (NR-equivalent) end.
type Role int

const (
	RoleReserver Role = iota
	RoleReservee
)

// TunnelSpec names the GTP-U tunnel a successful RESERVE installs (the
// QoS-NSLP analogue of natfw.FlowSignature).
type TunnelSpec struct {
	PeerAddr  string // remote GTP-U peer address
	LocalTEID uint32
	PeerTEID  uint32
	UEAddr    string // inner UE/PDU address the tunnel carries
}

// Session is one RESERVE session, collapsed into a single struct
// distinguished by Role exactly as natfw.Session is.
type Session struct {
	ID    xid.ID
	Role  Role
	State State

	Tunnel   TunnelSpec
	Lifetime time.Duration

	CreatedAt time.Time
	ExpiresAt time.Time

	installer TunnelInstaller
	installed bool
}

// NewReserverSession starts the end that requests a reservation.
func NewReserverSession(tunnel TunnelSpec, lifetime time.Duration) *Session {
	return &Session{
		ID:       xid.New(),
		Role:     RoleReserver,
		State:    StateIdle,
		Tunnel:   tunnel,
		Lifetime: lifetime,
	}
}

// NewReserveeSession starts the end that installs the reservation's
// data-plane tunnel once RESERVE arrives.
func NewReserveeSession(tunnel TunnelSpec, lifetime time.Duration, installer TunnelInstaller) *Session {
	return &Session{
		ID:        xid.New(),
		Role:      RoleReservee,
		State:     StateIdle,
		Tunnel:    tunnel,
		Lifetime:  lifetime,
		installer: installer,
	}
}

// HandleReserve installs the tunnel override and arms the soft-state
// lifetime.
func (s *Session) HandleReserve(now time.Time) error {
	if s.Role != RoleReservee {
		return errWrongRole
	}
	if s.installer != nil && !s.installed {
		if err := s.installer.InstallTunnel(s.Tunnel); err != nil {
			return err
		}
		s.installed = true
	}
	s.State = StateReserved
	s.CreatedAt = now
	s.ExpiresAt = now.Add(s.Lifetime)
	return nil
}

// Refresh re-arms a Reserved session's soft-state lifetime.
func (s *Session) Refresh(now time.Time) {
	if s.State != StateReserved {
		return
	}
	s.ExpiresAt = now.Add(s.Lifetime)
}

// Expired reports whether the reservation's soft state has timed out.
func (s *Session) Expired(now time.Time) bool {
	return s.State == StateReserved && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Release tears down an installed tunnel; idempotent once released.
func (s *Session) Release() error {
	if s.State != StateReserved && s.State != StateReleasing {
		return nil
	}
	s.State = StateReleasing
	if s.installer != nil && s.installed {
		if err := s.installer.RemoveTunnel(s.Tunnel); err != nil {
			return err
		}
		s.installed = false
	}
	s.State = StateIdle
	return nil
}
