package qos

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/wmnsk/go-gtp/gtpv1"
)

var errWrongRole = errors.New("qos: operation not valid for this session's role")

// TunnelInstaller installs/removes the GTP-U tunnel override a
// successful RESERVE provisions — the QoS-NSLP analogue of natfw's
// PolicyRuleInstaller, grounded on the same setupN3Tunnel2 call
// sequence the teacher uses to wire its own N3 user plane.
type TunnelInstaller interface {
	InstallTunnel(t TunnelSpec) error
	RemoveTunnel(t TunnelSpec) error
}

// GTPUInstaller installs a kernel GTP-U tunnel override via
// github.com/wmnsk/go-gtp, exactly as example/example.go's
// setupN3Tunnel2 does for gnbsim's simulated gNB: open a kernel-backed
// u-plane conn on localAddr, then AddTunnelOverride per reservation.
type GTPUInstaller struct {
	mu    sync.Mutex
	uConn *gtpv1.UPlaneConn
}

// NewGTPUInstaller opens a kernel GTP-U device named ifName, bound to
// localAddr, in the given role (gtpv1.RoleSGSN/RoleGGSN).
func NewGTPUInstaller(localAddr *net.UDPAddr, ifName string, role gtpv1.Role) (*GTPUInstaller, error) {
	uConn := gtpv1.NewUPlaneConn(localAddr)
	if err := uConn.EnableKernelGTP(ifName, role); err != nil {
		return nil, fmt.Errorf("qos: enabling kernel GTP-U device %q: %w", ifName, err)
	}
	return &GTPUInstaller{uConn: uConn}, nil
}

func (g *GTPUInstaller) InstallTunnel(t TunnelSpec) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	peer := net.ParseIP(t.PeerAddr)
	ue := net.ParseIP(t.UEAddr)
	if peer == nil || ue == nil {
		return fmt.Errorf("qos: invalid tunnel addresses %q/%q", t.PeerAddr, t.UEAddr)
	}
	return g.uConn.AddTunnelOverride(peer, ue, t.PeerTEID, t.LocalTEID)
}

func (g *GTPUInstaller) RemoveTunnel(t TunnelSpec) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ue := net.ParseIP(t.UEAddr)
	if ue == nil {
		return fmt.Errorf("qos: invalid UE address %q", t.UEAddr)
	}
	return g.uConn.DelTunnelOverride(ue)
}

// MemoryInstaller is an in-memory TunnelInstaller with no kernel
// interaction, for tests and the `gistd` demo data plane.
type MemoryInstaller struct {
	mu      sync.Mutex
	tunnels map[string]TunnelSpec
}

// NewMemoryInstaller constructs an empty MemoryInstaller.
func NewMemoryInstaller() *MemoryInstaller {
	return &MemoryInstaller{tunnels: make(map[string]TunnelSpec)}
}

func (m *MemoryInstaller) InstallTunnel(t TunnelSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tunnels[t.UEAddr] = t
	return nil
}

func (m *MemoryInstaller) RemoveTunnel(t TunnelSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tunnels, t.UEAddr)
	return nil
}

// Lookup reports the tunnel installed for a UE address, if any.
func (m *MemoryInstaller) Lookup(ueAddr string) (TunnelSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tunnels[ueAddr]
	return t, ok
}

// NoopInstaller only logs: exercises the RESERVE signaling path without
// any data-plane effect.
type NoopInstaller struct {
	log *logrus.Entry
}

// NewNoopInstaller constructs a NoopInstaller that logs at Info level.
func NewNoopInstaller(log *logrus.Entry) *NoopInstaller {
	return &NoopInstaller{log: log}
}

func (n *NoopInstaller) InstallTunnel(t TunnelSpec) error {
	n.log.WithFields(logrus.Fields{
		"peer_addr":  t.PeerAddr,
		"ue_addr":    t.UEAddr,
		"local_teid": t.LocalTEID,
		"peer_teid":  t.PeerTEID,
	}).Info("qos: would install GTP-U tunnel override")
	return nil
}

func (n *NoopInstaller) RemoveTunnel(t TunnelSpec) error {
	n.log.WithField("ue_addr", t.UEAddr).Info("qos: would remove GTP-U tunnel override")
	return nil
}
