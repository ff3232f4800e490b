package natfw

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var errWrongRole = errors.New("natfw: operation not valid for this session's role")

// PolicyRuleInstaller is the Go-native analogue of nsis-ka's abstract
// policy_rule_installer: installs and removes the pinhole/forwarding
// rule a NATFW-NSLP CREATE asks for. Per spec.md's explicit Non-goal, no
// real netfilter/iptables backend is implemented here (that would be
// iptables_policy_rule_installer.cpp's job) — only the seam, exercised
// by an in-memory implementation (tests, the `gistd` demo policy store)
// and a logging no-op.
type PolicyRuleInstaller interface {
	// Install opens a rule for flow with the given soft-state lifetime
	// and returns an opaque rule id for later Remove.
	Install(flow FlowSignature, lifetime time.Duration) (ruleID string, err error)
	Remove(ruleID string) error
}

// MemoryInstaller is an in-memory PolicyRuleInstaller: installed rules
// live in a map until explicitly removed, with no kernel interaction —
// the natfw-NSLP analogue of nat_manager.cpp's internal bookkeeping,
// minus the real NAT device control nat_manager.cpp performs.
type MemoryInstaller struct {
	mu    sync.Mutex
	rules map[string]FlowSignature
	next  int
}

// NewMemoryInstaller constructs an empty MemoryInstaller.
func NewMemoryInstaller() *MemoryInstaller {
	return &MemoryInstaller{rules: make(map[string]FlowSignature)}
}

func (m *MemoryInstaller) Install(flow FlowSignature, lifetime time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("rule-%d", m.next)
	m.rules[id] = flow
	return id, nil
}

func (m *MemoryInstaller) Remove(ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[ruleID]; !ok {
		return fmt.Errorf("natfw: unknown rule id %q", ruleID)
	}
	delete(m.rules, ruleID)
	return nil
}

// Lookup reports whether ruleID is currently installed, and its flow.
func (m *MemoryInstaller) Lookup(ruleID string) (FlowSignature, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rules[ruleID]
	return f, ok
}

// NoopInstaller only logs: the policy-rule seam for deployments where
// GIST signaling is exercised without any real data-plane effect.
type NoopInstaller struct {
	log *logrus.Entry
}

// NewNoopInstaller constructs a NoopInstaller that logs at Info level.
func NewNoopInstaller(log *logrus.Entry) *NoopInstaller {
	return &NoopInstaller{log: log}
}

func (n *NoopInstaller) Install(flow FlowSignature, lifetime time.Duration) (string, error) {
	n.log.WithFields(logrus.Fields{
		"src":      flow.SrcAddr,
		"dst":      flow.DstAddr,
		"proto":    flow.Protocol,
		"lifetime": lifetime,
	}).Info("natfw: would install policy rule")
	return "noop", nil
}

func (n *NoopInstaller) Remove(ruleID string) error {
	n.log.WithField("rule_id", ruleID).Info("natfw: would remove policy rule")
	return nil
}
