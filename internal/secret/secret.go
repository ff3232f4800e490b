// Package secret implements the rolling HMAC secret manager and
// stateless Responder-Cookie factory (§4.4 "Secret Manager & Cookies").
package secret

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// MinGenerations is the floor §4.4 sets ("N>=2 rolling HMAC keys").
const MinGenerations = 2

// keySize is the HMAC-SHA256 key length derived per generation.
const keySize = 32

// generation holds one rolling key and the time it was derived; no
// Manager method reports the derivation time.
type generation struct {
	id      uint8
	key     []byte
	derived time.Time
}

// Manager owns a master secret and derives a ring of per-generation
// HMAC-SHA256 keys from it via HKDF-SHA256 (§4.4: "N>=2 rolling HMAC
// keys identified by a small integer generation"). Unlike gnbsim's
// Milenage subscriber-key derivation (a fixed single key per UE), this
// repo's secret is node-local and rotates on a timer, so Manager keeps
// a small ring rather than a single derived value.
type Manager struct {
	mu          sync.RWMutex
	master      []byte
	generations []generation // oldest first; len() == count, capped at count
	count       int
	rotateEvery time.Duration
	nextGen     uint8
}

// NewManager seeds a Manager with a random master secret and mints its
// first `count` generations immediately. count is clamped to
// MinGenerations.
func NewManager(count int, rotateEvery time.Duration) (*Manager, error) {
	if count < MinGenerations {
		count = MinGenerations
	}
	master := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, master); err != nil {
		return nil, fmt.Errorf("secret: generating master secret: %w", err)
	}
	m := &Manager{
		master:      master,
		count:       count,
		rotateEvery: rotateEvery,
	}
	for i := 0; i < count; i++ {
		if err := m.mintLocked(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) mintLocked() error {
	gen := m.nextGen
	m.nextGen++

	info := make([]byte, 1)
	info[0] = gen
	hk := hkdf.New(sha256.New, m.master, nil, info)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hk, key); err != nil {
		return fmt.Errorf("secret: deriving generation %d: %w", gen, err)
	}

	m.generations = append(m.generations, generation{id: gen, key: key, derived: time.Now()})
	if len(m.generations) > m.count {
		m.generations = m.generations[len(m.generations)-m.count:]
	}
	return nil
}

// Rotate mints a new generation and retires the oldest, per the
// rotation-interval policy (§4.4: "Oldest key is retired on rotation
// interval"). Callers drive this from the Timer module (§5).
func (m *Manager) Rotate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mintLocked()
}

// RotateEvery reports the configured rotation interval.
func (m *Manager) RotateEvery() time.Duration { return m.rotateEvery }

// currentLocked returns the newest generation, the one Mint uses.
func (m *Manager) currentLocked() generation {
	return m.generations[len(m.generations)-1]
}

// keyFor returns the key for a given generation id, or false if it has
// already been retired ("after removal it fails closed", §8).
func (m *Manager) keyFor(gen uint8) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.generations {
		if g.id == gen {
			return g.key, true
		}
	}
	return nil, false
}

func randomNonce() ([]byte, error) {
	n := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, fmt.Errorf("secret: generating nonce: %w", err)
	}
	return n, nil
}

func hmacOf(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

func binding(nonce, qCookie, srcAddr, dstAddr, sid []byte, nslpID uint16) []byte {
	var buf []byte
	buf = append(buf, nonce...)
	buf = append(buf, qCookie...)
	buf = append(buf, srcAddr...)
	buf = append(buf, dstAddr...)
	buf = append(buf, sid...)
	idBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(idBuf, nslpID)
	buf = append(buf, idBuf...)
	return buf
}
