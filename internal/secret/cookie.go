package secret

import "crypto/subtle"

// macSize is the HMAC-SHA256 tag length embedded in every cookie.
const macSize = 32

// nonceSize is the Responder-chosen nonce length inside the cookie
// layout. This is independent of the Querier's own Q-Cookie.
const nonceSize = 8

// CookieSize is the fixed wire length of a minted Responder Cookie:
// generation(1) || nonce(8) || HMAC-SHA256(32) (§4.4).
const CookieSize = 1 + nonceSize + macSize

// Mint produces a stateless, self-authenticating Responder Cookie
// binding the Query's Q-Cookie, the message's source/destination
// addresses, its Session ID, and its NSLP-ID (§4.4): "generation ||
// nonce || HMAC(key_gen, nonce || Q_cookie || src_addr || dst_addr ||
// SID || NSLP-ID)". Verifying this cookie later reveals everything the
// Responder needs to resume without having kept any Query-time state
// (§3 Invariant 4).
func (m *Manager) Mint(qCookie, srcAddr, dstAddr, sid []byte, nslpID uint16) ([]byte, error) {
	m.mu.RLock()
	gen := m.currentLocked()
	m.mu.RUnlock()

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	mac := hmacOf(gen.key, binding(nonce, qCookie, srcAddr, dstAddr, sid, nslpID))

	out := make([]byte, 0, CookieSize)
	out = append(out, gen.id)
	out = append(out, nonce...)
	out = append(out, mac...)
	return out, nil
}

// Validate recomputes the cookie's HMAC against the key generation it
// names and constant-time-compares it to the embedded tag. A cookie
// naming a generation that has since rotated out fails closed
// (§8: "after removal it fails closed"), as does any tampered field.
func (m *Manager) Validate(cookie, qCookie, srcAddr, dstAddr, sid []byte, nslpID uint16) bool {
	if len(cookie) != CookieSize {
		return false
	}
	gen := cookie[0]
	nonce := cookie[1 : 1+nonceSize]
	tag := cookie[1+nonceSize:]

	key, ok := m.keyFor(gen)
	if !ok {
		return false
	}
	want := hmacOf(key, binding(nonce, qCookie, srcAddr, dstAddr, sid, nslpID))
	return subtle.ConstantTimeCompare(want, tag) == 1
}

// NewQueryCookie mints a fresh Querier-side Q-Cookie: >=64 random bits,
// chosen independently of any Responder key (§4.4).
func NewQueryCookie() ([]byte, error) {
	return randomNonce()
}
