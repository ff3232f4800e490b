package secret

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintValidateRoundTrip(t *testing.T) {
	m, err := NewManager(2, time.Minute)
	require.NoError(t, err)

	qCookie, err := NewQueryCookie()
	require.NoError(t, err)
	src := []byte{198, 51, 100, 1}
	dst := []byte{198, 51, 100, 2}
	sid := make([]byte, 16)

	cookie, err := m.Mint(qCookie, src, dst, sid, 42)
	require.NoError(t, err)
	require.Len(t, cookie, CookieSize)

	assert.True(t, m.Validate(cookie, qCookie, src, dst, sid, 42))
}

func TestValidateRejectsTamperedField(t *testing.T) {
	m, err := NewManager(2, time.Minute)
	require.NoError(t, err)

	qCookie, err := NewQueryCookie()
	require.NoError(t, err)
	src := []byte{10, 0, 0, 1}
	dst := []byte{10, 0, 0, 2}
	sid := make([]byte, 16)

	cookie, err := m.Mint(qCookie, src, dst, sid, 1)
	require.NoError(t, err)

	assert.False(t, m.Validate(cookie, qCookie, dst, src, sid, 1))

	otherSID := make([]byte, 16)
	otherSID[0] = 1
	assert.False(t, m.Validate(cookie, qCookie, src, dst, otherSID, 1))
}

func TestRotationRetiresOldestGeneration(t *testing.T) {
	m, err := NewManager(2, time.Minute)
	require.NoError(t, err)

	qCookie, err := NewQueryCookie()
	require.NoError(t, err)
	src := []byte{1, 2, 3, 4}
	dst := []byte{5, 6, 7, 8}
	sid := make([]byte, 16)

	cookie, err := m.Mint(qCookie, src, dst, sid, 7)
	require.NoError(t, err)
	require.True(t, m.Validate(cookie, qCookie, src, dst, sid, 7))

	// Rotate past the ring's capacity: the generation that minted
	// `cookie` is retired and validation fails closed (§8).
	require.NoError(t, m.Rotate())
	require.NoError(t, m.Rotate())

	assert.False(t, m.Validate(cookie, qCookie, src, dst, sid, 7))
}

func TestValidateRejectsMalformedCookie(t *testing.T) {
	m, err := NewManager(2, time.Minute)
	require.NoError(t, err)

	assert.False(t, m.Validate([]byte{1, 2, 3}, nil, nil, nil, nil, 0))
}
