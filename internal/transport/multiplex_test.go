package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteToUnknownMAReturnsError(t *testing.T) {
	m := NewMultiplexer(nil)
	err := m.WriteTo("no-such-ma", []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCloseConnOnUnknownMAIsNoop(t *testing.T) {
	m := NewMultiplexer(nil)
	assert.NotPanics(t, func() { m.CloseConn("no-such-ma") })
}
