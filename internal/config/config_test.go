package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
}

func TestRSValidityDerivation(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 90*time.Second, cfg.GIST.RSValidity())
}

func TestSecretRotationIntervalDerivation(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60*time.Second, cfg.GIST.SecretRotationInterval())
}

func TestValidateRejectsZeroRefreshInterval(t *testing.T) {
	cfg := Default()
	cfg.GIST.RefreshInterval = 0
	assert.Error(t, Validate(cfg))
}

func TestValidateRequiresSessionTTLWhenNATFWEnabled(t *testing.T) {
	cfg := Default()
	cfg.NATFW.Enabled = true
	cfg.NATFW.SessionTTL = 0
	assert.Error(t, Validate(cfg))
}
