package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/fleetsim/core/monitoring"
)

func TestNewSentryMonitorDisabled(t *testing.T) {
	m, err := NewSentryMonitor(coremon.Config{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
	m.CaptureException(errors.New("ignored"), map[string]string{"vehicle_id": "vehicle-001"})
	m.Flush(time.Millisecond)
}

func TestNewSentryMonitorInvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(coremon.Config{DSN: "not-a-dsn"})
	assert.Error(t, err)
}

func TestSentryMonitorIgnoresNilError(t *testing.T) {
	m := &sentryMonitor{}
	assert.NotPanics(t, func() { m.CaptureException(nil, nil) })
}
