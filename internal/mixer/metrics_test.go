package mixer

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsTrackMutations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Metrics = metrics
	m := NewMixer(cfg)
	m.Subscribe(func(State) {})

	a := m.CreateChannel("a")
	m.CreateChannel("b")
	require.NoError(t, m.SetMasterVolume(0.5))
	require.NoError(t, m.ConnectMediaElement(a, newFakeElement(1)))

	broken := newFakeElement(1)
	broken.fail = errors.New("gone")
	require.Error(t, m.ConnectMediaElement(a, broken))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.channels))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.connectedChannels))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.masterVolume))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.operations.WithLabelValues("create_channel")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.notifications))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.connectFailures))
}

func TestMetricsDoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)
	_, err = NewMetrics(registry)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.recordMutation("x", State{}, 0, true)
		metrics.recordConnectFailure()
	})
}
