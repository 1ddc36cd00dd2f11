package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPannerAttenuatesOppositeSide(t *testing.T) {
	tests := []struct {
		pan         float64
		left, right float64
	}{
		{pan: 0, left: 0.3, right: 0.7},
		{pan: 1, left: 0, right: 0.7},
		{pan: -1, left: 0.3, right: 0},
		{pan: 0.5, left: 0.15, right: 0.7},
		{pan: -0.25, left: 0.3, right: 0.525},
	}
	for _, tt := range tests {
		p := &panner{Streamer: constStreamer{left: 0.3, right: 0.7}, Pan: tt.pan}
		buf := make([][2]float64, 4)
		n, ok := p.Stream(buf)
		require.True(t, ok)
		require.Equal(t, 4, n)
		assert.InDelta(t, tt.left, buf[2][0], 1e-12, "pan %v left", tt.pan)
		assert.InDelta(t, tt.right, buf[2][1], 1e-12, "pan %v right", tt.pan)
	}
}

func TestHardPanStaysWithinEffectiveGain(t *testing.T) {
	m := newTestMixer()
	id := m.CreateChannel("app")
	require.NoError(t, m.SetChannelVolume(id, 0.5))
	require.NoError(t, m.ConnectMediaElement(id, newFakeElement(1)))

	for _, pan := range []float64{1, -1} {
		require.NoError(t, m.SetChannelPan(id, pan))
		gain, ok := m.EffectiveGain(id)
		require.True(t, ok)

		frame := render(m, 32)[16]
		assert.LessOrEqual(t, frame[0], gain+1e-12)
		assert.LessOrEqual(t, frame[1], gain+1e-12)
		assert.InDelta(t, gain, max(frame[0], frame[1]), 1e-12)
		assert.InDelta(t, 0, min(frame[0], frame[1]), 1e-12)
	}
}
