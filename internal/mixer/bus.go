package mixer

import (
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// MasterBus is the single mixing point downstream of every channel chain. It implements
// beep.Streamer; output drivers pull it from their render goroutine.
//
// Graph topology changes and parameter writes from the control path take the same lock as
// Stream, so they land between two render calls.
type MasterBus struct {
	mu     sync.Mutex
	format beep.Format
	mixer  *beep.Mixer
	gain   *effects.Gain
	inputs map[*beep.Ctrl]struct{}
}

func newMasterBus(format beep.Format, gain float64) *MasterBus {
	mix := &beep.Mixer{}
	return &MasterBus{
		format: format,
		mixer:  mix,
		gain:   &effects.Gain{Streamer: mix, Gain: gain - 1},
		inputs: make(map[*beep.Ctrl]struct{}),
	}
}

// Stream renders the mix. It never drains: with no inputs it produces silence.
func (b *MasterBus) Stream(samples [][2]float64) (n int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok = b.gain.Stream(samples)
	if !ok {
		n = 0
	}
	clear(samples[n:])
	return len(samples), true
}

func (b *MasterBus) Err() error {
	return nil
}

// Format is the sample format every source must be delivered in.
func (b *MasterBus) Format() beep.Format {
	return b.format
}

// Gain returns the value the master gain stage currently applies.
func (b *MasterBus) Gain() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return 1 + b.gain.Gain
}

// Inputs returns the number of channel chains feeding the bus.
func (b *MasterBus) Inputs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inputs)
}

func (b *MasterBus) setGain(v float64) {
	b.do(func() {
		b.gain.Gain = v - 1
	})
}

func (b *MasterBus) attach(in *beep.Ctrl) {
	b.do(func() {
		b.inputs[in] = struct{}{}
		b.mixer.Add(in)
	})
}

// detach silences the input immediately and rebuilds the mixer input list, so a detached chain
// is unreachable from the render path even if no render call happens in between.
func (b *MasterBus) detach(in *beep.Ctrl) {
	b.do(func() {
		in.Streamer = nil
		delete(b.inputs, in)
		b.mixer.Clear()
		for live := range b.inputs {
			b.mixer.Add(live)
		}
	})
}

func (b *MasterBus) do(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}
