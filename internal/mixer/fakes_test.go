package mixer

import (
	"errors"
	"sync"

	"github.com/gopxl/beep/v2"
)

// constStreamer produces an endless stereo DC signal.
type constStreamer struct {
	left, right float64
}

func (s constStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i] = [2]float64{s.left, s.right}
	}
	return len(samples), true
}

func (s constStreamer) Err() error { return nil }

var errBusy = errors.New("element busy")

type fakeElement struct {
	mu       sync.Mutex
	level    float64
	fail     error
	acquired int
	released int
	formats  []beep.Format
}

func newFakeElement(level float64) *fakeElement {
	return &fakeElement{level: level}
}

func (e *fakeElement) AudioSource(format beep.Format) (beep.Streamer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	if e.acquired > e.released {
		return nil, errBusy
	}
	e.acquired++
	e.formats = append(e.formats, format)
	return constStreamer{left: e.level, right: e.level}, nil
}

func (e *fakeElement) ReleaseSource() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released++
}

func (e *fakeElement) counts() (acquired, released int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acquired, e.released
}

// recorder collects every published snapshot.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func newTestMixer() Mixer {
	cfg := DefaultConfig()
	cfg.NewID = SequentialIDs("c")
	return NewMixer(cfg)
}

func render(m Mixer, frames int) [][2]float64 {
	buf := make([][2]float64, frames)
	m.Output().Stream(buf)
	return buf
}
