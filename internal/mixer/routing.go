package mixer

import (
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// MediaElement is a playable element supplied by application code. The mixer derives at most
// one audio source from it per connection and tells it when that source is released.
type MediaElement interface {
	// AudioSource returns a streamer producing samples in the given format. It fails when the
	// element already feeds another channel or cannot produce audio.
	AudioSource(format beep.Format) (beep.Streamer, error)
	// ReleaseSource is called once the source returned by AudioSource is out of the graph.
	ReleaseSource()
}

// route 通道独占的节点链：source → gain → pan → ctrl → master bus
type route struct {
	element MediaElement
	gain    *effects.Gain
	pan     *panner
	ctrl    *beep.Ctrl
}

// panner is a linear pan law: the side away from the pan direction is attenuated, the other is
// left untouched, so no side ever exceeds the channel gain.
type panner struct {
	Streamer beep.Streamer
	Pan      float64
}

func (p *panner) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = p.Streamer.Stream(samples)
	left, right := min(1, 1-p.Pan), min(1, 1+p.Pan)
	for i := range samples[:n] {
		samples[i][0] *= left
		samples[i][1] *= right
	}
	return n, ok
}

func (p *panner) Err() error {
	return p.Streamer.Err()
}

func newRoute(element MediaElement, source beep.Streamer, gain, pan float64) *route {
	g := &effects.Gain{Streamer: source, Gain: gain - 1}
	p := &panner{Streamer: g, Pan: pan}
	return &route{
		element: element,
		gain:    g,
		pan:     p,
		ctrl:    &beep.Ctrl{Streamer: p},
	}
}

// graph translates channel intent into live node chains on the master bus.
type graph struct {
	bus *MasterBus
}

func (g *graph) connect(rec *channelRecord, element MediaElement, source beep.Streamer) {
	r := newRoute(element, source, rec.channelGain(), rec.Pan)
	g.bus.attach(r.ctrl)
	rec.route = r
}

// disconnect tears the chain down and hands back the element so the caller can release it
// outside any lock. It returns nil when the record had no chain.
func (g *graph) disconnect(rec *channelRecord) MediaElement {
	r := rec.route
	if r == nil {
		return nil
	}
	rec.route = nil
	g.bus.detach(r.ctrl)
	return r.element
}

// apply pushes the record's current gain and pan into its live stages, if any.
func (g *graph) apply(rec *channelRecord) {
	r := rec.route
	if r == nil {
		return
	}
	gain, pan := rec.channelGain(), rec.Pan
	g.bus.do(func() {
		r.gain.Gain = gain - 1
		r.pan.Pan = pan
	})
}

// stageValues reads back what the live stages carry. ok is false without a chain.
func (g *graph) stageValues(rec *channelRecord) (gain, pan float64, ok bool) {
	r := rec.route
	if r == nil {
		return 0, 0, false
	}
	g.bus.do(func() {
		gain, pan = 1+r.gain.Gain, r.pan.Pan
	})
	return gain, pan, true
}
