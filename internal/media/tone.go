package media

import (
	"math"

	"github.com/gopxl/beep/v2"
)

// ToneElement 正弦波发生器，用于演示和设备自检
type ToneElement struct {
	attachment
	freq      float64
	amplitude float64
}

// NewToneElement creates an endless sine source. Amplitude is clamped into [0,1].
func NewToneElement(freq, amplitude float64) *ToneElement {
	return &ToneElement{
		freq:      freq,
		amplitude: math.Max(0, math.Min(1, amplitude)),
	}
}

func (e *ToneElement) Frequency() float64 {
	return e.freq
}

func (e *ToneElement) AudioSource(format beep.Format) (beep.Streamer, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	return &toneStreamer{
		step:      2 * math.Pi * e.freq / float64(format.SampleRate),
		amplitude: e.amplitude,
	}, nil
}

func (e *ToneElement) ReleaseSource() {
	e.release()
}

type toneStreamer struct {
	phase     float64
	step      float64
	amplitude float64
}

func (t *toneStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		v := t.amplitude * math.Sin(t.phase)
		samples[i] = [2]float64{v, v}
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return len(samples), true
}

func (t *toneStreamer) Err() error {
	return nil
}
