// Package media 提供可接入混音器的媒体元素：正弦音、PCM/WAV 片段、麦克风
package media

import (
	"errors"
	"sync"

	"github.com/gopxl/beep/v2"
)

// ErrAlreadyConnected is returned by AudioSource while the element feeds another channel.
var ErrAlreadyConnected = errors.New("media: element already connected")

// ResampleQuality is the beep.Resample quality used when an element's native rate differs from
// the mixer rate.
const ResampleQuality = 4

// attachment enforces that an element feeds at most one channel at a time.
type attachment struct {
	mu   sync.Mutex
	busy bool
}

func (a *attachment) acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return ErrAlreadyConnected
	}
	a.busy = true
	return nil
}

// release reports whether the element was attached.
func (a *attachment) release() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	was := a.busy
	a.busy = false
	return was
}

// Connected reports whether the element currently feeds a channel.
func (a *attachment) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// toFormat adapts a stream produced at rate to the requested mixer format.
func toFormat(s beep.Streamer, rate beep.SampleRate, format beep.Format) beep.Streamer {
	if rate == format.SampleRate {
		return s
	}
	return beep.Resample(ResampleQuality, rate, format.SampleRate, s)
}
