package media

import (
	"fmt"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// ClipElement 内存中的音频片段（PCM 或 WAV 解码结果），可循环播放
//
// A clip that reaches its end without looping keeps producing silence, so the channel stays
// connected until it is disconnected explicitly.
type ClipElement struct {
	attachment
	frames [][2]float64
	rate   beep.SampleRate
	loop   bool
	ended  atomic.Bool
}

// NewPCMElement wraps interleaved signed 16-bit little-endian PCM.
func NewPCMElement(data []byte, sampleRate, channels int, loop bool) (*ClipElement, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported number of channels: %d", channels)
	}

	frameSize := 2 * channels
	frames := make([][2]float64, len(data)/frameSize)
	for i := range frames {
		off := i * frameSize
		left := float64(int16(uint16(data[off])|uint16(data[off+1])<<8)) / 32768.0
		right := left
		if channels == 2 {
			right = float64(int16(uint16(data[off+2])|uint16(data[off+3])<<8)) / 32768.0
		}
		frames[i] = [2]float64{left, right}
	}
	return newClip(frames, beep.SampleRate(sampleRate), loop), nil
}

func newClip(frames [][2]float64, rate beep.SampleRate, loop bool) *ClipElement {
	return &ClipElement{frames: frames, rate: rate, loop: loop}
}

// Len returns the clip length in frames at its native rate.
func (e *ClipElement) Len() int {
	return len(e.frames)
}

func (e *ClipElement) SampleRate() beep.SampleRate {
	return e.rate
}

// Ended reports whether a non-looping clip has played to the end since it was last connected.
func (e *ClipElement) Ended() bool {
	return e.ended.Load()
}

func (e *ClipElement) AudioSource(format beep.Format) (beep.Streamer, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	e.ended.Store(false)
	s := &clipStreamer{clip: e}
	return toFormat(s, e.rate, format), nil
}

func (e *ClipElement) ReleaseSource() {
	e.release()
}

type clipStreamer struct {
	clip *ClipElement
	pos  int
}

func (s *clipStreamer) Stream(samples [][2]float64) (int, bool) {
	frames := s.clip.frames
	filled := 0
	for filled < len(samples) {
		if s.pos >= len(frames) {
			if !s.clip.loop || len(frames) == 0 {
				s.clip.ended.Store(true)
				clear(samples[filled:])
				break
			}
			s.pos = 0
		}
		n := copy(samples[filled:], frames[s.pos:])
		filled += n
		s.pos += n
	}
	return len(samples), true
}

func (s *clipStreamer) Err() error {
	return nil
}
