// Package device 将混音器主总线输出到音频设备
package device

import (
	"fmt"
	"strings"

	"github.com/gopxl/beep/v2"
)

// Driver 音频输出驱动，在自己的实时线程/回调里拉取主总线
type Driver interface {
	Name() string
	Start() error
	// Stop halts output and releases the device. It is safe to call more than once.
	Stop() error
}

// Config 输出驱动配置
type Config struct {
	Driver          string // portaudio | oto | headless
	SampleRate      int
	FramesPerBuffer int
}

func DefaultConfig() *Config {
	return &Config{
		Driver:          "portaudio",
		SampleRate:      44100,
		FramesPerBuffer: 1024,
	}
}

// New opens the named driver pulling src. src must produce stereo at cfg.SampleRate.
func New(cfg *Config, src beep.Streamer) (Driver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = def.FramesPerBuffer
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "portaudio":
		return newPortAudioDriver(cfg, src)
	case "oto":
		return newOtoDriver(cfg, src)
	case "headless", "none":
		return NewHeadless(cfg, src, nil), nil
	default:
		return nil, fmt.Errorf("unknown output driver: %s", cfg.Driver)
	}
}

// render pulls one buffer from src. Frames the source did not fill are silent.
func render(src beep.Streamer, buf [][2]float64) {
	n, ok := src.Stream(buf)
	if !ok {
		n = 0
	}
	clear(buf[n:])
}

func clampSample(v float64) float32 {
	if v > 1.0 {
		return 1.0
	} else if v < -1.0 {
		return -1.0
	}
	return float32(v)
}
