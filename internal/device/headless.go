package device

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
)

// Sink receives every rendered buffer from the headless driver. The slice is reused.
type Sink func(frames [][2]float64)

// Headless 无设备驱动：按实时节奏拉取主总线，供服务器/CI 环境使用
type Headless struct {
	src    beep.Streamer
	sink   Sink
	period time.Duration
	buf    [][2]float64
	frames atomic.Int64
	peak   atomic.Uint64
	logger *zap.SugaredLogger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewHeadless(cfg *Config, src beep.Streamer, sink Sink) *Headless {
	period := time.Duration(float64(cfg.FramesPerBuffer) / float64(cfg.SampleRate) * float64(time.Second))
	return &Headless{
		src:    src,
		sink:   sink,
		period: period,
		buf:    make([][2]float64, cfg.FramesPerBuffer),
		logger: logging.Named("device.headless"),
	}
}

func (h *Headless) Name() string {
	return "headless"
}

func (h *Headless) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return nil
	}
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.run(h.stop, h.done)
	h.logger.Infow("output started", "period", h.period)
	return nil
}

func (h *Headless) Stop() error {
	h.mu.Lock()
	stop, done := h.stop, h.done
	h.stop, h.done = nil, nil
	h.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Frames returns the number of frames rendered so far.
func (h *Headless) Frames() int64 {
	return h.frames.Load()
}

// Peak returns the largest absolute sample seen since the last call and resets it.
func (h *Headless) Peak() float64 {
	return math.Float64frombits(h.peak.Swap(0))
}

func (h *Headless) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Headless) tick() {
	render(h.src, h.buf)
	peak := 0.0
	for _, f := range h.buf {
		peak = max(peak, math.Abs(f[0]), math.Abs(f[1]))
	}
	for {
		old := h.peak.Load()
		if peak <= math.Float64frombits(old) || h.peak.CompareAndSwap(old, math.Float64bits(peak)) {
			break
		}
	}
	h.frames.Add(int64(len(h.buf)))
	if h.sink != nil {
		h.sink(h.buf)
	}
}
