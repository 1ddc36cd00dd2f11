package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
)

// otoContext is process-wide: oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

type otoDriver struct {
	ctx     *oto.Context
	player  *oto.Player
	mu      sync.Mutex
	started bool
	logger  *zap.SugaredLogger
}

func newOtoDriver(cfg *Config, src beep.Streamer) (Driver, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		}
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(op)
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("create oto context: %w", otoErr)
	}

	reader := newFloatReader(src, cfg.FramesPerBuffer)
	return &otoDriver{
		ctx:    otoCtx,
		player: otoCtx.NewPlayer(reader),
		logger: logging.Named("device.oto"),
	}, nil
}

func (d *otoDriver) Name() string {
	return "oto"
}

func (d *otoDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil || d.started {
		return nil
	}
	d.player.Play()
	d.started = true
	d.logger.Infow("output started")
	return nil
}

func (d *otoDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player = nil
	d.started = false
	return err
}

// floatReader exposes a stereo streamer as interleaved float32 little-endian bytes.
type floatReader struct {
	src     beep.Streamer
	scratch [][2]float64
}

func newFloatReader(src beep.Streamer, frames int) *floatReader {
	return &floatReader{src: src, scratch: make([][2]float64, frames)}
}

// Read never fails; partial frames at the end of p are zero-filled.
func (r *floatReader) Read(p []byte) (int, error) {
	const frameSize = 8
	frames := len(p) / frameSize
	for done := 0; done < frames; {
		chunk := min(frames-done, len(r.scratch))
		buf := r.scratch[:chunk]
		render(r.src, buf)
		for i, f := range buf {
			off := (done + i) * frameSize
			binary.LittleEndian.PutUint32(p[off:], math.Float32bits(clampSample(f[0])))
			binary.LittleEndian.PutUint32(p[off+4:], math.Float32bits(clampSample(f[1])))
		}
		done += chunk
	}
	clear(p[frames*frameSize:])
	return len(p), nil
}
