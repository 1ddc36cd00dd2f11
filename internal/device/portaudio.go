package device

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
)

type portAudioDriver struct {
	src     beep.Streamer
	scratch [][2]float64
	stream  *portaudio.Stream
	mu      sync.Mutex
	started bool
	logger  *zap.SugaredLogger
}

func newPortAudioDriver(cfg *Config, src beep.Streamer) (Driver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	d := &portAudioDriver{
		src:     src,
		scratch: make([][2]float64, cfg.FramesPerBuffer),
		logger:  logging.Named("device.portaudio"),
	}
	stream, err := portaudio.OpenDefaultStream(0, 2, float64(cfg.SampleRate), cfg.FramesPerBuffer, d.audioCallback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

func (d *portAudioDriver) Name() string {
	return "portaudio"
}

func (d *portAudioDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil || d.started {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	d.started = true
	d.logger.Infow("output started")
	return nil
}

func (d *portAudioDriver) Stop() error {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.started = false
	d.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		d.logger.Errorw("failed to stop stream", "error", err)
	}
	if err := stream.Close(); err != nil {
		d.logger.Errorw("failed to close stream", "error", err)
	}
	return portaudio.Terminate()
}

func (d *portAudioDriver) audioCallback(out [][]float32) {
	fillPlanar(d.src, d.scratch, out)
}

// fillPlanar renders len(out[0]) frames into non-interleaved stereo buffers.
func fillPlanar(src beep.Streamer, scratch [][2]float64, out [][]float32) {
	frames := len(out[0])
	for done := 0; done < frames; {
		chunk := min(frames-done, len(scratch))
		buf := scratch[:chunk]
		render(src, buf)
		for i, f := range buf {
			out[0][done+i] = clampSample(f[0])
			out[1][done+i] = clampSample(f[1])
		}
		done += chunk
	}
}

// DeviceInfo 设备信息，供 devices 命令展示
type DeviceInfo struct {
	Index         int
	Name          string
	HostAPI       string
	MaxInputs     int
	MaxOutputs    int
	SampleRate    float64
	DefaultInput  bool
	DefaultOutput bool
}

// ListDevices enumerates PortAudio devices. It initialises and terminates PortAudio itself.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	out := make([]DeviceInfo, 0, len(devices))
	for i, dev := range devices {
		info := DeviceInfo{
			Index:      i,
			Name:       dev.Name,
			MaxInputs:  dev.MaxInputChannels,
			MaxOutputs: dev.MaxOutputChannels,
			SampleRate: dev.DefaultSampleRate,
		}
		if dev.HostApi != nil {
			info.HostAPI = dev.HostApi.Name
		}
		info.DefaultInput = defaultIn != nil && dev.Name == defaultIn.Name && dev.MaxInputChannels > 0
		info.DefaultOutput = defaultOut != nil && dev.Name == defaultOut.Name && dev.MaxOutputChannels > 0
		out = append(out, info)
	}
	return out, nil
}
