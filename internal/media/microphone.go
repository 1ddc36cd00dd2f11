package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gordonklaus/portaudio"
	"github.com/smallnest/ringbuffer"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
)

// MicrophoneConfig 麦克风采集配置
type MicrophoneConfig struct {
	SampleRate    int     // 采集采样率
	Channels      int     // 1 或 2
	BufferSize    int     // 每次读取的帧数
	BufferSeconds float64 // 环形缓冲区可容纳的秒数
	HighLatency   bool    // 使用设备默认高延迟（适合蓝牙设备）
	DeviceName    string  // 设备名称（部分匹配），空字符串表示默认设备
}

func DefaultMicrophoneConfig() MicrophoneConfig {
	return MicrophoneConfig{
		SampleRate:    44100,
		Channels:      1,
		BufferSize:    1024,
		BufferSeconds: 0.5,
	}
}

type audioStream interface {
	Start() error
	Read() error
	Abort() error
	Stop() error
	Close() error
}

// streamOpener opens a capture stream that fills buffer on every Read.
type streamOpener func(cfg MicrophoneConfig, buffer []int16) (audioStream, error)

// MicrophoneElement 麦克风媒体元素
//
// The capture stream is opened when the element is connected and closed when it is released.
// A capture goroutine moves samples into a ring buffer; the render side drains it and plays
// silence on underrun. Opening the portaudio stream initialises PortAudio and closing it
// terminates that reference again.
type MicrophoneElement struct {
	attachment
	cfg    MicrophoneConfig
	open   streamOpener
	logger *zap.SugaredLogger

	mu      sync.Mutex
	capture *capture
}

type capture struct {
	stream audioStream
	buffer []int16
	ring   *ringbuffer.RingBuffer
	stop   chan struct{}
	done   chan struct{}
}

func NewMicrophoneElement(cfg MicrophoneConfig) *MicrophoneElement {
	return newMicrophoneElement(cfg, openPortAudioStream)
}

func newMicrophoneElement(cfg MicrophoneConfig, open streamOpener) *MicrophoneElement {
	def := DefaultMicrophoneConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		cfg.Channels = def.Channels
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = def.BufferSeconds
	}
	return &MicrophoneElement{
		cfg:    cfg,
		open:   open,
		logger: logging.Named("microphone"),
	}
}

func (e *MicrophoneElement) AudioSource(format beep.Format) (beep.Streamer, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}

	buffer := make([]int16, e.cfg.BufferSize*e.cfg.Channels)
	stream, err := e.open(e.cfg, buffer)
	if err != nil {
		e.release()
		return nil, fmt.Errorf("open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		e.release()
		return nil, fmt.Errorf("start capture stream: %w", err)
	}

	capacity := int(e.cfg.BufferSeconds*float64(e.cfg.SampleRate)) * e.cfg.Channels * 2
	c := &capture{
		stream: stream,
		buffer: buffer,
		ring:   ringbuffer.New(capacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.mu.Lock()
	e.capture = c
	e.mu.Unlock()

	go e.run(c)
	e.logger.Infow("capture started", "sample_rate", e.cfg.SampleRate, "channels", e.cfg.Channels)

	s := &micStreamer{ring: c.ring, channels: e.cfg.Channels, raw: make([]byte, 512*2*e.cfg.Channels)}
	return toFormat(s, beep.SampleRate(e.cfg.SampleRate), format), nil
}

func (e *MicrophoneElement) ReleaseSource() {
	e.mu.Lock()
	c := e.capture
	e.capture = nil
	e.mu.Unlock()

	if c != nil {
		close(c.stop)
		if err := c.stream.Abort(); err != nil {
			e.logger.Warnw("error aborting stream", "error", err)
		}
		<-c.done
		if err := c.stream.Stop(); err != nil {
			e.logger.Warnw("error stopping stream", "error", err)
		}
		if err := c.stream.Close(); err != nil {
			e.logger.Warnw("error closing stream", "error", err)
		}
		e.logger.Infow("capture stopped")
	}
	e.release()
}

func (e *MicrophoneElement) run(c *capture) {
	defer close(c.done)

	raw := make([]byte, len(c.buffer)*2)
	dropped := 0
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			e.logger.Warnw("capture read failed", "error", err)
			return
		}

		for i, v := range c.buffer {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
		}
		if _, err := c.ring.Write(raw); err != nil {
			if errors.Is(err, ringbuffer.ErrIsFull) {
				dropped++
				if dropped%100 == 1 {
					e.logger.Debugw("capture buffer full, dropping audio", "dropped_reads", dropped)
				}
				continue
			}
			e.logger.Debugw("partial capture write", "error", err)
		}
	}
}

type micStreamer struct {
	ring     *ringbuffer.RingBuffer
	channels int
	raw      []byte
}

// Stream drains whole frames from the ring buffer and pads with silence.
func (s *micStreamer) Stream(samples [][2]float64) (int, bool) {
	frameSize := 2 * s.channels
	filled := 0
	for filled < len(samples) {
		want := min(len(samples)-filled, len(s.raw)/frameSize)
		avail := s.ring.Length() / frameSize
		if avail == 0 {
			break
		}
		want = min(want, avail)
		n, err := s.ring.Read(s.raw[:want*frameSize])
		if err != nil || n < frameSize {
			break
		}
		for i := 0; i < n/frameSize; i++ {
			off := i * frameSize
			left := float64(int16(binary.LittleEndian.Uint16(s.raw[off:]))) / 32768.0
			right := left
			if s.channels == 2 {
				right = float64(int16(binary.LittleEndian.Uint16(s.raw[off+2:]))) / 32768.0
			}
			samples[filled] = [2]float64{left, right}
			filled++
		}
	}
	clear(samples[filled:])
	return len(samples), true
}

func (s *micStreamer) Err() error {
	return nil
}

// paStream ties one PortAudio initialisation to the lifetime of a capture stream.
type paStream struct {
	*portaudio.Stream
}

func (s paStream) Close() error {
	err := s.Stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

func openPortAudioStream(cfg MicrophoneConfig, buffer []int16) (audioStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	stream, err := openInputStream(cfg, buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	return paStream{stream}, nil
}

func openInputStream(cfg MicrophoneConfig, buffer []int16) (*portaudio.Stream, error) {
	var device *portaudio.DeviceInfo
	var err error
	if cfg.DeviceName != "" {
		device, err = findInputDeviceByName(cfg.DeviceName)
		if err != nil {
			logging.Warnf("MicrophoneElement: device %q not found, falling back to default: %v", cfg.DeviceName, err)
		}
	}
	if device == nil {
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.BufferSize, &buffer)
		}
	}

	latency := device.DefaultLowInputLatency
	if cfg.HighLatency {
		latency = device.DefaultHighInputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BufferSize,
	}
	stream, err := portaudio.OpenStream(params, &buffer)
	if err != nil {
		logging.Warnf("MicrophoneElement: failed to open %s, falling back to default stream: %v", device.Name, err)
		return portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.BufferSize, &buffer)
	}
	return stream, nil
}

// findInputDeviceByName 按名称查找输入设备（支持部分匹配）
func findInputDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(name)
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), needle) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no input device found matching %q", name)
}
