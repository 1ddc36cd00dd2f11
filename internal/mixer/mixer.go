package mixer

import (
	"github.com/gopxl/beep/v2"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
)

// Mixer 进程级混音引擎：通道注册表 + 路由图 + 主总线 + 状态通知
//
// All methods are safe for concurrent use. Every successful mutating call publishes exactly one
// full State to the subscribers; failed calls and no-ops publish nothing.
type Mixer interface {
	MasterVolume() float64
	SetMasterVolume(volume float64) error
	MasterMuted() bool
	SetMasterMuted(muted bool)

	CreateChannel(appID string, opts ...ChannelOption) ChannelID
	// RemoveChannel disconnects and deletes the channel. Unknown ids are ignored.
	RemoveChannel(id ChannelID)
	Channel(id ChannelID) (AudioChannel, bool)
	ChannelsByApp(appID string) []AudioChannel
	Channels() []AudioChannel

	SetChannelVolume(id ChannelID, volume float64) error
	SetChannelMuted(id ChannelID, muted bool) error
	SetChannelPan(id ChannelID, pan float64) error

	// ConnectMediaElement routes the element into the channel, replacing any previous source.
	ConnectMediaElement(id ChannelID, element MediaElement) error
	// DisconnectChannel tears the channel's chain down and keeps its settings.
	DisconnectChannel(id ChannelID) error

	Subscribe(fn Subscriber) (unsubscribe func())
	Snapshot() State
	EffectiveGain(id ChannelID) (float64, bool)

	// Output is the master bus stream pulled by output drivers.
	Output() beep.Streamer
	Format() beep.Format
	// Close disconnects every chain and drops all subscribers.
	Close() error
}

// Config 混音器配置
type Config struct {
	SampleRate   int     // 主总线采样率
	MasterVolume float64 // 初始主音量，NaN 或越界时按 clamp 处理
	NewID        IDGenerator
	Logger       *zap.SugaredLogger
	Metrics      *Metrics
}

// DefaultConfig 默认配置：44.1kHz 立体声，主音量 100%
func DefaultConfig() *Config {
	return &Config{
		SampleRate:   44100,
		MasterVolume: 1.0,
	}
}

func (c *Config) format() beep.Format {
	rate := c.SampleRate
	if rate <= 0 {
		rate = DefaultConfig().SampleRate
	}
	return beep.Format{
		SampleRate:  beep.SampleRate(rate),
		NumChannels: 2,
		Precision:   2,
	}
}

func (c *Config) logger() *zap.SugaredLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Named("mixer")
}
