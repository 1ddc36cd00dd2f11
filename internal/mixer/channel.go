package mixer

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// ChannelID 通道标识，进程内唯一，创建后不可变
type ChannelID string

// AudioChannel 单个应用音频通道的只读视图
type AudioChannel struct {
	ID     ChannelID `json:"id"`
	AppID  string    `json:"appId"`
	Name   string    `json:"name"`
	Volume float64   `json:"volume"`
	Muted  bool      `json:"muted"`
	Pan    float64   `json:"pan"`
	// Connected reports whether the channel currently owns a routing handle.
	Connected bool `json:"connected"`

	seq uint64
}

// channelGain is the value the channel's gain stage carries; master state is applied downstream.
func (c AudioChannel) channelGain() float64 {
	if c.Muted {
		return 0
	}
	return c.Volume
}

// channelRecord is the registry's mutable entry. The route is owned exclusively by the record.
type channelRecord struct {
	AudioChannel
	route *route
}

func (r *channelRecord) view() AudioChannel {
	v := r.AudioChannel
	v.Connected = r.route != nil
	return v
}

type channelOptions struct {
	name   string
	volume float64
}

// ChannelOption customises CreateChannel.
type ChannelOption func(*channelOptions)

// WithName sets the display label. An empty name keeps the generated default.
func WithName(name string) ChannelOption {
	return func(o *channelOptions) {
		o.name = name
	}
}

// WithVolume sets the initial channel volume, clamped into [0,1]. NaN keeps the default of 1.
func WithVolume(volume float64) ChannelOption {
	return func(o *channelOptions) {
		o.volume = volume
	}
}

// IDGenerator produces channel ids. Generators must never repeat within a process.
type IDGenerator func() ChannelID

// UUIDs is the default generator.
func UUIDs() IDGenerator {
	return func() ChannelID {
		return ChannelID(uuid.NewString())
	}
}

// SequentialIDs yields prefix1, prefix2, ... from a monotonic counter.
func SequentialIDs(prefix string) IDGenerator {
	var n atomic.Uint64
	return func() ChannelID {
		return ChannelID(fmt.Sprintf("%s%d", prefix, n.Add(1)))
	}
}

func clampVolume(v float64) (float64, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: volume is NaN", ErrInvalidValue)
	}
	return math.Max(0, math.Min(1, v)), nil
}

func clampPan(v float64) (float64, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: pan is NaN", ErrInvalidValue)
	}
	return math.Max(-1, math.Min(1, v)), nil
}
