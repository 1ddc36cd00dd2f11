package mixer

import "slices"

// State 混音器完整快照：主音量/静音 + 全部通道
//
// A State is a deep copy; holding or mutating it never affects the mixer.
type State struct {
	MasterVolume float64                    `json:"masterVolume"`
	MasterMuted  bool                       `json:"masterMuted"`
	Channels     map[ChannelID]AudioChannel `json:"channels"`
}

// EffectiveGain composes master and channel state into the net audible multiplier.
func EffectiveGain(masterVolume float64, masterMuted bool, ch AudioChannel) float64 {
	if masterMuted || ch.Muted {
		return 0
	}
	return masterVolume * ch.Volume
}

func masterGain(volume float64, muted bool) float64 {
	if muted {
		return 0
	}
	return volume
}

// EffectiveGain returns the net gain of a channel in this snapshot.
func (s State) EffectiveGain(id ChannelID) (float64, bool) {
	ch, ok := s.Channels[id]
	if !ok {
		return 0, false
	}
	return EffectiveGain(s.MasterVolume, s.MasterMuted, ch), true
}

// List returns the channels in creation order.
func (s State) List() []AudioChannel {
	out := make([]AudioChannel, 0, len(s.Channels))
	for _, ch := range s.Channels {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b AudioChannel) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// ChannelView is an AudioChannel with its effective gain, as published to external observers.
type ChannelView struct {
	AudioChannel
	EffectiveGain float64 `json:"effectiveGain"`
}

// StateView is the wire shape of a State: channels as a list in creation order.
type StateView struct {
	MasterVolume float64       `json:"masterVolume"`
	MasterMuted  bool          `json:"masterMuted"`
	Channels     []ChannelView `json:"channels"`
}

func (s State) View() StateView {
	list := s.List()
	channels := make([]ChannelView, 0, len(list))
	for _, ch := range list {
		channels = append(channels, ChannelView{
			AudioChannel:  ch,
			EffectiveGain: EffectiveGain(s.MasterVolume, s.MasterMuted, ch),
		})
	}
	return StateView{
		MasterVolume: s.MasterVolume,
		MasterMuted:  s.MasterMuted,
		Channels:     channels,
	}
}
