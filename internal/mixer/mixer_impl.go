package mixer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
	"go.uber.org/zap"
)

type mixerImpl struct {
	mu           sync.Mutex
	format       beep.Format
	reg          *registry
	bus          *MasterBus
	graph        graph
	masterVolume float64
	masterMuted  bool
	closed       bool

	notify  *notifier
	logger  *zap.SugaredLogger
	metrics *Metrics
}

// change collects side effects of a mutation that must run after the locks are released.
type change struct {
	release []MediaElement
}

func NewMixer(config *Config) Mixer {
	if config == nil {
		config = DefaultConfig()
	}
	volume, err := clampVolume(config.MasterVolume)
	if err != nil {
		volume = 1
	}
	format := config.format()
	logger := config.logger()
	bus := newMasterBus(format, volume)

	m := &mixerImpl{
		format:       format,
		reg:          newRegistry(config.NewID),
		bus:          bus,
		graph:        graph{bus: bus},
		masterVolume: volume,
		notify:       newNotifier(logger),
		logger:       logger,
		metrics:      config.Metrics,
	}
	logger.Infow("mixer created", "sample_rate", int(format.SampleRate), "master_volume", volume)
	return m
}

// mutate runs fn under the mixer lock and, if it succeeds, publishes the resulting state.
// Elements collected in change.release are released and subscribers are called after the
// mixer lock is dropped, so both may call back into the mixer.
func (m *mixerImpl) mutate(op string, fn func(c *change) error) error {
	var c change

	m.mu.Lock()
	err := fn(&c)
	if err == nil {
		state := m.snapshotLocked()
		published := m.notify.enqueue(state)
		m.metrics.recordMutation(op, state, m.reg.connected(), published)
	}
	m.mu.Unlock()

	for _, el := range c.release {
		el.ReleaseSource()
	}
	if err == nil {
		m.notify.drain()
	}
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

func (m *mixerImpl) snapshotLocked() State {
	channels := make(map[ChannelID]AudioChannel, m.reg.len())
	for _, rec := range m.reg.all() {
		channels[rec.ID] = rec.view()
	}
	return State{
		MasterVolume: m.masterVolume,
		MasterMuted:  m.masterMuted,
		Channels:     channels,
	}
}

func (m *mixerImpl) MasterVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masterVolume
}

func (m *mixerImpl) SetMasterVolume(volume float64) error {
	v, err := clampVolume(volume)
	if err != nil {
		m.logger.Warnw("rejected master volume", "volume", volume)
		return err
	}
	return m.mutate("set_master_volume", func(*change) error {
		m.masterVolume = v
		m.bus.setGain(masterGain(m.masterVolume, m.masterMuted))
		return nil
	})
}

func (m *mixerImpl) MasterMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masterMuted
}

func (m *mixerImpl) SetMasterMuted(muted bool) {
	_ = m.mutate("set_master_muted", func(*change) error {
		m.masterMuted = muted
		m.bus.setGain(masterGain(m.masterVolume, m.masterMuted))
		return nil
	})
}

func (m *mixerImpl) CreateChannel(appID string, opts ...ChannelOption) ChannelID {
	o := channelOptions{volume: 1}
	for _, opt := range opts {
		opt(&o)
	}
	volume, err := clampVolume(o.volume)
	if err != nil {
		volume = 1
	}

	var id ChannelID
	_ = m.mutate("create_channel", func(*change) error {
		rec := m.reg.create(appID, o.name, volume)
		id = rec.ID
		return nil
	})
	m.logger.Debugw("channel created", "channel_id", id, "app_id", appID)
	return id
}

func (m *mixerImpl) RemoveChannel(id ChannelID) {
	_ = m.mutate("remove_channel", func(c *change) error {
		rec, ok := m.reg.get(id)
		if !ok {
			return errNoChange
		}
		if el := m.graph.disconnect(rec); el != nil {
			c.release = append(c.release, el)
		}
		m.reg.remove(id)
		return nil
	})
}

func (m *mixerImpl) Channel(id ChannelID) (AudioChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reg.get(id)
	if !ok {
		return AudioChannel{}, false
	}
	return rec.view(), true
}

func (m *mixerImpl) ChannelsByApp(appID string) []AudioChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return views(m.reg.byApp(appID))
}

func (m *mixerImpl) Channels() []AudioChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return views(m.reg.all())
}

func views(recs []*channelRecord) []AudioChannel {
	out := make([]AudioChannel, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.view())
	}
	return out
}

func (m *mixerImpl) SetChannelVolume(id ChannelID, volume float64) error {
	v, err := clampVolume(volume)
	if err != nil {
		m.logger.Warnw("rejected channel volume", "channel_id", id, "volume", volume)
		return err
	}
	return m.updateChannel("set_channel_volume", id, func(rec *channelRecord) {
		rec.Volume = v
	})
}

func (m *mixerImpl) SetChannelMuted(id ChannelID, muted bool) error {
	return m.updateChannel("set_channel_muted", id, func(rec *channelRecord) {
		rec.Muted = muted
	})
}

func (m *mixerImpl) SetChannelPan(id ChannelID, pan float64) error {
	p, err := clampPan(pan)
	if err != nil {
		m.logger.Warnw("rejected channel pan", "channel_id", id, "pan", pan)
		return err
	}
	return m.updateChannel("set_channel_pan", id, func(rec *channelRecord) {
		rec.Pan = p
	})
}

// updateChannel updates the record and pushes the new values into its live stages.
func (m *mixerImpl) updateChannel(op string, id ChannelID, fn func(rec *channelRecord)) error {
	err := m.mutate(op, func(*change) error {
		rec, ok := m.reg.get(id)
		if !ok {
			return fmt.Errorf("%s %s: %w", op, id, ErrChannelNotFound)
		}
		fn(rec)
		m.graph.apply(rec)
		return nil
	})
	if err != nil {
		m.logger.Debugw("channel update ignored", "op", op, "channel_id", id, "error", err)
	}
	return err
}

func (m *mixerImpl) ConnectMediaElement(id ChannelID, element MediaElement) error {
	if element == nil {
		return fmt.Errorf("connect %s: %w: nil element", id, ErrSourceUnavailable)
	}

	m.mu.Lock()
	rec, ok := m.reg.get(id)
	closed := m.closed
	current := ok && rec.route != nil && sameElement(rec.route.element, element)
	m.mu.Unlock()
	switch {
	case closed:
		return m.connectFailed(id, ErrClosed)
	case !ok:
		return m.connectFailed(id, ErrChannelNotFound)
	case current:
		// Already routed here: keep the running chain.
		return nil
	}

	source, err := element.AudioSource(m.format)
	if err != nil {
		return m.connectFailed(id, fmt.Errorf("%w: %w", ErrSourceUnavailable, err))
	}

	err = m.mutate("connect", func(c *change) error {
		if m.closed {
			return ErrClosed
		}
		rec, ok := m.reg.get(id)
		if !ok {
			return ErrChannelNotFound
		}
		if prev := m.graph.disconnect(rec); prev != nil {
			c.release = append(c.release, prev)
		}
		m.graph.connect(rec, element, source)
		return nil
	})
	if err != nil {
		element.ReleaseSource()
		return m.connectFailed(id, err)
	}
	m.logger.Infow("media element connected", "channel_id", id)
	return nil
}

// sameElement compares elements by identity. Elements of a non-comparable type never match.
func sameElement(a, b MediaElement) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (m *mixerImpl) connectFailed(id ChannelID, err error) error {
	m.metrics.recordConnectFailure()
	m.logger.Warnw("connect media element failed", "channel_id", id, "error", err)
	return fmt.Errorf("connect %s: %w", id, err)
}

func (m *mixerImpl) DisconnectChannel(id ChannelID) error {
	return m.mutate("disconnect", func(c *change) error {
		rec, ok := m.reg.get(id)
		if !ok {
			return fmt.Errorf("disconnect %s: %w", id, ErrChannelNotFound)
		}
		el := m.graph.disconnect(rec)
		if el == nil {
			return errNoChange
		}
		c.release = append(c.release, el)
		return nil
	})
}

func (m *mixerImpl) Subscribe(fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}
	return m.notify.subscribe(fn)
}

func (m *mixerImpl) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *mixerImpl) EffectiveGain(id ChannelID) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reg.get(id)
	if !ok {
		return 0, false
	}
	return EffectiveGain(m.masterVolume, m.masterMuted, rec.AudioChannel), true
}

func (m *mixerImpl) Output() beep.Streamer {
	return m.bus
}

func (m *mixerImpl) Format() beep.Format {
	return m.format
}

func (m *mixerImpl) Close() error {
	var released []MediaElement

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, rec := range m.reg.all() {
		if el := m.graph.disconnect(rec); el != nil {
			released = append(released, el)
		}
	}
	m.mu.Unlock()

	m.notify.clear()
	for _, el := range released {
		el.ReleaseSource()
	}
	m.logger.Infow("mixer closed", "released_sources", len(released))
	return nil
}
