package media

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/smallnest/ringbuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream fills the capture buffer with a constant on every read until aborted.
type fakeStream struct {
	buffer  []int16
	value   int16
	started bool
	closed  bool
	aborted chan struct{}
	once    sync.Once
	reads   chan struct{}
}

func newFakeStream(value int16) *fakeStream {
	return &fakeStream{value: value, aborted: make(chan struct{}), reads: make(chan struct{}, 64)}
}

func (s *fakeStream) Start() error {
	s.started = true
	return nil
}

func (s *fakeStream) Read() error {
	select {
	case <-s.aborted:
		return errors.New("aborted")
	case <-time.After(time.Millisecond):
	}
	for i := range s.buffer {
		s.buffer[i] = s.value
	}
	select {
	case s.reads <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeStream) Abort() error {
	s.once.Do(func() { close(s.aborted) })
	return nil
}

func (s *fakeStream) Stop() error {
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func micWithStream(stream *fakeStream, cfg MicrophoneConfig) *MicrophoneElement {
	return newMicrophoneElement(cfg, func(_ MicrophoneConfig, buffer []int16) (audioStream, error) {
		stream.buffer = buffer
		return stream, nil
	})
}

func TestMicrophoneCapturesIntoStream(t *testing.T) {
	stream := newFakeStream(16384)
	mic := micWithStream(stream, MicrophoneConfig{SampleRate: 44100, Channels: 1, BufferSize: 64})

	s, err := mic.AudioSource(mixFormat)
	require.NoError(t, err)
	assert.True(t, stream.started)

	select {
	case <-stream.reads:
	case <-time.After(time.Second):
		t.Fatal("capture goroutine never read")
	}
	require.Eventually(t, func() bool {
		return mic.capture.ring.Length() >= 64*2
	}, time.Second, time.Millisecond)

	buf := make([][2]float64, 32)
	n, ok := s.Stream(buf)
	assert.Equal(t, 32, n)
	assert.True(t, ok)
	assert.Equal(t, [2]float64{0.5, 0.5}, buf[0])

	mic.ReleaseSource()
	assert.True(t, stream.closed)
	assert.False(t, mic.Connected())
}

func TestMicrophoneUnderrunIsSilence(t *testing.T) {
	s := &micStreamer{ring: ringbuffer.New(64), channels: 2, raw: make([]byte, 64)}
	buf := [][2]float64{{1, 1}, {1, 1}}
	n, ok := s.Stream(buf)
	assert.Equal(t, 2, n)
	assert.True(t, ok)
	assert.Equal(t, [][2]float64{{0, 0}, {0, 0}}, buf)
}

func TestMicrophoneSingleAttachment(t *testing.T) {
	mic := micWithStream(newFakeStream(0), MicrophoneConfig{})
	_, err := mic.AudioSource(mixFormat)
	require.NoError(t, err)
	defer mic.ReleaseSource()

	_, err = mic.AudioSource(mixFormat)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestMicrophoneOpenFailureReleases(t *testing.T) {
	mic := newMicrophoneElement(MicrophoneConfig{}, func(MicrophoneConfig, []int16) (audioStream, error) {
		return nil, errors.New("no device")
	})
	_, err := mic.AudioSource(mixFormat)
	assert.ErrorContains(t, err, "no device")
	assert.False(t, mic.Connected())

	mic.ReleaseSource()
}

func TestMicrophoneResamplesCaptureRate(t *testing.T) {
	mic := micWithStream(newFakeStream(0), MicrophoneConfig{SampleRate: 16000})
	s, err := mic.AudioSource(mixFormat)
	require.NoError(t, err)
	defer mic.ReleaseSource()

	_, isResampler := s.(*beep.Resampler)
	assert.True(t, isResampler)
}

func TestMicrophoneDefaults(t *testing.T) {
	mic := newMicrophoneElement(MicrophoneConfig{Channels: 5}, nil)
	assert.Equal(t, DefaultMicrophoneConfig(), mic.cfg)
}
