package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/liuscraft/orion-mixer/internal/logging"
	"github.com/liuscraft/orion-mixer/internal/media"
	"github.com/liuscraft/orion-mixer/internal/mixer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAssistant struct {
	reply  string
	err    error
	prompt string
}

func (a *fakeAssistant) Ask(_ context.Context, prompt string) (string, error) {
	a.prompt = prompt
	return a.reply, a.err
}

func newTestServer(t *testing.T, opts ...Option) (*Server, mixer.Mixer) {
	t.Helper()
	cfg := mixer.DefaultConfig()
	cfg.NewID = mixer.SequentialIDs("c")
	m := mixer.NewMixer(cfg)

	scfg := DefaultConfig()
	scfg.MediaDir = t.TempDir()
	s := New(scfg, m, opts...)
	t.Cleanup(func() {
		s.hub.close()
		m.Close()
	})
	return s, m
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orion-mixer")
}

func TestChannelLifecycle(t *testing.T) {
	s, m := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/channels", `{"appId":"music","volume":0.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		ID mixer.ChannelID `json:"id"`
	}](t, rec)
	assert.Equal(t, mixer.ChannelID("c1"), created.ID)

	rec = do(t, s, http.MethodPut, "/api/v1/mixer/master", `{"volume":0.8}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[mixer.StateView](t, rec)
	require.Len(t, view.Channels, 1)
	assert.InDelta(t, 0.4, view.Channels[0].EffectiveGain, 1e-12)

	rec = do(t, s, http.MethodPatch, "/api/v1/channels/c1", `{"muted":true,"pan":-2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ch := decode[mixer.AudioChannel](t, rec)
	assert.True(t, ch.Muted)
	assert.Equal(t, -1.0, ch.Pan)
	assert.Equal(t, 0.5, ch.Volume)

	rec = do(t, s, http.MethodGet, "/api/v1/channels?appId=music", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data []mixer.AudioChannel `json:"data"`
	}](t, rec)
	assert.Len(t, list.Data, 1)

	rec = do(t, s, http.MethodDelete, "/api/v1/channels/c1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/v1/channels/c1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "removal is idempotent")

	rec = do(t, s, http.MethodGet, "/api/v1/channels/c1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, m.Channels())
}

func TestCreateChannelValidation(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/channels", `{"name":"no app"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUnknownChannel(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPatch, "/api/v1/channels/missing", `{"volume":0.1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/v1/channels/missing/source", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToneSource(t *testing.T) {
	s, m := newTestServer(t)
	id := m.CreateChannel("synth")

	rec := do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", `{"kind":"tone","frequency":220}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[mixer.AudioChannel](t, rec).Connected)

	rec = do(t, s, http.MethodDelete, "/api/v1/channels/"+string(id)+"/source", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	ch, _ := m.Channel(id)
	assert.False(t, ch.Connected)

	rec = do(t, s, http.MethodPut, "/api/v1/channels/missing/source", `{"kind":"tone"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", `{"kind":"midi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWAVSource(t *testing.T) {
	s, m := newTestServer(t)
	id := m.CreateChannel("player")

	f, err := os.Create(filepath.Join(s.cfg.MediaDir, "beep.wav"))
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 22050, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           []int{1000, -1000, 1000, -1000},
		Format:         &audio.Format{SampleRate: 22050, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	rec := do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", `{"kind":"wav","file":"beep.wav"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", `{"kind":"wav","file":"../etc/passwd"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", `{"kind":"wav","file":"absent.wav"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ch, _ := m.Channel(id)
	assert.True(t, ch.Connected, "failed requests keep the previous source")
}

func TestAssistant(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/assistant", `{"prompt":"quieter"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	a := &fakeAssistant{reply: "done"}
	s, _ = newTestServer(t, WithAssistant(a))
	rec = do(t, s, http.MethodPost, "/api/v1/assistant", `{"prompt":"quieter"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quieter", a.prompt)
	assert.Contains(t, rec.Body.String(), `"reply":"done"`)

	a.err = errors.New("model offline")
	rec = do(t, s, http.MethodPost, "/api/v1/assistant", `{"prompt":"louder"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := mixer.NewMetrics(registry)
	require.NoError(t, err)

	cfg := mixer.DefaultConfig()
	cfg.Metrics = metrics
	m := mixer.NewMixer(cfg)
	defer m.Close()
	s := New(DefaultConfig(), m, WithMetrics(registry))
	defer s.hub.close()

	m.CreateChannel("app")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mixer_channels 1")

	s2, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, s2, http.MethodGet, "/metrics", "").Code)
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/channels", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketStream(t *testing.T) {
	s, m := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var initial mixer.StateView
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Empty(t, initial.Channels)
	assert.Equal(t, 1.0, initial.MasterVolume)

	require.Eventually(t, func() bool { return s.hub.count() == 1 }, time.Second, 5*time.Millisecond)
	m.CreateChannel("radio")

	var next mixer.StateView
	require.NoError(t, conn.ReadJSON(&next))
	require.Len(t, next.Channels, 1)
	assert.Equal(t, "radio", next.Channels[0].AppID)

	s.hub.close()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestClientOfferKeepsLatest(t *testing.T) {
	cl := &client{send: make(chan mixer.State, 1)}
	cl.offer(mixer.State{MasterVolume: 0.1})
	cl.offer(mixer.State{MasterVolume: 0.2})
	cl.offer(mixer.State{MasterVolume: 0.3})

	got := <-cl.send
	assert.Equal(t, 0.3, got.MasterVolume)
	select {
	case extra := <-cl.send:
		t.Fatalf("unexpected extra snapshot %+v", extra)
	default:
	}
}

func TestPCMSource(t *testing.T) {
	s, m := newTestServer(t)
	id := m.CreateChannel("stream")

	pcm := []byte{0x00, 0x40, 0x00, 0x40, 0x00, 0xc0, 0x00, 0xc0}
	body := `{"kind":"pcm","sampleRate":16000,"channels":1,"loop":true,"data":"` + base64.StdEncoding.EncodeToString(pcm) + `"}`
	rec := do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[mixer.AudioChannel](t, rec).Connected)

	rec = do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", `{"kind":"pcm","sampleRate":16000,"channels":6}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ch, _ := m.Channel(id)
	assert.True(t, ch.Connected, "a rejected source keeps the current one")
}

func TestMicrophoneSource(t *testing.T) {
	var got media.MicrophoneConfig
	s, m := newTestServer(t, WithMicrophone(func(cfg media.MicrophoneConfig) mixer.MediaElement {
		got = cfg
		return media.NewToneElement(300, 0.1)
	}))
	id := m.CreateChannel("voice")

	rec := do(t, s, http.MethodPut, "/api/v1/channels/"+string(id)+"/source", `{"kind":"microphone","device":"USB","channels":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[mixer.AudioChannel](t, rec).Connected)
	assert.Equal(t, "USB", got.DeviceName)
	assert.Equal(t, 2, got.Channels)
	assert.Equal(t, media.DefaultMicrophoneConfig().SampleRate, got.SampleRate)
}

func TestRegisterNeverEndsOnStaleSnapshot(t *testing.T) {
	m := mixer.NewMixer(nil)
	defer m.Close()
	h := newHub(m, nil, logging.Named("test"))

	var (
		mu      sync.Mutex
		clients []*client
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			_ = m.SetMasterVolume(float64(i) / 200)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			cl := &client{send: make(chan mixer.State, 1), done: make(chan struct{})}
			if !h.register(cl) {
				t.Error("register refused on an open hub")
				return
			}
			mu.Lock()
			clients = append(clients, cl)
			mu.Unlock()
		}
	}()
	wg.Wait()

	want := m.MasterVolume()
	for _, cl := range clients {
		got := <-cl.send
		assert.Equal(t, want, got.MasterVolume)
	}

	h.mu.Lock()
	for _, cl := range clients {
		delete(h.clients, cl)
		h.wg.Add(-2)
	}
	h.mu.Unlock()
	h.close()
}
