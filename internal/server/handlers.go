package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/liuscraft/orion-mixer/internal/media"
	"github.com/liuscraft/orion-mixer/internal/mixer"
)

type masterRequest struct {
	Volume *float64 `json:"volume"`
	Muted  *bool    `json:"muted"`
}

type createChannelRequest struct {
	AppID  string   `json:"appId" binding:"required"`
	Name   string   `json:"name"`
	Volume *float64 `json:"volume"`
}

type updateChannelRequest struct {
	Volume *float64 `json:"volume"`
	Muted  *bool    `json:"muted"`
	Pan    *float64 `json:"pan"`
}

type sourceRequest struct {
	Kind      string  `json:"kind" binding:"required"`
	Frequency float64 `json:"frequency"`
	Amplitude float64 `json:"amplitude"`
	File      string  `json:"file"`
	Loop      bool    `json:"loop"`
	// pcm: base64 interleaved s16le
	Data       []byte `json:"data"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	// microphone
	Device string `json:"device"`
}

type assistantRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// GetMixer returns the full snapshot
func (s *Server) GetMixer(c *gin.Context) {
	c.JSON(http.StatusOK, s.mixer.Snapshot().View())
}

// UpdateMaster sets master volume and/or mute
func (s *Server) UpdateMaster(c *gin.Context) {
	var req masterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Volume != nil {
		if err := s.mixer.SetMasterVolume(*req.Volume); err != nil {
			s.fail(c, err)
			return
		}
	}
	if req.Muted != nil {
		s.mixer.SetMasterMuted(*req.Muted)
	}
	c.JSON(http.StatusOK, s.mixer.Snapshot().View())
}

// ListChannels returns all channels, or those of ?appId=
func (s *Server) ListChannels(c *gin.Context) {
	var channels []mixer.AudioChannel
	if appID := c.Query("appId"); appID != "" {
		channels = s.mixer.ChannelsByApp(appID)
	} else {
		channels = s.mixer.Channels()
	}
	c.JSON(http.StatusOK, gin.H{"data": channels})
}

func (s *Server) CreateChannel(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := []mixer.ChannelOption{mixer.WithName(req.Name)}
	if req.Volume != nil {
		opts = append(opts, mixer.WithVolume(*req.Volume))
	}
	id := s.mixer.CreateChannel(req.AppID, opts...)
	ch, _ := s.mixer.Channel(id)
	c.JSON(http.StatusCreated, gin.H{"id": id, "channel": ch})
}

func (s *Server) GetChannel(c *gin.Context) {
	ch, ok := s.mixer.Channel(mixer.ChannelID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	c.JSON(http.StatusOK, ch)
}

// UpdateChannel applies volume, mute and pan in that order
func (s *Server) UpdateChannel(c *gin.Context) {
	id := mixer.ChannelID(c.Param("id"))
	var req updateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := s.mixer.Channel(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}

	if req.Volume != nil {
		if err := s.mixer.SetChannelVolume(id, *req.Volume); err != nil {
			s.fail(c, err)
			return
		}
	}
	if req.Muted != nil {
		if err := s.mixer.SetChannelMuted(id, *req.Muted); err != nil {
			s.fail(c, err)
			return
		}
	}
	if req.Pan != nil {
		if err := s.mixer.SetChannelPan(id, *req.Pan); err != nil {
			s.fail(c, err)
			return
		}
	}

	ch, ok := s.mixer.Channel(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	c.JSON(http.StatusOK, ch)
}

// RemoveChannel is idempotent: unknown ids also answer 204
func (s *Server) RemoveChannel(c *gin.Context) {
	s.mixer.RemoveChannel(mixer.ChannelID(c.Param("id")))
	c.Status(http.StatusNoContent)
}

// ConnectSource builds a media element from the request and routes it into the channel
func (s *Server) ConnectSource(c *gin.Context) {
	id := mixer.ChannelID(c.Param("id"))
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var element mixer.MediaElement
	switch strings.ToLower(req.Kind) {
	case "tone":
		freq, amp := req.Frequency, req.Amplitude
		if freq <= 0 {
			freq = 440
		}
		if amp <= 0 {
			amp = 0.2
		}
		element = media.NewToneElement(freq, amp)
	case "wav":
		path, err := s.mediaPath(req.File)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		clip, err := media.OpenWAVElement(path, req.Loop)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, os.ErrNotExist) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		element = clip
	case "pcm":
		clip, err := media.NewPCMElement(req.Data, req.SampleRate, req.Channels, req.Loop)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		element = clip
	case "microphone", "mic":
		cfg := media.DefaultMicrophoneConfig()
		cfg.DeviceName = req.Device
		if req.SampleRate > 0 {
			cfg.SampleRate = req.SampleRate
		}
		if req.Channels > 0 {
			cfg.Channels = req.Channels
		}
		element = s.newMicrophone(cfg)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source kind: " + req.Kind})
		return
	}

	if err := s.mixer.ConnectMediaElement(id, element); err != nil {
		s.fail(c, err)
		return
	}
	ch, _ := s.mixer.Channel(id)
	c.JSON(http.StatusOK, ch)
}

func (s *Server) DisconnectSource(c *gin.Context) {
	if err := s.mixer.DisconnectChannel(mixer.ChannelID(c.Param("id"))); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Ask forwards a prompt to the assistant
func (s *Server) Ask(c *gin.Context) {
	if s.assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant not configured"})
		return
	}
	var req assistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := s.assistant.Ask(c.Request.Context(), req.Prompt)
	if err != nil {
		s.logger.Warnw("assistant failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply, "state": s.mixer.Snapshot().View()})
}

// mediaPath resolves a request file name inside the media directory.
func (s *Server) mediaPath(file string) (string, error) {
	if file == "" {
		return "", errors.New("file is required for wav sources")
	}
	if !filepath.IsLocal(file) {
		return "", errors.New("file must be a relative path inside the media directory")
	}
	return filepath.Join(s.cfg.MediaDir, file), nil
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, mixer.ErrChannelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, mixer.ErrInvalidValue):
		status = http.StatusBadRequest
	case errors.Is(err, mixer.ErrSourceUnavailable):
		status = http.StatusConflict
	case errors.Is(err, mixer.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
