// Package server 提供混音器的 HTTP 控制接口、WebSocket 状态推送和 /metrics
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
	"github.com/liuscraft/orion-mixer/internal/media"
	"github.com/liuscraft/orion-mixer/internal/mixer"
)

// Assistant answers natural-language mixer requests.
type Assistant interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Config 服务器配置
type Config struct {
	Addr            string
	MediaDir        string   // wav 源文件只能从该目录加载
	AllowOrigins    []string // "*" 表示允许所有来源
	ShutdownTimeout time.Duration
	Debug           bool
}

func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8090",
		MediaDir:        "media",
		AllowOrigins:    []string{"*"},
		ShutdownTimeout: 5 * time.Second,
	}
}

type Option func(*Server)

// WithAssistant enables POST /api/v1/assistant.
func WithAssistant(a Assistant) Option {
	return func(s *Server) {
		s.assistant = a
	}
}

// WithMetrics exposes the gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMicrophone replaces how microphone sources are created.
func WithMicrophone(open func(media.MicrophoneConfig) mixer.MediaElement) Option {
	return func(s *Server) {
		s.newMicrophone = open
	}
}

type Server struct {
	cfg           *Config
	mixer         mixer.Mixer
	newMicrophone func(media.MicrophoneConfig) mixer.MediaElement
	assistant     Assistant
	gatherer      prometheus.Gatherer
	hub           *hub
	router        *gin.Engine
	http          *http.Server
	logger        *zap.SugaredLogger
}

func New(cfg *Config, m mixer.Mixer, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		mixer:  m,
		router: gin.New(),
		logger: logging.Named("server"),
	}
	s.newMicrophone = func(mc media.MicrophoneConfig) mixer.MediaElement {
		return media.NewMicrophoneElement(mc)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(m, s.checkOrigin, s.logger)

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	corsConfig := cors.DefaultConfig()
	if s.allowAll() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.AllowOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}

	s.router.Use(gin.Recovery(), s.requestLogger(), cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "orion-mixer"})
	})
	s.router.GET("/ws", s.hub.serve)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/mixer", s.GetMixer)
		v1.PUT("/mixer/master", s.UpdateMaster)

		v1.GET("/channels", s.ListChannels)
		v1.POST("/channels", s.CreateChannel)
		v1.GET("/channels/:id", s.GetChannel)
		v1.PATCH("/channels/:id", s.UpdateChannel)
		v1.DELETE("/channels/:id", s.RemoveChannel)
		v1.PUT("/channels/:id/source", s.ConnectSource)
		v1.DELETE("/channels/:id/source", s.DisconnectSource)

		v1.POST("/assistant", s.Ask)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugw("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (s *Server) allowAll() bool {
	return len(s.cfg.AllowOrigins) == 0 || slices.Contains(s.cfg.AllowOrigins, "*")
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowAll() || slices.Contains(s.cfg.AllowOrigins, origin)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infow("http server listening", "addr", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes websocket clients and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	s.hub.close()
	return s.http.Shutdown(ctx)
}
