package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultPath = "config/mixer.json"

type AppConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Mixer   MixerConfig   `mapstructure:"mixer"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Agent   AgentConfig   `mapstructure:"agent"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MixerConfig struct {
	SampleRate   int     `mapstructure:"sample_rate"`
	MasterVolume float64 `mapstructure:"master_volume"`
}

type OutputConfig struct {
	Driver          string `mapstructure:"driver"`
	FramesPerBuffer int    `mapstructure:"frames_per_buffer"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	MediaDir        string        `mapstructure:"media_dir"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      byte   `mapstructure:"qos"`
	Retain   bool   `mapstructure:"retain"`
}

type AgentConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	MaxSteps int    `mapstructure:"max_steps"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Mixer: MixerConfig{
			SampleRate:   44100,
			MasterVolume: 1.0,
		},
		Output: OutputConfig{
			Driver:          "portaudio",
			FramesPerBuffer: 1024,
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8090",
			MediaDir:        "media",
			AllowOrigins:    []string{"*"},
			ShutdownTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		MQTT: MQTTConfig{
			ClientID: "orion-mixer",
			Topic:    "orion/mixer/state",
			QoS:      1,
			Retain:   true,
		},
		Agent: AgentConfig{
			BaseURL:  "https://open.bigmodel.cn/api/coding/paas/v4",
			Model:    "glm-4-flash",
			MaxSteps: 8,
		},
	}
}

// Load reads path (JSON, YAML or TOML by extension) over the defaults, then applies env
// overrides. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}

	if driver := strings.TrimSpace(os.Getenv("MIXER_OUTPUT")); driver != "" {
		c.Output.Driver = driver
	}
	if addr := strings.TrimSpace(os.Getenv("MIXER_ADDR")); addr != "" {
		c.Server.Addr = addr
	}

	if broker := strings.TrimSpace(os.Getenv("MQTT_BROKER")); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}

	if openai := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); openai != "" {
		c.Agent.APIKey = openai
	}
	if zhipu := strings.TrimSpace(os.Getenv("ZHIPU_API_KEY")); zhipu != "" {
		c.Agent.APIKey = zhipu
	}
}

func (c *AppConfig) Validate() error {
	if c.Mixer.SampleRate <= 0 {
		return errors.New("mixer.sample_rate must be positive")
	}
	if c.Mixer.MasterVolume < 0 || c.Mixer.MasterVolume > 1 {
		return fmt.Errorf("mixer.master_volume must be within [0,1], got %v", c.Mixer.MasterVolume)
	}

	switch strings.ToLower(strings.TrimSpace(c.Output.Driver)) {
	case "portaudio", "oto", "headless", "none":
	default:
		return fmt.Errorf("invalid output driver: %s", c.Output.Driver)
	}
	if c.Output.FramesPerBuffer <= 0 {
		return errors.New("output.frames_per_buffer must be positive")
	}

	if c.Server.Enabled && strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required when the server is enabled")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must be non-negative")
	}

	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			return errors.New("mqtt.broker is required when mqtt is enabled")
		}
		if strings.TrimSpace(c.MQTT.Topic) == "" {
			return errors.New("mqtt.topic is required when mqtt is enabled")
		}
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos: %d", c.MQTT.QoS)
	}

	if c.Agent.MaxSteps < 0 {
		return errors.New("agent.max_steps must be non-negative")
	}
	return nil
}

// ValidateKeys checks credentials for the optional components that need them.
func (c *AppConfig) ValidateKeys(requireAgent bool) error {
	if requireAgent && strings.TrimSpace(c.Agent.APIKey) == "" {
		return errors.New("agent api_key is required")
	}
	return nil
}
