// Package mqtt 将混音器快照发布到 MQTT broker
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/logging"
)

// Publisher is the subset of an MQTT client the bridge needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
	Disconnect()
}

// Config holds the configuration for the MQTT client and bridge.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ClientID:       "orion-mixer",
		Topic:          "orion/mixer/state",
		QoS:            1,
		Retain:         true,
		ConnectTimeout: 30 * time.Second,
		PublishTimeout: 10 * time.Second,
	}
}

type pahoClient struct {
	cfg    Config
	client paho.Client
	logger *zap.SugaredLogger
}

// Connect dials the broker. The client reconnects on its own after the first connection.
func Connect(ctx context.Context, cfg Config) (Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	c := &pahoClient{cfg: cfg, logger: logging.Named("mqtt")}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(paho.Client) {
		c.logger.Infow("connected to broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warnw("connection to broker lost", "broker", cfg.Broker, "error", err)
	})
	c.client = paho.NewClient(opts)

	token := c.client.Connect()
	if err := wait(ctx, token, cfg.ConnectTimeout); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return c, nil
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if !c.client.IsConnected() {
		return errors.New("not connected to MQTT broker")
	}
	token := c.client.Publish(topic, qos, retain, payload)
	return wait(ctx, token, c.cfg.PublishTimeout)
}

func (c *pahoClient) Disconnect() {
	c.client.Disconnect(250)
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
