package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/liuscraft/orion-mixer/internal/agent"
	"github.com/liuscraft/orion-mixer/internal/config"
	"github.com/liuscraft/orion-mixer/internal/device"
	"github.com/liuscraft/orion-mixer/internal/logging"
	"github.com/liuscraft/orion-mixer/internal/mixer"
	"github.com/liuscraft/orion-mixer/internal/mqtt"
	"github.com/liuscraft/orion-mixer/internal/server"
)

func serveCommand(opts *options) *cobra.Command {
	var output, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "运行混音器、音频输出和控制接口",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if output != "" {
				cfg.Output.Driver = output
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ValidateKeys(cfg.Agent.Enabled); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "输出驱动: portaudio | oto | headless | none")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP 监听地址")
	return cmd
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mixerCfg := &mixer.Config{
		SampleRate:   cfg.Mixer.SampleRate,
		MasterVolume: cfg.Mixer.MasterVolume,
	}
	if cfg.Metrics.Enabled {
		metrics, err := mixer.NewMetrics(registry)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		mixerCfg.Metrics = metrics
	}
	m := mixer.NewMixer(mixerCfg)
	defer func() {
		if err := m.Close(); err != nil {
			logging.Warnf("close mixer: %v", err)
		}
	}()

	out, err := device.New(&device.Config{
		Driver:          cfg.Output.Driver,
		SampleRate:      cfg.Mixer.SampleRate,
		FramesPerBuffer: cfg.Output.FramesPerBuffer,
	}, m.Output())
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	if err := out.Start(); err != nil {
		return fmt.Errorf("start output %s: %w", out.Name(), err)
	}
	defer func() {
		if err := out.Stop(); err != nil {
			logging.Warnf("stop output: %v", err)
		}
	}()
	logging.Infof("audio output started: %s @ %d Hz", out.Name(), cfg.Mixer.SampleRate)

	if cfg.MQTT.Enabled {
		mqttCfg := mqtt.DefaultConfig()
		mqttCfg.Broker = cfg.MQTT.Broker
		mqttCfg.ClientID = cfg.MQTT.ClientID
		mqttCfg.Username = cfg.MQTT.Username
		mqttCfg.Password = cfg.MQTT.Password
		mqttCfg.Topic = cfg.MQTT.Topic
		mqttCfg.QoS = cfg.MQTT.QoS
		mqttCfg.Retain = cfg.MQTT.Retain

		pub, err := mqtt.Connect(ctx, mqttCfg)
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		defer pub.Disconnect()

		bridge := mqtt.NewBridge(mqttCfg, m, pub)
		bridge.Start(ctx)
		defer bridge.Stop()
	}

	if !cfg.Server.Enabled {
		logging.Infof("http server disabled, mixing until interrupted")
		<-ctx.Done()
		return nil
	}

	var serverOpts []server.Option
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, server.WithMetrics(registry))
	}
	if cfg.Agent.Enabled {
		assistant, err := agent.New(ctx, agent.Config{
			APIKey:   cfg.Agent.APIKey,
			BaseURL:  cfg.Agent.BaseURL,
			Model:    cfg.Agent.Model,
			MaxSteps: cfg.Agent.MaxSteps,
		}, m)
		if err != nil {
			return fmt.Errorf("create assistant: %w", err)
		}
		serverOpts = append(serverOpts, server.WithAssistant(assistant))
	}

	srv := server.New(&server.Config{
		Addr:            cfg.Server.Addr,
		MediaDir:        cfg.Server.MediaDir,
		AllowOrigins:    cfg.Server.AllowOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Debug:           logging.DebugEnabled(),
	}, m, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Infof("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return <-errCh
}
