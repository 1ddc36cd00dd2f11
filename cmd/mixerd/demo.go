package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liuscraft/orion-mixer/internal/device"
	"github.com/liuscraft/orion-mixer/internal/logging"
	"github.com/liuscraft/orion-mixer/internal/media"
	"github.com/liuscraft/orion-mixer/internal/mixer"
)

// demoCommand 混音演示：音乐通道 + 语音通道，语音播放时压低音乐（ducking）
func demoCommand(opts *options) *cobra.Command {
	var (
		output   string
		wavFile  string
		step     time.Duration
		duckGain float64
		mic      bool
		micName  string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "播放测试音并演示通道音量、声像和静音",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if output != "" {
				cfg.Output.Driver = output
			}

			m := mixer.NewMixer(&mixer.Config{
				SampleRate:   cfg.Mixer.SampleRate,
				MasterVolume: cfg.Mixer.MasterVolume,
			})
			defer m.Close()

			unsubscribe := m.Subscribe(printState)
			defer unsubscribe()

			out, err := device.New(&device.Config{
				Driver:          cfg.Output.Driver,
				SampleRate:      cfg.Mixer.SampleRate,
				FramesPerBuffer: cfg.Output.FramesPerBuffer,
			}, m.Output())
			if err != nil {
				return err
			}
			if err := out.Start(); err != nil {
				return err
			}
			defer out.Stop()

			fmt.Println("=== Orion Mixer 演示 ===")
			fmt.Printf("输出: %s, 采样率: %d Hz\n\n", out.Name(), cfg.Mixer.SampleRate)

			var musicSource mixer.MediaElement = media.NewToneElement(220, 0.4)
			if wavFile != "" {
				clip, err := media.OpenWAVElement(wavFile, true)
				if err != nil {
					return err
				}
				musicSource = clip
			}

			music := m.CreateChannel("player", mixer.WithName("music"))
			voice := m.CreateChannel("assistant", mixer.WithName("voice"))

			if mic {
				micCfg := media.DefaultMicrophoneConfig()
				micCfg.DeviceName = micName
				micCh := m.CreateChannel("microphone", mixer.WithName("mic"), mixer.WithVolume(0.8))
				if err := m.ConnectMediaElement(micCh, media.NewMicrophoneElement(micCfg)); err != nil {
					logging.Warnf("microphone unavailable, continuing without it: %v", err)
					m.RemoveChannel(micCh)
				} else {
					defer m.RemoveChannel(micCh)
				}
			}

			steps := []struct {
				title string
				run   func() error
			}{
				{"1. 连接音乐", func() error { return m.ConnectMediaElement(music, musicSource) }},
				{"2. 音乐左移", func() error { return m.SetChannelPan(music, -0.6) }},
				{"3. 语音开始，压低音乐", func() error {
					if err := m.SetChannelVolume(music, duckGain); err != nil {
						return err
					}
					return m.ConnectMediaElement(voice, media.NewToneElement(660, 0.5))
				}},
				{"4. 语音结束，恢复音乐", func() error {
					if err := m.DisconnectChannel(voice); err != nil {
						return err
					}
					return m.SetChannelVolume(music, 1)
				}},
				{"5. 主静音", func() error { m.SetMasterMuted(true); return nil }},
				{"6. 取消主静音，主音量 50%", func() error {
					m.SetMasterMuted(false)
					return m.SetMasterVolume(0.5)
				}},
				{"7. 移除通道", func() error {
					m.RemoveChannel(voice)
					m.RemoveChannel(music)
					return nil
				}},
			}

			for _, s := range steps {
				fmt.Println(s.title)
				if err := s.run(); err != nil {
					return err
				}
				time.Sleep(step)
			}

			if h, ok := out.(*device.Headless); ok {
				logging.Infof("headless output rendered %d frames, peak %.3f", h.Frames(), h.Peak())
			}
			fmt.Println("演示完成")
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "输出驱动: portaudio | oto | headless | none")
	cmd.Flags().StringVar(&wavFile, "wav", "", "用 WAV 文件代替音乐测试音")
	cmd.Flags().DurationVar(&step, "step", 1500*time.Millisecond, "每一步的持续时间")
	cmd.Flags().Float64Var(&duckGain, "duck", 0.15, "语音播放时的音乐音量")
	cmd.Flags().BoolVar(&mic, "mic", false, "把麦克风接入 mic 通道一起混音")
	cmd.Flags().StringVar(&micName, "mic-device", "", "麦克风设备名称（部分匹配），默认使用系统默认输入")
	return cmd
}

func printState(s mixer.State) {
	master := fmt.Sprintf("%.0f%%", s.MasterVolume*100)
	if s.MasterMuted {
		master += " (muted)"
	}
	fmt.Printf("   master=%s\n", master)
	for _, ch := range s.List() {
		fmt.Printf("   - %-8s vol=%.2f pan=%+.2f muted=%-5v gain=%.3f\n",
			ch.Name, ch.Volume, ch.Pan, ch.Muted, mixer.EffectiveGain(s.MasterVolume, s.MasterMuted, ch))
	}
}
