package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liuscraft/orion-mixer/internal/device"
)

func devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "列出 PortAudio 音频设备",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := device.ListDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("没有找到音频设备")
				return nil
			}
			for _, d := range devices {
				marker := " "
				switch {
				case d.DefaultOutput:
					marker = ">"
				case d.DefaultInput:
					marker = "<"
				}
				fmt.Printf("%s [%d] %s [%s] (in=%d, out=%d, %.0f Hz)\n",
					marker, d.Index, d.Name, d.HostAPI, d.MaxInputs, d.MaxOutputs, d.SampleRate)
			}
			return nil
		},
	}
}
