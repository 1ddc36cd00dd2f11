package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liuscraft/orion-mixer/internal/config"
	"github.com/liuscraft/orion-mixer/internal/logging"
)

type options struct {
	configPath string
	cfg        *config.AppConfig
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootCommand 创建根命令：加载配置并初始化日志后执行子命令
func rootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "mixerd",
		Short:         "Orion desktop audio mixer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "配置文件路径（json/yaml/toml）")

	devicesCmd := devicesCommand()
	rootCmd.AddCommand(
		serveCommand(opts),
		demoCommand(opts),
		devicesCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		opts.cfg = cfg

		if err := logging.Init(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		}); err != nil {
			return err
		}
		logging.SetInstanceID(logging.NewInstanceID())
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		logging.Sync()
	}

	return rootCmd
}
