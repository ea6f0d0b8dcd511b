package commands

import (
	"fmt"
	"os"

	"undrgen/pkg/app"
	"undrgen/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	UNDR *app.App
)

var rootCmd = &cobra.Command{
	Use:           "undr",
	Short:         "UNDR: convert event-camera recordings into hashed, compressed datasets",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init 只写文件，不需要数据库和日志
		if cmd.Name() == "init" {
			return nil
		}
		// 测试里可能已经注入了 App
		if UNDR != nil {
			return nil
		}

		var err error
		UNDR, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize undr: %w", err)
		}
		if used := config.ConfigFileUsed(); used != "" {
			UNDR.Logger.Debug("using config file", "path", used)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if UNDR == nil {
			return nil
		}
		err := UNDR.Close()
		UNDR = nil
		return err
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.undr/config.yaml or $HOME/.undr/config.yaml)")

	// 用户既可以在 yaml 里写，也可以用命令行覆盖
	flags.Int("workers", 0, "number of concurrent conversions (default: number of CPUs)")
	flags.String("codec", "", "compression codec for new files (zstd or lz4)")
	flags.String("storage-path", "", "directory of the disk mirror used by push")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")
	flags.Bool("no-journal", false, "do not record conversions in the journal")

	bindings := map[string]string{
		"workers":           "workers",
		"compression.codec": "codec",
		"storage.path":      "storage-path",
		"log.level":         "log-level",
		"log.format":        "log-format",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
	if noJournal, _ := rootCmd.PersistentFlags().GetBool("no-journal"); noJournal {
		viper.Set("journal.enabled", false)
	}
}
