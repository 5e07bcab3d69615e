package cmd

import (
	"fmt"
	"os"

	"soundwaves/config"
	"soundwaves/logger"
	"soundwaves/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "soundwaves",
	Short: "Soundwaves is a personal music player backend.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(config.Load())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		return server.Start()
	},
}

func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
