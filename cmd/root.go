package cmd

import (
	"fmt"
	"os"

	"RapLab/config"
	"RapLab/logger"
	"RapLab/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "raplab",
	Short: "RapLab generates rap tracks in the style of classic artists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// loadConfig 加载配置并初始化日志
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	return cfg
}

func runServer() error {
	cfg := loadConfig()
	defer logger.Sync()
	logger.Info("Starting RapLab server...")
	return server.Start(cfg)
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
