package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"faceattend/internal/config"
	"faceattend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "faceattend",
	Short: "Face recognition attendance with blink liveness",
	Long: `faceattend registers people from a burst of face images, verifies kiosk
check-ins with a blink-based liveness test and records debounced
attendance punches.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (config.App, *zap.Logger, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
