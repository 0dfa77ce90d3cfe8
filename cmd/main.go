package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/api/rest"
	"github.com/thornvale/offline-engine/internal/config"
	"github.com/thornvale/offline-engine/internal/engine"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "offline-engine",
		Short: "Thornvale offline persistence and background sync engine",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the offline engine",
		RunE:  runStart,
	}

	startCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: configs/config.yaml)")
	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	// Set up logger
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	logger.Info("Starting offline engine", zap.String("addr", cfg.REST.Addr))

	eng := engine.New(cfg, logger)
	return eng.Run(context.Background(), func(e *engine.Engine) error {
		return rest.New(e, logger).Start(cfg.REST.Addr)
	})
}
