package main

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/engine/manager"
	"Go2NetProfile/internal/metrics"
	"Go2NetProfile/internal/observability"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	once    bool
)

// rootCmd runs the analysis pipeline headless: on the configured schedule,
// on data file changes, or a single time with --once.
var rootCmd = &cobra.Command{
	Use:          "ns-engine",
	Short:        "Run scheduled profiling without serving the API.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		observability.InitializeLogger(cfg.Logger)
		defer observability.Sync()
		logger := observability.GetLogger()
		logger.Info("Starting ns-engine...")

		shutdownMetrics, err := metrics.Init(cmd.Context(), cfg.Metrics, cfg.Logger.ServiceName, logger)
		if err != nil {
			logger.Warn("metrics disabled", zap.Error(err))
		}
		defer shutdownMetrics(context.Background())

		m, err := manager.NewManager(cfg, manager.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create manager: %w", err)
		}
		defer m.Stop()

		if once {
			_, err := m.Run(cmd.Context(), "")
			return err
		}

		if err := m.Start(cmd.Context()); err != nil {
			return err
		}
		if cfg.Schedule.Cron == "" && !cfg.Schedule.WatchDataFile {
			logger.Warn("neither schedule.cron nor schedule.watch_data_file is set, nothing will trigger runs")
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutdown signal received, stopping engine...")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "config file")
	rootCmd.Flags().BoolVar(&once, "once", false, "run the analysis once and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
