package main

import (
	"Go2NetProfile/internal/observability"
	"Go2NetProfile/internal/probe"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log run and security events published by the profiling server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		sub, err := probe.NewSubscriber(cfg.Probe, logger)
		if err != nil {
			return err
		}
		defer sub.Close()

		err = sub.Start(probe.Handlers{
			OnRun: func(e probe.RunEvent) {
				logger.Info("run completed",
					zap.String("run_id", e.RunID),
					zap.Time("generated_at", e.GeneratedAt),
					zap.String("source", e.Source),
					zap.Int("records", e.Records),
					zap.Int("users", e.Users),
					zap.Int64("total_bytes", e.TotalBytes),
					zap.Any("tag_counts", e.TagCounts))
			},
			OnSecurity: func(e probe.SecurityEvent) {
				logger.Warn("security tags raised",
					zap.String("run_id", e.RunID),
					zap.String("user", e.User),
					zap.Strings("tags", e.Tags),
					zap.Int("dns_queries", e.DNSQueries),
					zap.Int("distinct_ports", e.DistinctPorts),
					zap.Int("blacklist_hits", e.BlacklistHits))
			},
		})
		if err != nil {
			return err
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-cmd.Context().Done():
		}
		logger.Info("watch stopped")
		return nil
	},
}
