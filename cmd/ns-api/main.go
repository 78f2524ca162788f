package main

import (
	"Go2NetProfile/internal/api"
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/engine/manager"
	"Go2NetProfile/internal/metrics"
	"Go2NetProfile/internal/observability"
	"Go2NetProfile/internal/query"
	"Go2NetProfile/internal/rpc"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "ns-api",
	Short:        "Serve campus user profiles over HTTP and gRPC.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		observability.InitializeLogger(cfg.Logger)
		defer observability.Sync()
		return serve(cmd.Context(), cfg, observability.GetLogger())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownMetrics, err := metrics.Init(ctx, cfg.Metrics, cfg.Logger.ServiceName, logger)
	if err != nil {
		logger.Warn("metrics disabled", zap.Error(err))
	}
	defer shutdownMetrics(context.Background())

	m, err := manager.NewManager(cfg, manager.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer m.Stop()

	if err := m.Start(ctx); err != nil {
		return err
	}
	if m.Current() == nil {
		if _, err := m.Run(ctx, ""); err != nil {
			logger.Warn("initial analysis failed, serving empty profiles until data is uploaded", zap.Error(err))
		}
	}

	querier, err := historyQuerier(cfg, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.API, m, querier, logger)
	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.ListenAddr, err)
		}
		grpcServer = grpc.NewServer()
		rpc.Register(grpcServer, rpc.NewService(m, logger))
		go func() {
			logger.Info("gRPC server starting", zap.String("addr", cfg.GRPC.ListenAddr))
			errCh <- grpcServer.Serve(lis)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return server.Shutdown(context.Background())
}

// historyQuerier returns a querier over the first enabled ClickHouse writer,
// or nil when none is configured.
func historyQuerier(cfg *config.Config, logger *zap.Logger) (query.Querier, error) {
	for _, def := range cfg.Writers {
		if def.Enabled && def.Type == "clickhouse" {
			logger.Info("found enabled ClickHouse writer, history endpoints enabled")
			q, err := query.NewClickHouseQuerier(def.ClickHouse)
			if err != nil {
				return nil, fmt.Errorf("failed to create querier: %w", err)
			}
			return q, nil
		}
	}
	return nil, nil
}
