package main

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/observability"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "ns-profile",
	Short:         "Build behavioral user profiles from campus flow logs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			cfg = config.Default()
		} else {
			loaded, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		// stdout carries command output, so logs go to stderr.
		observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (defaults apply when empty)")
	rootCmd.AddCommand(analyzeCmd, convertCmd, watchCmd)
}

func main() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		observability.GetLogger().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
