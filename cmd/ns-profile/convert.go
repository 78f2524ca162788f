package main

import (
	"Go2NetProfile/internal/loader"
	"Go2NetProfile/internal/observability"
	"Go2NetProfile/pkg/pcap"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var convertOpts struct {
	input  string
	output string
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a pcap capture into a flow record CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if convertOpts.input == "" {
			return errors.New("--input is required")
		}
		logger := observability.GetLogger()
		records, stats, err := pcap.Convert(convertOpts.input, pcap.OptionsFromConfig(cfg.Pcap, logger))
		if err != nil {
			return err
		}

		if convertOpts.output == "" {
			return loader.WriteCSV(cmd.OutOrStdout(), records)
		}
		f, err := os.Create(convertOpts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if err := loader.WriteCSV(f, records); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close output file: %w", err)
		}
		logger.Info("flow records written",
			zap.String("path", convertOpts.output),
			zap.Int("packets", stats.Packets),
			zap.Int("records", stats.Records))
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertOpts.input, "input", "i", "", "pcap capture to convert")
	convertCmd.Flags().StringVarP(&convertOpts.output, "output", "o", "", "CSV file to write (stdout when empty)")
}
