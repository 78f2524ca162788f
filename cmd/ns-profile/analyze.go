package main

import (
	"Go2NetProfile/internal/codec"
	"Go2NetProfile/internal/engine/manager"
	"Go2NetProfile/internal/engine/profiler"
	"Go2NetProfile/internal/loader"
	"Go2NetProfile/internal/model"
	"Go2NetProfile/internal/observability"
	"Go2NetProfile/pkg/pcap"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeOpts struct {
	input   string
	pcap    string
	output  string
	persist bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Profile every user of a flow log and print the profiles as JSON.",
	Long: `Loads a flow record CSV (or a pcap capture with --pcap), extracts the
features of every user, applies the tag rules and writes the profile map.
With --persist the run goes through the configured writers, alerter and
event publisher as the server would.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		input := analyzeOpts.input
		if input == "" {
			input = cfg.Loader.DataFile
		}

		var profiles model.ProfileMap
		var err error
		switch {
		case analyzeOpts.persist:
			profiles, err = analyzePersisted(cmd, input, logger)
		case analyzeOpts.pcap != "":
			profiles, err = analyzePcap(logger)
		default:
			profiles, err = analyzeCSV(input, logger)
		}
		if err != nil {
			return err
		}
		return writeProfiles(cmd.OutOrStdout(), analyzeOpts.output, profiles)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeOpts.input, "input", "i", "", "flow record CSV (defaults to loader.data_file)")
	f.StringVar(&analyzeOpts.pcap, "pcap", "", "read packets from a pcap capture instead of a CSV")
	f.StringVarP(&analyzeOpts.output, "output", "o", "", "write profiles to this file instead of stdout")
	f.BoolVar(&analyzeOpts.persist, "persist", false, "run through the configured writers, alerter and publisher")
}

func analyzeCSV(input string, logger *zap.Logger) (model.ProfileMap, error) {
	loc, err := time.LoadLocation(cfg.Loader.TimeZone)
	if err != nil {
		return nil, err
	}
	table, stats, err := loader.Load(input, loader.Options{
		Location:        loc,
		SkipInvalidRows: cfg.Loader.SkipInvalidRows,
		Logger:          logger,
	})
	if errors.Is(err, loader.ErrEmptyInput) {
		logger.Warn("record source is empty", zap.String("input", input))
	} else if err != nil {
		return nil, err
	}
	logger.Info("records loaded", zap.Int("loaded", stats.Loaded), zap.Int("skipped", stats.Skipped))
	return profile(table, logger)
}

func analyzePcap(logger *zap.Logger) (model.ProfileMap, error) {
	records, _, err := pcap.Convert(analyzeOpts.pcap, pcap.OptionsFromConfig(cfg.Pcap, logger))
	if err != nil {
		return nil, err
	}
	return profile(model.NewRecordTable(records), logger)
}

func profile(table *model.RecordTable, logger *zap.Logger) (model.ProfileMap, error) {
	p, err := profiler.FromConfig(cfg.Engine, logger)
	if err != nil {
		return nil, err
	}
	return p.AnalyzeAll(table), nil
}

// analyzePersisted runs the full pipeline once. A pcap capture is converted
// to a temporary CSV first.
func analyzePersisted(cmd *cobra.Command, input string, logger *zap.Logger) (model.ProfileMap, error) {
	if analyzeOpts.pcap != "" {
		records, _, err := pcap.Convert(analyzeOpts.pcap, pcap.OptionsFromConfig(cfg.Pcap, logger))
		if err != nil {
			return nil, err
		}
		tmp, err := os.CreateTemp("", "ns-profile-*.csv")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary csv: %w", err)
		}
		defer os.Remove(tmp.Name())
		if err := loader.WriteCSV(tmp, records); err != nil {
			tmp.Close()
			return nil, err
		}
		if err := tmp.Close(); err != nil {
			return nil, fmt.Errorf("failed to write temporary csv: %w", err)
		}
		input = tmp.Name()
	}

	m, err := manager.NewManager(cfg, manager.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer m.Stop()

	snapshot, err := m.Run(cmd.Context(), input)
	if err != nil {
		return nil, err
	}
	return snapshot.Profiles, nil
}

func writeProfiles(stdout io.Writer, path string, profiles model.ProfileMap) error {
	if path == "" {
		return codec.WriteProfiles(stdout, profiles)
	}
	var buf bytes.Buffer
	if err := codec.WriteProfiles(&buf, profiles); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	observability.GetLogger().Info("profiles written", zap.String("path", path), zap.Int("users", len(profiles)))
	return nil
}
