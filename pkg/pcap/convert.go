// Package pcap turns packet captures into flow records.
package pcap

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/engine/protocol"
	"Go2NetProfile/internal/model"
	"sort"
	"time"

	"go.uber.org/zap"
)

// DefaultWindow is the flow folding window.
const DefaultWindow = time.Minute

// Options control how packets are folded into records.
type Options struct {
	// Users maps an IP address to a user identity. Unmapped sources use
	// their IP address as the identity.
	Users map[string]string
	// PortCategories overrides protocol.DefaultPortCategories.
	PortCategories map[int]string
	Window         time.Duration
	Logger         *zap.Logger
}

// OptionsFromConfig builds Options from the pcap config section.
func OptionsFromConfig(cfg config.PcapConfig, logger *zap.Logger) Options {
	return Options{
		Users:          cfg.Users,
		PortCategories: cfg.PortCategories,
		Window:         config.Duration(cfg.Window),
		Logger:         logger,
	}
}

// Stats describes a finished conversion.
type Stats struct {
	Packets int
	Skipped int
	Records int
}

type flowKey struct {
	tuple  protocol.FiveTuple
	window int64
}

// Convert reads the capture at path and folds its packets into one flow
// record per five-tuple and time window. Records are ordered by window,
// then by first packet.
func Convert(path string, opts Options) ([]model.FlowRecord, Stats, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	reader, err := NewReader(path, opts.Logger)
	if err != nil {
		return nil, Stats{}, err
	}
	defer reader.Close()

	packets := make(chan *protocol.PacketInfo, 256)
	errCh := make(chan error, 1)
	go func() {
		errCh <- reader.ReadPackets(packets)
	}()

	records, stats := fold(packets, opts)
	if err := <-errCh; err != nil {
		return nil, stats, err
	}
	stats.Skipped = reader.Skipped()
	opts.Logger.Info("pcap converted",
		zap.String("path", path),
		zap.Int("packets", stats.Packets),
		zap.Int("skipped", stats.Skipped),
		zap.Int("records", stats.Records))
	return records, stats, nil
}

// fold drains packets and aggregates them by flow key.
func fold(packets <-chan *protocol.PacketInfo, opts Options) ([]model.FlowRecord, Stats) {
	categorizer := protocol.NewCategorizer(opts.PortCategories)
	index := make(map[flowKey]int)
	var records []model.FlowRecord
	var stats Stats

	for p := range packets {
		stats.Packets++
		start := p.Timestamp.UTC().Truncate(opts.Window)
		key := flowKey{tuple: p.FiveTuple, window: start.UnixNano()}
		if i, ok := index[key]; ok {
			records[i].Bytes += int64(p.Length)
			continue
		}

		user, ok := opts.Users[p.FiveTuple.SrcIP]
		if !ok {
			user = p.FiveTuple.SrcIP
		}
		index[key] = len(records)
		records = append(records, model.FlowRecord{
			Timestamp:   start,
			SrcIP:       p.FiveTuple.SrcIP,
			DstIP:       p.FiveTuple.DstIP,
			SrcPort:     int(p.FiveTuple.SrcPort),
			DstPort:     int(p.FiveTuple.DstPort),
			Protocol:    p.FiveTuple.Protocol,
			Bytes:       int64(p.Length),
			AppCategory: categorizer.Category(p.FiveTuple),
			User:        user,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	stats.Records = len(records)
	return records, stats
}
