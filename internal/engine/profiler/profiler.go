// Package profiler runs feature extraction and tagging for every user of a
// record table.
package profiler

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/engine/feature"
	"Go2NetProfile/internal/engine/tagging"
	"Go2NetProfile/internal/model"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Profiler builds Profile Maps. It keeps no state between calls.
type Profiler struct {
	extractor *feature.Extractor
	engine    *tagging.Engine
	workers   int
	logger    *zap.Logger
}

// New creates a Profiler. workers <= 0 uses one worker per CPU.
func New(extractor *feature.Extractor, engine *tagging.Engine, workers int, logger *zap.Logger) *Profiler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{
		extractor: extractor,
		engine:    engine,
		workers:   workers,
		logger:    logger.Named("profiler"),
	}
}

// NewDefault creates a Profiler with the built-in tables.
func NewDefault() *Profiler {
	return New(feature.NewExtractor(), tagging.NewDefault(), 0, nil)
}

// FromConfig builds the extractor and rule engine described by cfg.
func FromConfig(cfg config.EngineConfig, logger *zap.Logger) (*Profiler, error) {
	opts := []feature.Option{
		feature.WithWatchedPorts(cfg.WatchedPorts),
		feature.WithDNSPort(cfg.DNSPort),
	}
	if len(cfg.Categories) > 0 {
		synonyms := make(feature.Synonyms, 0, len(cfg.Categories))
		for _, c := range cfg.Categories {
			synonyms = append(synonyms, feature.CategoryGroup{Name: c.Name, Keywords: c.Keywords})
		}
		opts = append(opts, feature.WithSynonyms(synonyms))
	}
	if len(cfg.Blacklist) > 0 {
		bl, err := feature.NewBlacklist(cfg.Blacklist)
		if err != nil {
			return nil, fmt.Errorf("failed to parse blacklist: %w", err)
		}
		opts = append(opts, feature.WithBlacklist(bl))
	}

	engine, err := tagging.FromConfig(cfg.Tagging, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build tagging rules: %w", err)
	}
	return New(feature.NewExtractor(opts...), engine, cfg.NumWorkers, logger), nil
}

// Engine returns the rule engine in use.
func (p *Profiler) Engine() *tagging.Engine {
	return p.engine
}

// Profile computes the profile of one user. A user absent from the table
// gets an empty bundle and no tags.
func (p *Profiler) Profile(table *model.RecordTable, user string) model.UserProfile {
	bundle := p.extractor.ExtractUser(table, user)
	return model.UserProfile{
		Tags:          p.engine.Classify(user, bundle),
		FeatureBundle: bundle,
	}
}

// AnalyzeAll profiles every distinct user of the table. Users are processed
// on a bounded pool of workers; the returned map is new on every call.
func (p *Profiler) AnalyzeAll(table *model.RecordTable) model.ProfileMap {
	start := time.Now()
	users := table.Users()
	profiles := make(model.ProfileMap, len(users))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, user := range users {
		g.Go(func() error {
			profile := p.Profile(table, user)
			mu.Lock()
			profiles[user] = profile
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("profiled users",
		zap.Int("users", len(profiles)),
		zap.Int("records", table.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return profiles
}
