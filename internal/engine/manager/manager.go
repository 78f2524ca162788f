package manager

import (
	"Go2NetProfile/internal/alerter"
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/engine/overview"
	"Go2NetProfile/internal/engine/profiler"
	"Go2NetProfile/internal/engine/tagging"
	"Go2NetProfile/internal/factory"
	"Go2NetProfile/internal/loader"
	"Go2NetProfile/internal/metrics"
	"Go2NetProfile/internal/model"
	"Go2NetProfile/internal/notification"
	"Go2NetProfile/internal/probe"
	_ "Go2NetProfile/internal/writer/boltstore"  // Registers the bolt writer
	_ "Go2NetProfile/internal/writer/clickhouse" // Registers the clickhouse writer
	_ "Go2NetProfile/internal/writer/jsonfile"   // Registers the json writer
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager owns the analysis pipeline and the current snapshot. Runs are
// serialized; readers get the last complete snapshot without locking.
type Manager struct {
	cfg          *config.Config
	loaderOpts   loader.Options
	profiler     *profiler.Profiler
	overviewOpts overview.Options
	writers      []model.Writer
	alerter      *alerter.Alerter
	publisher    model.Publisher
	notifier     model.Notifier
	recorder     *metrics.Recorder

	customWriters   bool
	customPublisher bool
	logger          *zap.Logger
	now             func() time.Time

	current  atomic.Pointer[model.Snapshot]
	runMu    sync.Mutex
	uploadMu sync.Mutex
	lastData os.FileInfo // data file state at the last successful load; guarded by runMu

	cron     *cron.Cron
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option customizes a Manager.
type Option func(*Manager)

// WithWriters replaces the writers built from the config.
func WithWriters(writers ...model.Writer) Option {
	return func(m *Manager) {
		m.writers = writers
		m.customWriters = true
	}
}

// WithNotifier replaces the SMTP notifier used when alerting is enabled.
func WithNotifier(n model.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithPublisher replaces the NATS publisher.
func WithPublisher(p model.Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
		m.customPublisher = true
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l.Named("manager") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a new Manager. Writers, alerter and publisher come from
// the config unless supplied through options.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	loc, err := time.LoadLocation(cfg.Loader.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone: %w", err)
	}

	m := &Manager{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.loaderOpts = loader.Options{Location: loc, SkipInvalidRows: cfg.Loader.SkipInvalidRows, Logger: m.logger}
	m.overviewOpts = overview.Options{
		TopUsers:   cfg.Overview.TopUsers,
		NumWorkers: cfg.Overview.NumWorkers,
		NumShards:  cfg.Overview.NumShards,
		Logger:     m.logger,
	}
	if m.profiler, err = profiler.FromConfig(cfg.Engine, m.logger); err != nil {
		return nil, err
	}

	if !m.customWriters {
		if m.writers, err = factory.Create(cfg, m.logger); err != nil {
			return nil, err
		}
	}

	if cfg.Alerter.Enabled {
		if m.notifier == nil && cfg.SMTP.Host != "" {
			m.notifier = notification.NewEmailNotifier(cfg.SMTP)
		}
		if m.notifier == nil {
			m.logger.Warn("alerter is enabled in config, but no notifiers are configured")
		}
		m.alerter = alerter.NewAlerter(cfg.Alerter, m.notifier, m.logger)
		m.logger.Info("alerter enabled and initialized", zap.Int("rules", len(cfg.Alerter.Rules)))
	}

	if !m.customPublisher && cfg.Probe.Enabled {
		pub, err := probe.NewPublisher(cfg.Probe, m.profiler.Engine().TagsOfKind(tagging.KindSecurity), m.logger)
		if err != nil {
			return nil, err
		}
		m.publisher = pub
	}

	if m.recorder == nil {
		m.recorder = metrics.Global()
	}
	return m, nil
}

// Current returns the last complete snapshot, or nil before the first run.
func (m *Manager) Current() *model.Snapshot {
	return m.current.Load()
}

// DataFile is the configured record source.
func (m *Manager) DataFile() string {
	return m.cfg.Loader.DataFile
}

// Writers returns the active writers.
func (m *Manager) Writers() []model.Writer {
	return m.writers
}

// Run loads source (the configured data file when empty), computes a new
// snapshot and makes it current. If loading fails the current snapshot is
// left unchanged and the load error is returned. Writer, alerter and
// publisher failures are logged and do not prevent the swap.
func (m *Manager) Run(ctx context.Context, source string) (*model.Snapshot, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if source == "" {
		source = m.cfg.Loader.DataFile
	}
	start := time.Now()
	log := m.logger.With(zap.String("source", source))

	var dataStat os.FileInfo
	if filepath.Clean(source) == filepath.Clean(m.cfg.Loader.DataFile) {
		dataStat, _ = os.Stat(source)
	}

	table, stats, err := loader.Load(source, m.loaderOpts)
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, loader.ErrEmptyInput):
		log.Warn("record source is empty, producing empty profiles")
		outcome = metrics.OutcomeEmpty
	case err != nil:
		log.Error("analysis run failed, keeping previous profiles", zap.Error(err))
		m.recorder.RecordRun(ctx, metrics.OutcomeFailed, time.Since(start), 0, 0, nil)
		return nil, err
	}
	if dataStat != nil {
		m.lastData = dataStat
	}
	if stats.Skipped > 0 {
		log.Warn("skipped invalid rows", zap.Int("skipped", stats.Skipped), zap.Int("rows", stats.Rows))
	}

	var ov model.Overview
	var profiles model.ProfileMap
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		ov = overview.Build(table, m.overviewOpts)
		return nil
	})
	g.Go(func() error {
		profiles = m.profiler.AnalyzeAll(table)
		return nil
	})
	_ = g.Wait()

	snapshot := &model.Snapshot{
		RunID:       uuid.NewString(),
		GeneratedAt: m.now().UTC(),
		Source:      source,
		RecordCount: table.Len(),
		Overview:    ov,
		Profiles:    profiles,
	}

	if err := m.persist(ctx, snapshot); err != nil {
		log.Error("failed to persist snapshot", zap.Error(err))
	}
	if m.alerter != nil {
		if _, err := m.alerter.Notify(snapshot); err != nil {
			log.Error("alerting failed", zap.Error(err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.PublishSnapshot(snapshot); err != nil {
			log.Error("failed to publish run events", zap.Error(err))
		}
	}

	m.current.Store(snapshot)

	tagCounts := make(map[string]int)
	for tag, users := range profiles.TagIndex() {
		tagCounts[tag] = len(users)
	}
	m.recorder.RecordRun(ctx, outcome, time.Since(start), table.Len(), len(profiles), tagCounts)
	log.Info("analysis run completed",
		zap.String("run_id", snapshot.RunID),
		zap.Int("records", table.Len()),
		zap.Int("users", len(profiles)),
		zap.Duration("elapsed", time.Since(start)))
	return snapshot, nil
}

// persist hands the snapshot to every writer concurrently and joins their
// errors.
func (m *Manager) persist(ctx context.Context, snapshot *model.Snapshot) error {
	var mu sync.Mutex
	var errs []error
	var g errgroup.Group
	for _, w := range m.writers {
		g.Go(func() error {
			if err := w.Write(ctx, snapshot); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("writer %s: %w", w.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Restore makes the latest persisted snapshot current when no run has
// happened yet. The first writer able to serve one wins.
func (m *Manager) Restore(ctx context.Context) bool {
	if m.Current() != nil {
		return true
	}
	for _, w := range m.writers {
		reader, ok := w.(model.SnapshotReader)
		if !ok {
			continue
		}
		s, err := reader.LoadLatest(ctx)
		if errors.Is(err, model.ErrNoSnapshot) {
			continue
		}
		if err != nil {
			m.logger.Warn("failed to load persisted snapshot", zap.String("writer", w.Name()), zap.Error(err))
			continue
		}
		if m.current.CompareAndSwap(nil, s) {
			m.logger.Info("serving persisted snapshot",
				zap.String("writer", w.Name()),
				zap.String("run_id", s.RunID),
				zap.Int("users", len(s.Profiles)))
		}
		return true
	}
	return false
}

// Start restores the persisted snapshot and starts the configured cron
// schedule and data file watch.
func (m *Manager) Start(ctx context.Context) error {
	m.Restore(ctx)

	if spec := m.cfg.Schedule.Cron; spec != "" {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(spec, func() { m.trigger(ctx, "cron") }); err != nil {
			return fmt.Errorf("invalid schedule cron %q: %w", spec, err)
		}
		m.cron.Start()
		m.logger.Info("scheduled analysis", zap.String("cron", spec))
	}

	if m.cfg.Schedule.WatchDataFile {
		if err := m.watch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts the schedule and the watch, then closes writers and the
// publisher. It waits for a run in progress.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("manager stopping")
		if m.cron != nil {
			<-m.cron.Stop().Done()
		}
		close(m.done)
		if m.watcher != nil {
			m.watcher.Close()
		}
		m.wg.Wait()

		m.runMu.Lock()
		defer m.runMu.Unlock()
		for _, w := range m.writers {
			if c, ok := w.(io.Closer); ok {
				if err := c.Close(); err != nil {
					m.logger.Warn("failed to close writer", zap.String("writer", w.Name()), zap.Error(err))
				}
			}
		}
		if c, ok := m.publisher.(interface{ Close() }); ok {
			c.Close()
		}
		m.logger.Info("manager stopped")
	})
}

// dataFileChanged reports whether the data file differs from the one last
// analyzed. It waits for an upload in progress.
func (m *Manager) dataFileChanged() bool {
	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.lastData == nil {
		return true
	}
	fi, err := os.Stat(m.cfg.Loader.DataFile)
	if err != nil {
		return true
	}
	return fi.Size() != m.lastData.Size() || !fi.ModTime().Equal(m.lastData.ModTime())
}

func (m *Manager) trigger(ctx context.Context, reason string) {
	m.logger.Info("triggered analysis run", zap.String("reason", reason))
	if _, err := m.Run(ctx, ""); err != nil {
		m.logger.Warn("triggered run failed", zap.String("reason", reason), zap.Error(err))
	}
}
