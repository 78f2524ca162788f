package manager

import (
	"Go2NetProfile/internal/config"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// watch re-runs the analysis when the data file is written or replaced. The
// parent directory is watched so atomic renames over the file are seen.
func (m *Manager) watch(ctx context.Context) error {
	path, err := filepath.Abs(m.cfg.Loader.DataFile)
	if err != nil {
		return fmt.Errorf("failed to resolve data file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch data directory: %w", err)
	}
	m.watcher = watcher

	debounce := config.Duration(m.cfg.Schedule.Debounce)
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watchLoop(ctx, path, debounce)
	}()
	m.logger.Info("watching data file", zap.String("path", path), zap.Duration("debounce", debounce))
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, path string, debounce time.Duration) {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(debounce)
			}

		case <-timer.C:
			if !m.dataFileChanged() {
				m.logger.Debug("data file unchanged since last run")
				continue
			}
			m.trigger(ctx, "data file changed")

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("data file watcher error", zap.Error(err))

		case <-m.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
