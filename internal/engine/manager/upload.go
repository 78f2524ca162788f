package manager

import (
	"Go2NetProfile/internal/loader"
	"Go2NetProfile/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Upload replaces the data file with the records read from r and runs the
// analysis on them. The content is validated before the data file is
// touched; a *loader.LoadError leaves both the file and the current
// snapshot unchanged. Uploads are serialized from staging to the finished
// run.
func (m *Manager) Upload(ctx context.Context, r io.Reader) (*model.Snapshot, error) {
	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()

	dataFile := m.cfg.Loader.DataFile
	dir := filepath.Dir(dataFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	if _, _, err := loader.Load(tmpPath, m.loaderOpts); err != nil && !errors.Is(err, loader.ErrEmptyInput) {
		return nil, err
	}

	if err := os.Rename(tmpPath, dataFile); err != nil {
		return nil, fmt.Errorf("failed to replace data file: %w", err)
	}
	m.logger.Info("data file replaced by upload")
	return m.Run(ctx, dataFile)
}
