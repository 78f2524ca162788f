// Package jsonfile persists snapshots as JSON files on local disk.
package jsonfile

import (
	"Go2NetProfile/internal/codec"
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/factory"
	"Go2NetProfile/internal/model"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	ProfilesFile = "user_profiles.json"
	SnapshotFile = "snapshot.json"
	SummaryFile  = "summary.json"
	historyDir   = "history"
	historyStamp = "2006-01-02_15-04-05"
)

func init() {
	factory.RegisterWriter("json", func(def config.WriterDef, logger *zap.Logger) (model.Writer, error) {
		return New(def.JSON, logger), nil
	})
}

// Summary holds the metadata of a persisted run.
type Summary struct {
	RunID       string         `json:"run_id"`
	GeneratedAt string         `json:"generated_at"`
	Source      string         `json:"source"`
	RecordCount int            `json:"record_count"`
	TotalBytes  int64          `json:"total_bytes"`
	Users       int            `json:"users"`
	TagCounts   map[string]int `json:"tag_counts"`
}

// Writer stores the latest profiles under a root directory. Every file is
// written to a temporary name and renamed into place, so readers see either
// the previous run or the new one.
type Writer struct {
	rootPath    string
	keepHistory bool
	logger      *zap.Logger
}

// New creates a JSON file writer.
func New(cfg config.JSONWriterConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		rootPath:    cfg.RootPath,
		keepHistory: cfg.KeepHistory,
		logger:      logger.Named("jsonfile"),
	}
}

// Name implements model.Writer.
func (w *Writer) Name() string {
	return "json"
}

// ProfilesPath is the location of the profile map file.
func (w *Writer) ProfilesPath() string {
	return filepath.Join(w.rootPath, ProfilesFile)
}

// Write implements model.Writer.
func (w *Writer) Write(ctx context.Context, snapshot *model.Snapshot) error {
	profiles, err := codec.Serialize(snapshot.Profiles)
	if err != nil {
		return err
	}
	envelope, err := codec.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	summary, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(summarize(snapshot), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	if err := os.MkdirAll(w.rootPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{ProfilesFile, profiles},
		{SnapshotFile, envelope},
		{SummaryFile, summary},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileAtomic(filepath.Join(w.rootPath, f.name), f.data); err != nil {
			return err
		}
	}

	if w.keepHistory {
		dir := filepath.Join(w.rootPath, historyDir, snapshot.GeneratedAt.UTC().Format(historyStamp))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
		if err := writeFileAtomic(filepath.Join(dir, ProfilesFile), profiles); err != nil {
			return err
		}
		if err := writeFileAtomic(filepath.Join(dir, SummaryFile), summary); err != nil {
			return err
		}
	}

	w.logger.Info("wrote profiles",
		zap.String("path", w.ProfilesPath()),
		zap.Int("users", len(snapshot.Profiles)),
		zap.String("run_id", snapshot.RunID))
	return nil
}

// LoadLatest implements model.SnapshotReader. When only a profile map file
// exists, a snapshot carrying just the profiles is returned.
func (w *Writer) LoadLatest(_ context.Context) (*model.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(w.rootPath, SnapshotFile))
	if err == nil {
		return codec.DecodeSnapshot(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	data, err = os.ReadFile(w.ProfilesPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	profiles, err := codec.Deserialize(data)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(w.ProfilesPath())
	s := &model.Snapshot{Source: w.ProfilesPath(), Profiles: profiles}
	if statErr == nil {
		s.GeneratedAt = info.ModTime().UTC()
	}
	return s, nil
}

// History lists the stored history run directories, oldest first.
func (w *Writer) History() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.rootPath, historyDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

func summarize(s *model.Snapshot) Summary {
	summary := Summary{
		RunID:       s.RunID,
		GeneratedAt: s.GeneratedAt.UTC().Format(time.RFC3339),
		Source:      s.Source,
		RecordCount: s.RecordCount,
		TotalBytes:  s.Overview.TotalTraffic.TotalBytes,
		Users:       len(s.Profiles),
		TagCounts:   make(map[string]int),
	}
	for tag, users := range s.Profiles.TagIndex() {
		summary.TagCounts[tag] = len(users)
	}
	return summary
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync '%s': %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close '%s': %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace '%s': %w", path, err)
	}
	return nil
}
