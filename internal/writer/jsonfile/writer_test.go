package jsonfile

import (
	"Go2NetProfile/internal/codec"
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/factory"
	"Go2NetProfile/internal/model"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(runID string, at time.Time, gameShare float64) *model.Snapshot {
	b := model.NewFeatureBundle()
	b.CategoryPct["game"] = gameShare
	b.TotalBytes = 1000
	return &model.Snapshot{
		RunID:       runID,
		GeneratedAt: at,
		Source:      "traffic.csv",
		RecordCount: 3,
		Overview:    model.Overview{TotalTraffic: model.TotalTraffic{TotalBytes: 1000}},
		Profiles: model.ProfileMap{
			"alice": {Tags: []string{"game-heavy"}, FeatureBundle: b},
		},
	}
}

func TestWriter_WriteAndLoadLatest(t *testing.T) {
	dir := t.TempDir()
	w := New(config.JSONWriterConfig{RootPath: dir}, nil)
	s := snapshot("run-1", time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC), 35)

	require.NoError(t, w.Write(context.Background(), s))

	data, err := os.ReadFile(filepath.Join(dir, ProfilesFile))
	require.NoError(t, err)
	profiles, err := codec.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, 35.0, profiles["alice"].CategoryPct["game"])

	var summary Summary
	data, err = os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, Summary{
		RunID: "run-1", GeneratedAt: "2024-05-06T12:00:00Z", Source: "traffic.csv",
		RecordCount: 3, TotalBytes: 1000, Users: 1, TagCounts: map[string]int{"game-heavy": 1},
	}, summary)

	latest, err := w.LoadLatest(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(s, latest); diff != "" {
		t.Fatalf("LoadLatest mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_FailedEncodeKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	w := New(config.JSONWriterConfig{RootPath: dir}, nil)
	require.NoError(t, w.Write(context.Background(), snapshot("run-1", time.Now(), 35)))
	before, err := os.ReadFile(w.ProfilesPath())
	require.NoError(t, err)

	err = w.Write(context.Background(), snapshot("run-2", time.Now(), math.NaN()))
	require.Error(t, err)

	after, err := os.ReadFile(w.ProfilesPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no temp file left behind")
	}
}

func TestWriter_History(t *testing.T) {
	dir := t.TempDir()
	w := New(config.JSONWriterConfig{RootPath: dir, KeepHistory: true}, nil)
	t1 := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

	require.NoError(t, w.Write(context.Background(), snapshot("a", t1, 35)))
	require.NoError(t, w.Write(context.Background(), snapshot("b", t1.Add(time.Hour), 40)))

	runs, err := w.History()
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-06_12-00-00", "2024-05-06_13-00-00"}, runs)
	assert.FileExists(t, filepath.Join(dir, historyDir, runs[0], ProfilesFile))
	assert.FileExists(t, filepath.Join(dir, historyDir, runs[0], SummaryFile))
}

func TestWriter_LoadLatestFallsBackToProfiles(t *testing.T) {
	dir := t.TempDir()
	w := New(config.JSONWriterConfig{RootPath: dir}, nil)

	_, err := w.LoadLatest(context.Background())
	assert.ErrorIs(t, err, model.ErrNoSnapshot)

	data, err := codec.Serialize(snapshot("x", time.Now(), 50).Profiles)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProfilesFile), data, 0o644))

	latest, err := w.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, latest.Profiles.Users())
	assert.Empty(t, latest.RunID)
}

func TestWriter_Registered(t *testing.T) {
	writers, err := factory.Create(&config.Config{Writers: []config.WriterDef{
		{Type: "json", Enabled: true, JSON: config.JSONWriterConfig{RootPath: t.TempDir()}},
	}}, nil)
	require.NoError(t, err)
	require.Len(t, writers, 1)
	assert.Equal(t, "json", writers[0].Name())
	_, ok := writers[0].(model.SnapshotReader)
	assert.True(t, ok)
}
