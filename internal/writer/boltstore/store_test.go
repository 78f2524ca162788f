package boltstore

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/model"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func snapshot(i int) *model.Snapshot {
	b := model.NewFeatureBundle()
	b.TotalBytes = int64(100 * (i + 1))
	return &model.Snapshot{
		RunID:       fmt.Sprintf("run-%d", i),
		GeneratedAt: t0.Add(time.Duration(i) * time.Minute),
		RecordCount: i,
		Profiles:    model.ProfileMap{"alice": {Tags: []string{}, FeatureBundle: b}},
	}
}

func openStore(t *testing.T, retention int) *Store {
	t.Helper()
	s, err := Open(config.BoltConfig{Path: filepath.Join(t.TempDir(), "runs.db"), Retention: retention}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LatestFollowsNewestRun(t *testing.T) {
	s := openStore(t, 10)
	ctx := context.Background()

	_, err := s.LoadLatest(ctx)
	assert.ErrorIs(t, err, model.ErrNoSnapshot)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write(ctx, snapshot(i)))
		latest, err := s.LoadLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("run-%d", i), latest.RunID)
		assert.Equal(t, int64(100*(i+1)), latest.Profiles["alice"].TotalBytes)
	}
}

func TestStore_Retention(t *testing.T) {
	s := openStore(t, 3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(ctx, snapshot(i)))
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-4", runs[2].RunID)

	got, err := s.Get(runs[1].Key)
	require.NoError(t, err)
	assert.Equal(t, "run-3", got.RunID)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, model.ErrNoSnapshot)
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(config.BoltConfig{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), snapshot(7)))
	require.NoError(t, s.Close())

	s, err = Open(config.BoltConfig{Path: path}, nil)
	require.NoError(t, err)
	defer s.Close()
	latest, err := s.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-7", latest.RunID)
	assert.Equal(t, "bolt", s.Name())
}
