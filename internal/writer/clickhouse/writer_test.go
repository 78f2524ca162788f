package clickhouse

import (
	"Go2NetProfile/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRows(t *testing.T) {
	b := model.NewFeatureBundle()
	b.TotalBytes = 500
	b.PortStats[22] = 3
	b.PortStats[3306] = 1
	b.DNSStats = model.DNSStats{Queries: 7, Bytes: 70}
	b.CategoryPct["game"] = 40
	b.BlacklistHits = 2

	at := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	s := &model.Snapshot{
		RunID:       "r1",
		GeneratedAt: at,
		Source:      "traffic.csv",
		Profiles: model.ProfileMap{
			"zoe":   {Tags: []string{"port-scan-suspect", "game-heavy"}, FeatureBundle: b},
			"alice": {Tags: []string{}, FeatureBundle: model.FeatureBundle{}},
		},
	}

	rows, err := profileRows(s)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "alice", rows[0].User)
	assert.NotNil(t, rows[0].CategoryPct)

	zoe := rows[1]
	assert.Equal(t, "zoe", zoe.User)
	assert.Equal(t, []string{"game-heavy", "port-scan-suspect"}, zoe.Tags)
	assert.Equal(t, int64(4), zoe.PortTouches)
	assert.Equal(t, int64(2), zoe.DistinctPorts)
	assert.Equal(t, int64(7), zoe.DNSQueries)
	assert.Equal(t, int64(2), zoe.BlacklistHits)
	assert.Equal(t, at, zoe.GeneratedAt)
	assert.Contains(t, zoe.Features, `"port_stats":{"22":3,"3306":1}`)

	values := zoe.values()
	assert.Len(t, values, 14)
	assert.Equal(t, "r1", values[0])
	assert.Equal(t, "zoe", values[3])
}

func TestProfileRows_Empty(t *testing.T) {
	rows, err := profileRows(&model.Snapshot{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
