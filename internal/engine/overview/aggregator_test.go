package overview

import (
	"Go2NetProfile/internal/model"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func rec(user, src, dst, category string, at time.Duration, bytes int64) model.FlowRecord {
	return model.FlowRecord{
		Timestamp: base.Add(at), SrcIP: src, DstIP: dst, SrcPort: 40000, DstPort: 443,
		Protocol: "TCP", Bytes: bytes, AppCategory: category, User: user,
	}
}

func TestBuild(t *testing.T) {
	table := model.NewRecordTable([]model.FlowRecord{
		rec("alice", "10.0.0.1", "1.1.1.1", "Gaming", 9*time.Hour, 300),
		rec("alice", "10.0.0.1", "8.8.8.8", "DNS", 9*time.Hour+10*time.Minute, 50),
		rec("bob", "10.0.0.2", "1.1.1.1", "Gaming", 9*time.Hour+30*time.Minute, 100),
		rec("carol", "10.0.0.3", "9.9.9.9", "Video", 12*time.Hour, 1000),
	})

	ov := Build(table, Options{TopUsers: 2, NumWorkers: 3, NumShards: 4})

	assert.Equal(t, model.TotalTraffic{TotalBytes: 1450, TotalPackets: 4, UniqueUsers: 3, UniqueIPs: 6}, ov.TotalTraffic)
	assert.Equal(t, []model.UserTraffic{{User: "carol", Bytes: 1000}, {User: "alice", Bytes: 350}}, ov.UserRanking)
	assert.Equal(t, []model.CategoryTraffic{
		{Category: "Video", Bytes: 1000},
		{Category: "Gaming", Bytes: 400},
		{Category: "DNS", Bytes: 50},
	}, ov.AppCategory)
	assert.Equal(t, []model.HourActivity{
		{Hour: "09:00", ActiveUsers: 2, TotalBytes: 450, PacketCount: 3},
		{Hour: "12:00", ActiveUsers: 1, TotalBytes: 1000, PacketCount: 1},
	}, ov.ActiveHours)
	assert.Equal(t, []model.TrendPoint{
		{Time: "2024-05-06 09:00", Bytes: 450},
		{Time: "2024-05-06 10:00", Bytes: 0},
		{Time: "2024-05-06 11:00", Bytes: 0},
		{Time: "2024-05-06 12:00", Bytes: 1000},
	}, ov.TrafficTrend)
}

func TestBuild_TrendFollowsWallClockHours(t *testing.T) {
	ist := time.FixedZone("Asia/Kolkata", 5*3600+30*60)
	at := func(hour, minute int, bytes int64) model.FlowRecord {
		return model.FlowRecord{
			Timestamp: time.Date(2024, 5, 6, hour, minute, 0, 0, ist),
			SrcIP:     "10.0.0.1", DstIP: "1.1.1.1", SrcPort: 40000, DstPort: 443,
			Protocol: "TCP", Bytes: bytes, AppCategory: "web", User: "alice",
		}
	}
	table := model.NewRecordTable([]model.FlowRecord{at(10, 5, 10), at(10, 50, 20), at(12, 15, 5)})

	ov := Build(table, Options{NumWorkers: 2, NumShards: 2})

	assert.Equal(t, []model.HourActivity{
		{Hour: "10:00", ActiveUsers: 1, TotalBytes: 30, PacketCount: 2},
		{Hour: "12:00", ActiveUsers: 1, TotalBytes: 5, PacketCount: 1},
	}, ov.ActiveHours)
	assert.Equal(t, []model.TrendPoint{
		{Time: "2024-05-06 10:00", Bytes: 30},
		{Time: "2024-05-06 11:00", Bytes: 0},
		{Time: "2024-05-06 12:00", Bytes: 5},
	}, ov.TrafficTrend)
}

func TestBuild_RankingTiesByName(t *testing.T) {
	table := model.NewRecordTable([]model.FlowRecord{
		rec("zed", "10.0.0.1", "1.1.1.1", "web", 0, 10),
		rec("amy", "10.0.0.2", "1.1.1.1", "web", 0, 10),
	})
	ov := Build(table, Options{})
	assert.Equal(t, []model.UserTraffic{{User: "amy", Bytes: 10}, {User: "zed", Bytes: 10}}, ov.UserRanking)
}

func TestBuild_EmptyTable(t *testing.T) {
	ov := Build(model.NewRecordTable(nil), Options{})
	assert.Zero(t, ov.TotalTraffic)
	assert.NotNil(t, ov.UserRanking)
	assert.Empty(t, ov.UserRanking)
	assert.Empty(t, ov.TrafficTrend)
	assert.Empty(t, ov.ActiveHours)
}

func TestBuild_ManyRecordsMatchesSequentialSum(t *testing.T) {
	var records []model.FlowRecord
	var want int64
	for i := 0; i < 2000; i++ {
		bytes := int64(i % 97)
		want += bytes
		records = append(records, rec(fmt.Sprintf("u%d", i%50), "10.0.0.1", "1.1.1.1", "web", time.Duration(i)*time.Minute, bytes))
	}
	ov := Build(model.NewRecordTable(records), Options{TopUsers: 100, NumWorkers: 8})

	assert.Equal(t, want, ov.TotalTraffic.TotalBytes)
	assert.Len(t, ov.UserRanking, 50)
	var trend int64
	for _, p := range ov.TrafficTrend {
		trend += p.Bytes
	}
	assert.Equal(t, want, trend)
	assert.Len(t, ov.TrafficTrend, 34, "2000 minutes span hours 0 through 33")
}

func TestTask_ConcurrentProcessAndSnapshot(t *testing.T) {
	task, err := NewTask(FieldUser, 8)
	require.NoError(t, err)
	assert.Equal(t, "per_user", task.Name())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				r := rec(fmt.Sprintf("u%d", i%5), "10.0.0.1", "1.1.1.1", "web", time.Duration(i)*time.Second, 2)
				task.ProcessRecord(&r)
			}
		}()
	}
	wg.Wait()

	snap := task.Snapshot()
	require.Len(t, snap, 5)
	for _, b := range snap {
		assert.Equal(t, 200, b.RecordCount)
		assert.Equal(t, int64(400), b.ByteCount)
	}

	// The snapshot is independent of later updates.
	r := rec("u0", "10.0.0.1", "1.1.1.1", "web", 0, 1)
	task.ProcessRecord(&r)
	assert.Equal(t, 200, snap[0].RecordCount)

	task.Reset()
	assert.Empty(t, task.Snapshot())
}

func TestNewTask_UnknownField(t *testing.T) {
	_, err := NewTask("mac", 4)
	assert.Error(t, err)
}
