// Package overview computes the network-wide traffic summaries of a record
// table: totals, user ranking, category totals, hourly activity and trend.
package overview

import (
	"Go2NetProfile/internal/model"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options tune the aggregation.
type Options struct {
	TopUsers   int
	NumWorkers int
	NumShards  uint32
	Logger     *zap.Logger
}

const defaultTopUsers = 10

var taskFields = []string{FieldUser, FieldAppCategory, FieldHour, FieldTrend, FieldSrcIP, FieldDstIP}

// Build fans the table's records out to one aggregation task per key field
// and assembles the overview from the task snapshots.
func Build(table *model.RecordTable, opts Options) model.Overview {
	if opts.TopUsers <= 0 {
		opts.TopUsers = defaultTopUsers
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("overview")
	start := time.Now()

	tasks := make(map[string]*Task, len(taskFields))
	for _, field := range taskFields {
		// Every field in taskFields is known to NewTask.
		t, _ := NewTask(field, opts.NumShards)
		tasks[field] = t
	}

	records := table.Records()
	recordChan := make(chan *model.FlowRecord, opts.NumWorkers*64)
	var wg sync.WaitGroup
	wg.Add(opts.NumWorkers)
	for i := 0; i < opts.NumWorkers; i++ {
		go func() {
			defer wg.Done()
			for r := range recordChan {
				for _, t := range tasks {
					t.ProcessRecord(r)
				}
			}
		}()
	}
	for i := range records {
		recordChan <- &records[i]
	}
	close(recordChan)
	wg.Wait()

	users := tasks[FieldUser].Snapshot()
	ov := model.Overview{
		TotalTraffic: model.TotalTraffic{
			TotalPackets: len(records),
			UniqueUsers:  len(users),
			UniqueIPs:    len(tasks[FieldSrcIP].Snapshot()) + len(tasks[FieldDstIP].Snapshot()),
		},
		UserRanking:  userRanking(users, opts.TopUsers),
		AppCategory:  categoryTotals(tasks[FieldAppCategory].Snapshot()),
		ActiveHours:  hourActivity(tasks[FieldHour].Snapshot()),
		TrafficTrend: trafficTrend(tasks[FieldTrend].Snapshot()),
	}
	for _, b := range users {
		ov.TotalTraffic.TotalBytes += b.ByteCount
	}

	logger.Info("built traffic overview",
		zap.Int("records", len(records)),
		zap.Int("users", ov.TotalTraffic.UniqueUsers),
		zap.Duration("elapsed", time.Since(start)))
	return ov
}

// userRanking returns the top n users by bytes, ties broken by name.
func userRanking(buckets []Bucket, n int) []model.UserTraffic {
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].ByteCount != buckets[j].ByteCount {
			return buckets[i].ByteCount > buckets[j].ByteCount
		}
		return buckets[i].Key < buckets[j].Key
	})
	if len(buckets) > n {
		buckets = buckets[:n]
	}
	ranking := make([]model.UserTraffic, 0, len(buckets))
	for _, b := range buckets {
		ranking = append(ranking, model.UserTraffic{User: b.Key, Bytes: b.ByteCount})
	}
	return ranking
}

func categoryTotals(buckets []Bucket) []model.CategoryTraffic {
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].ByteCount != buckets[j].ByteCount {
			return buckets[i].ByteCount > buckets[j].ByteCount
		}
		return buckets[i].Key < buckets[j].Key
	})
	totals := make([]model.CategoryTraffic, 0, len(buckets))
	for _, b := range buckets {
		totals = append(totals, model.CategoryTraffic{Category: b.Key, Bytes: b.ByteCount})
	}
	return totals
}

// hourActivity lists the active hours of the day in ascending order. Bucket
// keys are two-digit hours, so the key order is the hour order.
func hourActivity(buckets []Bucket) []model.HourActivity {
	hours := make([]model.HourActivity, 0, len(buckets))
	for _, b := range buckets {
		hours = append(hours, model.HourActivity{
			Hour:        b.Key + ":00",
			ActiveUsers: len(b.Users),
			TotalBytes:  b.ByteCount,
			PacketCount: b.RecordCount,
		})
	}
	return hours
}

// trafficTrend returns hourly byte totals from the first to the last hour
// seen, with silent hours reported as zero.
func trafficTrend(buckets []Bucket) []model.TrendPoint {
	points := make([]model.TrendPoint, 0, len(buckets))
	if len(buckets) == 0 {
		return points
	}

	byKey := make(map[string]int64, len(buckets))
	first := hourStart(buckets[0].StartTime)
	last := first
	for _, b := range buckets {
		byKey[b.Key] = b.ByteCount
		h := hourStart(b.StartTime)
		if h.Before(first) {
			first = h
		}
		if h.After(last) {
			last = h
		}
	}

	for at := first; !at.After(last); at = nextHour(at) {
		key := at.Format(trendLayout)
		points = append(points, model.TrendPoint{Time: key, Bytes: byKey[key]})
	}
	return points
}
