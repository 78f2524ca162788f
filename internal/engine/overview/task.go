package overview

import (
	"Go2NetProfile/internal/model"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Key fields understood by a Task.
const (
	FieldUser        = "user"
	FieldAppCategory = "app_category"
	FieldHour        = "hour"
	FieldTrend       = "trend"
	FieldSrcIP       = "src_ip"
	FieldDstIP       = "dst_ip"
)

const (
	defaultShardCount = 16
	trendLayout       = "2006-01-02 15:04"
)

// Bucket is the aggregate of every record sharing one key.
type Bucket struct {
	Key         string
	StartTime   time.Time
	EndTime     time.Time
	ByteCount   int64
	RecordCount int
	Users       map[string]struct{}
}

type shard struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// Task aggregates records by one key field using a sharded map, so that
// many workers can feed it concurrently.
type Task struct {
	name       string
	keyField   string
	shards     []*shard
	shardCount uint32
}

// NewTask creates an aggregation task keyed by keyField.
func NewTask(keyField string, numShards uint32) (*Task, error) {
	switch keyField {
	case FieldUser, FieldAppCategory, FieldHour, FieldTrend, FieldSrcIP, FieldDstIP:
	default:
		return nil, fmt.Errorf("unknown key field %q", keyField)
	}
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	t := &Task{
		name:       "per_" + keyField,
		keyField:   keyField,
		shards:     make([]*shard, numShards),
		shardCount: numShards,
	}
	for i := range t.shards {
		t.shards[i] = &shard{buckets: make(map[string]*Bucket)}
	}
	return t, nil
}

// Name returns the name of the task.
func (t *Task) Name() string {
	return t.name
}

// ProcessRecord adds one record to its bucket.
func (t *Task) ProcessRecord(r *model.FlowRecord) {
	key := t.key(r)
	s := t.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok {
		if r.Timestamp.Before(b.StartTime) {
			b.StartTime = r.Timestamp
		}
		if r.Timestamp.After(b.EndTime) {
			b.EndTime = r.Timestamp
		}
		b.ByteCount += r.Bytes
		b.RecordCount++
		b.Users[r.User] = struct{}{}
		return
	}
	s.buckets[key] = &Bucket{
		Key:         key,
		StartTime:   r.Timestamp,
		EndTime:     r.Timestamp,
		ByteCount:   r.Bytes,
		RecordCount: 1,
		Users:       map[string]struct{}{r.User: {}},
	}
}

// Snapshot returns a deep copy of every bucket, sorted by key.
func (t *Task) Snapshot() []Bucket {
	parts := make([][]Bucket, t.shardCount)
	var wg sync.WaitGroup
	wg.Add(int(t.shardCount))

	for i := range t.shards {
		go func(i int) {
			defer wg.Done()
			s := t.shards[i]
			s.mu.RLock()
			defer s.mu.RUnlock()

			copied := make([]Bucket, 0, len(s.buckets))
			for _, b := range s.buckets {
				c := *b
				c.Users = make(map[string]struct{}, len(b.Users))
				for u := range b.Users {
					c.Users[u] = struct{}{}
				}
				copied = append(copied, c)
			}
			parts[i] = copied
		}(i)
	}
	wg.Wait()

	var all []Bucket
	for _, p := range parts {
		all = append(all, p...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
	return all
}

// Reset clears every bucket.
func (t *Task) Reset() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.buckets = make(map[string]*Bucket)
		s.mu.Unlock()
	}
}

func (t *Task) getShard(key string) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

func (t *Task) key(r *model.FlowRecord) string {
	switch t.keyField {
	case FieldUser:
		return r.User
	case FieldAppCategory:
		return r.AppCategory
	case FieldHour:
		return fmt.Sprintf("%02d", r.Hour)
	case FieldTrend:
		return hourStart(r.Timestamp).Format(trendLayout)
	case FieldSrcIP:
		return r.SrcIP
	case FieldDstIP:
		return r.DstIP
	}
	return strconv.Quote(t.keyField)
}

// hourStart returns the start of the wall clock hour containing t, in t's
// location.
func hourStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
}

// nextHour returns the start of the wall clock hour after h.
func nextHour(h time.Time) time.Time {
	y, m, d := h.Date()
	return time.Date(y, m, d, h.Hour()+1, 0, 0, 0, h.Location())
}
