package manager

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/loader"
	"Go2NetProfile/internal/model"
	"Go2NetProfile/internal/writer/jsonfile"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
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

func records(users int) []model.FlowRecord {
	var out []model.FlowRecord
	for i := 0; i < users*10; i++ {
		out = append(out, model.FlowRecord{
			Timestamp:   base.Add(time.Duration(i*53) * time.Minute),
			SrcIP:       fmt.Sprintf("10.0.0.%d", i%users+1),
			DstIP:       "192.0.2.7",
			SrcPort:     50000 + i,
			DstPort:     []int{443, 22, 53}[i%3],
			Protocol:    "TCP",
			Bytes:       int64(200 + i),
			AppCategory: []string{"Gaming", "Video Streaming", "Education"}[i%3],
			User:        fmt.Sprintf("student%d", i%users),
		})
	}
	return out
}

func writeData(t *testing.T, path string, recs []model.FlowRecord) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, loader.WriteCSV(&buf, recs))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Loader.DataFile = filepath.Join(t.TempDir(), "traffic.csv")
	cfg.Engine.NumWorkers = 2
	cfg.Overview.NumWorkers = 2
	return cfg
}

type failingWriter struct{ calls int }

func (f *failingWriter) Name() string { return "failing" }

func (f *failingWriter) Write(context.Context, *model.Snapshot) error {
	f.calls++
	return errors.New("disk full")
}

type recordingPublisher struct {
	mu   sync.Mutex
	runs []string
}

func (p *recordingPublisher) PublishSnapshot(s *model.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, s.RunID)
	return nil
}

func TestRun_ProducesSnapshot(t *testing.T) {
	cfg := testConfig(t)
	writeData(t, cfg.Loader.DataFile, records(4))
	out := jsonfile.New(config.JSONWriterConfig{RootPath: t.TempDir()}, nil)
	pub := &recordingPublisher{}

	m, err := NewManager(cfg, WithWriters(out), WithPublisher(pub),
		WithClock(func() time.Time { return base }))
	require.NoError(t, err)
	defer m.Stop()
	assert.Nil(t, m.Current())

	s, err := m.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, s, m.Current())
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, base, s.GeneratedAt)
	assert.Equal(t, 40, s.RecordCount)
	assert.Len(t, s.Profiles, 4)
	assert.Len(t, s.Overview.UserRanking, 4)
	assert.Equal(t, []string{s.RunID}, pub.runs)

	_, err = os.Stat(out.ProfilesPath())
	assert.NoError(t, err)
}

func TestRun_LoadFailureKeepsPreviousSnapshot(t *testing.T) {
	cfg := testConfig(t)
	writeData(t, cfg.Loader.DataFile, records(3))
	m, err := NewManager(cfg, WithWriters())
	require.NoError(t, err)
	defer m.Stop()

	first, err := m.Run(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg.Loader.DataFile, []byte("timestamp,user\n2024-05-06 10:00:00,a\n"), 0644))
	_, err = m.Run(context.Background(), "")
	var loadErr *loader.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Same(t, first, m.Current())

	_, err = m.Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorAs(t, err, &loadErr)
	assert.Same(t, first, m.Current())
}

func TestRun_EmptyInputYieldsEmptySnapshot(t *testing.T) {
	cfg := testConfig(t)
	writeData(t, cfg.Loader.DataFile, nil)
	m, err := NewManager(cfg, WithWriters())
	require.NoError(t, err)
	defer m.Stop()

	s, err := m.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, s.RecordCount)
	assert.Empty(t, s.Profiles)
	assert.Same(t, s, m.Current())
}

func TestRun_WriterFailureDoesNotBlockSwap(t *testing.T) {
	cfg := testConfig(t)
	writeData(t, cfg.Loader.DataFile, records(2))
	fw := &failingWriter{}
	m, err := NewManager(cfg, WithWriters(fw))
	require.NoError(t, err)
	defer m.Stop()

	s, err := m.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, fw.calls)
	assert.Same(t, s, m.Current())
}

func TestRestore_FromJSONWriter(t *testing.T) {
	cfg := testConfig(t)
	writeData(t, cfg.Loader.DataFile, records(3))
	root := t.TempDir()

	first, err := NewManager(cfg, WithWriters(jsonfile.New(config.JSONWriterConfig{RootPath: root}, nil)))
	require.NoError(t, err)
	s, err := first.Run(context.Background(), "")
	require.NoError(t, err)
	first.Stop()

	second, err := NewManager(cfg, WithWriters(jsonfile.New(config.JSONWriterConfig{RootPath: root}, nil)))
	require.NoError(t, err)
	defer second.Stop()
	require.True(t, second.Restore(context.Background()))
	require.NotNil(t, second.Current())
	assert.Equal(t, s.RunID, second.Current().RunID)
	assert.Equal(t, s.Profiles.Users(), second.Current().Profiles.Users())
}

func TestRestore_NothingPersisted(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewManager(cfg, WithWriters(jsonfile.New(config.JSONWriterConfig{RootPath: t.TempDir()}, nil), &failingWriter{}))
	require.NoError(t, err)
	defer m.Stop()
	assert.False(t, m.Restore(context.Background()))
	assert.Nil(t, m.Current())
}

func TestUpload(t *testing.T) {
	cfg := testConfig(t)
	writeData(t, cfg.Loader.DataFile, records(2))
	m, err := NewManager(cfg, WithWriters())
	require.NoError(t, err)
	defer m.Stop()

	var buf bytes.Buffer
	require.NoError(t, loader.WriteCSV(&buf, records(5)))
	s, err := m.Upload(context.Background(), &buf)
	require.NoError(t, err)
	assert.Len(t, s.Profiles, 5)

	reloaded, err := m.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, reloaded.Profiles, 5)
}

func TestUpload_InvalidLeavesDataFile(t *testing.T) {
	cfg := testConfig(t)
	writeData(t, cfg.Loader.DataFile, records(2))
	before, err := os.ReadFile(cfg.Loader.DataFile)
	require.NoError(t, err)

	m, err := NewManager(cfg, WithWriters())
	require.NoError(t, err)
	defer m.Stop()

	_, err = m.Upload(context.Background(), strings.NewReader("not,a,flow,log\n1,2,3,4\n"))
	var loadErr *loader.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Nil(t, m.Current())

	after, err := os.ReadFile(cfg.Loader.DataFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(cfg.Loader.DataFile))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpload_ConcurrentUploadsAnalyzeTheirOwnData(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewManager(cfg, WithWriters())
	require.NoError(t, err)
	defer m.Stop()

	sizes := []int{3, 6, 2, 5}
	got := make([]int, len(sizes))
	var wg sync.WaitGroup
	for i, users := range sizes {
		var buf bytes.Buffer
		require.NoError(t, loader.WriteCSV(&buf, records(users)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Upload(context.Background(), &buf)
			if assert.NoError(t, err) {
				got[i] = len(s.Profiles)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, sizes, got)
}

func TestUpload_WatchDoesNotRerunUploadedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.WatchDataFile = true
	cfg.Schedule.Debounce = "50ms"
	pub := &recordingPublisher{}
	m, err := NewManager(cfg, WithWriters(), WithPublisher(pub))
	require.NoError(t, err)
	defer m.Stop()
	require.NoError(t, m.Start(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, loader.WriteCSV(&buf, records(3)))
	s, err := m.Upload(context.Background(), &buf)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{s.RunID}, pub.runs)
	assert.Same(t, s, m.Current())
}

func TestStart_WatchTriggersRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.WatchDataFile = true
	cfg.Schedule.Debounce = "50ms"
	m, err := NewManager(cfg, WithWriters())
	require.NoError(t, err)
	defer m.Stop()

	require.NoError(t, m.Start(context.Background()))
	writeData(t, cfg.Loader.DataFile, records(3))

	require.Eventually(t, func() bool {
		s := m.Current()
		return s != nil && len(s.Profiles) == 3
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStart_InvalidCron(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Cron = "every tuesday"
	m, err := NewManager(cfg, WithWriters())
	require.NoError(t, err)
	defer m.Stop()
	assert.Error(t, m.Start(context.Background()))
}

func TestNewManager_UnknownWriter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Writers = []config.WriterDef{{Type: "parquet", Enabled: true}}
	_, err := NewManager(cfg)
	assert.ErrorContains(t, err, "unknown writer type")
}
