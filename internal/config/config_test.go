package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
logger:
  level: debug
  format: json
loader:
  data_file: /srv/traffic.csv
  skip_invalid_rows: true
engine:
  num_workers: 4
  blacklist: ["10.9.9.9", "203.0.113.0/24"]
  categories:
    - name: game
      keywords: [game, esports]
  tagging:
    thresholds:
      game-heavy: 50
    disabled: [early-riser]
    rules:
      - tag: p2p-heavy
        kind: behavioral
        metric: category:p2p
        operator: ">"
        threshold: 25
writers:
  - type: json
    enabled: true
  - type: bolt
    enabled: true
    bolt:
      path: /tmp/profiles.db
alerter:
  enabled: true
  rules:
    - name: many scanners
      tag: port-scan-suspect
      operator: ">="
      threshold: 1
schedule:
  cron: "@every 1h"
  watch_data_file: true
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "/srv/traffic.csv", cfg.Loader.DataFile)
	assert.True(t, cfg.Loader.SkipInvalidRows)
	assert.Equal(t, 4, cfg.Engine.NumWorkers)
	assert.Equal(t, 53, cfg.Engine.DNSPort, "dns port defaults to 53")
	assert.Equal(t, []string{"10.9.9.9", "203.0.113.0/24"}, cfg.Engine.Blacklist)
	assert.Equal(t, 50.0, cfg.Engine.Tagging.Thresholds["game-heavy"])
	require.Len(t, cfg.Engine.Tagging.Rules, 1)
	assert.Equal(t, "category:p2p", cfg.Engine.Tagging.Rules[0].Metric)

	require.Len(t, cfg.Writers, 2)
	assert.Equal(t, "data", cfg.Writers[0].JSON.RootPath)
	assert.Equal(t, 30, cfg.Writers[1].Bolt.Retention)

	assert.Equal(t, "@every 1h", cfg.Schedule.Cron)
	assert.True(t, cfg.Schedule.WatchDataFile)
	assert.Equal(t, 2*time.Second, Duration(cfg.Schedule.Debounce))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad yaml":          "logger: [",
		"bad operator":      "alerter:\n  rules:\n    - name: x\n      tag: y\n      operator: '!='\n",
		"bad duration":      "schedule:\n  debounce: soon\n",
		"untyped writer":    "writers:\n  - enabled: true\n",
		"bad watched port":  "engine:\n  watched_ports: [70000]\n",
		"rule without tag":  "engine:\n  tagging:\n    rules:\n      - metric: dns_queries\n        operator: '>'\n",
		"unknown time zone": "loader:\n  time_zone: Mars/Olympus\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, runtime.NumCPU(), cfg.Engine.NumWorkers)
	assert.Equal(t, 10, cfg.Overview.TopUsers)
	assert.Equal(t, int64(50*1024*1024), cfg.API.MaxUploadSize)
	assert.Equal(t, "netprofile", cfg.Probe.Subject)
	assert.NoError(t, cfg.Validate())
}
