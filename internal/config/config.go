package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	ServiceName string `yaml:"service_name"`
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // "console" or "json"
	AddSource   bool   `yaml:"add_source"`
	LogFile     string `yaml:"log_file"`
	MaxSize     int    `yaml:"max_size"` // megabytes
	MaxBackups  int    `yaml:"max_backups"`
	MaxAge      int    `yaml:"max_age"` // days
	Compress    bool   `yaml:"compress"`
}

// LoaderConfig describes the flow record source.
type LoaderConfig struct {
	DataFile        string `yaml:"data_file"`
	TimeZone        string `yaml:"time_zone"`
	SkipInvalidRows bool   `yaml:"skip_invalid_rows"`
}

// CategoryDef is one entry of the category synonym table.
type CategoryDef struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// RuleDef defines a tagging rule from the config file.
type RuleDef struct {
	Tag            string  `yaml:"tag"`
	Kind           string  `yaml:"kind"`
	Metric         string  `yaml:"metric"`
	Operator       string  `yaml:"operator"`
	Threshold      float64 `yaml:"threshold"`
	Else           string  `yaml:"else"`
	MinActiveHours int     `yaml:"min_active_hours"`
}

// TaggingConfig adjusts the built-in rule table.
type TaggingConfig struct {
	// Thresholds overrides the threshold of a built-in rule, keyed by tag.
	Thresholds map[string]float64 `yaml:"thresholds"`
	// Disabled lists built-in tags that must never fire.
	Disabled []string `yaml:"disabled"`
	// Rules are appended after the built-in rules.
	Rules []RuleDef `yaml:"rules"`
}

// EngineConfig holds the feature extraction and tagging settings.
type EngineConfig struct {
	NumWorkers   int           `yaml:"num_workers"`
	WatchedPorts []int         `yaml:"watched_ports"`
	DNSPort      int           `yaml:"dns_port"`
	Blacklist    []string      `yaml:"blacklist"`
	Categories   []CategoryDef `yaml:"categories"`
	Tagging      TaggingConfig `yaml:"tagging"`
}

// OverviewConfig holds the traffic aggregator settings.
type OverviewConfig struct {
	TopUsers   int    `yaml:"top_users"`
	NumWorkers int    `yaml:"num_workers"`
	NumShards  uint32 `yaml:"num_shards"`
}

// JSONWriterConfig configures the JSON file writer.
type JSONWriterConfig struct {
	RootPath    string `yaml:"root_path"`
	KeepHistory bool   `yaml:"keep_history"`
}

// BoltConfig configures the bbolt run history store.
type BoltConfig struct {
	Path      string `yaml:"path"`
	Retention int    `yaml:"retention"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef defines a single persistence writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	JSON       JSONWriterConfig `yaml:"json"`
	Bolt       BoltConfig       `yaml:"bolt"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ScheduleConfig controls automatic re-analysis.
type ScheduleConfig struct {
	Cron          string `yaml:"cron"`
	WatchDataFile bool   `yaml:"watch_data_file"`
	Debounce      string `yaml:"debounce"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	MaxUploadSize   int64  `yaml:"max_upload_size"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// GRPCConfig holds the gRPC server settings.
type GRPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// AlerterRule defines a single rule for the alerter. The observed metric is
// the number of users carrying Tag after a run.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Tag       string  `yaml:"tag"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the configuration for the alerter.
type AlerterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Subject string        `yaml:"subject"`
	Rules   []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the configuration for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"` // Comma-separated list of recipients
}

// ProbeConfig holds the NATS settings for run events.
type ProbeConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig controls the OpenTelemetry exporter.
type MetricsConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Interval     string `yaml:"interval"`
}

// PcapConfig controls how captured packets become flow records.
type PcapConfig struct {
	Users          map[string]string `yaml:"users"`
	PortCategories map[int]string    `yaml:"port_categories"`
	Window         string            `yaml:"window"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Loader   LoaderConfig   `yaml:"loader"`
	Engine   EngineConfig   `yaml:"engine"`
	Overview OverviewConfig `yaml:"overview"`
	Writers  []WriterDef    `yaml:"writers"`
	Schedule ScheduleConfig `yaml:"schedule"`
	API      APIConfig      `yaml:"api"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Alerter  AlerterConfig  `yaml:"alerter"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Probe    ProbeConfig    `yaml:"probe"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Pcap     PcapConfig     `yaml:"pcap"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Logger.ServiceName == "" {
		c.Logger.ServiceName = "go2netprofile"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Loader.DataFile == "" {
		c.Loader.DataFile = "data/traffic.csv"
	}
	if c.Loader.TimeZone == "" {
		c.Loader.TimeZone = "UTC"
	}
	if c.Engine.NumWorkers <= 0 {
		c.Engine.NumWorkers = runtime.NumCPU()
	}
	if c.Engine.DNSPort == 0 {
		c.Engine.DNSPort = 53
	}
	if c.Overview.TopUsers <= 0 {
		c.Overview.TopUsers = 10
	}
	if c.Overview.NumWorkers <= 0 {
		c.Overview.NumWorkers = runtime.NumCPU()
	}
	if c.Overview.NumShards == 0 {
		c.Overview.NumShards = 16
	}
	if c.Schedule.Debounce == "" {
		c.Schedule.Debounce = "2s"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":5001"
	}
	if c.API.MaxUploadSize <= 0 {
		c.API.MaxUploadSize = 50 * 1024 * 1024
	}
	if c.API.ShutdownTimeout == "" {
		c.API.ShutdownTimeout = "5s"
	}
	if c.GRPC.ListenAddr == "" {
		c.GRPC.ListenAddr = ":50051"
	}
	if c.Alerter.Subject == "" {
		c.Alerter.Subject = "Go2NetProfile Security Summary"
	}
	if c.Probe.Subject == "" {
		c.Probe.Subject = "netprofile"
	}
	if c.Metrics.Interval == "" {
		c.Metrics.Interval = "10s"
	}
	if c.Pcap.Window == "" {
		c.Pcap.Window = "1m"
	}
	for i := range c.Writers {
		w := &c.Writers[i]
		if w.Type == "json" && w.JSON.RootPath == "" {
			w.JSON.RootPath = "data"
		}
		if w.Type == "bolt" && w.Bolt.Retention <= 0 {
			w.Bolt.Retention = 30
		}
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Loader.TimeZone); err != nil {
		return fmt.Errorf("invalid loader time_zone %q: %w", c.Loader.TimeZone, err)
	}
	for name, value := range map[string]string{
		"schedule.debounce":    c.Schedule.Debounce,
		"api.shutdown_timeout": c.API.ShutdownTimeout,
		"metrics.interval":     c.Metrics.Interval,
		"pcap.window":          c.Pcap.Window,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	for i, w := range c.Writers {
		if w.Type == "" {
			return fmt.Errorf("writer #%d has no type", i)
		}
	}
	for _, p := range c.Engine.WatchedPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid watched port %d", p)
		}
	}
	for _, rule := range c.Alerter.Rules {
		if !validOperator(rule.Operator) {
			return fmt.Errorf("alerter rule %q has unknown operator %q", rule.Name, rule.Operator)
		}
	}
	for _, rule := range c.Engine.Tagging.Rules {
		if rule.Tag == "" || rule.Metric == "" {
			return fmt.Errorf("tagging rule needs both tag and metric")
		}
		if !validOperator(rule.Operator) {
			return fmt.Errorf("tagging rule %q has unknown operator %q", rule.Tag, rule.Operator)
		}
	}
	return nil
}

// Duration parses a duration field that Validate has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func validOperator(op string) bool {
	switch op {
	case ">", ">=", "<", "<=", "=":
		return true
	}
	return false
}
