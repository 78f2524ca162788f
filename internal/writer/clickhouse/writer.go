// Package clickhouse stores every run's profiles in a ClickHouse table, one
// row per user per run.
package clickhouse

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/factory"
	"Go2NetProfile/internal/model"
	"context"
	"fmt"
	"sort"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// TableName is the table holding persisted profiles.
const TableName = "user_profiles"

const createTableStatement = `
CREATE TABLE IF NOT EXISTS user_profiles (
    RunID         String,
    GeneratedAt   DateTime64(3),
    Source        String,
    User          String,
    Tags          Array(String),
    TotalBytes    Int64,
    DNSQueries    Int64,
    DNSBytes      Int64,
    PortTouches   Int64,
    DistinctPorts Int64,
    BlacklistHits Int64,
    CategoryPct   Map(String, Float64),
    ProtocolRatio Map(String, Float64),
    Features      String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(GeneratedAt)
ORDER BY (User, GeneratedAt);
`

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, logger *zap.Logger) (model.Writer, error) {
		return NewWriter(def.ClickHouse, logger)
	})
}

// Writer implements model.Writer for ClickHouse.
type Writer struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewWriter connects to ClickHouse and ensures the table exists.
func NewWriter(cfg config.ClickHouseConfig, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logger = logger.Named("clickhouse")
	logger.Info("connected to ClickHouse and ensured table exists", zap.String("table", TableName))
	return &Writer{conn: conn, logger: logger}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := ch.Open(&ch.Options{
		Addr: []string{addr},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &ch.Compression{
			Method: ch.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Name implements model.Writer.
func (w *Writer) Name() string {
	return "clickhouse"
}

// Close closes the connection.
func (w *Writer) Close() error {
	return w.conn.Close()
}

// Write inserts one row per profile in a single batch.
func (w *Writer) Write(ctx context.Context, snapshot *model.Snapshot) error {
	rows, err := profileRows(snapshot)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+TableName)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.values()...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append profile to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	w.logger.Info("wrote profiles to ClickHouse", zap.Int("rows", len(rows)), zap.String("run_id", snapshot.RunID))
	return nil
}

// profileRow mirrors one row of the user_profiles table.
type profileRow struct {
	RunID         string
	GeneratedAt   time.Time
	Source        string
	User          string
	Tags          []string
	TotalBytes    int64
	DNSQueries    int64
	DNSBytes      int64
	PortTouches   int64
	DistinctPorts int64
	BlacklistHits int64
	CategoryPct   map[string]float64
	ProtocolRatio map[string]float64
	Features      string
}

func (r profileRow) values() []any {
	return []any{
		r.RunID, r.GeneratedAt, r.Source, r.User, r.Tags,
		r.TotalBytes, r.DNSQueries, r.DNSBytes, r.PortTouches, r.DistinctPorts, r.BlacklistHits,
		r.CategoryPct, r.ProtocolRatio, r.Features,
	}
}

// profileRows flattens a snapshot into rows ordered by user. The full
// feature bundle is kept as JSON in the Features column.
func profileRows(s *model.Snapshot) ([]profileRow, error) {
	users := s.Profiles.Users()
	rows := make([]profileRow, 0, len(users))
	for _, user := range users {
		p := s.Profiles[user]
		features, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(p.FeatureBundle)
		if err != nil {
			return nil, fmt.Errorf("failed to encode features of %q: %w", user, err)
		}
		touches := 0
		for _, c := range p.PortStats {
			touches += c
		}
		tags := append([]string{}, p.Tags...)
		sort.Strings(tags)

		rows = append(rows, profileRow{
			RunID:         s.RunID,
			GeneratedAt:   s.GeneratedAt,
			Source:        s.Source,
			User:          user,
			Tags:          tags,
			TotalBytes:    p.TotalBytes,
			DNSQueries:    int64(p.DNSStats.Queries),
			DNSBytes:      p.DNSStats.Bytes,
			PortTouches:   int64(touches),
			DistinctPorts: int64(len(p.PortStats)),
			BlacklistHits: int64(p.BlacklistHits),
			CategoryPct:   nonNil(p.CategoryPct),
			ProtocolRatio: nonNil(p.ProtocolRatio),
			Features:      features,
		})
	}
	return rows, nil
}

func nonNil(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
