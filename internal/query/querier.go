package query

import (
	"Go2NetProfile/internal/config"
	chwriter "Go2NetProfile/internal/writer/clickhouse"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const defaultHistoryLimit = 20

// TagCount is the number of users carrying a tag in the latest run.
type TagCount struct {
	Tag   string `json:"tag"`
	Users uint64 `json:"users"`
}

// HistoryEntry is one user's profile summary in one persisted run.
type HistoryEntry struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Tags        []string  `json:"tags"`
	TotalBytes  int64     `json:"total_bytes"`
	DNSQueries  int64     `json:"dns_queries"`
}

// Querier defines the interface for querying persisted profile history.
type Querier interface {
	TagCounts(ctx context.Context) ([]TagCount, error)
	UsersWithTag(ctx context.Context, tag string) ([]string, error)
	UserHistory(ctx context.Context, user string, limit int) ([]HistoryEntry, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := chwriter.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// latestRun selects the RunID of the most recent run.
const latestRun = "(SELECT argMax(RunID, GeneratedAt) FROM " + chwriter.TableName + ")"

func tagCountsQuery() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT tag, count() AS users FROM ")
	b.WriteString(chwriter.TableName)
	b.WriteString(" ARRAY JOIN Tags AS tag WHERE RunID = ")
	b.WriteString(latestRun)
	b.WriteString(" GROUP BY tag ORDER BY users DESC, tag ASC")
	return b.String(), nil
}

func usersWithTagQuery(tag string) (string, []any) {
	q := "SELECT User FROM " + chwriter.TableName +
		" WHERE RunID = " + latestRun + " AND has(Tags, ?) ORDER BY User"
	return q, []any{tag}
}

func userHistoryQuery(user string, limit int) (string, []any) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	q := "SELECT RunID, GeneratedAt, Tags, TotalBytes, DNSQueries FROM " + chwriter.TableName +
		" WHERE User = ? ORDER BY GeneratedAt DESC LIMIT ?"
	return q, []any{user, limit}
}

// TagCounts returns the tag distribution of the latest run.
func (q *clickhouseQuerier) TagCounts(ctx context.Context) ([]TagCount, error) {
	query, args := tagCountsQuery()
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var counts []TagCount
	for rows.Next() {
		var c TagCount
		if err := rows.Scan(&c.Tag, &c.Users); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// UsersWithTag returns the users carrying tag in the latest run.
func (q *clickhouseQuerier) UsersWithTag(ctx context.Context, tag string) ([]string, error) {
	query, args := usersWithTagQuery(tag)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UserHistory returns a user's most recent runs, newest first.
func (q *clickhouseQuerier) UserHistory(ctx context.Context, user string, limit int) ([]HistoryEntry, error) {
	query, args := userHistoryQuery(user, limit)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.RunID, &e.GeneratedAt, &e.Tags, &e.TotalBytes, &e.DNSQueries); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
