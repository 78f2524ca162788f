// Package loader turns a tabular flow record source into a model.RecordTable.
package loader

import (
	"Go2NetProfile/internal/model"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Required column names of the record source.
const (
	ColTimestamp   = "timestamp"
	ColSrcIP       = "src_ip"
	ColDstIP       = "dst_ip"
	ColSrcPort     = "src_port"
	ColDstPort     = "dst_port"
	ColProtocol    = "protocol"
	ColBytes       = "bytes"
	ColAppCategory = "app_category"
	ColUser        = "user"
)

// Columns is the column contract in canonical order.
var Columns = []string{
	ColTimestamp, ColSrcIP, ColDstIP, ColSrcPort, ColDstPort,
	ColProtocol, ColBytes, ColAppCategory, ColUser,
}

// TimestampLayout is the primary timestamp format of the record source.
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{TimestampLayout, time.RFC3339, "2006-01-02T15:04:05"}

// ErrEmptyInput is returned together with an empty, valid table when the
// source holds a header but no records. It is a warning, not a failure.
var ErrEmptyInput = errors.New("record source contains no records")

// LoadError reports why a record source could not be loaded. No partial table
// is produced when it is returned.
type LoadError struct {
	Path   string
	Line   int    // 1-based line of the offending row, 0 when not row specific
	Column string // offending column, empty when not column specific
	Err    error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("failed to load records")
	if e.Path != "" {
		b.WriteString(" from " + e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d", e.Line)
		if e.Column != "" {
			fmt.Fprintf(&b, ", column %s", e.Column)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// Options tune how a record source is parsed.
type Options struct {
	// Location is used for timestamps without a zone. Defaults to UTC.
	Location *time.Location
	// SkipInvalidRows drops unparseable rows with a warning instead of
	// failing the whole load.
	SkipInvalidRows bool
	Logger          *zap.Logger
}

// Stats describes a finished load.
type Stats struct {
	Rows    int
	Loaded  int
	Skipped int
}

// Load opens the CSV file at path and parses it into a RecordTable.
func Load(path string, opts Options) (*model.RecordTable, Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, &LoadError{Path: path, Err: err}
	}
	defer file.Close()

	table, stats, err := Read(file, opts)
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		loadErr.Path = path
	}
	return table, stats, err
}

// Read parses CSV records from r into a RecordTable.
func Read(r io.Reader, opts Options) (*model.RecordTable, Stats, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Stats{}, &LoadError{Err: errors.New("missing header row")}
		}
		return nil, Stats{}, &LoadError{Line: 1, Err: err}
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, Stats{}, &LoadError{Line: 1, Err: err}
	}

	var stats Stats
	var records []model.FlowRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			if opts.SkipInvalidRows && errors.Is(err, csv.ErrFieldCount) {
				stats.Rows++
				stats.Skipped++
				logger.Warn("Skipping record with wrong field count", zap.Int("line", line))
				continue
			}
			// Any other CSV syntax error cannot be resynchronized.
			return nil, stats, &LoadError{Line: line, Err: err}
		}
		line, _ := reader.FieldPos(0)
		stats.Rows++

		record, column, err := parseRow(row, index, opts.Location)
		if err != nil {
			if opts.SkipInvalidRows {
				stats.Skipped++
				logger.Warn("Skipping invalid record", zap.Int("line", line), zap.String("column", column), zap.Error(err))
				continue
			}
			return nil, stats, &LoadError{Line: line, Column: column, Err: err}
		}
		records = append(records, record)
	}

	stats.Loaded = len(records)
	table := model.NewRecordTable(records)
	if stats.Loaded == 0 {
		return table, stats, ErrEmptyInput
	}
	return table, stats, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}
	var missing []string
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRow(row []string, index map[string]int, loc *time.Location) (model.FlowRecord, string, error) {
	field := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec model.FlowRecord
	var err error

	if rec.Timestamp, err = parseTimestamp(field(ColTimestamp), loc); err != nil {
		return rec, ColTimestamp, err
	}
	if rec.SrcPort, err = parsePort(field(ColSrcPort)); err != nil {
		return rec, ColSrcPort, err
	}
	if rec.DstPort, err = parsePort(field(ColDstPort)); err != nil {
		return rec, ColDstPort, err
	}
	if rec.Bytes, err = strconv.ParseInt(field(ColBytes), 10, 64); err != nil {
		return rec, ColBytes, fmt.Errorf("invalid byte count: %w", err)
	}
	if rec.Bytes < 0 {
		return rec, ColBytes, fmt.Errorf("negative byte count %d", rec.Bytes)
	}
	if rec.User = field(ColUser); rec.User == "" {
		return rec, ColUser, errors.New("empty user identity")
	}
	rec.SrcIP = field(ColSrcIP)
	rec.DstIP = field(ColDstIP)
	rec.Protocol = field(ColProtocol)
	rec.AppCategory = field(ColAppCategory)
	return rec, "", nil
}

func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q, expected %s", value, TimestampLayout)
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid port: %w", err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
