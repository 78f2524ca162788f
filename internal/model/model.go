package model

import (
	"time"
)

// DateLayout is the calendar date format used for daily aggregates.
const DateLayout = "2006-01-02"

// FlowRecord holds one logged network transfer event attributed to a user.
type FlowRecord struct {
	Timestamp   time.Time
	SrcIP       string
	DstIP       string
	SrcPort     int
	DstPort     int
	Protocol    string
	Bytes       int64
	AppCategory string
	User        string

	// Derived from Timestamp when the record enters a RecordTable.
	Hour int
	Date string
}

// RecordTable is the full, arrival-ordered collection of flow records for one
// analysis run. It is read-only once built.
type RecordTable struct {
	records []FlowRecord
	users   []string
	byUser  map[string][]int
}

// NewRecordTable builds a table from records, deriving the hour and date
// fields and indexing records by user in first-seen order.
func NewRecordTable(records []FlowRecord) *RecordTable {
	t := &RecordTable{
		records: make([]FlowRecord, len(records)),
		byUser:  make(map[string][]int),
	}
	for i, r := range records {
		r.Hour = r.Timestamp.Hour()
		r.Date = r.Timestamp.Format(DateLayout)
		t.records[i] = r

		if _, seen := t.byUser[r.User]; !seen {
			t.users = append(t.users, r.User)
		}
		t.byUser[r.User] = append(t.byUser[r.User], i)
	}
	return t
}

// Len returns the number of records in the table.
func (t *RecordTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Records returns the records in arrival order. Callers must not modify the
// returned slice.
func (t *RecordTable) Records() []FlowRecord {
	if t == nil {
		return nil
	}
	return t.records
}

// Users returns the distinct user identities in first-seen order.
func (t *RecordTable) Users() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.users))
	copy(out, t.users)
	return out
}

// UserRecords returns a copy of the subset of records belonging to user.
// An unknown user yields an empty subset.
func (t *RecordTable) UserRecords(user string) []FlowRecord {
	if t == nil {
		return nil
	}
	idx := t.byUser[user]
	out := make([]FlowRecord, len(idx))
	for i, j := range idx {
		out[i] = t.records[j]
	}
	return out
}
