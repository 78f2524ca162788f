package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordTable_DerivesFieldsAndIndexes(t *testing.T) {
	ts := time.Date(2024, 3, 9, 23, 15, 0, 0, time.UTC)
	table := NewRecordTable([]FlowRecord{
		{Timestamp: ts, User: "bob", Bytes: 10},
		{Timestamp: ts.Add(2 * time.Hour), User: "alice", Bytes: 20},
		{Timestamp: ts, User: "bob", Bytes: 30},
	})

	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"bob", "alice"}, table.Users(), "users are reported in first-seen order")

	first := table.Records()[0]
	assert.Equal(t, 23, first.Hour)
	assert.Equal(t, "2024-03-09", first.Date)

	second := table.Records()[1]
	assert.Equal(t, 1, second.Hour)
	assert.Equal(t, "2024-03-10", second.Date)

	bob := table.UserRecords("bob")
	require.Len(t, bob, 2)
	assert.Equal(t, int64(10), bob[0].Bytes)
	assert.Equal(t, int64(30), bob[1].Bytes)

	assert.Empty(t, table.UserRecords("nobody"))
}

func TestProfileMap_TagIndex(t *testing.T) {
	m := ProfileMap{
		"u2": {Tags: []string{"night-owl", "social"}},
		"u1": {Tags: []string{"social"}},
		"u3": {Tags: []string{}},
	}

	assert.Equal(t, []string{"u1", "u2", "u3"}, m.Users())
	assert.Equal(t, map[string][]string{
		"night-owl": {"u2"},
		"social":    {"u1", "u2"},
	}, m.TagIndex())
	assert.True(t, m["u2"].HasTag("night-owl"))
	assert.False(t, m["u1"].HasTag("night-owl"))
}

func TestRecordTable_NilIsEmpty(t *testing.T) {
	var table *RecordTable
	assert.Equal(t, 0, table.Len())
	assert.Nil(t, table.Users())
	assert.Nil(t, table.UserRecords("x"))
}
