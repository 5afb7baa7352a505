package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/flexprep/pkg/runlog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupJournal creates a journal client backed by miniredis
func setupJournal(t *testing.T) *runlog.Client {
	mr := miniredis.RunT(t)

	jClient, err := runlog.NewClient(&redis.Options{Addr: mr.Addr()}, "test-bench")
	require.NoError(t, err)
	t.Cleanup(func() { jClient.Close() })

	return jClient
}

// testRun builds a completed run record with a fixed identity for assertions
func testRun(id string, protocol runlog.Protocol, status runlog.RunStatus, startedAtMs int64) *runlog.RunRecord {
	record := &runlog.RunRecord{
		ID:          id,
		Workcell:    "test-bench",
		Protocol:    protocol,
		Name:        "batch",
		Status:      status,
		Mixes:       12,
		StartedAtMs: startedAtMs,
		Steps:       40,
		TipsUsed:    map[string]int{},
	}
	if status != runlog.RunStatusRunning {
		record.EndedAtMs = startedAtMs + 90_000
	}
	return record
}

// parseJSONL splits JSONL output into run records
func parseJSONL(t *testing.T, output string) []*runlog.RunRecord {
	var records []*runlog.RunRecord
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		var record runlog.RunRecord
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		records = append(records, &record)
	}
	return records
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()

	t.Run("empty journal - default format", func(t *testing.T) {
		jClient := setupJournal(t)

		var buf bytes.Buffer
		err := ListRuns(ctx, jClient, OutputFormatDefault, nil, &buf)
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "No runs found for workcell 'test-bench'")
	})

	t.Run("single run - default format", func(t *testing.T) {
		jClient := setupJournal(t)

		run := testRun("550e8400-e29b-41d4-a716-446655440000", runlog.ProtocolMix, runlog.RunStatusCompleted, 1724567890000)
		require.NoError(t, jClient.CreateRun(ctx, run))

		var buf bytes.Buffer
		err := ListRuns(ctx, jClient, OutputFormatDefault, nil, &buf)
		require.NoError(t, err)

		output := buf.String()
		assert.Contains(t, output, "Runs for workcell 'test-bench'")
		assert.Contains(t, output, "550e8400")
		assert.Contains(t, output, "mix")
		assert.Contains(t, output, "completed")
		assert.Contains(t, output, "1 run found")
	})

	t.Run("multiple runs - JSONL format", func(t *testing.T) {
		jClient := setupJournal(t)

		run1 := testRun("550e8400-e29b-41d4-a716-446655440001", runlog.ProtocolMix, runlog.RunStatusCompleted, 1724567890000)
		run2 := testRun("550e8400-e29b-41d4-a716-446655440002", runlog.ProtocolAliquot, runlog.RunStatusCompleted, 1724567990000)
		require.NoError(t, jClient.CreateRun(ctx, run1))
		require.NoError(t, jClient.CreateRun(ctx, run2))

		var buf bytes.Buffer
		err := ListRuns(ctx, jClient, OutputFormatJSONL, nil, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 2)
		assert.Equal(t, run1.ID, records[0].ID)
		assert.Equal(t, run2.ID, records[1].ID)
	})

	t.Run("runs sorted by start time", func(t *testing.T) {
		jClient := setupJournal(t)

		// Create out of chronological order
		late := testRun("ccccc400-e29b-41d4-a716-446655440000", runlog.ProtocolMix, runlog.RunStatusCompleted, 3000)
		early := testRun("aaaaa400-e29b-41d4-a716-446655440000", runlog.ProtocolMix, runlog.RunStatusCompleted, 1000)
		middle := testRun("bbbbb400-e29b-41d4-a716-446655440000", runlog.ProtocolMix, runlog.RunStatusCompleted, 2000)
		for _, r := range []*runlog.RunRecord{late, early, middle} {
			require.NoError(t, jClient.CreateRun(ctx, r))
		}

		var buf bytes.Buffer
		err := ListRuns(ctx, jClient, OutputFormatJSONL, nil, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 3)
		assert.Equal(t, early.ID, records[0].ID)
		assert.Equal(t, middle.ID, records[1].ID)
		assert.Equal(t, late.ID, records[2].ID)
	})

	t.Run("filters by protocol", func(t *testing.T) {
		jClient := setupJournal(t)

		mix := testRun("550e8400-e29b-41d4-a716-446655440001", runlog.ProtocolMix, runlog.RunStatusCompleted, 1000)
		aliquot := testRun("550e8400-e29b-41d4-a716-446655440002", runlog.ProtocolAliquot, runlog.RunStatusCompleted, 2000)
		require.NoError(t, jClient.CreateRun(ctx, mix))
		require.NoError(t, jClient.CreateRun(ctx, aliquot))

		var buf bytes.Buffer
		filters := &FilterCriteria{Protocol: "aliquot"}
		err := ListRuns(ctx, jClient, OutputFormatJSONL, filters, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 1)
		assert.Equal(t, aliquot.ID, records[0].ID)
	})

	t.Run("filters by status", func(t *testing.T) {
		jClient := setupJournal(t)

		completed := testRun("550e8400-e29b-41d4-a716-446655440001", runlog.ProtocolMix, runlog.RunStatusCompleted, 1000)
		failed := testRun("550e8400-e29b-41d4-a716-446655440002", runlog.ProtocolMix, runlog.RunStatusFailed, 2000)
		require.NoError(t, jClient.CreateRun(ctx, completed))
		require.NoError(t, jClient.CreateRun(ctx, failed))

		var buf bytes.Buffer
		filters := &FilterCriteria{Status: "failed"}
		err := ListRuns(ctx, jClient, OutputFormatJSONL, filters, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 1)
		assert.Equal(t, failed.ID, records[0].ID)
	})

	t.Run("filters by since timestamp", func(t *testing.T) {
		jClient := setupJournal(t)

		old := testRun("550e8400-e29b-41d4-a716-446655440001", runlog.ProtocolMix, runlog.RunStatusCompleted, 1000)
		recent := testRun("550e8400-e29b-41d4-a716-446655440002", runlog.ProtocolMix, runlog.RunStatusCompleted, 5000)
		require.NoError(t, jClient.CreateRun(ctx, old))
		require.NoError(t, jClient.CreateRun(ctx, recent))

		var buf bytes.Buffer
		filters := &FilterCriteria{SinceTimestampMs: 3000}
		err := ListRuns(ctx, jClient, OutputFormatJSONL, filters, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 1)
		assert.Equal(t, recent.ID, records[0].ID)
	})

	t.Run("filters by until timestamp", func(t *testing.T) {
		jClient := setupJournal(t)

		old := testRun("550e8400-e29b-41d4-a716-446655440001", runlog.ProtocolMix, runlog.RunStatusCompleted, 1000)
		recent := testRun("550e8400-e29b-41d4-a716-446655440002", runlog.ProtocolMix, runlog.RunStatusCompleted, 5000)
		require.NoError(t, jClient.CreateRun(ctx, old))
		require.NoError(t, jClient.CreateRun(ctx, recent))

		var buf bytes.Buffer
		filters := &FilterCriteria{UntilTimestampMs: 3000}
		err := ListRuns(ctx, jClient, OutputFormatJSONL, filters, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 1)
		assert.Equal(t, old.ID, records[0].ID)
	})

	t.Run("combined filters are ANDed", func(t *testing.T) {
		jClient := setupJournal(t)

		match := testRun("550e8400-e29b-41d4-a716-446655440001", runlog.ProtocolMix, runlog.RunStatusFailed, 5000)
		wrongStatus := testRun("550e8400-e29b-41d4-a716-446655440002", runlog.ProtocolMix, runlog.RunStatusCompleted, 5000)
		tooOld := testRun("550e8400-e29b-41d4-a716-446655440003", runlog.ProtocolMix, runlog.RunStatusFailed, 1000)
		for _, r := range []*runlog.RunRecord{match, wrongStatus, tooOld} {
			require.NoError(t, jClient.CreateRun(ctx, r))
		}

		var buf bytes.Buffer
		filters := &FilterCriteria{Status: "failed", SinceTimestampMs: 3000}
		err := ListRuns(ctx, jClient, OutputFormatJSONL, filters, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 1)
		assert.Equal(t, match.ID, records[0].ID)
	})

	t.Run("invalid output format", func(t *testing.T) {
		jClient := setupJournal(t)

		var buf bytes.Buffer
		err := ListRuns(ctx, jClient, OutputFormat("invalid"), nil, &buf)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})

	t.Run("skips malformed run records", func(t *testing.T) {
		jClient := setupJournal(t)

		valid := testRun("550e8400-e29b-41d4-a716-446655440000", runlog.ProtocolMix, runlog.RunStatusCompleted, 1000)
		require.NoError(t, jClient.CreateRun(ctx, valid))

		// Manually create a malformed record in Redis (missing numeric fields)
		malformedKey := "flexprep:test-bench:run:malformed-id"
		jClient.RedisClient().HSet(ctx, malformedKey, "id", "malformed-id")

		var buf bytes.Buffer
		err := ListRuns(ctx, jClient, OutputFormatJSONL, nil, &buf)
		require.NoError(t, err)

		records := parseJSONL(t, buf.String())
		require.Len(t, records, 1)
		assert.Equal(t, valid.ID, records[0].ID)
	})
}
