package report

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargesim/core/stats"
)

func sample() *Report {
	return &Report{
		RunID: "run-1",
		Stations: map[string]StationReport{
			"cs_e1_0": {Sessions: 1, SearchTime: stats.Summary{Count: 1, Avg: 41.666666, P95: 41.666666}},
		},
		Groups: map[string]GroupReport{
			"e1": {PercentRerouteOut: 1.0 / 3, Power: PowerSummary{Mean: 3.14159}},
		},
		Totals: Totals{Duration: 99.999, Charging: Charging{Utilization: 0.123456}},
	}
}

func TestRound(t *testing.T) {
	r := sample()
	r.Round(2)
	assert.Equal(t, 41.67, r.Stations["cs_e1_0"].SearchTime.Avg)
	assert.Equal(t, 0.33, r.Groups["e1"].PercentRerouteOut)
	assert.Equal(t, 3.14, r.Groups["e1"].Power.Mean)
	assert.Equal(t, 100.0, r.Totals.Duration)
	assert.Equal(t, 0.12, r.Totals.Charging.Utilization)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	for _, key := range []string{"per_station", "per_group", "totals", "skipped"} {
		assert.Contains(t, out, key)
	}
}

func TestJSONLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now()
	first := sample()
	second := sample()
	second.RunID = "run-2"
	require.NoError(t, store.Append(ctx, Record{Timestamp: now, Labels: map[string]string{"placement": "a"}, Report: first}))
	require.NoError(t, store.Append(ctx, Record{Timestamp: now.Add(time.Minute), Labels: map[string]string{"placement": "b"}, Report: second}))

	all, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byID, err := store.Query(ctx, Query{RunID: "run-2"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "b", byID[0].Labels["placement"])

	byLabel, err := store.Query(ctx, Query{Labels: map[string]string{"placement": "a"}})
	require.NoError(t, err)
	require.Len(t, byLabel, 1)
	assert.Equal(t, "run-1", byLabel[0].Report.RunID)

	late, err := store.Query(ctx, Query{Start: now.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, late, 1)
}
