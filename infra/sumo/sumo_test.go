package sumo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/trace"
)

func TestReadConfigResolvesOutputs(t *testing.T) {
	cfg, err := ReadConfig("testdata/run.sumocfg")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Begin)
	assert.Equal(t, 100.0, cfg.Duration())
	assert.Equal(t, filepath.Join("testdata", "chargingStationStats.xml"), cfg.ChargingOutput)
	assert.Equal(t, filepath.Join("testdata", "fcd.xml"), cfg.FCDOutput)
}

func TestReadConfigRequiresOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.sumocfg")
	doc := `<configuration><time><begin value="0"/><end value="10"/></time><output><fcd-output value="/abs/fcd.xml"/></output></configuration>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	_, err := ReadConfig(path)
	assert.ErrorIs(t, err, ErrMissingOutput)
}

func TestReadChargingEvents(t *testing.T) {
	f, err := os.Open("testdata/chargingStationStats.xml")
	require.NoError(t, err)
	defer f.Close()

	events, skipped, err := ReadChargingEvents(f)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, events, 2)
	assert.Equal(t, model.ChargingEvent{
		Station: model.MustStationID("cs_main_st_0"), Vehicle: "v1", Begin: 10, End: 40, Energy: 1200.5,
	}, events[0])
	assert.Equal(t, model.GroupID("main_st"), events[1].Station.Group)

	_, _, err = ReadChargingEvents(strings.NewReader("<chargingstations-export><chargingEvent"))
	assert.Error(t, err)
}

func TestReadFCD(t *testing.T) {
	f, err := os.Open("testdata/fcd.xml")
	require.NoError(t, err)
	defer f.Close()

	b := trace.NewBuilder(map[string]struct{}{"v1": {}})
	n, err := ReadFCD(f, b)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	ix := b.Build()
	assert.Equal(t, 1, ix.Vehicles())
	inZone := func(l string) bool { return strings.HasPrefix(l, "to_cs_main_st") || strings.HasPrefix(l, "cs_lanes_main_st") }
	entered, ok := ix.QueueEntryTime("v1", inZone, 10)
	require.True(t, ok)
	assert.Equal(t, 8.0, entered)
	// The bus is filtered out.
	assert.Equal(t, 0, ix.MaxStopped("to_cs_main_st_0", 0, 6))
}

func TestAnalyze(t *testing.T) {
	rep, err := Analyze("testdata/run.sumocfg", AnalyzeOptions{})
	require.NoError(t, err)

	st0 := rep.Stations["cs_main_st_0"]
	assert.Equal(t, 1, st0.Charging.Sessions)
	assert.Equal(t, 1200.5, st0.Charging.Energy)
	assert.Equal(t, 0.3, st0.Charging.Utilization)
	assert.Equal(t, 2.0, st0.WaitTime.Avg)
	assert.Equal(t, 1.0, st0.QueueLength.Avg)
	assert.Equal(t, []string{"v1"}, st0.Vehicles)

	g := rep.Groups["main_st"]
	assert.Equal(t, 2, g.Charging.Sessions)
	assert.Equal(t, 70.0, g.Charging.ChargingTime)
	assert.InDelta(t, 0.35, g.Charging.Utilization, 1e-9)
	assert.Equal(t, 6.0, g.WaitTime.Avg)
	assert.Equal(t, 10.0, g.WaitTime.P95)
	assert.Equal(t, 2, g.StationsUsed)
	assert.Zero(t, g.StationsTotal)

	assert.Equal(t, 100.0, rep.Totals.Duration)
	assert.Equal(t, 1, rep.Skipped.MalformedIDs)
	assert.Equal(t, 0, rep.Skipped.MissingTrace)
}

func TestAnalyzeWithPlannedGroupSize(t *testing.T) {
	rep, err := Analyze("testdata/run.sumocfg", AnalyzeOptions{GroupSize: 4})
	require.NoError(t, err)
	g := rep.Groups["main_st"]
	assert.Equal(t, 4, g.StationsTotal)
	assert.Equal(t, 0.5, g.StationsUsedRatio)
}
