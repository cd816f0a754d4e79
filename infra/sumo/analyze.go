package sumo

import (
	"fmt"
	"os"

	"github.com/kilianp07/chargesim/core/logger"
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/report"
	"github.com/kilianp07/chargesim/core/sessionmetrics"
	"github.com/kilianp07/chargesim/core/trace"
)

// AnalyzeOptions tunes the offline analysis.
type AnalyzeOptions struct {
	// GroupSize is the planned number of points per group. Zero infers it
	// from the points seen in the charging events and omits the
	// stations-used ratio.
	GroupSize  int
	Percentile float64
	Log        logger.Logger
}

// Analyze computes the charging report of a finished SUMO run from the
// outputs declared in its .sumocfg.
func Analyze(cfgPath string, opts AnalyzeOptions) (*report.Report, error) {
	if opts.Log == nil {
		opts.Log = logger.Nop{}
	}
	if opts.Percentile == 0 {
		opts.Percentile = 95
	}
	cfg, err := ReadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	events, malformed, err := readEvents(cfg.ChargingOutput)
	if err != nil {
		return nil, err
	}
	opts.Log.Infof("read %d charging events from %s (%d skipped)", len(events), cfg.ChargingOutput, malformed)

	var sizes map[model.GroupID]int
	if opts.GroupSize > 0 {
		sizes = make(map[model.GroupID]int)
		for _, ev := range events {
			sizes[ev.Station.Group] = opts.GroupSize
		}
	}
	c := sessionmetrics.New(sessionmetrics.WithPercentile(opts.Percentile), sessionmetrics.WithGroupSizes(sizes))

	vehicles := make(map[string]struct{}, len(events))
	for _, ev := range events {
		c.RecordCharging(ev)
		vehicles[ev.Vehicle] = struct{}{}
	}

	b := trace.NewBuilder(vehicles)
	f, err := os.Open(cfg.FCDOutput)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	n, err := ReadFCD(f, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.FCDOutput, err)
	}
	opts.Log.Infof("read %d fcd samples from %s", n, cfg.FCDOutput)

	missing := trace.Estimate(events, b.Build(), sizes, c)
	c.Skip(report.Skipped{MalformedIDs: malformed, MissingTrace: missing})
	return c.Finalize(cfg.Duration()), nil
}

func readEvents(path string) ([]model.ChargingEvent, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	events, skipped, err := ReadChargingEvents(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return events, skipped, nil
}
