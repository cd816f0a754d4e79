package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/chargesim/core/logger"
	coremetrics "github.com/kilianp07/chargesim/core/metrics"
	infralog "github.com/kilianp07/chargesim/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes sessions and group allocations to an InfluxDB instance
// using the official client. Simulated seconds are mapped onto wall clock
// time from the sink's epoch.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	epoch    time.Time
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		epoch:    time.Now().UTC().Truncate(time.Second),
		log:      infralog.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) at(simTime float64) time.Time {
	return s.epoch.Add(time.Duration(simTime * float64(time.Second)))
}

// RecordSession writes one charging_session point.
func (s *InfluxSink) RecordSession(ev coremetrics.SessionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess := ev.Session
	p := write.NewPointWithMeasurement("charging_session").
		AddTag("run_id", ev.RunID).
		AddTag("group", string(sess.Destination.Group)).
		AddTag("station", sess.Destination.String()).
		AddTag("rerouted", strconv.FormatBool(sess.Reroute != nil)).
		AddField("vehicle", sess.Vehicle).
		AddField("search_s", round3(sess.SearchDuration))
	if r := sess.Reroute; r != nil {
		p = p.AddTag("origin_group", string(r.Origin.Group)).
			AddField("reroute_s", round3(r.Duration))
	}
	p = p.SetTime(s.at(ev.Time))
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAllocation writes one group_allocation point and one
// point_allocation point per occupant.
func (s *InfluxSink) RecordAllocation(ev coremetrics.AllocationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ts := s.at(ev.Time)
	points := make([]*write.Point, 0, len(ev.Allocations)+1)
	points = append(points, write.NewPointWithMeasurement("group_allocation").
		AddTag("run_id", ev.RunID).
		AddTag("group", string(ev.Load.Group)).
		AddField("cap_w", round3(ev.Load.Cap)).
		AddField("demand_w", round3(ev.Load.Demand)).
		AddField("delivered_w", round3(ev.Load.Delivered)).
		AddField("factor", round3(ev.Load.Factor)).
		AddField("occupants", ev.Load.Occupants).
		SetTime(ts))
	for _, a := range ev.Allocations {
		points = append(points, write.NewPointWithMeasurement("point_allocation").
			AddTag("run_id", ev.RunID).
			AddTag("station", a.Station.String()).
			AddTag("limit", string(a.Limit)).
			AddField("vehicle", a.Vehicle).
			AddField("base_w", round3(a.Base)).
			AddField("delivered_w", round3(a.Delivered)).
			SetTime(ts))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
