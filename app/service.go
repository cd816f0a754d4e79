package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/chargesim/config"
	coremetrics "github.com/kilianp07/chargesim/core/metrics"
	"github.com/kilianp07/chargesim/core/report"
	"github.com/kilianp07/chargesim/core/run"
	"github.com/kilianp07/chargesim/infra/logger"
	"github.com/kilianp07/chargesim/infra/metrics"
	"github.com/kilianp07/chargesim/infra/replay"
	"github.com/kilianp07/chargesim/internal/eventbus"
	"github.com/kilianp07/chargesim/pkg/export"
)

// Service wires one simulation run: the replay engine, metrics sinks, the
// event bus and the report outputs.
type Service struct {
	cfg      *config.Config
	scenario *replay.Scenario
	eng      *replay.Engine
	runner   *run.Runner
	sink     coremetrics.MetricsSink
	bus      *eventbus.Bus
	registry *prometheus.Registry
	store    report.Store
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	sc, err := replay.Load(cfg.Simulation.Scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if cfg.Simulation.StepSeconds > 0 {
		sc.Step = cfg.Simulation.StepSeconds
	}

	reg := prometheus.NewRegistry()
	sink, err := coremetrics.NewMetricsSink(metrics.WithRegisterer(cfg.Metrics.Sinks, reg))
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		scenario: sc,
		eng:      replay.New(sc, logger.New("replay")),
		sink:     sink,
		bus:      eventbus.New(),
		registry: reg,
		log:      logg,
	}
	if cfg.Report.StorePath != "" {
		store, err := report.NewJSONLStore(cfg.Report.StorePath)
		if err != nil {
			svc.closeSinks()
			return nil, fmt.Errorf("report store: %w", err)
		}
		svc.store = store
	}

	opts := []run.Option{
		run.WithSink(sink),
		run.WithBus(svc.bus),
		run.WithLogger(logger.New("runner")),
		run.WithStep(sc.Step),
		run.WithPercentile(cfg.Report.Percentile),
		run.WithGroupSize(cfg.Simulation.CSSize),
	}
	if cfg.Report.Precision != nil {
		opts = append(opts, run.WithPrecision(*cfg.Report.Precision))
	}
	svc.runner = run.New(svc.eng, opts...)
	return svc, nil
}

// Registry exposes the collectors of the prometheus sinks.
func (s *Service) Registry() *prometheus.Registry { return s.registry }

// Run replays the scenario, then writes the report outputs. It returns the
// report even when an output could not be written.
func (s *Service) Run(ctx context.Context) (*report.Report, error) {
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(serveCtx, addr, s.registry, logger.New("prometheus")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	done := metrics.StartEventCollector(serveCtx, s.bus, runRecorder(s.sink), logger.New("events"))
	rep, err := s.runner.Run(ctx)
	s.bus.Close()
	<-done
	if dropped := s.bus.Dropped(); dropped > 0 {
		s.log.Warnf("event bus dropped %d events", dropped)
	}
	if err != nil {
		return nil, err
	}
	return rep, s.writeOutputs(ctx, rep)
}

func (s *Service) writeOutputs(ctx context.Context, rep *report.Report) error {
	var errs []error
	if err := writeFile(s.cfg.Report.Output, func(f *os.File) error { return report.WriteJSON(f, rep) }); err != nil {
		errs = append(errs, fmt.Errorf("write report: %w", err))
	} else {
		s.log.Infof("report written to %s", s.cfg.Report.Output)
	}
	if s.cfg.Report.CSV != "" {
		if err := writeFile(s.cfg.Report.CSV, func(f *os.File) error { return export.WriteStationsCSV(f, rep) }); err != nil {
			errs = append(errs, fmt.Errorf("write csv: %w", err))
		}
	}
	if s.store != nil {
		rec := report.Record{Timestamp: rep.Created, Report: rep}
		if s.scenario.Name != "" {
			rec.Labels = map[string]string{"scenario": s.scenario.Name}
		}
		if err := s.store.Append(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("store report: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the engine, the sinks and the store.
func (s *Service) Close() error {
	s.closeSinks()
	var errs []error
	if err := s.eng.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type closer interface{ Close() }

func (s *Service) closeSinks() {
	for _, sink := range flatten(s.sink) {
		if c, ok := sink.(closer); ok {
			c.Close()
		}
	}
}

func runRecorder(sink coremetrics.MetricsSink) metrics.RunRecorder {
	for _, s := range flatten(sink) {
		if r, ok := s.(metrics.RunRecorder); ok {
			return r
		}
	}
	return nil
}

func flatten(sink coremetrics.MetricsSink) []coremetrics.MetricsSink {
	if m, ok := sink.(*coremetrics.MultiSink); ok {
		return m.Sinks
	}
	return []coremetrics.MetricsSink{sink}
}

func writeFile(path string, write func(*os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
