package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/chargesim/core/factory"
	coremetrics "github.com/kilianp07/chargesim/core/metrics"
)

// RegistererKey is the conf key of a prometheus sink holding the
// prometheus.Registerer its collectors go to. Without it the default
// registerer is used.
const RegistererKey = "registerer"

// WithRegisterer returns a copy of cfgs where every prometheus sink
// registers into reg.
func WithRegisterer(cfgs []factory.ModuleConfig, reg prometheus.Registerer) []factory.ModuleConfig {
	out := make([]factory.ModuleConfig, len(cfgs))
	for i, c := range cfgs {
		if c.Type == "prometheus" {
			c.Conf = factory.Merge(c.Conf, map[string]any{RegistererKey: reg})
		}
		out[i] = c
	}
	return out
}

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		reg, _ := conf[RegistererKey].(prometheus.Registerer)
		return NewPromSinkWithRegistry(reg)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
