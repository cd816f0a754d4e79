// Package factory is a small generic registry used to build pluggable
// components (metrics sinks, publishers) from configuration. A module is
// described by a type name and a map of raw settings which factories decode
// into their own typed structs.
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	_ = reg.Register("nop", func(map[string]any) (metrics.MetricsSink, error) {
//	    return metrics.NopSink{}, nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "nop"})
package factory
