// Package metrics defines the sinks that observe a simulation run. A sink
// receives every closed charging session and the per-group power
// allocation of each tick. Sinks are built from configuration through a
// factory registry; several configured sinks are combined in a MultiSink.
// Concrete sinks (Prometheus, InfluxDB, MQTT) live in infra packages and
// register themselves on import.
package metrics
