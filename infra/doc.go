// Package infra contains technical adapters: the replay engine, SUMO output
// readers, MQTT publishing and metrics exporters. These packages should
// depend only on the interfaces defined in the core packages.
package infra
