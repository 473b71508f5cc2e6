// Package metrics defines the sinks that record tender decisions, bid intake
// and event delivery. Sinks such as PromSink and InfluxSink live in
// infra/metrics and register themselves by name; NewMetricsSink builds the
// configured ones and fans out through a MultiSink when several are listed.
// Recorders beyond MetricsSink are optional and discovered by type assertion.
package metrics
