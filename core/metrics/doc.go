// Package metrics defines the sinks the plan engine reports to. Sinks such
// as PromSink and InfluxSink record plan cycles, metered power, actuation
// results and shortfall transitions and can be combined with NewMultiSink.
// The factory helpers return a MultiSink automatically when several sinks
// are configured.
package metrics
