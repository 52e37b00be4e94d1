// Package energy turns a stream of instantaneous power samples into hourly
// energy buckets.
//
// Samples are integrated with the previous reading held constant until the
// next one arrives, split at every UTC hour boundary. Buckets older than
// HourlyRetentionDays are folded into daily totals and a weekday/hour usage
// pattern by AggregateAndPruneHistory. All functions operate on an explicit
// *State owned by the caller; nothing in this package is safe for concurrent
// use without external locking.
package energy
