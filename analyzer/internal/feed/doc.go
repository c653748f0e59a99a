// Package feed implements the synthetic result producer for
// labtriage-analyzer.
//
// A Feed draws random samples from the configured patient pool and test
// ranges and submits them to labtriage-server over HTTP, one per interval.
// Value formatting intentionally alternates between "." and "," decimal
// separators to exercise server-side normalization, the way real analyzer
// firmware localized to different regions does.
//
// Delivery is fire-and-forget per sample: a failed submission is dropped,
// never retried, and the next cycle produces a fresh sample. Consecutive
// failures stretch the wait before the next attempt with truncated
// exponential backoff, resetting on the first success.
//
// Feed.Update swaps in a reloaded configuration while Run is live: patient
// pool, test ranges, endpoint, auth, and interval all follow the new config
// from the next cycle.
package feed
