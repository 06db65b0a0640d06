// Package ratelimit implements the two rate-limiter variants the
// scheduling engine consults before pulling a batch of messages: a local,
// in-process token bucket and a shared, cache-backed token bucket for
// cross-process rate limiting. Both satisfy Limiter.
package ratelimit

import "context"

// Limiter is the stateless contract: init from a JSON config string, then
// ask whether one unit of work is allowed right now.
type Limiter interface {
	// Init parses configJSON and prepares the limiter. An uninitialized
	// limiter (Init never called, or Init failed) must fail open.
	Init(configJSON string) error

	// Allowed reports whether a single request may proceed right now.
	// Implementations must fail open (return true) on any internal
	// error rather than block forwarding.
	Allowed(ctx context.Context) bool

	// LastCallFailedOpen reports whether the most recent Allowed call
	// returned true because of a transport or timeout error rather
	// than a legitimate under-capacity decision. A limiter that never
	// fails open for that reason (e.g. the local, in-process variant)
	// always returns false.
	LastCallFailedOpen() bool
}
