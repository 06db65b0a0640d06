package ratelimit

import "bufferbridge/internal/registry"

// Builtin is the process-wide registry of rate-limiter constructors,
// keyed by the rate_limiter_type named in a scheduler's YAML config.
// Mirrors the source's brpc::Extension<IRateLimiter> lookup, minus the
// prototype-clone indirection: Go closures construct a fresh instance
// directly.
var Builtin = registry.New[Limiter]()

func init() {
	Builtin.Register("local", func() Limiter { return NewLocalLimiter() })
	Builtin.Register("shared", func() Limiter { return NewSharedLimiter() })
}
