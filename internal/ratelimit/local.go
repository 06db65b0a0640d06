package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// localConfig mirrors the local limiter's JSON config shape from spec.md §6:
// {"rate": <number>, "burst": <number, optional>}.
type localConfig struct {
	Rate  float64 `json:"rate"`
	Burst float64 `json:"burst"`
}

// LocalLimiter is an in-process token bucket, built over
// golang.org/x/time/rate (which already performs monotonic-clock
// refill-then-consume against a capacity ceiling — exactly the algorithm
// spec.md §4.4 describes). An uninitialized LocalLimiter fails open.
type LocalLimiter struct {
	mu            sync.Mutex
	initialized   bool
	ratePerSecond float64
	capacity      float64
	rl            *rate.Limiter
}

// NewLocalLimiter returns a fresh, uninitialized LocalLimiter.
func NewLocalLimiter() *LocalLimiter { return &LocalLimiter{} }

func (l *LocalLimiter) Init(configJSON string) error {
	var cfg localConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return fmt.Errorf("ratelimit: local: invalid config: %w", err)
	}
	if cfg.Rate <= 0 {
		return fmt.Errorf("ratelimit: local: rate must be greater than 0, got %v", cfg.Rate)
	}
	capacity := math.Max(cfg.Burst, cfg.Rate)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ratePerSecond = cfg.Rate
	l.capacity = capacity
	// x/time/rate's burst is an integer token count; round the capacity up
	// so the configured burst is never under-granted.
	burstTokens := int(math.Ceil(capacity))
	if burstTokens < 1 {
		burstTokens = 1
	}
	l.rl = rate.NewLimiter(rate.Limit(cfg.Rate), burstTokens)
	l.initialized = true
	return nil
}

func (l *LocalLimiter) Allowed(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return true
	}
	return l.rl.Allow()
}

// LastCallFailedOpen is always false: the local limiter has no
// transport to fail against, so a true result is always a legitimate
// under-capacity decision (or the uninitialized-limiter default).
func (l *LocalLimiter) LastCallFailedOpen() bool { return false }

// Capacity and RatePerSecond expose the resolved config for tests and
// observability; both are zero until Init succeeds.
func (l *LocalLimiter) Capacity() float64      { l.mu.Lock(); defer l.mu.Unlock(); return l.capacity }
func (l *LocalLimiter) RatePerSecond() float64 { l.mu.Lock(); defer l.mu.Unlock(); return l.ratePerSecond }
