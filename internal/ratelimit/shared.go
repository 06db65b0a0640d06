package ratelimit

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/token_bucket.lua
var defaultTokenBucketScript string

const (
	defaultConnectTimeout  = 500 * time.Millisecond
	defaultScriptLoadTimeout = time.Second
	defaultCheckTimeout    = 100 * time.Millisecond
	connectMaxRetries      = 3
)

// scriptCache is the minimal slice of a distributed-cache client the
// shared limiter needs: load a server-side script and invoke it either
// by cached identifier or, as a one-shot fallback, inline. It exists so
// SharedLimiter never exposes a concrete client type, and so tests can
// swap in a fake or a miniredis-backed client.
type scriptCache interface {
	ScriptLoad(ctx context.Context, script string) (string, error)
	EvalSha(ctx context.Context, sha string, keys []string, args ...interface{}) (interface{}, error)
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	Close() error
}

// redisCache adapts github.com/redis/go-redis/v9 to scriptCache.
type redisCache struct {
	client *redis.Client
}

func dialRedisCache(address, password string) (*redisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		Password:    password,
		DialTimeout: defaultConnectTimeout,
		MaxRetries:  connectMaxRetries,
	})

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectMaxRetries)
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}, policy)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: shared: cannot reach cache at %s: %w", address, err)
	}
	return &redisCache{client: client}, nil
}

func (r *redisCache) ScriptLoad(ctx context.Context, script string) (string, error) {
	return r.client.ScriptLoad(ctx, script).Result()
}

func (r *redisCache) EvalSha(ctx context.Context, sha string, keys []string, args ...interface{}) (interface{}, error) {
	return r.client.EvalSha(ctx, sha, keys, args...).Result()
}

func (r *redisCache) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return r.client.Eval(ctx, script, keys, args...).Result()
}

func (r *redisCache) Close() error { return r.client.Close() }

// sharedConfig mirrors the shared limiter's JSON config shape from
// spec.md §6.
type sharedConfig struct {
	BucketKey     string  `json:"bucket_key"`
	Rate          float64 `json:"rate"`
	Burst         float64 `json:"burst"`
	ScriptPath    string  `json:"script_path"`
	RedisAddress  string  `json:"redis_address"`
	RedisPassword string  `json:"redis_password"`
}

// SharedLimiter delegates to a distributed cache service holding the
// token-bucket state, via a pre-registered server-side script with a
// raw-script fallback. Any transport failure, timeout, or unexpected
// reply fails open: the limiter is advisory, and availability of the
// relay matters more than strict cap enforcement during a cache outage.
type SharedLimiter struct {
	mu            sync.Mutex
	initialized   bool
	bucketKey     string
	ratePerSecond float64
	capacity      float64
	scriptBody    string
	scriptSHA     string
	cache         scriptCache
	checkTimeout  time.Duration
	dial          func(address, password string) (scriptCache, error)

	lastFailedOpen bool
}

// NewSharedLimiter returns a fresh, uninitialized SharedLimiter.
func NewSharedLimiter() *SharedLimiter {
	return &SharedLimiter{
		checkTimeout: defaultCheckTimeout,
		dial: func(address, password string) (scriptCache, error) {
			return dialRedisCache(address, password)
		},
	}
}

func (l *SharedLimiter) Init(configJSON string) error {
	var cfg sharedConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return fmt.Errorf("ratelimit: shared: invalid config: %w", err)
	}
	if strings.TrimSpace(cfg.BucketKey) == "" {
		return fmt.Errorf("ratelimit: shared: bucket_key is required")
	}
	if cfg.Rate <= 0 {
		return fmt.Errorf("ratelimit: shared: rate must be greater than 0, got %v", cfg.Rate)
	}
	if cfg.RedisAddress == "" {
		return fmt.Errorf("ratelimit: shared: redis_address is required")
	}

	script := defaultTokenBucketScript
	if cfg.ScriptPath != "" {
		data, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return fmt.Errorf("ratelimit: shared: cannot read script_path %q: %w", cfg.ScriptPath, err)
		}
		script = string(data)
	}

	cache, err := l.dial(cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		return err
	}

	loadCtx, cancel := context.WithTimeout(context.Background(), defaultScriptLoadTimeout)
	defer cancel()
	sha, err := cache.ScriptLoad(loadCtx, script)
	if err != nil {
		_ = cache.Close()
		return fmt.Errorf("ratelimit: shared: cannot load script: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.bucketKey = cfg.BucketKey
	l.ratePerSecond = cfg.Rate
	l.capacity = max(cfg.Burst, cfg.Rate)
	l.scriptBody = script
	l.scriptSHA = sha
	l.cache = cache
	l.initialized = true
	return nil
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (l *SharedLimiter) Allowed(ctx context.Context) bool {
	l.mu.Lock()
	initialized := l.initialized
	bucketKey := l.bucketKey
	ratePerSecond := l.ratePerSecond
	capacity := l.capacity
	scriptBody := l.scriptBody
	scriptSHA := l.scriptSHA
	cache := l.cache
	timeout := l.checkTimeout
	l.mu.Unlock()

	if !initialized {
		return true
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nowMs := time.Now().UnixMilli()
	reply, err := cache.EvalSha(callCtx, scriptSHA, []string{bucketKey}, ratePerSecond, capacity, nowMs)
	if err != nil && isNoScriptError(err) {
		// Exactly one fallback attempt with the raw script inlined, per
		// spec.md §9 (the source's unbounded retry is not reproduced).
		reply, err = cache.Eval(callCtx, scriptBody, []string{bucketKey}, ratePerSecond, capacity, nowMs)
	}
	if err != nil {
		l.setLastFailedOpen(true)
		return true // fail open
	}
	allowed, recognized := replyAllows(reply)
	l.setLastFailedOpen(!recognized)
	return allowed
}

func (l *SharedLimiter) setLastFailedOpen(v bool) {
	l.mu.Lock()
	l.lastFailedOpen = v
	l.mu.Unlock()
}

// LastCallFailedOpen reports whether the most recent Allowed call had
// to fail open because the cache was unreachable, timed out, or
// returned an unexpected reply, distinct from a legitimate denial
// (spec.md §8 scenario 6: the cache-unreachable case must be counted
// separately from an ordinary deny).
func (l *SharedLimiter) LastCallFailedOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastFailedOpen
}

func isNoScriptError(err error) bool {
	return strings.Contains(strings.ToUpper(err.Error()), "NOSCRIPT")
}

// replyAllows interprets the script's reply and reports whether it was
// a recognized 0/1 integer reply at all, so the caller can tell a
// legitimate decision apart from an unexpected reply shape that had to
// fail open.
func replyAllows(reply interface{}) (allowed, recognized bool) {
	switch v := reply.(type) {
	case int64:
		return v == 1, true
	case int:
		return v == 1, true
	default:
		return true, false // unexpected reply type: fail open
	}
}

// Close releases the underlying cache connection.
func (l *SharedLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache == nil {
		return nil
	}
	return l.cache.Close()
}
