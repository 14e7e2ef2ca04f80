// Package ratelimit throttles inbound connections and dispatched
// actions, backed by Redis when available (so limits are shared across
// server instances) or in-memory otherwise, with a circuit breaker
// protecting the server from a slow or unavailable Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-labs/convene/internal/config"
	"github.com/fenwick-labs/convene/internal/logging"
	"github.com/fenwick-labs/convene/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// RateLimiter enforces a per-IP connect limit and a per-token action
// limit.
type RateLimiter struct {
	connect     *limiter.Limiter
	action      *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
	breaker     *gobreaker.CircuitBreaker
}

// NewRateLimiter builds a RateLimiter. redisClient may be nil, in
// which case limits are enforced against a process-local memory store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	connectRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsConnect)
	if err != nil {
		return nil, fmt.Errorf("invalid connect rate: %w", err)
	}

	actionRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsAction)
	if err != nil {
		return nil, fmt.Errorf("invalid action rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "convene:ratelimit:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-memory store (Redis disabled or unavailable)")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &RateLimiter{
		connect:     limiter.New(store, connectRate),
		action:      limiter.New(store, actionRate),
		store:       store,
		redisClient: redisClient,
		breaker:     breaker,
	}, nil
}

// get runs the limiter lookup through the circuit breaker, failing
// open (allowing the request) if the store is unreachable or the
// breaker is open.
func (rl *RateLimiter) get(ctx context.Context, inst *limiter.Limiter, key string) (limiter.Context, bool) {
	result, err := rl.breaker.Execute(func() (interface{}, error) {
		return inst.Get(ctx, key)
	})
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err), zap.String("key", key))
		metrics.CircuitBreakerFailures.WithLabelValues("ratelimit-store").Inc()
		return limiter.Context{}, false
	}
	return result.(limiter.Context), true
}

// CheckConnect enforces the per-IP connection-attempt limit. Returns
// true if the connection should be allowed.
func (rl *RateLimiter) CheckConnect(ctx context.Context, ip string) bool {
	lc, ok := rl.get(ctx, rl.connect, ip)
	if !ok {
		return true // fail open
	}
	metrics.RateLimitRequests.WithLabelValues("ws_connect").Inc()
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect", "ip").Inc()
		return false
	}
	return true
}

// CheckAction enforces the per-client-token dispatched-action limit.
func (rl *RateLimiter) CheckAction(ctx context.Context, token string) error {
	lc, ok := rl.get(ctx, rl.action, token)
	if !ok {
		return nil // fail open
	}
	metrics.RateLimitRequests.WithLabelValues("ws_action").Inc()
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_action", "token").Inc()
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}
