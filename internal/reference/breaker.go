package reference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds configuration for the per-server circuit breakers
type BreakerConfig struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which counts
	// are cleared
	Interval time.Duration

	// Timeout is the period of the open state before going half-open
	Timeout time.Duration

	// ReadyToTrip decides, on a failure in the closed state, whether to open
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerConfig opens after three requests with at least 60% failures
func DefaultBreakerConfig() BreakerConfig {
	return NewBreakerConfig(3, 10*time.Minute, 5*time.Minute, 0.6)
}

// NewBreakerConfig creates a breaker config with a failure ratio threshold
func NewBreakerConfig(maxRequests uint32, interval, timeout time.Duration, failureThreshold float64) BreakerConfig {
	return BreakerConfig{
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= failureThreshold
		},
	}
}

// BreakerClient wraps a Querier with one circuit breaker per server
type BreakerClient struct {
	querier  Querier
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
	config   BreakerConfig
}

// NewBreakerClient creates a breaker protected querier
func NewBreakerClient(querier Querier, config BreakerConfig) *BreakerClient {
	if config.MaxRequests == 0 {
		config = DefaultBreakerConfig()
	}

	return &BreakerClient{
		querier:  querier,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
	}
}

func (b *BreakerClient) breakerFor(server string) *gobreaker.CircuitBreaker {
	b.mu.RLock()
	breaker, exists := b.breakers[server]
	b.mu.RUnlock()

	if exists {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if breaker, exists := b.breakers[server]; exists {
		return breaker
	}

	breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        server,
		MaxRequests: b.config.MaxRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.Timeout,
		ReadyToTrip: b.config.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.SafeWarn("reference", "Reference breaker state changed", map[string]interface{}{
				"server": name,
				"from":   from.String(),
				"to":     to.String(),
			})
		},
	})

	b.breakers[server] = breaker
	return breaker
}

// Query performs one query through the server's breaker
func (b *BreakerClient) Query(ctx context.Context, server string) (*Response, error) {
	result, err := b.breakerFor(server).Execute(func() (interface{}, error) {
		return b.querier.Query(ctx, server)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open for %s: %w", server, err)
		}
		return nil, err
	}

	return result.(*Response), nil
}

// State returns the breaker state for server, closed when never queried
func (b *BreakerClient) State(server string) gobreaker.State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	breaker, exists := b.breakers[server]
	if !exists {
		return gobreaker.StateClosed
	}
	return breaker.State()
}

// States returns the state of every known breaker
func (b *BreakerClient) States() map[string]gobreaker.State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]gobreaker.State, len(b.breakers))
	for server, breaker := range b.breakers {
		states[server] = breaker.State()
	}
	return states
}
