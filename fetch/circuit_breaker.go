// Package fetch guards registry metadata lookups with per-registry circuit
// breakers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/internal/core"
)

// ErrUpstreamDown is wrapped by lookups rejected while a breaker is open.
var ErrUpstreamDown = errors.New("upstream registry unavailable")

const (
	defaultThreshold       = 5
	defaultInitialInterval = 30 * time.Second
	defaultMaxInterval     = 5 * time.Minute
)

// Lookup fetches flattened metadata for a package name.
type Lookup interface {
	FetchMetadata(ctx context.Context, name string) (*core.Metadata, error)
}

// CircuitBreakers holds one circuit breaker per registry host.
type CircuitBreakers struct {
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex

	threshold       int64
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          *zap.Logger
}

// Option configures CircuitBreakers.
type Option func(*CircuitBreakers)

// WithThreshold sets the number of consecutive failures that trips a breaker.
func WithThreshold(n int64) Option {
	return func(cb *CircuitBreakers) {
		cb.threshold = n
	}
}

// WithBackOff sets the initial and maximum reopen intervals.
func WithBackOff(initial, maxInterval time.Duration) Option {
	return func(cb *CircuitBreakers) {
		cb.initialInterval = initial
		cb.maxInterval = maxInterval
	}
}

// WithLogger sets the logger used for trip notifications.
func WithLogger(l *zap.Logger) Option {
	return func(cb *CircuitBreakers) {
		cb.logger = l
	}
}

// NewCircuitBreakers creates an empty breaker set.
func NewCircuitBreakers(opts ...Option) *CircuitBreakers {
	cb := &CircuitBreakers{
		breakers:        make(map[string]*circuit.Breaker),
		threshold:       defaultThreshold,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// getBreaker returns or creates a circuit breaker for the given registry.
func (cb *CircuitBreakers) getBreaker(registry string) *circuit.Breaker {
	cb.mu.RLock()
	breaker, exists := cb.breakers[registry]
	cb.mu.RUnlock()

	if exists {
		return breaker
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := cb.breakers[registry]; exists {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cb.initialInterval
	expBackoff.MaxInterval = cb.maxInterval
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ConsecutiveTripFunc(cb.threshold),
	})

	cb.breakers[registry] = breaker
	return breaker
}

// Wrap returns a Lookup that routes through the breaker for registryURL's host.
func (cb *CircuitBreakers) Wrap(registryURL string, l Lookup) *CircuitBreakerLookup {
	return &CircuitBreakerLookup{
		set:      cb,
		registry: extractRegistry(registryURL),
		lookup:   l,
	}
}

// State returns the current state of circuit breakers (for health checks).
func (cb *CircuitBreakers) State() map[string]string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	states := make(map[string]string)
	for registry, breaker := range cb.breakers {
		if breaker.Tripped() {
			states[registry] = "open"
		} else {
			states[registry] = "closed"
		}
	}
	return states
}

// CircuitBreakerLookup is a Lookup guarded by its registry's breaker.
type CircuitBreakerLookup struct {
	set      *CircuitBreakers
	registry string
	lookup   Lookup
}

// FetchMetadata calls the wrapped lookup unless the breaker is open. Errors
// from the wrapped lookup are returned unchanged. Not-found answers do not
// count as failures.
func (l *CircuitBreakerLookup) FetchMetadata(ctx context.Context, name string) (*core.Metadata, error) {
	breaker := l.set.getBreaker(l.registry)

	var (
		md       *core.Metadata
		notFound error
	)
	err := breaker.Call(func() error {
		var fetchErr error
		md, fetchErr = l.lookup.FetchMetadata(ctx, name)
		if errors.Is(fetchErr, core.ErrNotFound) {
			notFound = fetchErr
			return nil
		}
		return fetchErr
	}, 0)

	if errors.Is(err, circuit.ErrBreakerOpen) {
		return nil, fmt.Errorf("circuit breaker open for registry %s: %w", l.registry, ErrUpstreamDown)
	}

	if breaker.Tripped() && err != nil {
		l.set.logger.Warn("registry circuit breaker open",
			zap.String("registry", l.registry),
			zap.Error(err),
		)
	}

	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return md, nil
}

// extractRegistry extracts a registry identifier from a URL for circuit breaker grouping.
func extractRegistry(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
