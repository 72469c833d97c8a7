package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// JSONGetter is the request surface the breaker wraps. *Client satisfies it.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// BreakerClient wraps a JSONGetter with per-registry-host circuit breakers.
type BreakerClient struct {
	inner    JSONGetter
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewBreakerClient creates a circuit breaker wrapper around inner.
func NewBreakerClient(inner JSONGetter) *BreakerClient {
	return &BreakerClient{
		inner:    inner,
		breakers: make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates a circuit breaker for the given host.
func (b *BreakerClient) getBreaker(host string) *circuit.Breaker {
	b.mu.RLock()
	breaker, exists := b.breakers[host]
	b.mu.RUnlock()

	if exists {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := b.breakers[host]; exists {
		return breaker
	}

	// Trips after 5 consecutive failures, backs off exponentially.
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	})

	b.breakers[host] = breaker
	return breaker
}

// GetJSON wraps the underlying client's GetJSON with circuit breaker logic.
func (b *BreakerClient) GetJSON(ctx context.Context, rawURL string, out any) error {
	host := breakerHost(rawURL)
	breaker := b.getBreaker(host)

	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for registry %s: %w", host, ErrUpstreamDown)
	}

	return breaker.Call(func() error {
		return b.inner.GetJSON(ctx, rawURL, out)
	}, 0)
}

// States returns the current state of all circuit breakers, keyed by host.
func (b *BreakerClient) States() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]string, len(b.breakers))
	for host, breaker := range b.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// breakerHost extracts the host from a URL for circuit breaker grouping.
func breakerHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
