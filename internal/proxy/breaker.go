package proxy

import (
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker timing defaults.
const (
	// defaultBreakerTimeout is how long an open breaker stays open before
	// probing the upstream again.
	defaultBreakerTimeout = 30 * time.Second

	// defaultBreakerThreshold is the minimum request count before the
	// failure ratio can trip the breaker.
	defaultBreakerThreshold = 5
)

// BreakerTransport wraps a RoundTripper with one circuit breaker per upstream
// authority. A tripped breaker fails requests to that upstream fast instead
// of waiting out connection timeouts; other upstreams are unaffected.
type BreakerTransport struct {
	base      http.RoundTripper
	threshold uint32
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerTransport creates a breaker-wrapped transport. A zero threshold
// or timeout falls back to the defaults.
func NewBreakerTransport(base http.RoundTripper, threshold int, timeout time.Duration, logger *zap.Logger) *BreakerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerTransport{
		base:      base,
		threshold: uint32(threshold),
		timeout:   timeout,
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cb := t.breakerFor(req.URL.Host)

	resp, err := cb.Execute(func() (interface{}, error) {
		return t.base.RoundTrip(req)
	})
	if err != nil {
		return nil, err
	}
	return resp.(*http.Response), nil
}

// breakerFor returns the breaker for the upstream authority, creating it on
// first use.
func (t *BreakerTransport) breakerFor(authority string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[authority]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    authority,
		Timeout: t.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= t.threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			t.logger.Info("upstream circuit breaker state change",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	t.breakers[authority] = cb
	return cb
}
