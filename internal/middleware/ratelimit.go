package middleware

import (
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Rate limiter default configuration constants.
const (
	// DefaultClientTTL is the default TTL for client rate limiter entries.
	DefaultClientTTL = 10 * time.Minute

	// MinCleanupInterval is the minimum interval for cleanup operations.
	MinCleanupInterval = 10 * time.Second

	// MaxCleanupInterval is the maximum interval for cleanup operations.
	MaxCleanupInterval = time.Minute
)

// clientEntry holds a rate limiter and its last access time for TTL-based cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter applies a per-client request rate limit in front of the
// forwarding path.
type RateLimiter struct {
	clients   map[string]*clientEntry
	mu        sync.Mutex
	rps       int
	burst     int
	logger    *zap.Logger
	clientTTL time.Duration
	stopCh    chan struct{}
	stopped   bool
}

// NewRateLimiter creates a per-client rate limiter.
func NewRateLimiter(rps, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		clients:   make(map[string]*clientEntry),
		rps:       rps,
		burst:     burst,
		logger:    logger,
		clientTTL: DefaultClientTTL,
		stopCh:    make(chan struct{}),
	}
}

// Allow checks if a request from the client is allowed.
// Lookup and lastAccess update share one critical section; the limiter's own
// Allow is safe outside it.
func (rl *RateLimiter) Allow(client string) bool {
	now := time.Now()

	rl.mu.Lock()
	entry, exists := rl.clients[client]
	if !exists {
		entry = &clientEntry{
			limiter:    rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
			lastAccess: now,
		}
		rl.clients[client] = entry
	} else {
		entry.lastAccess = now
	}
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// RateLimit returns a middleware that applies the rate limiter keyed by
// client IP.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)

			if !rl.Allow(client) {
				rl.logger.Warn("rate limit exceeded",
					zap.String("client_ip", client),
					zap.String("path", r.URL.Path),
				)

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.Header().Set(HeaderRetryAfter, "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CleanupOldClients removes client entries idle longer than maxAge.
func (rl *RateLimiter) CleanupOldClients(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for client, entry := range rl.clients {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(rl.clients, client)
		}
	}
}

// StartAutoCleanup starts the TTL cleanup goroutine. The interval is half the
// TTL clamped between MinCleanupInterval and MaxCleanupInterval.
func (rl *RateLimiter) StartAutoCleanup() {
	go func() {
		cleanupInterval := rl.clientTTL / 2
		if cleanupInterval > MaxCleanupInterval {
			cleanupInterval = MaxCleanupInterval
		}
		if cleanupInterval < MinCleanupInterval {
			cleanupInterval = MinCleanupInterval
		}

		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.CleanupOldClients(rl.clientTTL)
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.stopped {
		rl.stopped = true
		close(rl.stopCh)
	}
}
