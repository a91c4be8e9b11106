// Package pool provides the shared upstream proxy pool for the gateway.
// The pool is an ordered, mutable collection of upstream proxy descriptors
// shared by all identities; callers keep independent offsets into it and
// always reduce them modulo the live pool length at read time.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Sentinel errors for pool operations.
var (
	// ErrNoProxies indicates that the pool is empty at the moment of use.
	ErrNoProxies = errors.New("no proxies available")

	// ErrProxyNotFound indicates that no entry matched the given host and port.
	ErrProxyNotFound = errors.New("proxy not found")

	// ErrDuplicateProxy indicates that an entry with the same host and port
	// already exists in the pool.
	ErrDuplicateProxy = errors.New("proxy already exists")
)

// Descriptor describes one upstream proxy. Descriptors are immutable once
// stored; the pool holds them by value.
type Descriptor struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	User string `json:"user" yaml:"user"`
	Pass string `json:"pass" yaml:"pass"`
}

// Authority returns the host:port authority of the descriptor.
func (d Descriptor) Authority() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Redacted is a descriptor with credentials stripped for listing.
// The password never leaves the pool.
type Redacted struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
}

// Redact returns the descriptor without its password.
func (d Descriptor) Redact() Redacted {
	return Redacted{Host: d.Host, Port: d.Port, User: d.User}
}

// Pool is the ordered, process-wide collection of upstream proxy descriptors.
// Selection takes the read side of the lock, administrative mutation takes the
// write side, so rotation reads stay safe under concurrent admin changes.
type Pool struct {
	mu      sync.RWMutex
	entries []Descriptor
	logger  *zap.Logger
}

// Option is a functional option for configuring the pool.
type Option func(*Pool)

// WithLogger sets the logger for the pool.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		entries: make([]Descriptor, 0),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add appends a descriptor to the pool. Entries with a host and port already
// present are rejected with ErrDuplicateProxy.
func (p *Pool) Add(d Descriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.Host == d.Host && e.Port == d.Port {
			return fmt.Errorf("%w: %s", ErrDuplicateProxy, d.Authority())
		}
	}

	p.entries = append(p.entries, d)
	p.logger.Info("proxy added",
		zap.String("authority", d.Authority()),
		zap.Int("pool_size", len(p.entries)),
	)
	return nil
}

// Remove removes the first entry matching host and port. It returns
// ErrProxyNotFound if no entry matches.
func (p *Pool) Remove(host string, port int) (Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.entries {
		if e.Host == host && e.Port == port {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			p.logger.Info("proxy removed",
				zap.String("authority", e.Authority()),
				zap.Int("pool_size", len(p.entries)),
			)
			return e, nil
		}
	}

	return Descriptor{}, fmt.Errorf("%w: %s:%d", ErrProxyNotFound, host, port)
}

// Clear empties the pool and returns the number of entries removed.
func (p *Pool) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := len(p.entries)
	p.entries = p.entries[:0]
	p.logger.Info("pool cleared", zap.Int("removed", removed))
	return removed
}

// Replace swaps the pool contents wholesale. Used for full reloads from an
// external source.
func (p *Pool) Replace(entries []Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = make([]Descriptor, len(entries))
	copy(p.entries, entries)
	p.logger.Info("pool replaced", zap.Int("pool_size", len(p.entries)))
}

// List returns the pool entries with credentials redacted, in insertion order.
func (p *Pool) List() []Redacted {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Redacted, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.Redact())
	}
	return out
}

// Len returns the current pool size.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Select resolves a raw rotation counter against the live pool. The modulo is
// computed under the read lock so a concurrent shrink can only wrap the index,
// never push it out of range. It returns the descriptor, the reduced position
// and the pool length at the moment of the read.
func (p *Pool) Select(index int) (Descriptor, int, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := len(p.entries)
	if total == 0 {
		return Descriptor{}, 0, 0, ErrNoProxies
	}

	pos := index % total
	return p.entries[pos], pos, total, nil
}
