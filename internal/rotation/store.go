package rotation

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default guard timings.
const (
	// DefaultCooldown is the minimum time between two successful rotations
	// for the same identity.
	DefaultCooldown = 6 * time.Second

	// DefaultSettleDelay is how long the single-flight lock is held after a
	// successful rotation before auto-release. It models upstream switch
	// latency so a caller polling immediately after rotating is still denied.
	DefaultSettleDelay = 2 * time.Second

	// minSweepInterval is the lower bound for the state sweeper interval.
	minSweepInterval = 10 * time.Second
)

// entry holds all per-identity state: the rotation counter, the guard fields
// and the connection ledger. Every field is guarded by mu; the cooldown check,
// the single-flight check and the subsequent writes form one critical section.
type entry struct {
	mu           sync.Mutex
	index        int
	lastRotation time.Time
	locked       bool
	lastTouched  time.Time
	ledger       *ledger
}

// Store owns all per-identity rotation state. Entries are created lazily on
// first mutating touch and removed by the periodic sweep once idle longer
// than twice the cooldown window.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	clock       Clock
	cooldown    time.Duration
	settleDelay time.Duration
	ledgerCap   int
	logger      *zap.Logger

	stopCh  chan struct{}
	stopped bool
}

// StoreOption is a functional option for configuring the store.
type StoreOption func(*Store)

// WithClock sets the clock used for cooldown decisions.
func WithClock(c Clock) StoreOption {
	return func(s *Store) {
		s.clock = c
	}
}

// WithCooldown sets the cooldown window.
func WithCooldown(d time.Duration) StoreOption {
	return func(s *Store) {
		s.cooldown = d
	}
}

// WithSettleDelay sets the lock hold duration after a successful rotation.
func WithSettleDelay(d time.Duration) StoreOption {
	return func(s *Store) {
		s.settleDelay = d
	}
}

// WithLedgerCap sets the per-identity ledger capacity.
func WithLedgerCap(n int) StoreOption {
	return func(s *Store) {
		s.ledgerCap = n
	}
}

// WithStoreLogger sets the logger for the store.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a rotation state store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:     make(map[string]*entry),
		clock:       RealClock(),
		cooldown:    DefaultCooldown,
		settleDelay: DefaultSettleDelay,
		ledgerCap:   DefaultLedgerCap,
		logger:      zap.NewNop(),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cooldown returns the configured cooldown window.
func (s *Store) Cooldown() time.Duration {
	return s.cooldown
}

// getOrCreate returns the entry for identity, creating it if needed.
func (s *Store) getOrCreate(identity string) *entry {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[identity]; ok {
		return e
	}
	e = &entry{
		lastTouched: s.clock.Now(),
		ledger:      newLedger(s.ledgerCap),
	}
	s.entries[identity] = e
	return e
}

// Peek returns the identity's rotation counter without creating state.
// Unknown identities read as index 0.
func (s *Store) Peek(identity string) int {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

// Grant represents an acquired rotation lock for one identity. Exactly one of
// Commit or Abort must be called.
type Grant struct {
	store    *Store
	entry    *entry
	identity string

	// Index is the identity's rotation counter at the moment of acquisition.
	Index int
}

// Acquire runs both guard gates for the identity inside one critical section:
// the cooldown gate first, then the single-flight gate. On success the lock
// flag and the rotation timestamp are set together before the entry lock is
// released, so no interleaving between the two writes is possible.
func (s *Store) Acquire(identity string) (*Grant, error) {
	e := s.getOrCreate(identity)
	now := s.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastRotation.IsZero() {
		elapsed := now.Sub(e.lastRotation)
		if elapsed < s.cooldown {
			return nil, NewCooldownError(s.cooldown-elapsed, s.cooldown)
		}
	}

	if e.locked {
		return nil, ErrRotationInProgress
	}

	e.locked = true
	e.lastRotation = now
	e.lastTouched = now

	return &Grant{store: s, entry: e, identity: identity, Index: e.index}, nil
}

// Commit records the new rotation counter and schedules the lock release
// after the settle delay.
func (g *Grant) Commit(newIndex int) {
	e := g.entry

	e.mu.Lock()
	e.index = newIndex
	e.mu.Unlock()

	if g.store.settleDelay <= 0 {
		g.release()
		return
	}

	time.AfterFunc(g.store.settleDelay, g.release)
}

// Abort releases the lock immediately after a failed rotation attempt.
// The cooldown timestamp is rolled back so the failed attempt does not
// consume the caller's cooldown window.
func (g *Grant) Abort() {
	e := g.entry

	e.mu.Lock()
	e.locked = false
	e.lastRotation = time.Time{}
	e.mu.Unlock()
}

// release clears the single-flight lock.
func (g *Grant) release() {
	e := g.entry

	e.mu.Lock()
	e.locked = false
	e.mu.Unlock()
}

// Reset deletes all state for the identity: counter, guard and ledger.
func (s *Store) Reset(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[identity]; !ok {
		return false
	}
	delete(s.entries, identity)
	return true
}

// GuardState is a point-in-time view of one identity's guard for status
// reporting.
type GuardState struct {
	Locked       bool
	LastRotation time.Time
	CanRotate    bool
	Remaining    time.Duration
}

// Snapshot returns the identity's guard state. Unknown identities report an
// idle guard that can rotate.
func (s *Store) Snapshot(identity string) GuardState {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if !ok {
		return GuardState{CanRotate: true}
	}

	now := s.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	gs := GuardState{
		Locked:       e.locked,
		LastRotation: e.lastRotation,
	}
	if !e.lastRotation.IsZero() {
		if elapsed := now.Sub(e.lastRotation); elapsed < s.cooldown {
			gs.Remaining = s.cooldown - elapsed
		}
	}
	gs.CanRotate = !e.locked && gs.Remaining == 0
	return gs
}

// RecordConnection appends a forwarding record to the identity's ledger,
// creating state lazily for new identities.
func (s *Store) RecordConnection(identity string, r Record) {
	e := s.getOrCreate(identity)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.append(r)
	e.lastTouched = s.clock.Now()
}

// Records returns the identity's ledger contents, oldest first.
func (s *Store) Records(identity string) []Record {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.snapshot()
}

// ConnectionCount returns the number of ledger records for the identity.
func (s *Store) ConnectionCount(identity string) int {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.len()
}

// Len returns the number of identities currently tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes identities idle longer than twice the cooldown window and
// returns the number removed. Locked entries are never swept.
func (s *Store) Sweep() int {
	retention := 2 * s.cooldown
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for identity, e := range s.entries {
		e.mu.Lock()
		stale := !e.locked && now.Sub(e.lastTouched) > retention
		e.mu.Unlock()

		if stale {
			delete(s.entries, identity)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("swept idle rotation state",
			zap.Int("removed", removed),
			zap.Int("remaining", len(s.entries)),
		)
	}
	return removed
}

// StartSweeper launches the periodic sweep goroutine. The interval is half
// the retention window, clamped to at least minSweepInterval.
func (s *Store) StartSweeper() {
	interval := s.cooldown
	if interval < minSweepInterval {
		interval = minSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the sweeper goroutine.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
}
