package rotation

import (
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/pool"
)

// Selection is the result of resolving an identity's current upstream.
type Selection struct {
	Descriptor pool.Descriptor

	// Index is the 1-based position of the descriptor in the pool.
	Index int

	// Total is the pool length at the moment of the read.
	Total int
}

// Rotation is the result of a successful rotation.
type Rotation struct {
	From pool.Descriptor
	To   pool.Descriptor

	// Index is the 1-based position of the new descriptor in the pool.
	Index int

	// Total is the pool length at the instant of rotation.
	Total int
}

// Selector resolves identities to upstream proxies and performs guarded
// rotations. Rotation counters are reduced modulo the live pool length at
// every read, so a pool shrink between writes and reads wraps the position
// instead of faulting.
type Selector struct {
	pool   *pool.Pool
	store  *Store
	logger *zap.Logger
}

// NewSelector creates a selector over the given pool and state store.
func NewSelector(p *pool.Pool, s *Store, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{pool: p, store: s, logger: logger}
}

// Store returns the underlying state store.
func (s *Selector) Store() *Store {
	return s.store
}

// CurrentFor returns the identity's current upstream. The read is a pure
// peek: an unknown identity resolves at index 0 without creating state.
// It returns pool.ErrNoProxies if the pool is empty.
func (s *Selector) CurrentFor(identity string) (Selection, error) {
	idx := s.store.Peek(identity)

	d, pos, total, err := s.pool.Select(idx)
	if err != nil {
		return Selection{}, err
	}

	return Selection{Descriptor: d, Index: pos + 1, Total: total}, nil
}

// Rotate advances the identity to the next upstream in round-robin order.
// Both guard gates must pass; on an empty pool the acquired lock is released
// immediately and pool.ErrNoProxies is returned. The new counter is computed
// against the pool length at the instant of rotation, never a cached length.
func (s *Selector) Rotate(identity string) (Rotation, error) {
	grant, err := s.store.Acquire(identity)
	if err != nil {
		return Rotation{}, err
	}

	from, _, _, err := s.pool.Select(grant.Index)
	if err != nil {
		grant.Abort()
		return Rotation{}, err
	}

	next := grant.Index + 1
	to, pos, total, err := s.pool.Select(next)
	if err != nil {
		// The pool emptied between the two reads. A legitimate race
		// outcome; the caller sees it as an empty pool.
		grant.Abort()
		return Rotation{}, err
	}

	grant.Commit(pos)

	s.logger.Info("rotated upstream proxy",
		zap.String("identity", identity),
		zap.String("from", from.Authority()),
		zap.String("to", to.Authority()),
		zap.Int("index", pos+1),
		zap.Int("total", total),
	)

	return Rotation{From: from, To: to, Index: pos + 1, Total: total}, nil
}
