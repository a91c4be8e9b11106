package rotation

import "time"

// DefaultLedgerCap is the default maximum number of connection records
// retained per identity.
const DefaultLedgerCap = 100

// Record describes one forwarding attempt. Records are observability-only
// and never feed back into routing decisions.
type Record struct {
	Target    string    `json:"target"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent"`
}

// ledger is a FIFO-capped sequence of connection records. It is not safe for
// concurrent use on its own; callers hold the owning identity entry's lock.
type ledger struct {
	records []Record
	cap     int
}

// newLedger creates a ledger with the given capacity.
func newLedger(capacity int) *ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCap
	}
	return &ledger{
		records: make([]Record, 0, capacity),
		cap:     capacity,
	}
}

// append adds a record, evicting the oldest entry on overflow.
func (l *ledger) append(r Record) {
	if len(l.records) >= l.cap {
		// Shift in place to keep the backing array at capacity.
		copy(l.records, l.records[1:])
		l.records[len(l.records)-1] = r
		return
	}
	l.records = append(l.records, r)
}

// snapshot returns a copy of the records, oldest first.
func (l *ledger) snapshot() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// len returns the number of retained records.
func (l *ledger) len() int {
	return len(l.records)
}
