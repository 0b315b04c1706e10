// Package ban implements the time-bounded deny-list keyed by client
// fingerprint. There is no allow-list, no permanent ban, and no
// progressive backoff: every offense gets the same fixed duration and
// overwrites whatever entry was there before.
package ban

import (
	"sync"
	"time"
)

// Entry records a single active ban.
type Entry struct {
	BannedUntil time.Time
	RiskAtBan   float64
}

// Ledger is the process-wide ban list. Lazy eviction on IsBanned is
// the only reclamation path; there is no background sweeper.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]Entry
	clock   func() time.Time
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]Entry),
		clock:   time.Now,
	}
}

// Ban sets (or overwrites) a ban for fingerprint, expiring after
// duration.
func (l *Ledger) Ban(fingerprint string, duration time.Duration, riskAtBan float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[fingerprint] = Entry{
		BannedUntil: l.clock().Add(duration),
		RiskAtBan:   riskAtBan,
	}
}

// IsBanned reports whether fingerprint currently has an active ban. An
// expired entry is evicted before returning false.
func (l *Ledger) IsBanned(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[fingerprint]
	if !ok {
		return false
	}
	if l.clock().After(entry.BannedUntil) {
		delete(l.entries, fingerprint)
		return false
	}
	return true
}

// Count returns the number of entries currently held, including any
// not yet lazily evicted. Exposed for dashboard/diagnostics use.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
