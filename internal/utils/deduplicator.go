package utils

import (
	"sync"
	"time"
)

const dedupMaxEntries = 10000

// Deduplicator remembers message IDs for a window so retried requests
// (scanner resends, flaky Wi-Fi) are applied once
type Deduplicator struct {
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduplicator creates a Deduplicator with the given window
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

// Claim records id and reports true when it was not seen within the window.
// A false result means the caller is handling a duplicate.
func (d *Deduplicator) Claim(id string) bool {
	if id == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if ts, ok := d.seen[id]; ok && now.Sub(ts) < d.ttl {
		return false
	}
	d.seen[id] = now

	// Cleanup old entries if map gets too big
	if len(d.seen) > dedupMaxEntries {
		for k, v := range d.seen {
			if now.Sub(v) > d.ttl {
				delete(d.seen, k)
			}
		}
	}
	return true
}

// Release forgets id, used when the claimed operation failed and a retry
// should be processed again
func (d *Deduplicator) Release(id string) {
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
}
