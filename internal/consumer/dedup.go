package consumer

import (
	"sync"
	"time"
)

// Dedup remembers event ids for a bounded window so a pull that overlaps the
// previous one (crash before the cursor was persisted, ack lost in transit)
// does not apply the same event twice. Entries expire after the TTL; Sweep is
// called once per drain cycle to keep the map bounded.
type Dedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

const DefaultDedupTTL = 5 * time.Minute

func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Dedup{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// Seen marks the id and reports whether it was already marked within the TTL.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// Forget unmarks an id, used when the apply step failed after the mark.
func (d *Dedup) Forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

// Sweep drops entries older than the TTL.
func (d *Dedup) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := d.now().Add(-d.ttl)
	for id, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}

// Len reports the number of tracked ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
