// Package bridge is the tenant-side relay: it polls the broker's inbox,
// verifies and decrypts envelopes, hands actionable events to the local
// automation process, and exposes a loopback API for the process's outbound
// replies. The poll loop is the single writer for the dedup cache and thread
// registry; the loopback listener only reads.
package bridge

import "time"

// DedupCache remembers recently processed message ids for a TTL. Entries are
// advisory: they stop re-delivery to the automation process, nothing more.
// Not safe for concurrent use; the poll loop is the only caller.
type DedupCache struct {
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewDedupCache(ttl time.Duration) *DedupCache {
	return &DedupCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether id was recorded within the TTL window. Expired
// entries are dropped on the way through.
func (d *DedupCache) Seen(id string) bool {
	expires, ok := d.entries[id]
	if !ok {
		return false
	}
	if d.now().After(expires) {
		delete(d.entries, id)
		return false
	}
	return true
}

// Record marks id as processed for the next TTL window.
func (d *DedupCache) Record(id string) {
	d.entries[id] = d.now().Add(d.ttl)
}

// Sweep drops every expired entry. Called once per poll pass so the map
// stays bounded by the TTL rather than growing with total traffic.
func (d *DedupCache) Sweep() {
	now := d.now()
	for id, expires := range d.entries {
		if now.After(expires) {
			delete(d.entries, id)
		}
	}
}

// Len reports live entries, expired ones included until the next Sweep.
func (d *DedupCache) Len() int {
	return len(d.entries)
}
