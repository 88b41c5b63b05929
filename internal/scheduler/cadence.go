package scheduler

import (
	"sync"
	"time"
)

type cadenceEntry struct {
	last    time.Time
	version time.Time
}

// Cadence tracks when each subscriber was last polled so every subscriber
// runs on its own interval while sharing one global tick.
type Cadence struct {
	mu      sync.Mutex
	entries map[string]cadenceEntry
}

// NewCadence returns an empty tracker; every subscriber starts out due.
func NewCadence() *Cadence {
	return &Cadence{entries: make(map[string]cadenceEntry)}
}

// Claim reports whether id is due at now and, if so, records now as its last
// poll. version identifies the subscriber's settings; when it differs from
// the one seen at the previous claim the subscriber is due immediately.
func (c *Cadence) Claim(id string, version time.Time, interval time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok && e.version.Equal(version) && now.Sub(e.last) < interval {
		return false
	}
	c.entries[id] = cadenceEntry{last: now, version: version}
	return true
}

// Release undoes the claim made at at, so a poll that failed upstream is
// retried on the next tick. A newer claim is left alone.
func (c *Cadence) Release(id string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && e.last.Equal(at) {
		delete(c.entries, id)
	}
}

// NextDue returns when id becomes due, or the zero time if it is due now.
func (c *Cadence) NextDue(id string, interval time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return time.Time{}
	}
	return e.last.Add(interval)
}

// Retain forgets subscribers not in keep, so a re-enabled subscriber is
// evaluated on the next tick.
func (c *Cadence) Retain(keep map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if _, ok := keep[id]; !ok {
			delete(c.entries, id)
		}
	}
}
