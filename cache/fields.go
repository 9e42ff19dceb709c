// Package cache provides the in-memory short-lived field cache used by the
// relational side of the user data layer.
package cache

import (
	"sync"
	"time"
)

// DefaultClearInterval is how often the cache is discarded wholesale unless
// configured otherwise.
const DefaultClearInterval = 30 * time.Minute

// entry is a point-in-time snapshot of the hot relational fields.
type entry struct {
	id         int64
	level      int
	subscriber bool
}

// Fields caches a 3-field snapshot per username. There is no per-entry
// expiry; the whole mapping is cleared in bulk on a fixed interval. Reads
// that miss fall through to the database, so staleness up to the interval is
// acceptable by contract.
type Fields struct {
	mu      sync.RWMutex
	entries map[string]entry
	stop    chan struct{}
}

// New initializes a Fields cache and starts a goroutine clearing it every
// DefaultClearInterval. Call Close to stop it.
func New() *Fields {
	return NewWithInterval(DefaultClearInterval)
}

// NewWithInterval initializes a Fields cache clearing every interval.
// A non-positive interval disables the clear loop entirely; callers own
// clearing via Clear. That is the mode tests use.
func NewWithInterval(interval time.Duration) *Fields {
	c := &Fields{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if interval > 0 {
		go c.clearLoop(interval)
	}
	return c
}

// clearLoop discards the mapping on every tick until Close is called.
func (c *Fields) clearLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Clear()
		case <-c.stop:
			return
		}
	}
}

// Save stores the snapshot for username, overwriting any prior entry.
func (c *Fields) Save(username string, id int64, level int, subscriber bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[username] = entry{id: id, level: level, subscriber: subscriber}
}

// ID returns the cached record id for username, or ok=false on a miss.
func (c *Fields) ID(username string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[username]
	return e.id, ok
}

// Level returns the cached privilege level for username, or ok=false on a miss.
func (c *Fields) Level(username string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[username]
	return e.level, ok
}

// Subscriber returns the cached subscriber flag for username, or ok=false on a miss.
func (c *Fields) Subscriber(username string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[username]
	return e.subscriber, ok
}

// Clear discards every entry atomically.
func (c *Fields) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of cached usernames.
func (c *Fields) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background clear loop. The cache remains usable afterwards.
func (c *Fields) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	return nil
}
