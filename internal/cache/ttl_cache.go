package cache

import (
	"sync"
	"time"

	"github.com/irfndi/gatekeeper/internal/models"
)

// DefaultTTL is how long a remote availability answer is trusted.
const DefaultTTL = 5 * time.Minute

// Entry is a cached remote outcome for one key.
type Entry[K comparable] struct {
	Key       K              `json:"key"`
	Outcome   models.Outcome `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stats counts cache traffic since creation.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// TTLCache maps keys to remote outcomes that expire after a fixed TTL.
// Expired entries are not evicted; they are ignored at read time and
// overwritten by the next Set for the same key.
type TTLCache[K comparable] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[K]Entry[K]
	stats   Stats
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for timestamps and validity.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New[K comparable](ttl time.Duration, opts ...Option) *TTLCache[K] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTLCache[K]{
		ttl:     ttl,
		now:     o.now,
		entries: make(map[K]Entry[K]),
	}
}

// Get returns the stored entry for key whether or not it is still valid.
func (c *TTLCache[K]) Get(key K) (Entry[K], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// IsValid reports whether entry is younger than the TTL at now.
func (c *TTLCache[K]) IsValid(entry Entry[K], now time.Time) bool {
	return now.Sub(entry.Timestamp) < c.ttl
}

// Lookup returns the entry for key only if it is still valid.
func (c *TTLCache[K]) Lookup(key K) (Entry[K], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.IsValid(e, c.now()) {
		c.stats.Misses++
		return Entry[K]{}, false
	}
	c.stats.Hits++
	return e, true
}

// Set records outcome for key, superseding any previous entry.
func (c *TTLCache[K]) Set(key K, outcome models.Outcome) Entry[K] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry[K]{Key: key, Outcome: outcome, Timestamp: c.now()}
	c.entries[key] = e
	c.stats.Sets++
	return e
}

// Len returns the number of stored entries, valid or not.
func (c *TTLCache[K]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTLCache[K]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// HitRate returns the percentage of lookups served from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Add sums two sets of counters.
func (s Stats) Add(o Stats) Stats {
	return Stats{Hits: s.Hits + o.Hits, Misses: s.Misses + o.Misses, Sets: s.Sets + o.Sets}
}
