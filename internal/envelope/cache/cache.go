// Package cache holds recently unwrapped data keys so repeated decryptions of the same
// record skip the remote key service.
//
// Entries live at most TTL and the cache never holds more than MaxEntries keys; the
// least recently used key is evicted first. Every evicted key is wiped.
package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
	lru "github.com/hashicorp/golang-lru/v2"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
	"github.com/allisson/fieldcrypt/internal/metrics"
)

const (
	DefaultTTL           = 5 * time.Minute
	DefaultMaxEntries    = 1000
	DefaultSweepInterval = time.Minute
)

// entry guards its key bytes so a concurrent eviction never wipes them mid-copy.
type entry struct {
	mu         sync.Mutex
	key        []byte
	insertedAt time.Time
}

func (e *entry) copyKey() ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return nil, false
	}
	return append([]byte(nil), e.key...), true
}

func (e *entry) wipe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	kmsDomain.Wipe(e.key)
	e.key = nil
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock; tests pass a quartz mock.
func WithClock(clock quartz.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithTTL sets the maximum entry age.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxEntries bounds the number of cached keys.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithSweepInterval sets how often Start evicts expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepInterval = d }
}

// WithLogger sets the logger used for sweep reports.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithMetrics records lookups and evictions.
func WithMetrics(m metrics.CacheMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache maps wrapped data keys to their unwrapped plaintext.
//
// Get and Put take the LRU lock for a single operation only. Concurrent misses for the
// same wrapped key may both unwrap and both Put; the second Put replaces and wipes the
// first entry.
type Cache struct {
	clock         quartz.Clock
	ttl           time.Duration
	maxEntries    int
	sweepInterval time.Duration
	logger        *slog.Logger
	metrics       metrics.CacheMetrics

	entries *lru.Cache[string, *entry]
	putMu   sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	waiter quartz.Waiter
}

// New creates an empty cache. It does not sweep until Start is called.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		clock:         quartz.NewReal(),
		ttl:           DefaultTTL,
		maxEntries:    DefaultMaxEntries,
		sweepInterval: DefaultSweepInterval,
		logger:        slog.Default(),
		metrics:       metrics.NewNoOpCacheMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", c.ttl)
	}
	if c.sweepInterval <= 0 {
		return nil, fmt.Errorf("cache sweep interval must be positive, got %s", c.sweepInterval)
	}

	entries, err := lru.NewWithEvict(c.maxEntries, func(_ string, e *entry) {
		e.wipe()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create data key cache: %w", err)
	}
	c.entries = entries

	return c, nil
}

func cacheKey(wrapped []byte) string {
	return base64.StdEncoding.EncodeToString(wrapped)
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

// Get returns a copy of the unwrapped key. An expired entry is removed and reported as a
// miss, so the TTL holds even between sweeps.
func (c *Cache) Get(wrapped []byte) ([]byte, bool) {
	k := cacheKey(wrapped)

	e, ok := c.entries.Get(k)
	if !ok {
		c.metrics.RecordLookup(false)
		return nil, false
	}
	if c.expired(e, c.clock.Now()) {
		if c.removeEntry(k, e) {
			c.metrics.RecordEviction("expired", 1)
		}
		c.metrics.RecordLookup(false)
		return nil, false
	}
	key, ok := e.copyKey()
	c.metrics.RecordLookup(ok)
	return key, ok
}

// Put stores a copy of key; the caller keeps ownership of its slice.
func (c *Cache) Put(wrapped, key []byte) {
	k := cacheKey(wrapped)
	e := &entry{
		key:        append([]byte(nil), key...),
		insertedAt: c.clock.Now(),
	}

	c.putMu.Lock()
	defer c.putMu.Unlock()

	old, replaced := c.entries.Peek(k)
	if evicted := c.entries.Add(k, e); evicted {
		c.metrics.RecordEviction("capacity", 1)
	}
	if replaced {
		old.wipe()
	}
}

// Sweep removes every expired entry and returns how many it removed.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	removed := 0

	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if !ok || !c.expired(e, now) {
			continue
		}
		if c.removeEntry(k, e) {
			removed++
		}
	}
	c.metrics.RecordEviction("expired", removed)
	return removed
}

// removeEntry removes k only while it still maps to e. A Put that replaced e after the
// caller looked it up keeps its fresh entry.
func (c *Cache) removeEntry(k string, e *entry) bool {
	c.putMu.Lock()
	defer c.putMu.Unlock()

	if current, ok := c.entries.Peek(k); !ok || current != e {
		return false
	}
	return c.entries.Remove(k)
}

// Clear removes and wipes every entry.
func (c *Cache) Clear() {
	c.entries.Purge()
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Start sweeps expired entries every sweep interval until ctx is done or Close is
// called. Calling Start on a running cache does nothing.
func (c *Cache) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.waiter = c.clock.TickerFunc(ctx, c.sweepInterval, func() error {
		if removed := c.Sweep(); removed > 0 {
			c.logger.Debug("data key cache swept", slog.Int("removed", removed), slog.Int("remaining", c.Len()))
		}
		return nil
	}, "dataKeyCache", "sweep")
}

// Close stops the sweep, waits for it to exit and wipes every entry.
func (c *Cache) Close() error {
	c.runMu.Lock()
	cancel, waiter := c.cancel, c.waiter
	c.cancel, c.waiter = nil, nil
	c.runMu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		if werr := waiter.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	}

	c.Clear()
	return err
}
