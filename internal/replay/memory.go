package replay

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-memory Cache with bounded LRU eviction, matching
// the teacher's idempotency.MemoryStore eviction policy: entries are aged
// out by TTL, but the map is additionally bounded by maxSize so a flood of
// distinct signatures cannot grow memory without limit.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]*memEntry
	lru         *list.List
	maxSize     int
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type memEntry struct {
	entry   Entry
	element *list.Element
}

// NewMemoryCache creates an in-memory replay cache bounded at maxSize
// entries, with a background sweep every sweepPeriod purging expired
// entries (sweepPeriod should be <= TTL/4 per the design's bound on
// memory growth between sweeps).
func NewMemoryCache(maxSize int, sweepPeriod time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 100000
	}
	if sweepPeriod <= 0 {
		sweepPeriod = time.Minute
	}
	c := &MemoryCache{
		entries:     make(map[string]*memEntry),
		lru:         list.New(),
		maxSize:     maxSize,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go c.sweepLoop(sweepPeriod)
	return c
}

func (c *MemoryCache) TryConsume(ctx context.Context, entry Entry) (Outcome, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[entry.Signature]; ok {
		if now.Before(existing.entry.TTLExpiresAt) {
			return Outcome{FirstTime: false, Entry: existing.entry}, nil
		}
		// Expired: treat as absent, evict and fall through to insert.
		c.lru.Remove(existing.element)
		delete(c.entries, entry.Signature)
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	me := &memEntry{entry: entry}
	me.element = c.lru.PushFront(me)
	c.entries[entry.Signature] = me

	return Outcome{FirstTime: true, Entry: entry}, nil
}

func (c *MemoryCache) Peek(ctx context.Context, signature string) (Entry, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	me, ok := c.entries[signature]
	if !ok || now.After(me.entry.TTLExpiresAt) {
		return Entry{}, ErrNotFound
	}
	return me.entry, nil
}

func (c *MemoryCache) PurgeExpired(ctx context.Context) (int, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for sig, me := range c.entries {
		if now.After(me.entry.TTLExpiresAt) {
			expired = append(expired, sig)
		}
	}
	for _, sig := range expired {
		me := c.entries[sig]
		c.lru.Remove(me.element)
		delete(c.entries, sig)
	}
	return len(expired), nil
}

func (c *MemoryCache) Close() error {
	close(c.stopCleanup)
	<-c.cleanupDone
	return nil
}

// evictOldest drops the least-recently-consumed entry. Caller holds mu.
func (c *MemoryCache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	me := elem.Value.(*memEntry)
	c.lru.Remove(elem)
	delete(c.entries, me.entry.Signature)
}

func (c *MemoryCache) sweepLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer close(c.cleanupDone)

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			_, _ = c.PurgeExpired(context.Background())
		}
	}
}
