package radserver

import (
	"sync"
	"time"
)

// dedupKey identifies a retransmit: the same client re-sending the
// identical request (same Identifier, same Authenticator bytes) from
// the same address before the original response arrived.
type dedupKey struct {
	remote        string
	identifier    byte
	authenticator [16]byte
}

type dedupEntry struct {
	key      dedupKey
	response []byte // nil while the original request is still being handled
	expires  time.Time
	prev     *dedupEntry
	next     *dedupEntry
}

// dedupCache answers retransmitted requests with the cached response
// bytes instead of re-running the handler, per spec.md section 4.9.
// A map gives O(1) lookup by key; entries are also threaded through a
// doubly linked list ordered by insertion (and so, since every entry
// shares the same TTL, by expiration) for O(1) sweeping of the oldest
// entries by a background ticker.
type dedupCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	index map[dedupKey]*dedupEntry
	head  *dedupEntry // oldest
	tail  *dedupEntry // newest

	ticker *time.Ticker
	done   chan struct{}

	onSizeChange func(n int)
}

// newDedupCache starts a background sweep goroutine evicting entries
// older than ttl, checked every sweepInterval.
func newDedupCache(ttl time.Duration, sweepInterval time.Duration, onSizeChange func(n int)) *dedupCache {
	c := &dedupCache{
		ttl:          ttl,
		index:        make(map[dedupKey]*dedupEntry),
		ticker:       time.NewTicker(sweepInterval),
		done:         make(chan struct{}),
		onSizeChange: onSizeChange,
	}
	go c.sweepLoop()
	return c
}

func (c *dedupCache) sweepLoop() {
	for {
		select {
		case <-c.ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *dedupCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.head != nil && now.After(c.head.expires) {
		c.unlinkLocked(c.head)
	}
	if c.onSizeChange != nil {
		c.onSizeChange(len(c.index))
	}
}

// Stop halts the background sweep goroutine.
func (c *dedupCache) Stop() {
	c.ticker.Stop()
	close(c.done)
}

// lookup reports whether key is already tracked, and if so whether a
// response has finished being computed for it.
func (c *dedupCache) lookup(key dedupKey) (response []byte, inFlight bool, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index[key]
	if !ok {
		return nil, false, false
	}
	if e.response == nil {
		return nil, true, true
	}
	return e.response, false, true
}

// markInFlight records that key's request is now being handled, so
// concurrent retransmits received before the handler returns are
// recognized as duplicates rather than processed twice.
func (c *dedupCache) markInFlight(key dedupKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.index[key]; exists {
		return
	}
	e := &dedupEntry{key: key, expires: time.Now().Add(c.ttl)}
	c.linkLocked(e)
	if c.onSizeChange != nil {
		c.onSizeChange(len(c.index))
	}
}

// complete stores the final response bytes for key, refreshing its
// expiration from now.
func (c *dedupCache) complete(key dedupKey, response []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index[key]
	if !ok {
		e = &dedupEntry{key: key}
		c.linkLocked(e)
	}
	e.response = response
	e.expires = time.Now().Add(c.ttl)
	// Re-link at the tail so the expiry-ordered list stays sorted:
	// completion always happens after markInFlight, so this entry's
	// new expiry is >= every entry already in the list.
	c.unlinkLocked(e)
	c.linkLocked(e)
	if c.onSizeChange != nil {
		c.onSizeChange(len(c.index))
	}
}

func (c *dedupCache) linkLocked(e *dedupEntry) {
	e.prev = c.tail
	e.next = nil
	if c.tail != nil {
		c.tail.next = e
	}
	c.tail = e
	if c.head == nil {
		c.head = e
	}
	c.index[e.key] = e
}

func (c *dedupCache) unlinkLocked(e *dedupEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	delete(c.index, e.key)
}
