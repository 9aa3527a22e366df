package dap

// lruCache is an intrusive doubly-linked-list LRU keyed by Fingerprint,
// the same structure this corpus's lru-cache.go uses for its DNS response
// cache, adapted to key on a Fingerprint instead of a raw dns.Question.
type lruCache struct {
	maxItems   int
	items      map[Fingerprint]*cacheItem
	head, tail *cacheItem
}

type cacheItem struct {
	key        Fingerprint
	value      *entry
	prev, next *cacheItem
}

func newLRUCache(capacity int) *lruCache {
	head := new(cacheItem)
	tail := new(cacheItem)
	head.next = tail
	tail.prev = head
	return &lruCache{
		maxItems: capacity,
		items:    make(map[Fingerprint]*cacheItem),
		head:     head,
		tail:     tail,
	}
}

func (c *lruCache) add(key Fingerprint, value *entry) {
	if item := c.touch(key); item != nil {
		item.value = value
		return
	}
	item := &cacheItem{
		key:   key,
		value: value,
		next:  c.head.next,
		prev:  c.head,
	}
	c.head.next.prev = item
	c.head.next = item
	c.items[key] = item
	c.resize()
}

// touch moves an existing item to the front of the list (most recently
// used) and returns it, or nil if key isn't present.
func (c *lruCache) touch(key Fingerprint) *cacheItem {
	item := c.items[key]
	if item == nil {
		return nil
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
	return item
}

func (c *lruCache) get(key Fingerprint) *entry {
	item := c.touch(key)
	if item == nil {
		return nil
	}
	return item.value
}

func (c *lruCache) delete(key Fingerprint) {
	item, ok := c.items[key]
	if !ok {
		return
	}
	c.unlink(item)
	delete(c.items, key)
}

func (c *lruCache) unlink(item *cacheItem) {
	item.prev.next = item.next
	item.next.prev = item.prev
}

// resize evicts the least-recently-used entries until the cache is back
// within capacity. A capacity of 0 means unbounded.
func (c *lruCache) resize() {
	if c.maxItems <= 0 {
		return
	}
	for len(c.items) > c.maxItems {
		lru := c.tail.prev
		if lru == c.head {
			return
		}
		c.unlink(lru)
		delete(c.items, lru.key)
	}
}

func (c *lruCache) size() int {
	return len(c.items)
}

// deleteFunc removes every item for which match returns true and reports
// how many were removed.
func (c *lruCache) deleteFunc(match func(*entry) bool) int {
	removed := 0
	for item := c.head.next; item != c.tail; {
		next := item.next
		if match(item.value) {
			c.unlink(item)
			delete(c.items, item.key)
			removed++
		}
		item = next
	}
	return removed
}
