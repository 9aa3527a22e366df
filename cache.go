package dap

import (
	"sync"
	"time"

	"github.com/miekg/dns"
)

// entry is a single cached response, keyed by Fingerprint.
type entry struct {
	msg       *dns.Msg
	timestamp time.Time
	expiry    time.Time
}

// Cache stores DNS responses keyed by query fingerprint (spec §4.2): a
// response's remaining TTL is computed from the age of the entry on every
// lookup, and the transaction ID plus original question casing are
// restamped onto the cached answer before it's returned, so a caller can't
// tell a cache hit from a live one except by latency.
//
// Backed by an in-memory LRU only: dap deliberately drops the teacher's
// optional persistent (file-backed) cache backend, since spec.md's "no
// persistent state survives restart" Non-goal excludes it as a feature.
type Cache struct {
	mu          sync.Mutex
	lru         *lruCache
	negativeTTL time.Duration
	done        chan struct{}
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Capacity bounds the number of entries kept; 0 means unlimited.
	Capacity int
	// NegativeTTL is the floor TTL: both the minimum applied to any
	// positive answer's own TTL (spec §3/§4.2's min_ttl) and the TTL used
	// for responses with no usable TTL of their own (e.g. NXDOMAIN with no
	// SOA). Defaults to 60s.
	NegativeTTL time.Duration
	// GCPeriod controls how often expired entries are swept in the
	// background, independent of being looked up. Defaults to one minute.
	GCPeriod time.Duration
}

// NewCache creates a Cache and starts its background sweep goroutine.
func NewCache(opt CacheOptions) *Cache {
	if opt.NegativeTTL == 0 {
		opt.NegativeTTL = 60 * time.Second
	}
	if opt.GCPeriod == 0 {
		opt.GCPeriod = time.Minute
	}
	c := &Cache{
		lru:         newLRUCache(opt.Capacity),
		negativeTTL: opt.NegativeTTL,
		done:        make(chan struct{}),
	}
	go c.sweep(opt.GCPeriod)
	return c
}

// Close stops the background sweep goroutine.
func (c *Cache) Close() { close(c.done) }

// Lookup returns a cached response for q, with TTLs decremented for the
// time spent in the cache and the transaction ID restamped to match q. The
// second return value is false on a miss or if the entry expired.
func (c *Cache) Lookup(q *dns.Msg) (*dns.Msg, bool) {
	fp, ok := BuildFingerprint(q)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	e := c.lru.get(fp)
	c.mu.Unlock()
	if e == nil {
		return nil, false
	}
	if time.Now().After(e.expiry) {
		c.evict(fp)
		return nil, false
	}

	age := uint32(time.Since(e.timestamp).Seconds())
	answer := e.msg.Copy()
	for _, set := range [][]dns.RR{answer.Answer, answer.Ns, answer.Extra} {
		for _, rr := range set {
			if _, isOpt := rr.(*dns.OPT); isOpt {
				continue
			}
			h := rr.Header()
			if age >= h.Ttl {
				c.evict(fp)
				return nil, false
			}
			h.Ttl -= age
		}
	}
	return restampID(answer, q), true
}

// Store inserts answer into the cache keyed by q's fingerprint. Truncated
// responses are never cached, since they're incomplete by definition.
func (c *Cache) Store(q, answer *dns.Msg) {
	if answer.Truncated {
		return
	}
	fp, ok := BuildFingerprint(q)
	if !ok {
		return
	}
	expiry := c.expiryFor(answer)
	if expiry.IsZero() {
		return
	}
	// Raise record TTLs below the floor to the floor, so the per-record TTL
	// decay in Lookup agrees with the floored expiry.
	stored := answer.Copy()
	floor := uint32(c.negativeTTL.Seconds())
	for _, set := range [][]dns.RR{stored.Answer, stored.Ns, stored.Extra} {
		for _, rr := range set {
			if _, isOpt := rr.(*dns.OPT); isOpt {
				continue
			}
			if h := rr.Header(); h.Ttl < floor {
				h.Ttl = floor
			}
		}
	}
	c.mu.Lock()
	c.lru.add(fp, &entry{msg: stored, timestamp: time.Now(), expiry: expiry})
	c.mu.Unlock()
}

func (c *Cache) expiryFor(answer *dns.Msg) time.Time {
	now := time.Now()
	switch answer.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError, dns.RcodeRefused, dns.RcodeNotImplemented, dns.RcodeFormatError:
		if ttl, ok := minTTL(answer); ok {
			floor := uint32(c.negativeTTL.Seconds())
			if ttl < floor {
				ttl = floor
			}
			return now.Add(time.Duration(ttl) * time.Second)
		}
		return now.Add(c.negativeTTL)
	case dns.RcodeServerFailure:
		// RFC 2308: a SERVFAIL must not be cached for longer than 5 minutes.
		ttl := c.negativeTTL
		if ttl > 5*time.Minute {
			ttl = 5 * time.Minute
		}
		return now.Add(ttl)
	default:
		return time.Time{}
	}
}

func (c *Cache) evict(fp Fingerprint) {
	c.mu.Lock()
	c.lru.delete(fp)
	c.mu.Unlock()
}

// Size returns the current number of cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.size()
}

// sweep periodically removes expired entries regardless of lookup
// activity, so a target that's never queried again doesn't hold memory
// forever.
func (c *Cache) sweep(period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-t.C:
			c.mu.Lock()
			removed := c.lru.deleteFunc(func(e *entry) bool { return now.After(e.expiry) })
			c.mu.Unlock()
			if removed > 0 {
				Log.Debug("cache sweep removed expired entries", "removed", removed)
			}
		}
	}
}
