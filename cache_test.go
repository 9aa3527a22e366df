package dap

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func newAnswer(name string, ttl uint32) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), dns.TypeA)
	a := new(dns.Msg)
	a.SetReply(q)
	rr, _ := dns.NewRR(name + ". " + "60" + " IN A 127.0.0.1")
	rr.Header().Ttl = ttl
	a.Answer = append(a.Answer, rr)
	return a
}

func TestCacheHitAndMiss(t *testing.T) {
	c := NewCache(CacheOptions{})
	defer c.Close()

	q := BuildQueryA("example.com")
	q.Id = 42

	_, ok := c.Lookup(q)
	require.False(t, ok, "expected a cache-miss before any Store")

	a := newAnswer("example.com", 300)
	c.Store(q, a)

	cached, ok := c.Lookup(q)
	require.True(t, ok, "expected a cache-hit after Store")
	require.Equal(t, q.Id, cached.Id, "cached response must be restamped with the query's transaction id")
}

func TestCacheFingerprintIgnoresID(t *testing.T) {
	c := NewCache(CacheOptions{})
	defer c.Close()

	q1 := BuildQueryA("example.com")
	q1.Id = 1
	c.Store(q1, newAnswer("example.com", 300))

	q2 := BuildQueryA("example.com")
	q2.Id = 2
	_, ok := c.Lookup(q2)
	require.True(t, ok, "a query differing only by transaction id must hit the same cache entry")
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(CacheOptions{NegativeTTL: time.Second})
	defer c.Close()

	q := BuildQueryA("example.com")
	a := newAnswer("example.com", 1)

	// Backdate the timestamp by forcing a short TTL and waiting it out.
	c.Store(q, a)
	time.Sleep(1100 * time.Millisecond)

	_, ok := c.Lookup(q)
	require.False(t, ok, "entry should have expired")
}

func TestCacheExpiryFloorRaisesLowTTL(t *testing.T) {
	c := NewCache(CacheOptions{NegativeTTL: 10 * time.Second})
	defer c.Close()

	q := BuildQueryA("example.com")
	a := newAnswer("example.com", 1)
	c.Store(q, a)

	// A 1s answer TTL must be clamped up to the 10s floor, so it's still
	// cached a second later.
	time.Sleep(1100 * time.Millisecond)
	_, ok := c.Lookup(q)
	require.True(t, ok, "answer TTL below the floor must be raised to the floor, not left as-is")
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(CacheOptions{Capacity: 1})
	defer c.Close()

	q1 := BuildQueryA("first.example.com")
	q2 := BuildQueryA("second.example.com")
	c.Store(q1, newAnswer("first.example.com", 300))
	c.Store(q2, newAnswer("second.example.com", 300))

	_, ok := c.Lookup(q1)
	require.False(t, ok, "first entry should have been evicted once capacity was exceeded")

	_, ok = c.Lookup(q2)
	require.True(t, ok, "second entry should still be cached")
}

func TestCacheDoesNotStoreTruncated(t *testing.T) {
	c := NewCache(CacheOptions{})
	defer c.Close()

	q := BuildQueryA("example.com")
	a := newAnswer("example.com", 300)
	a.Truncated = true
	c.Store(q, a)

	_, ok := c.Lookup(q)
	require.False(t, ok, "truncated responses must never be cached")
}
