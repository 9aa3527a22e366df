package dap

import "sync/atomic"

// ConnectionCounter tracks the number of active UDP and TCP connections the
// proxy is currently servicing, used to gate admission against
// max_connections (spec §5). The total is always derived from the two
// per-protocol counters, never itself authoritative, since the two can be
// incremented/decremented concurrently by independent listener goroutines.
//
// Grounded on original_source/src/counter.rs: an increment returns the
// pre-increment value so callers can reject the connection that pushed the
// counter over budget without first decrementing it again, and decrement
// saturates at zero via a compare-and-swap loop rather than going negative.
type ConnectionCounter struct {
	udp atomic.Int64
	tcp atomic.Int64
}

// IncrementUDP increments the UDP counter and returns its value prior to
// the increment.
func (c *ConnectionCounter) IncrementUDP() int64 { return c.udp.Add(1) - 1 }

// IncrementTCP increments the TCP counter and returns its value prior to
// the increment.
func (c *ConnectionCounter) IncrementTCP() int64 { return c.tcp.Add(1) - 1 }

// DecrementUDP decrements the UDP counter, saturating at zero.
func (c *ConnectionCounter) DecrementUDP() { saturatingDecrement(&c.udp) }

// DecrementTCP decrements the TCP counter, saturating at zero.
func (c *ConnectionCounter) DecrementTCP() { saturatingDecrement(&c.tcp) }

// UDP returns the current UDP connection count.
func (c *ConnectionCounter) UDP() int64 { return c.udp.Load() }

// TCP returns the current TCP connection count.
func (c *ConnectionCounter) TCP() int64 { return c.tcp.Load() }

// Total returns udp+tcp. Always recomputed, never stored, so there's no
// window where it can be read out of sync with the two counters it sums.
func (c *ConnectionCounter) Total() int64 { return c.udp.Load() + c.tcp.Load() }

func saturatingDecrement(v *atomic.Int64) {
	for {
		cur := v.Load()
		if cur <= 0 {
			return
		}
		if v.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
