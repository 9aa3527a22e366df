package dap

import (
	"strings"

	"github.com/miekg/dns"
)

// Fingerprint identifies a query independent of its transaction ID, so that
// cache lookups succeed across repeated queries for the same name/type/class.
type Fingerprint struct {
	Name  string
	Qtype uint16
	Class uint16
}

// BuildFingerprint extracts the cache key for q. The name is lower-cased
// since DNS names are case-insensitive (RFC 4343) but the wire format isn't.
func BuildFingerprint(q *dns.Msg) (Fingerprint, bool) {
	if len(q.Question) != 1 {
		return Fingerprint{}, false
	}
	question := q.Question[0]
	return Fingerprint{
		Name:  strings.ToLower(question.Name),
		Qtype: question.Qtype,
		Class: question.Qclass,
	}, true
}

// IsQuery reports whether msg is a query (as opposed to a response).
func IsQuery(msg *dns.Msg) bool {
	return !msg.Response
}

// IsResponse reports whether msg is a response to a query.
func IsResponse(msg *dns.Msg) bool {
	return msg.Response
}

// BuildQueryA constructs a new class-IN A query for name, used by the
// self-resolve path (ResolveIPs) to turn a target/relay hostname into IPs
// using the proxy's own pipeline.
func BuildQueryA(name string) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), dns.TypeA)
	q.RecursionDesired = true
	return q
}

// qName returns the query name of a DNS message, or "" if it has none.
func qName(q *dns.Msg) string {
	if len(q.Question) == 0 {
		return ""
	}
	return q.Question[0].Name
}

// minTTL returns the lowest TTL among all non-OPT resource records in msg.
func minTTL(msg *dns.Msg) (uint32, bool) {
	var (
		min   uint32 = ^uint32(0)
		found bool
	)
	for _, set := range [][]dns.RR{msg.Answer, msg.Ns, msg.Extra} {
		for _, rr := range set {
			if _, ok := rr.(*dns.OPT); ok {
				continue
			}
			if ttl := rr.Header().Ttl; ttl < min {
				min = ttl
				found = true
			}
		}
	}
	return min, found
}

// restampID rewrites the transaction ID of a cached response to match the
// incoming query, and restores the question section's original casing/name.
func restampID(cached *dns.Msg, query *dns.Msg) *dns.Msg {
	out := cached.Copy()
	out.Id = query.Id
	if len(query.Question) == 1 && len(out.Question) == 1 {
		out.Question[0].Name = query.Question[0].Name
	}
	return out
}
