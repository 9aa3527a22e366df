package dap

import (
	"fmt"
	"net/url"
	"sync/atomic"
)

// DoHType identifies which wire protocol a Path uses to reach its target.
type DoHType int

const (
	// Standard is plain DNS-over-HTTPS straight to the target, RFC 8484.
	Standard DoHType = iota
	// Oblivious is ODoH/MODoH: one or more relays front the target, RFC 9230.
	Oblivious
)

// Target is a DoH/ODoH resolution endpoint: the server that ultimately
// answers the query.
type Target struct {
	// Authority is host[:port], e.g. "dns.google" or "dns.google:443".
	Authority string
	// Path is the HTTP path of the DoH/ODoH endpoint, e.g. "/dns-query".
	Path string
	// Scheme is "http" or "https". Defaults to "https" if empty.
	Scheme string
}

func (t Target) scheme() string {
	if t.Scheme == "" {
		return "https"
	}
	return t.Scheme
}

// Relay is an ODoH/MODoH intermediary. CanBeNextHop marks relays that may
// sit directly behind the client (i.e. the ones configured as
// odoh_relay_urls, as opposed to mid_relay_urls which can only appear
// further down the chain).
type Relay struct {
	Authority    string
	Path         string
	Scheme       string
	CanBeNextHop bool
}

func (r Relay) scheme() string {
	if r.Scheme == "" {
		return "https"
	}
	return r.Scheme
}

// Path is one concrete route to a Target: for Standard DoH, just the
// target; for Oblivious, the target plus an ordered relay chain whose
// first element is the next hop from the client.
type Path struct {
	Target  Target
	Relays  []Relay
	DoHType DoHType

	healthy atomic.Bool
}

// NewPath constructs a Path, marked healthy.
func NewPath(target Target, doHType DoHType, relays ...Relay) *Path {
	p := &Path{Target: target, DoHType: doHType, Relays: relays}
	p.healthy.Store(true)
	return p
}

// IsHealthy reports the path's current health flag. This is a hint, not a
// guarantee: it is read and written with relaxed atomics and callers must
// tolerate a path flipping state between the check and its use.
func (p *Path) IsHealthy() bool { return p.healthy.Load() }

// MarkHealthy flags the path as usable again.
func (p *Path) MarkHealthy() { p.healthy.Store(true) }

// MarkUnhealthy flags the path as having recently failed.
func (p *Path) MarkUnhealthy() { p.healthy.Store(false) }

// URL assembles the HTTP(S) URL to dial for this path, per RFC 9230 §4 for
// the Oblivious case. The first relay in the chain is the one actually
// dialed; the target and any subsequent relays are carried as query
// parameters the first relay uses to route the request onward.
//
// Grounded on original_source/dap-lib/src/doh_client/path_manage.rs
// DoHPath::as_url, including its query-parameter naming
// (targethost/targetpath/relayhost[n]/relaypath[n]).
func (p *Path) URL() (*url.URL, error) {
	switch p.DoHType {
	case Standard:
		if len(p.Relays) != 0 {
			return nil, fmt.Errorf("standard doh path must not have relays")
		}
		return &url.URL{
			Scheme: p.Target.scheme(),
			Host:   p.Target.Authority,
			Path:   p.Target.Path,
		}, nil

	case Oblivious:
		if len(p.Relays) == 0 || !p.Relays[0].CanBeNextHop {
			return nil, fmt.Errorf("oblivious doh path requires a valid next-hop relay")
		}
		nextHop := p.Relays[0]
		u := &url.URL{
			Scheme: nextHop.scheme(),
			Host:   nextHop.Authority,
			Path:   nextHop.Path,
		}
		q := u.Query()
		q.Set("targethost", p.Target.Authority)
		q.Set("targetpath", p.Target.Path)
		for i, relay := range p.Relays[1:] {
			idx := i + 1
			q.Set(fmt.Sprintf("relayhost[%d]", idx), relay.Authority)
			q.Set(fmt.Sprintf("relaypath[%d]", idx), relay.Path)
		}
		u.RawQuery = q.Encode()
		return u, nil

	default:
		return nil, fmt.Errorf("unknown doh type %d", p.DoHType)
	}
}

// hasLoop reports whether the relay chain (plus the target) revisits the
// same authority twice. Unlike the original Rust source, which left this
// check as an unfinished TODO, dap enforces it at path-construction time
// (see PathManager.build) so a malformed loop never reaches selection.
func hasLoop(target Target, relays []Relay) bool {
	seen := make(map[string]struct{}, len(relays)+1)
	seen[target.Authority] = struct{}{}
	for _, r := range relays {
		if _, ok := seen[r.Authority]; ok {
			return true
		}
		seen[r.Authority] = struct{}{}
	}
	return false
}
