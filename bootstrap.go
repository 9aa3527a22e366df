package dap

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// BootstrapResolver is a minimal plain-DNS (Do53) client used only to
// discover the initial IP addresses of the proxy's configured targets and
// relays, before the pipeline (which needs those IPs to dial anything)
// exists - the chicken-and-egg spec §1 calls out explicitly.
//
// Grounded on the teacher's dnsclient.go, trimmed to the single exchange
// this bootstrap step needs rather than the teacher's pipelined,
// persistent-connection client.
type BootstrapResolver struct {
	server  string
	client  *dns.Client
	timeout time.Duration
}

// NewBootstrapResolver returns a resolver that queries server (host:port,
// UDP) for bootstrap lookups.
func NewBootstrapResolver(server string, timeout time.Duration) *BootstrapResolver {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &BootstrapResolver{
		server:  server,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		timeout: timeout,
	}
}

// LookupA resolves hostname to its A-record IP addresses over plain DNS.
func (b *BootstrapResolver) LookupA(hostname string) ([]string, error) {
	q := BuildQueryA(hostname)
	resp, _, err := b.client.Exchange(q, b.server)
	if err != nil {
		return nil, fmt.Errorf("bootstrap query for %s via %s: %w", hostname, b.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("bootstrap query for %s returned rcode %d", hostname, resp.Rcode)
	}
	var ips []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("bootstrap query for %s returned no A records", hostname)
	}
	return ips, nil
}

// hostOnly strips a possible port from an authority string.
func hostOnly(authority string) string {
	host, _, err := net.SplitHostPort(authority)
	if err != nil {
		return authority
	}
	return host
}
