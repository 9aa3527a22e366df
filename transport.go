package dap

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// Endpoints maps a hostname (as it appears in a Target/Relay authority) to
// the pinned IP addresses to dial instead of looking it up with the
// system resolver. NewProxy fills it once at startup from BootstrapResolver
// lookups; it is not refreshed afterwards. Safe for concurrent use.
type Endpoints struct {
	mu   sync.RWMutex
	ips  map[string][]string
	rnd  *rand.Rand
	rndM sync.Mutex
}

// NewEndpoints returns an empty endpoint table.
func NewEndpoints() *Endpoints {
	return &Endpoints{
		ips: make(map[string][]string),
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Set replaces the pinned IPs for host.
func (e *Endpoints) Set(host string, ips []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ips[host] = ips
}

// Pick returns one of host's pinned IPs, round-robin-ish via random
// selection (mirroring the teacher's Random resolver group picking one of
// several equivalent upstreams), or "" if host has no pinned IPs.
func (e *Endpoints) Pick(host string) string {
	e.mu.RLock()
	ips := e.ips[host]
	e.mu.RUnlock()
	if len(ips) == 0 {
		return ""
	}
	e.rndM.Lock()
	idx := e.rnd.Intn(len(ips))
	e.rndM.Unlock()
	return ips[idx]
}

// TransportOptions configures NewTransport.
type TransportOptions struct {
	// Endpoints pins hostnames to IPs, bypassing the system resolver. If
	// nil, dialing falls back to the system resolver.
	Endpoints *Endpoints

	TLSConfig *tls.Config

	// QueryTimeout bounds dialing and waiting for response headers;
	// defaults to 10s. Idle connections are closed after a fixed 30s.
	QueryTimeout time.Duration
}

// NewTransport builds an *http.Transport that dials pinned endpoint IPs
// instead of resolving hostnames itself, generalizing the teacher's
// dohclient.go dohTcpTransport (a single BootstrapAddr) to dap's table of
// per-hostname pinned IPs, since dap may be talking to many distinct
// targets/relays rather than one bootstrapped upstream.
func NewTransport(opt TransportOptions) (*http.Transport, error) {
	timeout := opt.QueryTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       opt.TLSConfig,
		DisableCompression:    true,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       30 * time.Second,
	}
	if tr.TLSClientConfig != nil {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, fmt.Errorf("configuring http2 transport: %w", err)
		}
	}

	dialer := &net.Dialer{Timeout: timeout}
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if opt.Endpoints != nil {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			if ip := opt.Endpoints.Pick(host); ip != "" {
				addr = net.JoinHostPort(ip, port)
			}
		}
		return dialer.DialContext(ctx, network, addr)
	}
	return tr, nil
}
