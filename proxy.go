package dap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Proxy wires together everything Config describes into a single runnable
// instance: path manager, ODoH config store, cache, transport,
// authenticator, pipeline, and a listener per configured address. This is
// the orchestration cmd/dap-proxy/main.go delegates to, keeping the CLI
// itself a thin cobra wrapper, the way cmd/routedns/config.go separates
// config parsing from cmd/routedns/main.go's startup sequence.
type Proxy struct {
	cfg       *Config
	counter   *ConnectionCounter
	cache     *Cache
	pathMgr   *PathManager
	odohCfg   *ODoHConfigStore
	auth      *Authenticator
	endpoints *Endpoints
	pipeline  *Pipeline
	listeners []*Listener
}

// NewProxy builds a Proxy from cfg, performing the initial bootstrap
// lookups and ODoH config fetches needed before it can serve queries.
func NewProxy(ctx context.Context, cfg *Config) (*Proxy, error) {
	targets, err := parseTargets(cfg.DoHTargetURLs)
	if err != nil {
		return nil, fmt.Errorf("parsing doh_target_urls: %w", err)
	}
	nextHops, err := parseRelays(cfg.ODoHRelayURLs, true)
	if err != nil {
		return nil, fmt.Errorf("parsing odoh_relay_urls: %w", err)
	}
	midRelays, err := parseRelays(cfg.MidRelayURLs, false)
	if err != nil {
		return nil, fmt.Errorf("parsing mid_relay_urls: %w", err)
	}

	var auth *Authenticator
	if cfg.CredentialFile != "" {
		creds, err := LoadAuthCredentials(cfg.CredentialFile)
		if err != nil {
			return nil, err
		}
		if cfg.TokenAPI != "" {
			creds.TokenURL = cfg.TokenAPI
		}
		auth, err = NewAuthenticator(creds)
		if err != nil {
			return nil, err
		}
	}

	endpoints := NewEndpoints()
	bootstrap := NewBootstrapResolver(cfg.BootstrapDNS, cfg.QueryTimeout())
	for _, host := range distinctHosts(targets, nextHops, midRelays) {
		ips, err := bootstrap.LookupA(host)
		if err != nil {
			return nil, fmt.Errorf("bootstrap resolution of %s: %w", host, err)
		}
		endpoints.Set(host, ips)
	}

	transport, err := NewTransport(TransportOptions{Endpoints: endpoints, QueryTimeout: cfg.QueryTimeout()})
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Transport: transport, Timeout: cfg.QueryTimeout() + time.Second}

	pathMgr := NewPathManager(PathManagerOptions{
		Targets:              targets,
		NextHops:             nextHops,
		MidRelays:            midRelays,
		MaxMidRelays:         cfg.MaxMidRelays,
		TargetRandomization:  cfg.TargetRandomization,
		NextHopRandomization: cfg.ODoHRelayRandomization,
	})

	var odohCfg *ODoHConfigStore
	if len(nextHops) > 0 {
		odohCfg = NewODoHConfigStore(httpClient)
		for _, target := range targets {
			if _, err := odohCfg.Refresh(ctx, target); err != nil {
				Log.Warn("initial odoh config fetch failed", "target", target.Authority, "error", err)
			}
		}
		odohCfg.StartBackgroundRefresh(targets, cfg.RebootstrapPeriod())
	}

	cache := NewCache(CacheOptions{
		Capacity:    cfg.MaxCacheSize,
		NegativeTTL: time.Duration(cfg.MinTTL) * time.Second,
	})

	pipeline := NewPipeline(PipelineOptions{
		PathManager:  pathMgr,
		ODoHConfigs:  odohCfg,
		Cache:        cache,
		Auth:         auth,
		HTTPClient:   httpClient,
		Method:       cfg.DoHMethod,
		QueryTimeout: cfg.QueryTimeout(),
	})

	counter := &ConnectionCounter{}
	var listeners []*Listener
	for _, addr := range cfg.ListenAddresses {
		for _, proto := range []string{"udp", "tcp"} {
			listeners = append(listeners, NewListener(fmt.Sprintf("%s/%s", addr, proto), ListenerOptions{
				Addr:         addr,
				Net:          proto,
				Pipeline:     pipeline,
				Counter:      counter,
				MaxConns:     cfg.MaxConnections,
				QueryTimeout: cfg.QueryTimeout(),
			}))
		}
	}

	return &Proxy{
		cfg:       cfg,
		counter:   counter,
		cache:     cache,
		pathMgr:   pathMgr,
		odohCfg:   odohCfg,
		auth:      auth,
		endpoints: endpoints,
		pipeline:  pipeline,
		listeners: listeners,
	}, nil
}

// Start runs every configured listener, blocking until the first one
// fails, in which case Start returns that error, or ctx is cancelled, in
// which case Start shuts everything down and returns Shutdown's result.
func (p *Proxy) Start(ctx context.Context) error {
	errc := make(chan error, len(p.listeners))
	for _, l := range p.listeners {
		l := l
		go func() { errc <- l.Start() }()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return p.Shutdown(context.Background())
	}
}

// Shutdown stops every listener and the background refresh goroutines.
func (p *Proxy) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, l := range p.listeners {
		if err := l.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.odohCfg != nil {
		p.odohCfg.Close()
	}
	p.cache.Close()
	return firstErr
}

func parseTargets(rawURLs []string) ([]Target, error) {
	var out []Target
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", raw, err)
		}
		out = append(out, Target{Authority: u.Host, Path: u.Path, Scheme: u.Scheme})
	}
	return out, nil
}

func parseRelays(rawURLs []string, canBeNextHop bool) ([]Relay, error) {
	var out []Relay
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", raw, err)
		}
		out = append(out, Relay{Authority: u.Host, Path: u.Path, Scheme: u.Scheme, CanBeNextHop: canBeNextHop})
	}
	return out, nil
}

func distinctHosts(targets []Target, nextHops, midRelays []Relay) []string {
	seen := make(map[string]struct{})
	var hosts []string
	add := func(authority string) {
		h := hostOnly(authority)
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	for _, t := range targets {
		add(t.Authority)
	}
	for _, r := range nextHops {
		add(r.Authority)
	}
	for _, r := range midRelays {
		add(r.Authority)
	}
	return hosts
}
