package dap

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	PathManager   *PathManager
	ODoHConfigs   *ODoHConfigStore // nil for Standard-only deployments
	Cache         *Cache
	Auth          *Authenticator // nil if no credential_file configured
	HTTPClient    *http.Client
	Method        string // "GET" or "POST", default POST
	QueryTimeout  time.Duration
}

// Pipeline orchestrates a single query end to end: cache lookup, path
// selection, header construction, upstream dispatch, response
// interpretation, and cache population.
//
// Grounded step-for-step on
// original_source/dap-lib/src/doh_client/doh_client_main.rs's
// make_doh_query/serve_doh_query/serve_oblivious_doh_query.
type Pipeline struct {
	opt PipelineOptions
}

// NewPipeline constructs a Pipeline. Method defaults to POST if empty, per
// SPEC_FULL.md's Open Question decision.
func NewPipeline(opt PipelineOptions) *Pipeline {
	if opt.Method == "" {
		opt.Method = http.MethodPost
	}
	if opt.QueryTimeout == 0 {
		opt.QueryTimeout = 5 * time.Second
	}
	return &Pipeline{opt: opt}
}

// Resolve answers a single wire-format DNS query, returning a wire-format
// response. The commented-out plugin hook site in the original source
// (domain filtering/cloaking between cache lookup and dispatch) is
// preserved as a comment here per spec §9, but intentionally not built.
func (p *Pipeline) Resolve(ctx context.Context, query *dns.Msg) (*dns.Msg, error) {
	if len(query.Question) != 1 {
		return nil, ErrInvalidQuery
	}

	if p.opt.Cache != nil {
		if cached, ok := p.opt.Cache.Lookup(query); ok {
			return cached, nil
		}
	}

	// Plugin hook site (domain filtering, cloaking, etc.) would run here.
	// Not implemented: no plugin layer in scope.

	path, err := p.opt.PathManager.GetPath()
	if err != nil {
		return nil, err
	}

	var response *dns.Msg
	switch path.DoHType {
	case Standard:
		response, err = p.serveStandard(ctx, query, path)
	case Oblivious:
		response, err = p.serveOblivious(ctx, query, path)
	default:
		err = fmt.Errorf("unknown doh type %d", path.DoHType)
	}
	if err != nil {
		p.opt.PathManager.MarkUnhealthy(path)
		return nil, err
	}

	if p.opt.Cache != nil {
		p.opt.Cache.Store(query, response)
	}
	return response, nil
}

func (p *Pipeline) headers(ctx context.Context, contentType string, oblivious bool) (http.Header, error) {
	h := make(http.Header)
	h.Set("Accept", contentType)
	h.Set("Content-Type", contentType)
	if oblivious {
		h.Set("Cache-Control", "no-cache, no-store")
	}
	if p.opt.Auth != nil {
		token, err := p.opt.Auth.BearerToken(ctx)
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Bearer "+token)
	}
	return h, nil
}

func (p *Pipeline) serveStandard(ctx context.Context, query *dns.Msg, path *Path) (*dns.Msg, error) {
	q := query.Copy()
	// Strip any padding the client itself applied before re-padding for this
	// hop: padding is meaningful only between adjacent transport endpoints,
	// not end to end, matching the teacher's dnsclient.go/dohclient.go split.
	stripPadding(q)
	padQuery(q)
	wire, err := q.Pack()
	if err != nil {
		return nil, fmt.Errorf("packing query: %w", err)
	}

	u, err := path.URL()
	if err != nil {
		return nil, err
	}
	headers, err := p.headers(ctx, "application/dns-message", false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.opt.QueryTimeout)
	defer cancel()

	var req *http.Request
	if p.opt.Method == http.MethodGet {
		qv := u.Query()
		qv.Set("dns", base64.RawURLEncoding.EncodeToString(wire))
		u.RawQuery = qv.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytesReader(wire))
	}
	if err != nil {
		return nil, err
	}
	req.Header = headers

	resp, err := p.opt.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamStatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	body, err := readAll(resp.Body)
	if err != nil {
		return nil, err
	}
	a := new(dns.Msg)
	if err := a.Unpack(body); err != nil {
		return nil, fmt.Errorf("unpacking response: %w", err)
	}
	return a, nil
}

func (p *Pipeline) serveOblivious(ctx context.Context, query *dns.Msg, path *Path) (*dns.Msg, error) {
	if p.opt.ODoHConfigs == nil {
		return nil, ErrNoConfig
	}
	if p.opt.Method != http.MethodPost {
		return nil, fmt.Errorf("oblivious doh requires POST, got %s", p.opt.Method)
	}

	wire, err := query.Pack()
	if err != nil {
		return nil, fmt.Errorf("packing query: %w", err)
	}

	u, err := path.URL()
	if err != nil {
		return nil, err
	}
	headers, err := p.headers(ctx, "application/oblivious-dns-message", true)
	if err != nil {
		return nil, err
	}

	cfg, err := p.opt.ODoHConfigs.Config(ctx, path.Target)
	if err != nil {
		return nil, fmt.Errorf("loading odoh config for %s: %w", path.Target.Authority, err)
	}
	sealedQuery, qctx, err := SealQuery(cfg, wire)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.opt.QueryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytesReader(sealedQuery.Marshal()))
	if err != nil {
		return nil, err
	}
	req.Header = headers

	resp, err := p.opt.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Staleness: a 401, or a 200 with an empty body, both mean the cached
	// HPKE config is no longer valid. Unlike the original source (which
	// triggers the refetch but then falls through the generic non-OK
	// check, leaving the 200-empty branch to surface a DoH query error
	// rather than something actionable), dap surfaces ErrStaleConfig
	// explicitly in both cases so a caller can decide to retry.
	stale := resp.StatusCode == http.StatusUnauthorized ||
		(resp.StatusCode == http.StatusOK && resp.ContentLength == 0)
	if stale {
		Log.Warn("odoh config appears stale, refreshing", "target", path.Target.Authority)
		if _, rerr := p.opt.ODoHConfigs.Refresh(ctx, path.Target); rerr != nil {
			Log.Warn("odoh config refresh failed", "target", path.Target.Authority, "error", rerr)
		}
		return nil, ErrStaleConfig
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamStatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	body, err := readAll(resp.Body)
	if err != nil {
		return nil, err
	}
	sealedResponse, err := unmarshalODoHMessage(body)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling odoh response: %w", err)
	}
	plain, err := OpenAnswer(qctx, sealedResponse)
	if err != nil {
		return nil, fmt.Errorf("opening odoh response: %w", err)
	}
	a := new(dns.Msg)
	if err := a.Unpack(plain); err != nil {
		return nil, fmt.Errorf("unpacking decrypted response: %w", err)
	}
	return a, nil
}

// ResolveIPs resolves hostname (a target or relay authority) to host:port
// addresses by running an A query for it through this same pipeline,
// mirroring original_source's ResolveIps trait. Each address is an A
// record's IP joined with defaultPort. NewProxy does not call it: the
// Endpoints table is filled from BootstrapResolver lookups instead.
//
// Because resolving the very first target needs a path, and building a
// path needs no IPs (URLs are built from authority names, never
// addresses), this works from a cold start: a call dials via whatever
// pinned IPs the Endpoints table holds, or the system resolver.
func (p *Pipeline) ResolveIPs(ctx context.Context, hostname string, defaultPort string) ([]string, error) {
	q := BuildQueryA(hostname)
	resp, err := p.Resolve(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("resolving ips for %s: %w", hostname, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("resolving ips for %s: rcode %d", hostname, resp.Rcode)
	}
	var out []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			out = append(out, net.JoinHostPort(a.A.String(), defaultPort))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolving ips for %s: no A records", hostname)
	}
	return out, nil
}
