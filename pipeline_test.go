package dap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	odoh "github.com/cloudflare/odoh-go"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func standardQuery(name string) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), dns.TypeA)
	return q
}

func packResponse(t *testing.T, q *dns.Msg, ip string) []byte {
	t.Helper()
	a := new(dns.Msg)
	a.SetReply(q)
	rr, err := dns.NewRR(q.Question[0].Name + " 300 IN A " + ip)
	require.NoError(t, err)
	a.Answer = append(a.Answer, rr)
	wire, err := a.Pack()
	require.NoError(t, err)
	return wire
}

func singleStandardPathManager(t *testing.T, targetAuthority string) *PathManager {
	t.Helper()
	return NewPathManager(PathManagerOptions{
		Targets: []Target{{Authority: targetAuthority, Scheme: "http"}},
	})
}

func TestPipelineResolveStandardCacheMiss(t *testing.T) {
	q := standardQuery("example.com")
	var wire []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/dns-message")
		_, _ = w.Write(wire)
	}))
	defer srv.Close()
	wire = packResponse(t, q, "93.184.216.34")

	pm := singleStandardPathManager(t, srv.Listener.Addr().String())
	cache := NewCache(CacheOptions{})
	defer cache.Close()

	p := NewPipeline(PipelineOptions{
		PathManager: pm,
		Cache:       cache,
		HTTPClient:  srv.Client(),
	})

	resp, err := p.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Answer, 1)
}

func TestPipelineResolveStandardCacheHitSkipsUpstream(t *testing.T) {
	q := standardQuery("cached.example.com")
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write(packResponse(t, q, "1.2.3.4"))
	}))
	defer srv.Close()

	pm := singleStandardPathManager(t, srv.Listener.Addr().String())
	cache := NewCache(CacheOptions{})
	defer cache.Close()

	p := NewPipeline(PipelineOptions{PathManager: pm, Cache: cache, HTTPClient: srv.Client()})

	_, err := p.Resolve(context.Background(), q)
	require.NoError(t, err)
	_, err = p.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestPipelineResolveMarksPathUnhealthyOnUpstreamError(t *testing.T) {
	q := standardQuery("broken.example.com")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pm := singleStandardPathManager(t, srv.Listener.Addr().String())
	p := NewPipeline(PipelineOptions{PathManager: pm, HTTPClient: srv.Client()})

	_, err := p.Resolve(context.Background(), q)
	require.Error(t, err)
	require.False(t, pm.paths[0][0][0].IsHealthy())
}

func TestPipelineResolveRejectsMultiQuestion(t *testing.T) {
	q := standardQuery("a.example.com")
	q.Question = append(q.Question, q.Question[0])
	p := NewPipeline(PipelineOptions{PathManager: &PathManager{}})
	_, err := p.Resolve(context.Background(), q)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestPipelineResolveObliviousStaleConfigOn401(t *testing.T) {
	kp, err := odoh.CreateDefaultKeyPair()
	require.NoError(t, err)
	configs := odoh.CreateObliviousDoHConfigs([]odoh.ObliviousDoHConfig{kp.Config})

	targetMux := http.NewServeMux()
	targetMux.HandleFunc(ODoHWellKnownPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(configs.Marshal())
	})
	targetSrv := httptest.NewServer(targetMux)
	defer targetSrv.Close()

	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer relaySrv.Close()

	target := Target{Authority: targetSrv.Listener.Addr().String(), Scheme: "http"}
	relay := Relay{Authority: relaySrv.Listener.Addr().String(), Path: "/proxy", Scheme: "http", CanBeNextHop: true}

	pm := NewPathManager(PathManagerOptions{Targets: []Target{target}, NextHops: []Relay{relay}})
	store := NewODoHConfigStore(targetSrv.Client())
	defer store.Close()

	p := NewPipeline(PipelineOptions{PathManager: pm, ODoHConfigs: store, HTTPClient: relaySrv.Client(), Method: http.MethodPost})

	q := standardQuery("secure.example.com")
	_, err = p.Resolve(context.Background(), q)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStaleConfig))
}
