package dap

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// startTestDNSServer runs a minimal UDP DNS server on an ephemeral port that
// answers every A query with the given IP, returning the server's address
// and a stop function.
func startTestDNSServer(t *testing.T, ip string) (string, func()) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		a := new(dns.Msg)
		a.SetReply(r)
		if len(r.Question) == 1 && r.Question[0].Qtype == dns.TypeA {
			rr, err := dns.NewRR(r.Question[0].Name + " 60 IN A " + ip)
			if err == nil {
				a.Answer = append(a.Answer, rr)
			}
		}
		_ = w.WriteMsg(a)
	})

	server := &dns.Server{PacketConn: conn, Handler: mux}
	go server.ActivateAndServe()
	return conn.LocalAddr().String(), func() { _ = server.Shutdown() }
}

func TestBootstrapResolverLookupA(t *testing.T) {
	addr, stop := startTestDNSServer(t, "203.0.113.5")
	defer stop()

	b := NewBootstrapResolver(addr, time.Second)
	ips, err := b.LookupA("dns.google")
	require.NoError(t, err)
	require.Equal(t, []string{"203.0.113.5"}, ips)
}

func TestHostOnlyStripsPort(t *testing.T) {
	require.Equal(t, "dns.google", hostOnly("dns.google:443"))
	require.Equal(t, "dns.google", hostOnly("dns.google"))
}
