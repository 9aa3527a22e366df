package dap

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
)

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	Addr          string // host:port
	Net           string // "udp" or "tcp"
	Pipeline      *Pipeline
	Counter       *ConnectionCounter
	MaxConns      int64 // 0 means unlimited
	QueryTimeout  time.Duration
}

// Listener accepts plain DNS queries on UDP or TCP and forwards them
// through a Pipeline, returning plain DNS wire responses - the one
// external-collaborator surface spec §1/§6 names but specifies only by
// contract. Built on *dns.Server the way every listener in this corpus
// is (dnslistener.go, dotlistener.go, doqlistener.go), since the library
// already implements the UDP one-datagram-one-message and TCP
// 2-byte-length-prefix framing RFC 1035 requires.
type Listener struct {
	id     string
	server *dns.Server
	opt    ListenerOptions
}

// NewListener returns a Listener ready to Start.
func NewListener(id string, opt ListenerOptions) *Listener {
	l := &Listener{id: id, opt: opt}
	l.server = &dns.Server{
		Addr:    opt.Addr,
		Net:     opt.Net,
		Handler: l.handler(),
	}
	return l
}

// Start runs the listener, blocking until it stops or fails.
func (l *Listener) Start() error {
	Log.Info("starting listener", "id", l.id, "protocol", l.opt.Net, "addr", l.opt.Addr)
	return l.server.ListenAndServe()
}

// Shutdown stops the listener gracefully.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.server.ShutdownContext(ctx)
}

func (l *Listener) String() string { return l.id }

func (l *Listener) handler() dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		var clientAddr net.IP
		switch addr := w.RemoteAddr().(type) {
		case *net.TCPAddr:
			clientAddr = addr.IP
		case *net.UDPAddr:
			clientAddr = addr.IP
		}
		log := queryLogger(l.id, qName(req), clientAddr.String())

		if !l.admit() {
			log.Warn("refusing connection: max_connections exceeded")
			a := new(dns.Msg)
			a.SetRcode(req, dns.RcodeRefused)
			_ = w.WriteMsg(a)
			return
		}
		defer l.release()

		// Per-query deadline is the configured transport timeout plus a
		// fixed second of slack, matching
		// original_source/src/tcpserver.rs (globals.udp_timeout + 1s):
		// enough headroom that the pipeline's own HTTP timeout fires
		// first in the common case, rather than this deadline racing it.
		timeout := l.opt.QueryTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
		defer cancel()

		resp, err := l.opt.Pipeline.Resolve(ctx, req)
		if err != nil {
			// Per spec §7 the listener discards the client message on
			// failure rather than answering with SERVFAIL; the client's
			// own retry/stub-resolver timeout is the recovery path.
			log.Error("failed to resolve, discarding query", "error", err)
			return
		}

		// Pad the reply per RFC 8467/7830 if the client asked for EDNS0,
		// independent of whatever padding the upstream DoH/ODoH leg applied,
		// matching the teacher's dohlistener.go.
		padAnswer(req, resp)

		if l.opt.Net == "udp" {
			maxSize := dns.MinMsgSize
			if edns0 := req.IsEdns0(); edns0 != nil {
				maxSize = int(edns0.UDPSize())
			}
			resp.Truncate(maxSize)
		}
		_ = w.WriteMsg(resp)
	}
}

func (l *Listener) admit() bool {
	if l.opt.Counter == nil {
		return true
	}
	var pre int64
	if l.opt.Net == "tcp" {
		pre = l.opt.Counter.IncrementTCP()
	} else {
		pre = l.opt.Counter.IncrementUDP()
	}
	if l.opt.MaxConns > 0 && pre >= l.opt.MaxConns {
		l.release()
		return false
	}
	return true
}

func (l *Listener) release() {
	if l.opt.Counter == nil {
		return
	}
	if l.opt.Net == "tcp" {
		l.opt.Counter.DecrementTCP()
	} else {
		l.opt.Counter.DecrementUDP()
	}
}
