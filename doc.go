/*
Package dap implements a local DNS-to-HTTPS proxy. It accepts plain DNS
queries over UDP/TCP on loopback and resolves them over DNS-over-HTTPS
(RFC 8484), Oblivious DoH (RFC 9230), or multi-relay ODoH, returning plain
DNS wire responses to the original client.

The core of the library is four collaborating pieces: a PathManager that
enumerates and selects target/relay combinations, an ODoHConfigStore that
fetches and caches target HPKE public keys, a Cache that stores responses
keyed by a query fingerprint, and a Pipeline that ties all three together
to answer a single query.

Everything else in this module - the UDP/TCP listeners, the TOML config
loader, the bearer token Authenticator, and the pinned-endpoint HTTP
Transport - is plumbing around that core, built the way this corpus
builds its listeners and clients.
*/
package dap
