package dap

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// Sentinel errors, matched with errors.Is by callers that need to branch on
// failure kind (the pipeline's stale-config handling in particular).
var (
	// ErrNoPath is returned when the path manager has no path to offer,
	// either because none are configured or all were discarded as loops.
	// Unhealthy paths are still offered when no healthy one exists.
	ErrNoPath = errors.New("no path available")

	// ErrInvalidQuery is returned for a query with zero or more than one
	// question, which this proxy doesn't support forwarding.
	ErrInvalidQuery = errors.New("invalid query: expected exactly one question")

	// ErrStaleConfig is returned when a target rejects an ODoH-sealed query,
	// signalling that the cached HPKE config is no longer valid.
	ErrStaleConfig = errors.New("target rejected query: stale odoh config")

	// ErrNoConfig is returned when an ODoH/MODoH path is selected but there
	// is no config to seal with: the pipeline has no config store, or the
	// target published no usable config.
	ErrNoConfig = errors.New("no odoh config available for target")

	// ErrAuthUnavailable is returned by the Authenticator when it cannot
	// produce a token (e.g. the token endpoint is unreachable).
	ErrAuthUnavailable = errors.New("unable to obtain bearer token")
)

// QueryTimeoutError describes a query that exceeded its deadline. No
// function in this package returns it; a timed-out upstream request
// surfaces as the HTTP client's context error.
type QueryTimeoutError struct {
	Query *dns.Msg
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query for %q timed out", qName(e.Query))
}

// UpstreamStatusError is returned when an upstream HTTP response has an
// unexpected status code: anything but 200 for a DoH/ODoH query, anything
// outside 2xx for an ODoH config fetch.
type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}
