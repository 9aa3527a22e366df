package dap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndpointsPickReturnsEmptyForUnknownHost(t *testing.T) {
	e := NewEndpoints()
	require.Equal(t, "", e.Pick("unknown.example"))
}

func TestEndpointsPickReturnsOneOfSetIPs(t *testing.T) {
	e := NewEndpoints()
	e.Set("dns.google", []string{"8.8.8.8", "8.8.4.4"})
	ip := e.Pick("dns.google")
	require.Contains(t, []string{"8.8.8.8", "8.8.4.4"}, ip)
}

func TestNewTransportBuildsWithoutError(t *testing.T) {
	e := NewEndpoints()
	e.Set("dns.google", []string{"8.8.8.8"})
	tr, err := NewTransport(TransportOptions{Endpoints: e})
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.NotNil(t, tr.DialContext)
}
