package dap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMinimalStandard(t *testing.T) {
	path := writeConfig(t, `
listen_addresses = ["127.0.0.1:5300"]
doh_target_urls = ["https://dns.google/dns-query"]
bootstrap_dns = "8.8.8.8:53"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:5300"}, cfg.ListenAddresses)
	require.Equal(t, 5*time.Second, cfg.QueryTimeout())
	require.Equal(t, time.Hour, cfg.RebootstrapPeriod())
}

func TestLoadConfigRejectsEmptyListenAddresses(t *testing.T) {
	path := writeConfig(t, `
doh_target_urls = ["https://dns.google/dns-query"]
bootstrap_dns = "8.8.8.8:53"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsBadMethod(t *testing.T) {
	path := writeConfig(t, `
listen_addresses = ["127.0.0.1:5300"]
doh_target_urls = ["https://dns.google/dns-query"]
bootstrap_dns = "8.8.8.8:53"
doh_method = "PUT"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsMidRelaysWithoutNextHops(t *testing.T) {
	path := writeConfig(t, `
listen_addresses = ["127.0.0.1:5300"]
doh_target_urls = ["https://dns.google/dns-query"]
bootstrap_dns = "8.8.8.8:53"
mid_relay_urls = ["https://relay.example/proxy"]
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConfigTimeoutDefaultsWhenUnset(t *testing.T) {
	c := &Config{}
	require.Equal(t, 5*time.Second, c.QueryTimeout())
	c.TimeoutSec = 2
	require.Equal(t, 2*time.Second, c.QueryTimeout())
}
