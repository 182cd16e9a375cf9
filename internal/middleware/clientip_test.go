package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.1/32", prefixes[1].String())
	assert.Equal(t, "::1/128", prefixes[2].String())

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.ErrorContains(t, err, "not-an-ip")
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted bool
		remote  string
		xff     string
		cf      string
		want    string
	}{
		{"no proxies configured ignores headers", false, "192.0.2.1:1234", "203.0.113.7", "198.51.100.2", "192.0.2.1"},
		{"untrusted peer ignores headers", true, "192.0.2.1:1234", "203.0.113.7", "", "192.0.2.1"},
		{"trusted peer uses forwarded client", true, "10.0.0.5:1234", "203.0.113.7", "", "203.0.113.7"},
		{"spoofed leftmost entry is skipped", true, "10.0.0.5:1234", "1.2.3.4, 203.0.113.7, 10.0.0.9", "", "203.0.113.7"},
		{"trusted peer prefers cloudflare header", true, "10.0.0.5:1234", "203.0.113.7", "198.51.100.2", "198.51.100.2"},
		{"trusted peer without headers", true, "10.0.0.5:1234", "", "", "10.0.0.5"},
		{"garbage header falls back to peer", true, "10.0.0.5:1234", "nonsense", "", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.cf != "" {
				req.Header.Set("CF-Connecting-IP", tt.cf)
			}
			resolve := ClientIP(nil)
			if tt.trusted {
				resolve = ClientIP(trusted)
			}
			assert.Equal(t, tt.want, resolve(req))
		})
	}
}
