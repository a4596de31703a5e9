package dns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zones = `
resolver: 9.9.9.9:53
zones:
  - domain: example.com
    nameserver: ns1.example.com:53
    tsig_key_name: update
    tsig_secret: c2VjcmV0
  - domain: sub.example.com
    nameserver: ns2.example.com:53
  - nameserver: fallback.example.net:53
`

func TestParseDNSProvider(t *testing.T) {
	p, err := ParseDNSProvider([]byte(zones))
	require.NoError(t, err)
	assert.Equal(t, "9.9.9.9:53", p.Resolver)
	assert.Len(t, p.Configs, 3)
}

func TestMatchingProvider(t *testing.T) {
	p, err := ParseDNSProvider([]byte(zones))
	require.NoError(t, err)

	tests := []struct {
		domain     string
		nameserver string
	}{
		{"example.com", "ns1.example.com:53"},
		{"_abc.example.com", "ns1.example.com:53"},
		{"_abc.sub.example.com", "ns2.example.com:53"},
		{"www.other.org", "fallback.example.net:53"},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			cfg, err := p.matchingProvider(tt.domain)
			require.NoError(t, err)
			assert.Equal(t, tt.nameserver, cfg.Nameserver)
		})
	}
}

func TestMatchingProviderWithoutFallback(t *testing.T) {
	p := &DNSProvider{Configs: []ProviderConfig{{BaseDomain: "example.com"}}}
	assert.False(t, p.Configured("example.org"))
	assert.True(t, p.Configured("a.example.com"))
	assert.False(t, p.Configured("badexample.com"))
}

func TestPublishCNAMEWithoutZone(t *testing.T) {
	p := &DNSProvider{}
	_, err := p.PublishCNAME(context.Background(), "_x.example.com", "y.dcv.example")
	assert.Error(t, err)
}

func TestSameName(t *testing.T) {
	assert.True(t, SameName("abc.Example.com", "abc.example.com."))
	assert.False(t, SameName("abc.example.com", "abd.example.com"))
}

func TestNewResolver(t *testing.T) {
	assert.Equal(t, DefaultResolver, NewResolver("").Server)
	assert.Equal(t, "1.1.1.1:53", NewResolver("1.1.1.1").Server)
	assert.Equal(t, "127.0.0.1:5353", NewResolver("127.0.0.1:5353").Server)
	assert.Equal(t, "[::1]:53", NewResolver("::1").Server)
	assert.Equal(t, "[2001:db8::53]:53", NewResolver("[2001:db8::53]").Server)
	assert.Equal(t, "[::1]:5353", NewResolver("[::1]:5353").Server)
}
