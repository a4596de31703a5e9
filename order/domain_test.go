package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"sub.example.co.uk", true},
		{"a-b.example.io", true},
		{"*.example.com", true},
		{"*.sub.example.com", true},
		{"bücher.de", true},
		{"", false},
		{"example", false},
		{"ex ample.com", false},
		{"-example.com", false},
		{"example-.com", false},
		{"example.c", false},
		{"example.123", false},
		{"*example.com", false},
		{"**.example.com", false},
		{"exa_mple.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidDomain(tt.domain))
		})
	}
}

func TestIsValidDomainLabelLength(t *testing.T) {
	label63 := ""
	for i := 0; i < 63; i++ {
		label63 += "a"
	}
	assert.True(t, IsValidDomain(label63+".com"))
	assert.False(t, IsValidDomain(label63+"a.com"))
}

func TestIsValidWildcardDomain(t *testing.T) {
	assert.True(t, IsValidWildcardDomain("*.example.com"))
	assert.False(t, IsValidWildcardDomain("example.com"))
	assert.False(t, IsValidWildcardDomain("*."))
	assert.False(t, IsValidWildcardDomain(""))
}

func TestNormalizeDomain(t *testing.T) {
	got, ok := NormalizeDomain("Bücher.DE")
	assert.True(t, ok)
	assert.Equal(t, "xn--bcher-kva.de", got)

	got, ok = NormalizeDomain("*.Example.com")
	assert.True(t, ok)
	assert.Equal(t, "*.example.com", got)

	_, ok = NormalizeDomain("not a domain")
	assert.False(t, ok)
}
