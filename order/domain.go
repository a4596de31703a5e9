package order

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

const maxDomainLength = 253

var (
	domainRegex   = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
	wildcardRegex = regexp.MustCompile(`^\*\.([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
)

// IsValidDomain checks the syntax of a plain or wildcard domain name.
// Nothing is resolved.
func IsValidDomain(domain string) bool {
	ascii, ok := toASCII(domain)
	if !ok {
		return false
	}
	return domainRegex.MatchString(ascii) || wildcardRegex.MatchString(ascii)
}

// IsValidWildcardDomain only accepts the "*.example.com" form.
func IsValidWildcardDomain(domain string) bool {
	ascii, ok := toASCII(domain)
	if !ok {
		return false
	}
	return wildcardRegex.MatchString(ascii)
}

func IsWildcard(domain string) bool {
	return strings.HasPrefix(domain, "*.")
}

// NormalizeDomain returns the lower-case ASCII form of a valid domain.
func NormalizeDomain(domain string) (string, bool) {
	ascii, ok := toASCII(domain)
	if !ok || !(domainRegex.MatchString(ascii) || wildcardRegex.MatchString(ascii)) {
		return "", false
	}
	return strings.ToLower(ascii), true
}

// BaseDomain strips a leading wildcard label.
func BaseDomain(domain string) string {
	return strings.TrimPrefix(domain, "*.")
}

func toASCII(domain string) (string, bool) {
	if domain == "" || len(domain) > maxDomainLength {
		return "", false
	}
	if isASCII(domain) {
		return domain, true
	}
	prefix := ""
	if IsWildcard(domain) {
		prefix = "*."
		domain = BaseDomain(domain)
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil || len(prefix)+len(ascii) > maxDomainLength {
		return "", false
	}
	return prefix + ascii, true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
