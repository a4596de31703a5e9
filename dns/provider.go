package dns

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

type DNSProvider struct {
	Configs  []ProviderConfig
	Resolver string
}

const (
	// maximum time DNS client can be off from server for an update to succeed
	clockSkew = 300

	// maximum size of a UDP transport message in DNS protocol
	udpMaxMsgSize = 512

	defaultTTL = 300
)

func NewDNSProvider(config string) (*DNSProvider, error) {
	data, err := os.ReadFile(config)
	if err != nil {
		return nil, fmt.Errorf("error reading dns config file: %w", err)
	}
	return ParseDNSProvider(data)
}

func ParseDNSProvider(data []byte) (*DNSProvider, error) {
	providerConfigs := Provider{}
	if err := yaml.Unmarshal(data, &providerConfigs); err != nil {
		return nil, fmt.Errorf("error unmarshalling dns config file: %w", err)
	}
	return &DNSProvider{
		Configs:  providerConfigs.Zones,
		Resolver: providerConfigs.Resolver,
	}, nil
}

func (r *DNSProvider) Configured(domain string) bool {
	_, err := r.matchingProvider(domain)
	return err == nil
}

// PublishCNAME creates name CNAME target in the zone responsible for name.
func (r *DNSProvider) PublishCNAME(ctx context.Context, name, target string) (dns.RR, error) {
	cfg, err := r.matchingProvider(name)
	if err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN CNAME %s", dns.Fqdn(name), ttl, dns.Fqdn(target)))
	if err != nil {
		return nil, err
	}
	return rr, r.Add(ctx, name, []dns.RR{rr})
}

// RemoveCNAME deletes the CNAME record set of name.
func (r *DNSProvider) RemoveCNAME(ctx context.Context, name string) error {
	rr := &dns.CNAME{Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeCNAME, Class: dns.ClassINET}}
	cfg, err := r.matchingProvider(name)
	if err != nil {
		return err
	}
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(cfg.BaseDomain))
	m.RemoveRRset([]dns.RR{rr})
	return r.sendMessage(ctx, cfg, m)
}

// Add adds the given records to the zone.
func (r *DNSProvider) Add(ctx context.Context, domain string, entries []dns.RR) error {
	cfg, err := r.matchingProvider(domain)
	if err != nil {
		return err
	}
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(cfg.BaseDomain))
	m.Insert(entries)
	return r.sendMessage(ctx, cfg, m)
}

// matchingProvider picks the most specific zone containing domain. A zone
// without a domain is the fallback.
func (r *DNSProvider) matchingProvider(domain string) (*ProviderConfig, error) {
	var matchingConfig *ProviderConfig
	var fallback *ProviderConfig
	for i := range r.Configs {
		config := &r.Configs[i]

		if config.BaseDomain == "" {
			fallback = config
			continue
		}

		if strings.HasSuffix(dns.Fqdn(domain), "."+dns.Fqdn(config.BaseDomain)) || dns.Fqdn(domain) == dns.Fqdn(config.BaseDomain) {
			if matchingConfig == nil || dns.CountLabel(config.BaseDomain) > dns.CountLabel(matchingConfig.BaseDomain) {
				matchingConfig = config
			}
		}
	}
	if matchingConfig == nil {
		matchingConfig = fallback
	}
	if matchingConfig == nil {
		return nil, fmt.Errorf("no matching DNS provider found for domain %s", domain)
	}
	return matchingConfig, nil
}

func (r *DNSProvider) sendMessage(ctx context.Context, cfg *ProviderConfig, msg *dns.Msg) error {
	c := new(dns.Client)
	if cfg.TsigKeyName != "" {
		keyName := dns.Fqdn(cfg.TsigKeyName)
		alg := cfg.TsigSecretAlg
		if alg == "" {
			alg = dns.HmacSHA256
		}
		c.TsigSecret = map[string]string{keyName: cfg.TsigSecret}
		msg.SetTsig(keyName, dns.Fqdn(alg), clockSkew, time.Now().Unix())
	}
	if msg.Len() > udpMaxMsgSize || cfg.Net == "tcp" {
		c.Net = "tcp"
	}
	resp, _, err := c.ExchangeContext(ctx, msg, cfg.Nameserver)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("no response received")
	}
	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("bad return code: %s", dns.RcodeToString[resp.Rcode])
	}
	return nil
}
