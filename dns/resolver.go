package dns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	DefaultResolver     = "8.8.8.8:53"
	DefaultPollInterval = 5 * time.Second
)

// Resolver answers the lookups needed to follow DNS based domain control
// validation.
type Resolver struct {
	Server string
}

func NewResolver(server string) *Resolver {
	if server == "" {
		server = DefaultResolver
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}
	return &Resolver{Server: server}
}

// LookupCNAME returns the CNAME target of name, or "" if there is none.
func (r *Resolver) LookupCNAME(ctx context.Context, name string) (string, error) {
	c := dns.Client{}
	m := dns.Msg{}
	m.SetQuestion(dns.Fqdn(name), dns.TypeCNAME)
	resp, _, err := c.ExchangeContext(ctx, &m, r.Server)
	if err != nil {
		return "", err
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return "", fmt.Errorf("bad return code: %s", dns.RcodeToString[resp.Rcode])
	}
	for _, ans := range resp.Answer {
		if v, ok := ans.(*dns.CNAME); ok {
			return v.Target, nil
		}
	}
	return "", nil
}

// SameName compares two DNS names ignoring case and the trailing dot.
func SameName(a, b string) bool {
	return strings.EqualFold(dns.Fqdn(a), dns.Fqdn(b))
}

// WaitForCNAME polls until name points at target or ctx ends. A
// non-positive interval polls every DefaultPollInterval.
func (r *Resolver) WaitForCNAME(ctx context.Context, name, target string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		got, err := r.LookupCNAME(ctx, name)
		switch {
		case err != nil:
			slog.Warn("CNAME lookup failed", slog.String("name", name), slog.Any("error", err))
		case SameName(got, target):
			slog.Info("CNAME record is visible", slog.String("name", name), slog.String("target", got))
			return nil
		default:
			slog.Info("Waiting for CNAME record", slog.String("name", name), slog.String("current", got), slog.String("want", target))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("CNAME %s -> %s not visible: %w", name, target, ctx.Err())
		case <-ticker.C:
		}
	}
}
