package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkichain/pkichain/dns"
	"github.com/pkichain/pkichain/imap"
	"github.com/pkichain/pkichain/models"
)

type dcvDNSConfig struct {
	DNSConfig string
	Resolver  string
	Wait      time.Duration
	Interval  time.Duration
	Remove    bool
}

type dcvEmailConfig struct {
	imap.Config
	Domains []string
	Since   time.Duration
	Wait    time.Duration
}

var (
	dcvDNSCfg        dcvDNSConfig
	dcvEmailCfg      dcvEmailConfig
	dcvDNSKeyMapping = map[string]string{
		"dns-config": "dns_config",
		"resolver":   "resolver",
	}
	dcvEmailKeyMapping = map[string]string{
		"imap-host":         "imap_host",
		"imap-port":         "imap_port",
		"imap-username":     "imap_username",
		"imap-password":     "imap_password",
		"imap-mailbox":      "imap_mailbox",
		"imap-subject":      "imap_subject",
		"imap-code-pattern": "imap_code_pattern",
	}
)

var dcvCmd = &cobra.Command{
	Use:   "dcv",
	Short: "Help with domain control validation",
}

var dcvDNSCmd = &cobra.Command{
	Use:   "dns <certificate-id>",
	Short: "Publish and wait for the validation CNAME of a certificate",
	Args:  cobra.ExactArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd, dcvDNSKeyMapping)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if err := checkPolling(dcvDNSCfg.Wait, dcvDNSCfg.Interval); err != nil {
			slog.Error("invalid flags", slog.Any("error", err))
			os.Exit(1)
		}

		_, c := loggedIn()
		status, err := c.CertificateStatus(ctx, args[0])
		if err != nil {
			slog.Error("failed to fetch certificate status", slog.String("id", args[0]), slog.Any("error", err))
			os.Exit(1)
		}
		name, target, err := dnsChallenge(status, !dcvDNSCfg.Remove)
		if err != nil {
			slog.Error("no DNS validation pending", slog.String("id", args[0]), slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("%s CNAME %s\n", name, target)

		resolver := dcvDNSCfg.Resolver
		if dcvDNSCfg.DNSConfig != "" {
			provider, err := dns.NewDNSProvider(dcvDNSCfg.DNSConfig)
			if err != nil {
				slog.Error("failed to load dns config", slog.Any("error", err))
				os.Exit(1)
			}
			if resolver == "" {
				resolver = provider.Resolver
			}
			if dcvDNSCfg.Remove {
				if err := provider.RemoveCNAME(ctx, name); err != nil {
					slog.Error("failed to remove CNAME", slog.String("name", name), slog.Any("error", err))
					os.Exit(1)
				}
				slog.Info("CNAME removed", slog.String("name", name))
				return
			}
			if _, err := provider.PublishCNAME(ctx, name, target); err != nil {
				slog.Error("failed to publish CNAME", slog.String("name", name), slog.Any("error", err))
				os.Exit(1)
			}
			slog.Info("CNAME published", slog.String("name", name), slog.String("target", target))
		}

		waitCtx, waitCancel := context.WithTimeout(ctx, dcvDNSCfg.Wait)
		defer waitCancel()
		if err := dns.NewResolver(resolver).WaitForCNAME(waitCtx, name, target, dcvDNSCfg.Interval); err != nil {
			slog.Error("CNAME did not propagate", slog.Any("error", err))
			os.Exit(1)
		}
	},
}

var dcvEmailCmd = &cobra.Command{
	Use:   "email",
	Short: "Read validation codes from the approver mailbox",
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd, dcvEmailKeyMapping)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		cfg := dcvEmailCfg.Config
		cfg.Debug = debug
		if cfg.Host == "" {
			slog.Error("imap host is required; provide --imap-host, PKICHAIN_IMAP_HOST, or config key imap_host")
			os.Exit(1)
		}

		waitCtx, waitCancel := context.WithTimeout(ctx, dcvEmailCfg.Wait)
		defer waitCancel()
		codes, err := imap.FetchValidationCodes(waitCtx, cfg, time.Now().Add(-dcvEmailCfg.Since), dcvEmailCfg.Domains)
		if err != nil && len(codes) == 0 {
			slog.Error("failed to fetch validation codes", slog.Any("error", err))
			os.Exit(1)
		}
		if err != nil {
			slog.Warn("not every domain received a code", slog.Any("error", err))
		}
		domains := make([]string, 0, len(codes))
		for d := range codes {
			domains = append(domains, d)
		}
		sort.Strings(domains)
		for _, d := range domains {
			fmt.Printf("%s\t%s\n", d, codes[d].Code)
		}
	},
}

func checkPolling(wait, interval time.Duration) error {
	if wait <= 0 {
		return fmt.Errorf("--wait must be positive, got %s", wait)
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}
	return nil
}

// dnsChallenge returns the CNAME record the CA expects for an order.
func dnsChallenge(s *models.CertificateStatusResponse, pendingOnly bool) (string, string, error) {
	if pendingOnly && s.Status.Terminal() {
		return "", "", fmt.Errorf("certificate is %s", s.Status)
	}
	v := s.ValidationInfo
	if v == nil || v.CnameName == "" || v.CnameValue == "" {
		return "", "", errors.New("certificate has no CNAME validation record")
	}
	return v.CnameName, v.CnameValue, nil
}

func init() {
	dcvDNSCmd.Flags().StringVar(&dcvDNSCfg.DNSConfig, "dns-config", "", "YAML file with RFC2136 zones; the record is only checked when empty")
	dcvDNSCmd.Flags().StringVar(&dcvDNSCfg.Resolver, "resolver", "", "Nameserver used to check the record (default "+dns.DefaultResolver+")")
	dcvDNSCmd.Flags().DurationVar(&dcvDNSCfg.Wait, "wait", 5*time.Minute, "How long to wait for the record")
	dcvDNSCmd.Flags().BoolVar(&dcvDNSCfg.Remove, "remove", false, "Remove the published record instead of creating it")
	dcvDNSCmd.Flags().DurationVar(&dcvDNSCfg.Interval, "interval", dns.DefaultPollInterval, "Polling interval")

	dcvEmailCmd.Flags().StringVar(&dcvEmailCfg.Host, "imap-host", "", "IMAP server")
	dcvEmailCmd.Flags().IntVar(&dcvEmailCfg.Port, "imap-port", 993, "IMAP TLS port")
	dcvEmailCmd.Flags().StringVar(&dcvEmailCfg.Username, "imap-username", "", "IMAP user")
	dcvEmailCmd.Flags().StringVar(&dcvEmailCfg.Password, "imap-password", "", "IMAP password")
	dcvEmailCmd.Flags().StringVar(&dcvEmailCfg.Mailbox, "imap-mailbox", "INBOX", "Mailbox to search")
	dcvEmailCmd.Flags().StringVar(&dcvEmailCfg.Subject, "imap-subject", imap.DefaultSubject, "Subject of the validation mails")
	dcvEmailCmd.Flags().StringVar(&dcvEmailCfg.CodePattern, "imap-code-pattern", imap.DefaultCodePattern, "Regexp capturing domain and code")
	dcvEmailCmd.Flags().StringSliceVar(&dcvEmailCfg.Domains, "domains", []string{}, "Domains to wait for")
	dcvEmailCmd.Flags().DurationVar(&dcvEmailCfg.Since, "since", time.Hour, "Only consider mails younger than this")
	dcvEmailCmd.Flags().DurationVar(&dcvEmailCfg.Wait, "wait", 10*time.Minute, "How long to wait for the mails")

	dcvCmd.AddCommand(dcvDNSCmd, dcvEmailCmd)
	rootCmd.AddCommand(dcvCmd)
}

