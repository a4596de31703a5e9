package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkichain/pkichain/client"
	"github.com/pkichain/pkichain/order"
)

type orderConfig struct {
	Plan             string
	CertificateType  string
	Domains          []string
	ValidationMethod string
	ServerSoftware   string
	Validity         int
	Organization     string
	Country          string
	State            string
	City             string
	Yes              bool
}

var (
	orderCfg        orderConfig
	orderKeyMapping = map[string]string{
		"type":              "certificate_type",
		"domains":           "domains",
		"validation-method": "validation_method",
		"server-software":   "server_software",
		"validity":          "validity",
		"organization":      "organization",
		"country":           "country",
		"state":             "state",
		"city":              "city",
	}
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Generate a CSR and purchase a certificate",
	Long: `Collects the certificate details, generates the CSR and submits the order.

Domains are given as name or name=method. A method is an approver address,
"email" (admin@ of the base domain), "dns", "http" or "https".`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd, orderKeyMapping)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		_, c := loggedIn()

		policy, err := resolvePolicy(ctx, c, orderCfg.Plan)
		if err != nil {
			slog.Error("failed to determine plan", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Debug("using plan policy", slog.String("plan", policy.Name))

		wf := order.NewWorkflow(c, policy)
		if err := fillDraft(wf, orderCfg); err != nil {
			slog.Error("invalid order", slog.Any("error", err))
			os.Exit(1)
		}
		if err := wf.Snapshot().Validate(); err != nil {
			for _, fe := range order.FieldErrors(err) {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", fe.Field, fe.Message)
			}
			slog.Error("order is incomplete")
			os.Exit(1)
		}

		orderID, err := runOrder(ctx, wf, newTerminalConfirmer(os.Stdin, os.Stdout, orderCfg.Yes))
		if errors.Is(err, order.ErrDeclined) {
			slog.Info("order not submitted", slog.String("order", orderID))
			return
		}
		if err != nil {
			slog.Error("order failed", slog.String("order", orderID), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("certificate submitted for validation", slog.String("order", orderID))
		fmt.Println(orderID)
	},
}

var softwareCmd = &cobra.Command{
	Use:   "server-software",
	Short: "List the server software codes accepted by --server-software",
	Run: func(cmd *cobra.Command, args []string) {
		for _, s := range order.ServerSoftware {
			fmt.Printf("%3s  %s\n", s.Code, s.Name)
		}
	},
}

const maxSubmitAttempts = 3

// runOrder runs the workflow and offers to resubmit the same order when the
// submission fails.
func runOrder(ctx context.Context, wf *order.Workflow, c order.Confirmer) (string, error) {
	orderID, err := wf.Run(ctx, c)
	for attempt := 1; attempt < maxSubmitAttempts; attempt++ {
		var reqErr *order.RequestError
		if !errors.As(err, &reqErr) || reqErr.Op != "submit" || wf.OrderID() == "" {
			return orderID, err
		}
		ok, cerr := c.Confirm(ctx, order.RetryReview(orderID, err))
		if cerr != nil {
			return orderID, cerr
		}
		if !ok {
			return orderID, err
		}
		wf.DismissError()
		slog.Info("resubmitting order", slog.String("order", orderID), slog.Int("attempt", attempt+1))
		err = wf.SubmitPurchase(ctx)
	}
	return orderID, err
}

// resolvePolicy uses the given plan type or asks the backend for the
// caller's plan.
func resolvePolicy(ctx context.Context, b order.Backend, planType string) (order.Policy, error) {
	if planType == "" {
		plan, err := b.MyPlan(ctx)
		if client.IsNotFound(err) {
			return order.Policy{}, errors.New("no active plan, run 'pkichain plans purchase free' first")
		}
		if err != nil {
			return order.Policy{}, err
		}
		planType = plan.Type
	}
	return order.PolicyFor(planType)
}

// fillDraft copies the command line values into the workflow's draft.
func fillDraft(wf *order.Workflow, cfg orderConfig) error {
	if cfg.CertificateType != "" {
		t, err := order.ParseCertificateType(cfg.CertificateType)
		if err != nil {
			return err
		}
		if err := wf.SetCertificateType(t); err != nil {
			return err
		}
	}
	return wf.Edit(func(d *order.Draft) error {
		for i, arg := range cfg.Domains {
			name, method := parseDomainArg(arg)
			if method == "" {
				method = cfg.ValidationMethod
			}
			if i >= len(d.Domains) && !d.AddDomain() {
				return fmt.Errorf("%s certificates allow at most %d domains", d.CertificateType.Label(), d.MaxDomains())
			}
			d.UpdateDomain(i, order.FieldDomain, name)
			d.UpdateDomain(i, order.FieldValidationMethod, resolveMethod(d.Policy(), d.CertificateType, name, method))
		}
		d.SetServerSoftware(cfg.ServerSoftware)
		if cfg.Validity != 0 {
			d.SetValidity(cfg.Validity)
		} else if days := d.Policy().ValidityDays; len(days) > 0 {
			d.SetValidity(days[0])
		}
		d.SetOrganization(cfg.Organization)
		d.SetLocation(cfg.Country, cfg.State, cfg.City)
		return nil
	})
}

func parseDomainArg(arg string) (string, string) {
	name, method, _ := strings.Cut(arg, "=")
	return strings.TrimSpace(name), strings.TrimSpace(method)
}

// resolveMethod expands the method shorthands. Without a method the first
// choice of the policy is used, preferring DNS.
func resolveMethod(p order.Policy, t order.CertificateType, domain, method string) string {
	switch strings.ToLower(method) {
	case "":
		choices := p.ValidationMethods(t, domain)
		for _, m := range choices {
			if m == order.MethodCNAME {
				return m
			}
		}
		if len(choices) > 0 {
			return choices[0]
		}
		return ""
	case "dns", "cname":
		return order.MethodCNAME
	case "http":
		return order.MethodHTTP
	case "https":
		return order.MethodHTTPS
	case "email":
		return "admin@" + order.BaseDomain(domain)
	}
	return method
}

func init() {
	orderCmd.Flags().StringVar(&orderCfg.Plan, "plan", "", "Plan type to order under (free, standard, premium); detected when empty")
	orderCmd.Flags().StringVarP(&orderCfg.CertificateType, "type", "t", "", "Certificate type (basic, san, wildcard)")
	orderCmd.Flags().StringSliceVar(&orderCfg.Domains, "domains", []string{}, "Domains, optionally as name=method")
	orderCmd.Flags().StringVar(&orderCfg.ValidationMethod, "validation-method", "", "Validation method for domains without one")
	orderCmd.Flags().StringVar(&orderCfg.ServerSoftware, "server-software", "", "Server software code, see 'pkichain server-software'")
	orderCmd.Flags().IntVar(&orderCfg.Validity, "validity", 0, "Validity period in days")
	orderCmd.Flags().StringVar(&orderCfg.Organization, "organization", "", "Organization name")
	orderCmd.Flags().StringVar(&orderCfg.Country, "country", "", "Country")
	orderCmd.Flags().StringVar(&orderCfg.State, "state", "", "State or province")
	orderCmd.Flags().StringVar(&orderCfg.City, "city", "", "City")
	orderCmd.Flags().BoolVarP(&orderCfg.Yes, "yes", "y", false, "Confirm every review without asking")

	rootCmd.AddCommand(orderCmd, softwareCmd)
}

