package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"text/tabwriter"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/pkichain/pkichain/client"
	"github.com/pkichain/pkichain/models"
)

const defaultWatchSchedule = "@every 1m"

type certificateAPI interface {
	ListCertificates(ctx context.Context) ([]models.Certificate, error)
	CertificateStatus(ctx context.Context, id string) (*models.CertificateStatusResponse, error)
}

var (
	cancelYes     bool
	watchSchedule string
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Inspect and manage ordered certificates",
}

var certsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your certificates",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		_, c := loggedIn()
		certs, err := c.ListCertificates(ctx)
		if err != nil {
			slog.Error("failed to list certificates", slog.Any("error", err))
			os.Exit(1)
		}
		printCertificates(os.Stdout, certs)
	},
}

var certsStatusCmd = &cobra.Command{
	Use:   "status <certificate-id>",
	Short: "Refresh the status of a certificate with the CA",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		_, c := loggedIn()
		status, err := c.CertificateStatus(ctx, args[0])
		if err != nil {
			slog.Error("failed to fetch certificate status", slog.String("id", args[0]), slog.Any("error", err))
			os.Exit(1)
		}
		printStatus(os.Stdout, args[0], status)
	},
}

var certsCancelCmd = &cobra.Command{
	Use:   "cancel <certificate-id>",
	Short: "Cancel a certificate order",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		id := args[0]
		_, c := loggedIn()
		status, err := c.CertificateStatus(ctx, id)
		if err != nil {
			slog.Error("failed to fetch certificate status", slog.String("id", id), slog.Any("error", err))
			os.Exit(1)
		}
		if !status.Status.Cancellable() {
			slog.Error("certificate cannot be cancelled", slog.String("id", id), slog.String("status", string(status.Status)))
			os.Exit(1)
		}
		if !cancelYes {
			ok, err := newTerminalConfirmer(os.Stdin, os.Stdout, false).ask(ctx, fmt.Sprintf("Cancel certificate %s", id))
			if err != nil || !ok {
				slog.Info("certificate not cancelled", slog.String("id", id))
				return
			}
		}
		if err := c.CancelCertificate(ctx, id); err != nil {
			slog.Error("failed to cancel certificate", slog.String("id", id), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("certificate cancelled", slog.String("id", id))
	},
}

var certsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh pending certificates until all of them are done",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		_, c := loggedIn()

		var unauthorized atomic.Bool
		refresh := func() {
			pending, err := refreshPending(ctx, c)
			if errors.Is(err, client.ErrUnauthorized) {
				unauthorized.Store(true)
				cancel()
				return
			}
			if err != nil {
				slog.Error("refresh failed", slog.Any("error", err))
				return
			}
			if pending == 0 {
				slog.Info("no pending certificates left")
				cancel()
			}
		}

		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := scheduler.AddFunc(watchSchedule, refresh); err != nil {
			slog.Error("invalid schedule", slog.String("schedule", watchSchedule), slog.Any("error", err))
			os.Exit(1)
		}
		refresh()
		if ctx.Err() == nil {
			scheduler.Start()
			<-ctx.Done()
			<-scheduler.Stop().Done()
		}
		if unauthorized.Load() {
			slog.Error("session is no longer valid", slog.Any("error", client.ErrUnauthorized))
			os.Exit(1)
		}
	},
}

// refreshPending asks for a fresh status of every certificate that is not
// final yet and returns how many remain pending. A rejected session aborts
// the refresh with client.ErrUnauthorized.
func refreshPending(ctx context.Context, api certificateAPI) (int, error) {
	certs, err := api.ListCertificates(ctx)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, cert := range certs {
		if !cert.Status.Refreshable() {
			continue
		}
		status, err := api.CertificateStatus(ctx, cert.ID)
		if errors.Is(err, client.ErrUnauthorized) {
			return 0, err
		}
		if err != nil {
			slog.Warn("status refresh failed", slog.String("id", cert.ID), slog.String("domain", cert.Domain), slog.Any("error", err))
			pending++
			continue
		}
		if status.StatusChanged || status.Status != cert.Status {
			slog.Info("certificate status changed", slog.String("id", cert.ID), slog.String("domain", cert.Domain),
				slog.String("from", string(cert.Status)), slog.String("to", string(status.Status)))
		}
		if status.Status.Refreshable() {
			pending++
		}
	}
	return pending, nil
}

func printCertificates(out io.Writer, certs []models.Certificate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMAIN\tTYPE\tSTATUS\tEXPIRES")
	for _, c := range certs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Domain, c.CertificateType, c.Status, c.ExpiryDate)
	}
	_ = w.Flush()
}

func printStatus(out io.Writer, id string, s *models.CertificateStatusResponse) {
	fmt.Fprintf(out, "%s: %s\n", id, s.Status)
	if s.IssuedDate != "" {
		fmt.Fprintf(out, "  issued:  %s\n", s.IssuedDate)
	}
	if s.ExpiresAt != "" {
		fmt.Fprintf(out, "  expires: %s\n", s.ExpiresAt)
	}
	if v := s.ValidationInfo; v != nil {
		fmt.Fprintf(out, "  validation: %s\n", v.Method)
		if v.Email != "" {
			fmt.Fprintf(out, "    approver: %s\n", v.Email)
		}
		if v.CnameName != "" {
			fmt.Fprintf(out, "    CNAME %s -> %s\n", v.CnameName, v.CnameValue)
		}
		if v.HTTPPath != "" {
			fmt.Fprintf(out, "    serve %s with content %s\n", v.HTTPPath, v.HTTPContent)
		}
	}
}

func init() {
	certsCancelCmd.Flags().BoolVarP(&cancelYes, "yes", "y", false, "Do not ask for confirmation")
	certsWatchCmd.Flags().StringVar(&watchSchedule, "schedule", defaultWatchSchedule, "Cron schedule of the refresh")

	certsCmd.AddCommand(certsListCmd, certsStatusCmd, certsCancelCmd, certsWatchCmd)
	rootCmd.AddCommand(certsCmd)
}
