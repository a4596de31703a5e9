package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkichain/pkichain/models"
)

const irreversibleWarning = "Please confirm all entered information is correct. This action cannot be undone."

type ReviewField struct {
	Label string
	Value string
}

// Review is what a user is shown before an irreversible step.
type Review struct {
	Title   string
	Warning string
	Fields  []ReviewField
}

func (r Review) String() string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteString("\n")
	if r.Warning != "" {
		b.WriteString("! ")
		b.WriteString(r.Warning)
		b.WriteString("\n")
	}
	for _, f := range r.Fields {
		fmt.Fprintf(&b, "  %-20s %s\n", f.Label+":", f.Value)
	}
	return b.String()
}

// Confirmer is asked before each irreversible step. Returning false
// dismisses the review.
type Confirmer interface {
	Confirm(ctx context.Context, review Review) (bool, error)
}

type ConfirmFunc func(ctx context.Context, review Review) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, review Review) (bool, error) {
	return f(ctx, review)
}

// AutoConfirm accepts every review.
var AutoConfirm = ConfirmFunc(func(context.Context, Review) (bool, error) { return true, nil })

// CSRReview lists the collected data before the CSR is confirmed. plan may be nil.
func CSRReview(d *Draft, plan *models.Plan) Review {
	fields := []ReviewField{
		{"Certificate Type", d.CertificateType.Label()},
		{"Domains", strings.Join(d.DomainNames(), ", ")},
		{"Organization", d.OrganizationName},
		{"Location", strings.Join([]string{d.City, d.State, d.Country}, ", ")},
	}
	if plan != nil {
		if u, ok := plan.Usage.For(string(d.CertificateType)); ok && u.Limit > 0 {
			fields = append(fields, ReviewField{"Remaining", fmt.Sprintf("%d of %d", u.Remaining, u.Limit)})
		}
	}
	return Review{Title: "Generate CSR", Warning: irreversibleWarning, Fields: fields}
}

// PurchaseReview is shown before the order is submitted for validation.
func PurchaseReview(d *Draft, orderID string) Review {
	software := d.ServerSoftware
	if s, ok := LookupServerSoftware(d.ServerSoftware); ok {
		software = s.Name
	}
	fields := []ReviewField{
		{"Order", orderID},
		{"Certificate Type", d.CertificateType.Label()},
	}
	for i, e := range d.Domains {
		fields = append(fields, ReviewField{"Domain " + strconv.Itoa(i+1), fmt.Sprintf("%s (%s)", e.Domain, e.ValidationMethod)})
	}
	fields = append(fields,
		ReviewField{"Server Software", software},
		ReviewField{"Validity", fmt.Sprintf("%d days", d.ValidityDays)},
		ReviewField{"Organization", d.OrganizationName},
	)
	return Review{Title: "Purchase Certificate", Warning: irreversibleWarning, Fields: fields}
}

// RetryReview asks whether a failed submission of orderID should be sent
// again with the same CSR.
func RetryReview(orderID string, cause error) Review {
	return Review{
		Title:   "Retry Submission",
		Warning: cause.Error(),
		Fields:  []ReviewField{{"Order", orderID}},
	}
}
