package order

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
)

type DomainField string

const (
	FieldDomain           DomainField = "domain"
	FieldValidationMethod DomainField = "validationMethod"
)

type DomainEntry struct {
	Domain           string `json:"domain" mapstructure:"domain" validate:"required,domain_syntax"`
	ValidationMethod string `json:"validationMethod" mapstructure:"validation_method" validate:"required"`
}

// Draft is the in-memory certificate order being edited. It is not safe for
// concurrent use; the Workflow serialises access to its draft.
type Draft struct {
	policy Policy

	CertificateType  CertificateType `json:"certificateType" validate:"required"`
	Domains          []DomainEntry   `json:"domains" validate:"dive"`
	ServerSoftware   string          `json:"serverSoftware" validate:"required,server_software"`
	ValidityDays     int             `json:"validityPeriod" validate:"required"`
	OrganizationName string          `json:"organizationName" validate:"required"`
	Country          string          `json:"country" validate:"required"`
	State            string          `json:"state" validate:"required"`
	City             string          `json:"city" validate:"required"`
}

// FieldError describes one invalid field of a draft.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("domain_syntax", func(fl validator.FieldLevel) bool {
		return IsValidDomain(fl.Field().String())
	})
	_ = v.RegisterValidation("server_software", func(fl validator.FieldLevel) bool {
		_, ok := LookupServerSoftware(fl.Field().String())
		return ok
	})
	return v
}

// NewDraft returns an empty draft for the first certificate type the policy offers.
func NewDraft(policy Policy) *Draft {
	d := &Draft{policy: policy}
	d.Reset()
	return d
}

func (d *Draft) Policy() Policy { return d.policy }

// Reset restores the empty default draft.
func (d *Draft) Reset() {
	t := TypeBasic
	if len(d.policy.Types) > 0 {
		t = d.policy.Types[0]
	}
	d.reset(t)
}

func (d *Draft) reset(t CertificateType) {
	*d = Draft{
		policy:          d.policy,
		CertificateType: t,
		Domains:         make([]DomainEntry, d.policy.InitialDomains(t)),
	}
}

// SetCertificateType switches the type and clears everything that depends on it.
func (d *Draft) SetCertificateType(t CertificateType) error {
	if !d.policy.Supports(t) {
		return fmt.Errorf("%s does not offer %s certificates", d.policy.Name, t.Label())
	}
	d.reset(t)
	return nil
}

func (d *Draft) MaxDomains() int {
	return d.policy.MaxDomains(d.CertificateType)
}

func (d *Draft) CanAddDomain() bool {
	return len(d.Domains) < d.MaxDomains()
}

// AddDomain appends a blank entry unless the type maximum is reached.
func (d *Draft) AddDomain() bool {
	if !d.CanAddDomain() {
		return false
	}
	d.Domains = append(d.Domains, DomainEntry{})
	return true
}

// RemoveDomain drops entry i. The last entry is kept.
func (d *Draft) RemoveDomain(i int) bool {
	if i < 0 || i >= len(d.Domains) || len(d.Domains) == 1 {
		return false
	}
	d.Domains = append(d.Domains[:i:i], d.Domains[i+1:]...)
	return true
}

func (d *Draft) UpdateDomain(i int, field DomainField, value string) bool {
	if i < 0 || i >= len(d.Domains) {
		return false
	}
	switch field {
	case FieldDomain:
		d.Domains[i].Domain = strings.TrimSpace(value)
	case FieldValidationMethod:
		d.Domains[i].ValidationMethod = strings.TrimSpace(value)
	default:
		return false
	}
	return true
}

func (d *Draft) SetServerSoftware(code string) { d.ServerSoftware = strings.TrimSpace(code) }

func (d *Draft) SetValidity(days int) { d.ValidityDays = days }

func (d *Draft) SetOrganization(name string) { d.OrganizationName = strings.TrimSpace(name) }

func (d *Draft) SetLocation(country, state, city string) {
	d.Country = strings.TrimSpace(country)
	d.State = strings.TrimSpace(state)
	d.City = strings.TrimSpace(city)
}

// DomainNames returns the entered domains in order.
func (d *Draft) DomainNames() []string {
	names := make([]string, 0, len(d.Domains))
	for _, e := range d.Domains {
		names = append(names, e.Domain)
	}
	return names
}

func (d *Draft) IsValid() bool {
	return d.Validate() == nil
}

// Validate reports every problem of the draft as *FieldError values joined
// in a multierror. A nil result means the draft may be submitted.
func (d *Draft) Validate() error {
	var result *multierror.Error

	if err := validate.Struct(d); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range verrs {
			result = multierror.Append(result, toFieldError(fe))
		}
	}

	rule, ok := d.policy.Rules[d.CertificateType]
	if !ok {
		result = multierror.Append(result, &FieldError{Field: "certificateType", Message: fmt.Sprintf("not offered by the %s", d.policy.Name)})
		return result.ErrorOrNil()
	}
	if n := len(d.Domains); n < rule.MinDomains || n > rule.MaxDomains {
		msg := fmt.Sprintf("%d domains required", rule.MinDomains)
		if rule.MinDomains != rule.MaxDomains {
			msg = fmt.Sprintf("between %d and %d domains required", rule.MinDomains, rule.MaxDomains)
		}
		result = multierror.Append(result, &FieldError{Field: "domains", Message: msg})
	}
	if d.CertificateType == TypeWildcard && len(d.Domains) > 0 && !IsWildcard(d.Domains[0].Domain) {
		result = multierror.Append(result, &FieldError{Field: "domains[0].domain", Message: "Wildcard domain must start with *."})
	}
	for i, e := range d.Domains {
		if e.ValidationMethod != "" && !d.policy.AllowsMethod(d.CertificateType, e.Domain, e.ValidationMethod) {
			result = multierror.Append(result, &FieldError{
				Field:   fmt.Sprintf("domains[%d].validationMethod", i),
				Message: fmt.Sprintf("%q is not available for %s certificates", e.ValidationMethod, d.CertificateType.Label()),
			})
		}
	}
	if d.ValidityDays != 0 && !d.policy.AllowsValidity(d.ValidityDays) {
		result = multierror.Append(result, &FieldError{Field: "validityPeriod", Message: fmt.Sprintf("must be one of %v days", d.policy.ValidityDays)})
	}
	return result.ErrorOrNil()
}

func toFieldError(fe validator.FieldError) *FieldError {
	field := strings.TrimPrefix(fe.Namespace(), "Draft.")
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "domain_syntax":
		msg = "Please enter a valid domain"
	case "server_software":
		msg = "unknown server software code"
	default:
		msg = fmt.Sprintf("failed %s check", fe.Tag())
	}
	return &FieldError{Field: field, Message: msg}
}

// FieldErrors flattens the result of Validate.
func FieldErrors(err error) []*FieldError {
	if err == nil {
		return nil
	}
	var errs []error
	if merr, ok := err.(*multierror.Error); ok {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}
	out := make([]*FieldError, 0, len(errs))
	for _, e := range errs {
		if fe, ok := e.(*FieldError); ok {
			out = append(out, fe)
		}
	}
	return out
}
