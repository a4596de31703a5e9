package order

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkichain/pkichain/models"
)

type CertificateType string

const (
	TypeBasic    CertificateType = "basic"
	TypeSAN      CertificateType = "san"
	TypeWildcard CertificateType = "wildcard"
)

// ParseCertificateType accepts the API names plus the "ucc"/"ucc-san" labels.
func ParseCertificateType(s string) (CertificateType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "single":
		return TypeBasic, nil
	case "san", "ucc", "ucc-san", "ucc/san":
		return TypeSAN, nil
	case "wildcard":
		return TypeWildcard, nil
	}
	return "", fmt.Errorf("unknown certificate type %q", s)
}

func (t CertificateType) Label() string {
	switch t {
	case TypeBasic:
		return "Basic"
	case TypeSAN:
		return "UCC/SAN"
	case TypeWildcard:
		return "Wildcard"
	}
	return string(t)
}

const (
	MethodCNAME = "cname_csr_hash"
	MethodHTTP  = "http_csr_hash"
	MethodHTTPS = "https_csr_hash"
)

// EmailPrefixes are the approver mailboxes the CA accepts for e-mail validation.
var EmailPrefixes = []string{
	"webmaster@",
	"admin@",
	"administrator@",
	"hostmaster@",
	"postmaster@",
}

type MethodSet uint8

const (
	MethodsEmail MethodSet = 1 << iota
	MethodsDNS
	MethodsHTTP

	MethodsAll = MethodsEmail | MethodsDNS | MethodsHTTP
)

func (m MethodSet) Has(o MethodSet) bool { return m&o == o }

// ClassifyValidationMethod maps a chosen method to the value the submit
// endpoint expects: email, dns or http.
func ClassifyValidationMethod(method string) string {
	switch {
	case strings.Contains(method, "@"):
		return "email"
	case strings.Contains(method, "cname"):
		return "dns"
	default:
		return "http"
	}
}

type TypeRule struct {
	MinDomains int
	MaxDomains int
	Methods    MethodSet
}

// Policy holds the constraints of one plan tier.
type Policy struct {
	Tier         string
	Name         string
	Types        []CertificateType
	Rules        map[CertificateType]TypeRule
	ValidityDays []int
}

var (
	FreePolicy = Policy{
		Tier:  models.PlanFree,
		Name:  "Free Plan",
		Types: []CertificateType{TypeBasic},
		Rules: map[CertificateType]TypeRule{
			TypeBasic: {MinDomains: 1, MaxDomains: 1, Methods: MethodsAll},
		},
		ValidityDays: []int{90},
	}
	StandardPolicy = Policy{
		Tier:  models.PlanStandard,
		Name:  "Standard Plan",
		Types: []CertificateType{TypeBasic, TypeSAN},
		Rules: map[CertificateType]TypeRule{
			TypeBasic: {MinDomains: 1, MaxDomains: 1, Methods: MethodsAll},
			TypeSAN:   {MinDomains: 1, MaxDomains: 100, Methods: MethodsAll},
		},
		ValidityDays: []int{365},
	}
	PremiumPolicy = Policy{
		Tier:  models.PlanPremium,
		Name:  "Premium Plan",
		Types: []CertificateType{TypeBasic, TypeSAN, TypeWildcard},
		Rules: map[CertificateType]TypeRule{
			TypeBasic:    {MinDomains: 1, MaxDomains: 1, Methods: MethodsAll},
			TypeSAN:      {MinDomains: 2, MaxDomains: 5, Methods: MethodsEmail | MethodsDNS},
			TypeWildcard: {MinDomains: 1, MaxDomains: 1, Methods: MethodsEmail | MethodsDNS},
		},
		ValidityDays: []int{365, 730},
	}

	upgradePath = map[string]string{
		models.PlanFree:     models.PlanStandard,
		models.PlanStandard: models.PlanPremium,
	}
)

// PolicyFor selects the policy of a plan type as reported by the backend.
func PolicyFor(planType string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(planType)) {
	case models.PlanFree:
		return FreePolicy, nil
	case models.PlanStandard, "basic":
		return StandardPolicy, nil
	case models.PlanPremium, "enterprise":
		return PremiumPolicy, nil
	}
	return Policy{}, fmt.Errorf("unknown plan type %q", planType)
}

// NextPlan returns the tier a plan can be upgraded to.
func NextPlan(planType string) (string, bool) {
	next, ok := upgradePath[strings.ToLower(planType)]
	return next, ok
}

func (p Policy) Supports(t CertificateType) bool {
	_, ok := p.Rules[t]
	return ok
}

func (p Policy) SupportsWildcard() bool { return p.Supports(TypeWildcard) }

func (p Policy) SupportsSAN() bool { return p.Supports(TypeSAN) }

func (p Policy) MaxDomains(t CertificateType) int {
	return p.Rules[t].MaxDomains
}

// InitialDomains is the number of blank entries a fresh draft of type t starts with.
func (p Policy) InitialDomains(t CertificateType) int {
	if r, ok := p.Rules[t]; ok && r.MinDomains > 0 {
		return r.MinDomains
	}
	return 1
}

func (p Policy) AllowsValidity(days int) bool {
	return slices.Contains(p.ValidityDays, days)
}

// ValidationMethods lists the concrete choices for one domain of a type t draft.
func (p Policy) ValidationMethods(t CertificateType, domain string) []string {
	rule, ok := p.Rules[t]
	if !ok {
		return nil
	}
	var methods []string
	if rule.Methods.Has(MethodsEmail) {
		base := BaseDomain(domain)
		for _, prefix := range EmailPrefixes {
			methods = append(methods, prefix+base)
		}
	}
	if rule.Methods.Has(MethodsDNS) {
		methods = append(methods, MethodCNAME)
	}
	if rule.Methods.Has(MethodsHTTP) {
		methods = append(methods, MethodHTTP, MethodHTTPS)
	}
	return methods
}

// AllowsMethod reports whether method is acceptable for domain under type t.
// E-mail approvers may carry the wildcard label or not.
func (p Policy) AllowsMethod(t CertificateType, domain, method string) bool {
	rule, ok := p.Rules[t]
	if !ok || method == "" {
		return false
	}
	switch method {
	case MethodCNAME:
		return rule.Methods.Has(MethodsDNS)
	case MethodHTTP, MethodHTTPS:
		return rule.Methods.Has(MethodsHTTP)
	}
	if !rule.Methods.Has(MethodsEmail) {
		return false
	}
	for _, prefix := range EmailPrefixes {
		if method == prefix+domain || method == prefix+BaseDomain(domain) {
			return true
		}
	}
	return false
}
