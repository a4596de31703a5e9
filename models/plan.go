package models

import "strings"

const (
	PlanFree     = "free"
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

type Usage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type PlanUsage struct {
	Basic    Usage `json:"basic"`
	San      Usage `json:"san"`
	Wildcard Usage `json:"wildcard"`
}

// For returns the usage bucket of a certificate type (basic, san, wildcard).
func (u PlanUsage) For(certificateType string) (Usage, bool) {
	switch strings.ToLower(certificateType) {
	case "basic":
		return u.Basic, true
	case "san":
		return u.San, true
	case "wildcard":
		return u.Wildcard, true
	}
	return Usage{}, false
}

type PlanFeatures struct {
	MaxDuration       int      `json:"maxDuration"`
	MinDuration       int      `json:"minDuration"`
	ValidationMethods []string `json:"validationMethods"`
	SupportsSAN       bool     `json:"supportsSAN"`
	SupportsWildcard  bool     `json:"supportsWildcard"`
	SupportsRenewal   bool     `json:"supportsRenewal"`
}

type Plan struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	PurchaseDate string         `json:"purchaseDate"`
	ExpiryDate   string         `json:"expiryDate"`
	Status       string         `json:"status"`
	Limits       map[string]int `json:"limits"`
	Usage        PlanUsage      `json:"usage"`
	Features     PlanFeatures   `json:"features"`
}

type MyPlanResponse struct {
	Plan Plan `json:"plan"`
}

type PurchasePlanRequest struct {
	PlanType       string `json:"planType"`
	PaymentDetails any    `json:"paymentDetails"`
}

type CheckoutSessionRequest struct {
	PlanType string `json:"planType"`
}

type CheckoutSessionResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

type VerifyPaymentRequest struct {
	SessionID string `json:"sessionId"`
}
