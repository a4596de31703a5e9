package models

import "slices"

type CertificateStatus string

const (
	StatusDraft             CertificateStatus = "draft"
	StatusPendingValidation CertificateStatus = "pending_validation"
	StatusValidating        CertificateStatus = "validating"
	StatusIssued            CertificateStatus = "issued"
	StatusFailed            CertificateStatus = "failed"
	StatusCancelled         CertificateStatus = "cancelled"
)

// Terminal reports whether the backend will not move the order any further.
func (s CertificateStatus) Terminal() bool {
	return slices.Contains([]CertificateStatus{StatusIssued, StatusFailed, StatusCancelled}, s)
}

// Refreshable reports whether polling the status endpoint makes sense.
func (s CertificateStatus) Refreshable() bool {
	return !s.Terminal()
}

func (s CertificateStatus) Cancellable() bool {
	return s != StatusIssued && s != StatusCancelled
}

type ValidationInfo struct {
	Method      string `json:"method"`
	Email       string `json:"email"`
	CnameName   string `json:"cnameName"`
	CnameValue  string `json:"cnameValue"`
	HTTPPath    string `json:"httpPath"`
	HTTPContent string `json:"httpContent"`
}

type CertificatePlan struct {
	PlanType string `json:"planType"`
}

type Certificate struct {
	ID               string            `json:"_id"`
	Domain           string            `json:"domain"`
	SanDomains       []string          `json:"sanDomains"`
	SslOrderRef      string            `json:"sslOrderRef"`
	Status           CertificateStatus `json:"status"`
	ExpiryDate       string            `json:"expiryDate"`
	IssuedDate       string            `json:"issuedDate"`
	CertificateType  string            `json:"certificateType"`
	ValidityPeriod   int               `json:"validityPeriod"`
	ValidationMethod string            `json:"validationMethod"`
	OrganizationName string            `json:"organizationName"`
	CreatedAt        string            `json:"createdAt"`
	Plan             CertificatePlan   `json:"plan"`
	ValidationInfo   *ValidationInfo   `json:"validationInfo"`
}

type CertificateList struct {
	Certificates []Certificate `json:"certificates"`
}

type CertificateStatusResponse struct {
	Status         CertificateStatus `json:"status"`
	StatusChanged  bool              `json:"statusChanged"`
	ExpiresAt      string            `json:"expiresAt"`
	IssuedDate     string            `json:"issuedDate"`
	ValidationInfo *ValidationInfo   `json:"validationInfo"`
}

type GenerateRequest struct {
	PlanID          string   `json:"planId"`
	Domain          string   `json:"domain"`
	SanDomains      []string `json:"sanDomains"`
	IsWildcard      bool     `json:"isWildcard"`
	CertificateType string   `json:"certificateType"`
	Organization    string   `json:"organization"`
	Country         string   `json:"country"`
	State           string   `json:"state"`
	City            string   `json:"city"`
}

type GenerateResponse struct {
	OrderID string `json:"orderId"`
}

type SubmitRequest struct {
	OrderID          string `json:"orderId"`
	ValidationMethod string `json:"validationMethod"`
	ValidityPeriod   int    `json:"validityPeriod"`
	ServerSoftware   int    `json:"serverSoftware"`
}
