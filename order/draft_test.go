package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledFreeDraft() *Draft {
	d := NewDraft(FreePolicy)
	d.UpdateDomain(0, FieldDomain, "test.com")
	d.UpdateDomain(0, FieldValidationMethod, "admin@test.com")
	d.SetServerSoftware("37")
	d.SetValidity(90)
	d.SetOrganization("Acme Inc")
	d.SetLocation("US", "California", "San Francisco")
	return d
}

func TestFreeDraftValid(t *testing.T) {
	d := filledFreeDraft()
	require.NoError(t, d.Validate())
	assert.True(t, d.IsValid())
}

func TestDraftMissingCity(t *testing.T) {
	d := filledFreeDraft()
	d.SetLocation("US", "California", "")
	err := d.Validate()
	require.Error(t, err)
	fields := FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "city", fields[0].Field)
	assert.False(t, d.IsValid())
}

func TestDraftInvalidDomain(t *testing.T) {
	d := filledFreeDraft()
	d.UpdateDomain(0, FieldDomain, "example")
	fields := FieldErrors(d.Validate())
	require.NotEmpty(t, fields)
	assert.Equal(t, "domains[0].domain", fields[0].Field)
	assert.Equal(t, "Please enter a valid domain", fields[0].Message)
}

func TestDraftEmptyReportsEverything(t *testing.T) {
	d := NewDraft(FreePolicy)
	fields := FieldErrors(d.Validate())
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	assert.Contains(t, names, "domains[0].domain")
	assert.Contains(t, names, "domains[0].validationMethod")
	assert.Contains(t, names, "serverSoftware")
	assert.Contains(t, names, "validityPeriod")
	assert.Contains(t, names, "organizationName")
}

func TestDraftValidityMustMatchPolicy(t *testing.T) {
	d := filledFreeDraft()
	d.SetValidity(365)
	fields := FieldErrors(d.Validate())
	require.Len(t, fields, 1)
	assert.Equal(t, "validityPeriod", fields[0].Field)
}

func TestDraftUnknownServerSoftware(t *testing.T) {
	d := filledFreeDraft()
	d.SetServerSoftware("99")
	fields := FieldErrors(d.Validate())
	require.Len(t, fields, 1)
	assert.Equal(t, "serverSoftware", fields[0].Field)
}

func TestSetCertificateTypeResets(t *testing.T) {
	d := NewDraft(PremiumPolicy)
	d.UpdateDomain(0, FieldDomain, "example.com")
	d.UpdateDomain(0, FieldValidationMethod, MethodCNAME)
	d.SetServerSoftware("3")
	d.SetValidity(365)
	d.SetOrganization("Acme")
	d.SetLocation("US", "CA", "SF")

	require.NoError(t, d.SetCertificateType(TypeSAN))
	assert.Equal(t, TypeSAN, d.CertificateType)
	assert.Len(t, d.Domains, 2)
	for _, e := range d.Domains {
		assert.Empty(t, e.Domain)
		assert.Empty(t, e.ValidationMethod)
	}
	assert.Empty(t, d.ServerSoftware)
	assert.Zero(t, d.ValidityDays)
	assert.Empty(t, d.OrganizationName)
	assert.Empty(t, d.Country)
	assert.Empty(t, d.State)
	assert.Empty(t, d.City)

	require.NoError(t, d.SetCertificateType(TypeWildcard))
	assert.Len(t, d.Domains, 1)
}

func TestSetCertificateTypeUnsupported(t *testing.T) {
	d := NewDraft(FreePolicy)
	assert.Error(t, d.SetCertificateType(TypeWildcard))
	assert.Equal(t, TypeBasic, d.CertificateType)
}

func TestAddDomainStopsAtMax(t *testing.T) {
	d := NewDraft(PremiumPolicy)
	require.NoError(t, d.SetCertificateType(TypeSAN))
	for d.CanAddDomain() {
		require.True(t, d.AddDomain())
	}
	assert.Len(t, d.Domains, 5)
	assert.False(t, d.AddDomain())
	assert.Len(t, d.Domains, 5)

	b := NewDraft(StandardPolicy)
	assert.False(t, b.AddDomain())
	assert.Len(t, b.Domains, 1)
}

func TestRemoveDomain(t *testing.T) {
	d := NewDraft(StandardPolicy)
	require.NoError(t, d.SetCertificateType(TypeSAN))
	d.AddDomain()
	d.AddDomain()
	d.UpdateDomain(0, FieldDomain, "a.com")
	d.UpdateDomain(1, FieldDomain, "b.com")
	d.UpdateDomain(2, FieldDomain, "c.com")

	assert.True(t, d.RemoveDomain(1))
	assert.Equal(t, []string{"a.com", "c.com"}, d.DomainNames())
	assert.False(t, d.RemoveDomain(5))
	assert.True(t, d.RemoveDomain(0))
	assert.False(t, d.RemoveDomain(0))
	assert.Equal(t, []string{"c.com"}, d.DomainNames())
}

func TestUpdateDomainUnknownField(t *testing.T) {
	d := NewDraft(FreePolicy)
	assert.False(t, d.UpdateDomain(0, DomainField("port"), "443"))
	assert.False(t, d.UpdateDomain(3, FieldDomain, "a.com"))
}

func TestWildcardDraftRequiresPrefix(t *testing.T) {
	d := NewDraft(PremiumPolicy)
	require.NoError(t, d.SetCertificateType(TypeWildcard))
	d.UpdateDomain(0, FieldDomain, "example.com")
	d.UpdateDomain(0, FieldValidationMethod, MethodCNAME)
	d.SetServerSoftware("37")
	d.SetValidity(365)
	d.SetOrganization("Acme")
	d.SetLocation("US", "CA", "SF")

	fields := FieldErrors(d.Validate())
	require.Len(t, fields, 1)
	assert.Equal(t, "Wildcard domain must start with *.", fields[0].Message)

	d.UpdateDomain(0, FieldDomain, "*.example.com")
	assert.NoError(t, d.Validate())
}

func TestSanDraftRejectsHTTPOnPremium(t *testing.T) {
	d := NewDraft(PremiumPolicy)
	require.NoError(t, d.SetCertificateType(TypeSAN))
	d.UpdateDomain(0, FieldDomain, "a.example.com")
	d.UpdateDomain(0, FieldValidationMethod, MethodHTTP)
	d.UpdateDomain(1, FieldDomain, "b.example.com")
	d.UpdateDomain(1, FieldValidationMethod, "admin@b.example.com")
	d.SetServerSoftware("37")
	d.SetValidity(730)
	d.SetOrganization("Acme")
	d.SetLocation("US", "CA", "SF")

	fields := FieldErrors(d.Validate())
	require.Len(t, fields, 1)
	assert.Equal(t, "domains[0].validationMethod", fields[0].Field)
}
