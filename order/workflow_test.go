package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkichain/pkichain/models"
)

type backendError struct {
	status  int
	message string
}

func (e *backendError) Error() string          { return e.message }
func (e *backendError) BackendMessage() string { return e.message }
func (e *backendError) HTTPStatus() int        { return e.status }

type fakeBackend struct {
	mu          sync.Mutex
	planErr     error
	generateErr error
	submitErr   error
	block       chan struct{}

	planCalls int
	generated []models.GenerateRequest
	submitted []models.SubmitRequest
}

func (f *fakeBackend) MyPlan(ctx context.Context) (*models.Plan, error) {
	f.mu.Lock()
	f.planCalls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.planErr != nil {
		return nil, f.planErr
	}
	return &models.Plan{ID: "plan-1", Type: "premium", Usage: models.PlanUsage{San: models.Usage{Limit: 1, Remaining: 1}}}, nil
}

func (f *fakeBackend) GenerateCertificate(_ context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, req)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &models.GenerateResponse{OrderID: "order-42"}, nil
}

func (f *fakeBackend) SubmitCertificate(_ context.Context, req models.SubmitRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return f.submitErr
}

func fillFree(t *testing.T, w *Workflow) {
	t.Helper()
	require.NoError(t, w.Edit(func(d *Draft) error {
		d.UpdateDomain(0, FieldDomain, "test.com")
		d.UpdateDomain(0, FieldValidationMethod, "admin@test.com")
		d.SetServerSoftware("37")
		d.SetValidity(90)
		d.SetOrganization("Acme Inc")
		d.SetLocation("US", "California", "San Francisco")
		return nil
	}))
}

func TestWorkflowHappyPath(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	require.NoError(t, w.GenerateCSR(ctx))
	assert.Equal(t, StateCSRGenerating, w.State())
	assert.Equal(t, "order-42", w.OrderID())
	assert.False(t, w.CSRGenerated())

	require.Len(t, backend.generated, 1)
	req := backend.generated[0]
	assert.Equal(t, "plan-1", req.PlanID)
	assert.Equal(t, "test.com", req.Domain)
	assert.Empty(t, req.SanDomains)
	assert.False(t, req.IsWildcard)
	assert.Equal(t, "basic", req.CertificateType)
	assert.Equal(t, "San Francisco", req.City)

	require.NoError(t, w.ConfirmCSR(ctx))
	assert.Equal(t, StateCSRGenerated, w.State())
	assert.True(t, w.CSRGenerated())

	assert.IsType(t, &TransitionError{}, w.GenerateCSR(ctx))

	require.NoError(t, w.RequestPurchase())
	require.NoError(t, w.SubmitPurchase(ctx))
	assert.Equal(t, StateDone, w.State())
	assert.Empty(t, w.OrderID())

	require.Len(t, backend.submitted, 1)
	assert.Equal(t, models.SubmitRequest{OrderID: "order-42", ValidationMethod: "email", ValidityPeriod: 90, ServerSoftware: 37}, backend.submitted[0])

	d := w.Snapshot()
	assert.Equal(t, []string{""}, d.DomainNames())
	assert.Empty(t, d.OrganizationName)

	require.NoError(t, w.Reset())
	assert.Equal(t, StateIdle, w.State())
}

func TestGenerateCSRInvalidDraftMakesNoCall(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	err := w.GenerateCSR(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, FieldErrors(err))
	assert.Zero(t, backend.planCalls)
	assert.Equal(t, StateIdle, w.State())
}

func TestGenerateCSRPlanFetchFails(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"no backend text", &backendError{status: 404}, "Failed to fetch user plan"},
		{"backend text", &backendError{status: 404, message: "No active plan found"}, "No active plan found"},
		{"transport", errors.New("dial tcp: connection refused"), "Failed to fetch user plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{planErr: tt.err}
			w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
			fillFree(t, w)

			err := w.GenerateCSR(context.Background())
			var pfe *PlanFetchError
			require.ErrorAs(t, err, &pfe)
			assert.Equal(t, tt.message, pfe.Error())
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, backend.generated)
			assert.Equal(t, StateError, w.State())
			assert.Empty(t, w.OrderID())
			assert.Equal(t, err, w.Err())

			// the draft survives for a retry
			assert.True(t, w.Snapshot().IsValid())
		})
	}
}

func TestGenerateCSRPlanFetchStatus(t *testing.T) {
	backend := &fakeBackend{planErr: &backendError{status: 404}}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)
	var pfe *PlanFetchError
	require.ErrorAs(t, w.GenerateCSR(context.Background()), &pfe)
	assert.Equal(t, 404, pfe.StatusCode)
}

func TestGenerateCSRRetryAfterFailure(t *testing.T) {
	backend := &fakeBackend{generateErr: &backendError{status: 400}}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	err := w.GenerateCSR(context.Background())
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Failed to generate CSR", re.Error())

	backend.generateErr = nil
	require.NoError(t, w.GenerateCSR(context.Background()))
	assert.Equal(t, "order-42", w.OrderID())
	assert.NoError(t, w.Err())
}

func TestSubmitPurchaseWithoutOrder(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	err := w.SubmitPurchase(context.Background())
	require.ErrorIs(t, err, ErrMissingOrder)
	assert.Equal(t, "No order ID found. Please generate CSR first.", err.Error())
	assert.Empty(t, backend.submitted)
	assert.Zero(t, backend.planCalls)
}

func TestSubmitPurchaseFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{submitErr: &backendError{status: 502, message: "SSL provider unavailable"}}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	require.NoError(t, w.GenerateCSR(ctx))
	require.NoError(t, w.ConfirmCSR(ctx))
	require.NoError(t, w.RequestPurchase())

	err := w.SubmitPurchase(ctx)
	require.EqualError(t, err, "SSL provider unavailable")
	assert.Equal(t, StateError, w.State())
	assert.Equal(t, "order-42", w.OrderID())
	assert.True(t, w.CSRGenerated())

	backend.submitErr = nil
	require.NoError(t, w.SubmitPurchase(ctx))
	assert.Len(t, backend.submitted, 2)
	assert.Len(t, backend.generated, 1)
}

func TestDismissReviewsMakeNoCalls(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	require.NoError(t, w.GenerateCSR(ctx))
	require.NoError(t, w.DismissCSR())
	assert.Equal(t, StateIdle, w.State())
	assert.Empty(t, w.OrderID())

	require.NoError(t, w.GenerateCSR(ctx))
	require.NoError(t, w.ConfirmCSR(ctx))
	require.NoError(t, w.RequestPurchase())
	require.NoError(t, w.DismissPurchase())
	assert.Equal(t, StateCSRGenerated, w.State())
	assert.Empty(t, backend.submitted)
}

func TestSetCertificateTypeClearsOrder(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	w := NewWorkflow(backend, PremiumPolicy, WithCSRDelay(0))
	require.NoError(t, w.Edit(func(d *Draft) error {
		d.UpdateDomain(0, FieldDomain, "example.com")
		d.UpdateDomain(0, FieldValidationMethod, MethodHTTP)
		d.SetServerSoftware("37")
		d.SetValidity(365)
		d.SetOrganization("Acme")
		d.SetLocation("US", "CA", "SF")
		return nil
	}))
	require.NoError(t, w.GenerateCSR(ctx))
	require.NoError(t, w.ConfirmCSR(ctx))

	require.NoError(t, w.SetCertificateType(TypeSAN))
	assert.Equal(t, StateIdle, w.State())
	assert.Empty(t, w.OrderID())
	assert.False(t, w.CSRGenerated())
	assert.Len(t, w.Snapshot().Domains, 2)
}

func TestSanPayload(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, PremiumPolicy, WithCSRDelay(0))
	require.NoError(t, w.SetCertificateType(TypeSAN))
	require.NoError(t, w.Edit(func(d *Draft) error {
		d.UpdateDomain(0, FieldDomain, "Example.com")
		d.UpdateDomain(0, FieldValidationMethod, "admin@Example.com")
		d.UpdateDomain(1, FieldDomain, "www.example.com")
		d.UpdateDomain(1, FieldValidationMethod, MethodCNAME)
		d.SetServerSoftware("3")
		d.SetValidity(730)
		d.SetOrganization("Acme")
		d.SetLocation("US", "CA", "SF")
		return nil
	}))
	require.NoError(t, w.GenerateCSR(context.Background()))
	req := backend.generated[0]
	assert.Equal(t, "example.com", req.Domain)
	assert.Equal(t, []string{"www.example.com"}, req.SanDomains)
	assert.Equal(t, "san", req.CertificateType)
}

func TestWildcardPayload(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, PremiumPolicy, WithCSRDelay(0))
	require.NoError(t, w.SetCertificateType(TypeWildcard))
	require.NoError(t, w.Edit(func(d *Draft) error {
		d.UpdateDomain(0, FieldDomain, "*.example.com")
		d.UpdateDomain(0, FieldValidationMethod, MethodCNAME)
		d.SetServerSoftware("3")
		d.SetValidity(365)
		d.SetOrganization("Acme")
		d.SetLocation("US", "CA", "SF")
		return nil
	}))
	ctx := context.Background()
	require.NoError(t, w.GenerateCSR(ctx))
	req := backend.generated[0]
	assert.True(t, req.IsWildcard)
	assert.Equal(t, "wildcard", req.CertificateType)

	require.NoError(t, w.ConfirmCSR(ctx))
	require.NoError(t, w.RequestPurchase())
	require.NoError(t, w.SubmitPurchase(ctx))
	assert.Equal(t, "dns", backend.submitted[0].ValidationMethod)
}

func TestConcurrentCallsAreRejected(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	done := make(chan error, 1)
	go func() { done <- w.GenerateCSR(context.Background()) }()

	require.Eventually(t, w.Loading, time.Second, time.Millisecond)
	assert.ErrorIs(t, w.GenerateCSR(context.Background()), ErrBusy)
	assert.ErrorIs(t, w.Edit(func(*Draft) error { return nil }), ErrBusy)
	assert.ErrorIs(t, w.SetCertificateType(TypeBasic), ErrBusy)

	close(backend.block)
	require.NoError(t, <-done)
	assert.False(t, w.Loading())
}

func TestConfirmCSRHonoursContext(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(time.Hour))
	fillFree(t, w)
	require.NoError(t, w.GenerateCSR(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.ConfirmCSR(ctx), context.Canceled)
	assert.Equal(t, StateCSRGenerating, w.State())
}

func TestRun(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	var titles []string
	c := ConfirmFunc(func(_ context.Context, r Review) (bool, error) {
		titles = append(titles, r.Title)
		return true, nil
	})
	orderID, err := w.Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "order-42", orderID)
	assert.Equal(t, []string{"Generate CSR", "Purchase Certificate"}, titles)
	assert.Equal(t, StateDone, w.State())
}

func TestRunDeclinedPurchase(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, FreePolicy, WithCSRDelay(0))
	fillFree(t, w)

	calls := 0
	c := ConfirmFunc(func(context.Context, Review) (bool, error) {
		calls++
		return calls == 1, nil
	})
	orderID, err := w.Run(context.Background(), c)
	require.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, "order-42", orderID)
	assert.Equal(t, StateCSRGenerated, w.State())
	assert.Empty(t, backend.submitted)
}
