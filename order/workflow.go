package order

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/pkichain/pkichain/models"
)

type State string

const (
	StateIdle               State = "idle"
	StateCSRGenerating      State = "csr_generating"
	StateCSRGenerated       State = "csr_generated"
	StatePurchaseConfirming State = "purchase_confirming"
	StateSubmitting         State = "submitting"
	StateDone               State = "done"
	StateError              State = "error"
)

// DefaultCSRDelay mirrors the time the CSR review spends in its
// "generating" step before it reports completion.
const DefaultCSRDelay = 1500 * time.Millisecond

// Backend is the part of the REST API the workflow talks to.
type Backend interface {
	MyPlan(ctx context.Context) (*models.Plan, error)
	GenerateCertificate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error)
	SubmitCertificate(ctx context.Context, req models.SubmitRequest) error
}

type WorkflowOption func(*Workflow)

func WithCSRDelay(d time.Duration) WorkflowOption {
	return func(w *Workflow) {
		w.csrDelay = d
	}
}

// Workflow drives one certificate order from an empty draft to a submitted
// order. Only one operation runs at a time.
type Workflow struct {
	mu       sync.Mutex
	busy     bool
	backend  Backend
	draft    *Draft
	state    State
	prior    State
	orderID  string
	plan     *models.Plan
	lastErr  error
	csrDelay time.Duration
}

func NewWorkflow(backend Backend, policy Policy, options ...WorkflowOption) *Workflow {
	w := &Workflow{
		backend:  backend,
		draft:    NewDraft(policy),
		state:    StateIdle,
		csrDelay: DefaultCSRDelay,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) OrderID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orderID
}

// CSRGenerated reports whether the generate step has been confirmed.
func (w *Workflow) CSRGenerated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Contains([]State{StateCSRGenerated, StatePurchaseConfirming, StateSubmitting}, w.effective())
}

// Loading reports whether a request is in flight.
func (w *Workflow) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Err returns the error shown to the user, if any.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Workflow) Plan() *models.Plan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.plan
}

// Snapshot returns a copy of the current draft.
func (w *Workflow) Snapshot() *Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.clone()
}

// Edit applies fn to the draft. It is refused while a request is in flight.
func (w *Workflow) Edit(fn func(d *Draft) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	return fn(w.draft)
}

// SetCertificateType resets the draft for the new type and forgets any
// generated order.
func (w *Workflow) SetCertificateType(t CertificateType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if err := w.draft.SetCertificateType(t); err != nil {
		return err
	}
	w.orderID = ""
	w.plan = nil
	w.lastErr = nil
	w.state = StateIdle
	return nil
}

// GenerateCSR fetches the caller's plan and asks the backend to create the
// CSR and a draft order. On success the CSR review is open.
func (w *Workflow) GenerateCSR(ctx context.Context) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	if w.effective() != StateIdle {
		defer w.mu.Unlock()
		return &TransitionError{Op: "generate CSR", State: w.state}
	}
	if err := w.draft.Validate(); err != nil {
		w.mu.Unlock()
		return err
	}
	draft := w.draft.clone()
	w.busy = true
	w.lastErr = nil
	w.state = StateCSRGenerating
	w.mu.Unlock()

	plan, orderID, err := w.generate(ctx, draft)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if err != nil {
		w.fail(err, StateIdle)
		return err
	}
	w.plan = plan
	w.orderID = orderID
	slog.Info("draft order created", slog.String("order", orderID), slog.String("domain", draft.Domains[0].Domain))
	return nil
}

func (w *Workflow) generate(ctx context.Context, d *Draft) (*models.Plan, string, error) {
	plan, err := w.backend.MyPlan(ctx)
	if err != nil {
		return nil, "", &PlanFetchError{StatusCode: statusOf(err), Message: messageOf(err, msgPlanFetch), Err: err}
	}
	req := buildGenerateRequest(plan.ID, d)
	resp, err := w.backend.GenerateCertificate(ctx, req)
	if err != nil {
		return nil, "", &RequestError{Op: "generate", Message: messageOf(err, msgGenerate), Err: err}
	}
	if resp == nil || resp.OrderID == "" {
		return nil, "", &RequestError{Op: "generate", Message: msgGenerate}
	}
	return plan, resp.OrderID, nil
}

func buildGenerateRequest(planID string, d *Draft) models.GenerateRequest {
	domains := make([]string, 0, len(d.Domains))
	for _, e := range d.Domains {
		name, ok := NormalizeDomain(e.Domain)
		if !ok {
			name = e.Domain
		}
		domains = append(domains, name)
	}
	main := domains[0]
	san := []string{}
	if d.CertificateType == TypeSAN {
		san = domains[1:]
	}
	return models.GenerateRequest{
		PlanID:          planID,
		Domain:          main,
		SanDomains:      san,
		IsWildcard:      IsWildcard(main),
		CertificateType: string(d.CertificateType),
		Organization:    d.OrganizationName,
		Country:         d.Country,
		State:           d.State,
		City:            d.City,
	}
}

// ConfirmCSR closes the CSR review once its presentation delay has passed.
func (w *Workflow) ConfirmCSR(ctx context.Context) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	if w.state != StateCSRGenerating || w.orderID == "" {
		defer w.mu.Unlock()
		return &TransitionError{Op: "confirm CSR", State: w.state}
	}
	w.busy = true
	delay := w.csrDelay
	w.mu.Unlock()

	var err error
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		case <-t.C:
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if err != nil {
		return err
	}
	w.state = StateCSRGenerated
	return nil
}

// DismissCSR closes the CSR review without confirming it.
func (w *Workflow) DismissCSR() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.state != StateCSRGenerating {
		return &TransitionError{Op: "dismiss CSR review", State: w.state}
	}
	w.orderID = ""
	w.state = StateIdle
	return nil
}

// RequestPurchase opens the purchase review.
func (w *Workflow) RequestPurchase() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.state != StateCSRGenerated {
		return &TransitionError{Op: "request purchase", State: w.state}
	}
	w.state = StatePurchaseConfirming
	return nil
}

func (w *Workflow) DismissPurchase() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.effective() != StatePurchaseConfirming {
		return &TransitionError{Op: "dismiss purchase review", State: w.state}
	}
	w.lastErr = nil
	w.state = StateCSRGenerated
	return nil
}

// SubmitPurchase submits the generated order for validation. A failed
// submission keeps the order id so it can be retried.
func (w *Workflow) SubmitPurchase(ctx context.Context) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	if w.orderID == "" {
		defer w.mu.Unlock()
		w.lastErr = ErrMissingOrder
		return ErrMissingOrder
	}
	if w.effective() != StatePurchaseConfirming {
		defer w.mu.Unlock()
		return &TransitionError{Op: "submit purchase", State: w.state}
	}
	primary := w.draft.Domains[0]
	validity := w.draft.ValidityDays
	software, err := strconv.Atoi(w.draft.ServerSoftware)
	if err != nil {
		w.mu.Unlock()
		return &FieldError{Field: "serverSoftware", Message: "unknown server software code"}
	}
	req := models.SubmitRequest{
		OrderID:          w.orderID,
		ValidationMethod: ClassifyValidationMethod(primary.ValidationMethod),
		ValidityPeriod:   validity,
		ServerSoftware:   software,
	}
	w.busy = true
	w.lastErr = nil
	w.state = StateSubmitting
	w.mu.Unlock()

	err = w.backend.SubmitCertificate(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if err != nil {
		err = &RequestError{Op: "submit", Message: messageOf(err, msgSubmit), Err: err}
		w.fail(err, StatePurchaseConfirming)
		return err
	}
	slog.Info("order submitted for validation", slog.String("order", req.OrderID), slog.String("method", req.ValidationMethod))
	w.draft.Reset()
	w.orderID = ""
	w.plan = nil
	w.state = StateDone
	return nil
}

// Reset starts over with an empty draft.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.draft.Reset()
	w.orderID = ""
	w.plan = nil
	w.lastErr = nil
	w.state = StateIdle
	return nil
}

// DismissError hides the last error and returns to the state it interrupted.
func (w *Workflow) DismissError() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateError {
		w.state = w.prior
	}
	w.lastErr = nil
}

// Run walks through the complete flow, asking c before each irreversible
// step. It returns the id of the submitted order.
func (w *Workflow) Run(ctx context.Context, c Confirmer) (string, error) {
	if err := w.GenerateCSR(ctx); err != nil {
		return "", err
	}
	ok, err := c.Confirm(ctx, CSRReview(w.Snapshot(), w.Plan()))
	if err != nil || !ok {
		_ = w.DismissCSR()
		if err == nil {
			err = ErrDeclined
		}
		return "", err
	}
	if err := w.ConfirmCSR(ctx); err != nil {
		return "", err
	}
	if err := w.RequestPurchase(); err != nil {
		return "", err
	}
	orderID := w.OrderID()
	ok, err = c.Confirm(ctx, PurchaseReview(w.Snapshot(), orderID))
	if err != nil || !ok {
		_ = w.DismissPurchase()
		if err == nil {
			err = ErrDeclined
		}
		return orderID, err
	}
	if err := w.SubmitPurchase(ctx); err != nil {
		return orderID, err
	}
	return orderID, nil
}

// effective is the interactive state, looking through an error.
func (w *Workflow) effective() State {
	if w.state == StateError {
		return w.prior
	}
	return w.state
}

func (w *Workflow) fail(err error, prior State) {
	slog.Error("order step failed", slog.String("resume_state", string(prior)), slog.Any("error", err))
	w.lastErr = err
	w.prior = prior
	w.state = StateError
}

func (d *Draft) clone() *Draft {
	c := *d
	c.Domains = slices.Clone(d.Domains)
	return &c
}
