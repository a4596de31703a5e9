package order

import (
	"errors"
	"fmt"
)

var (
	ErrMissingOrder = errors.New("No order ID found. Please generate CSR first.") //nolint:staticcheck
	ErrBusy         = errors.New("another request is still in progress")
	ErrDeclined     = errors.New("declined by user")
)

const (
	msgPlanFetch = "Failed to fetch user plan"
	msgGenerate  = "Failed to generate CSR"
	msgSubmit    = "Failed to submit certificate"
)

// backendMessager is implemented by transport errors carrying the backend's
// own error text.
type backendMessager interface {
	BackendMessage() string
}

type httpStatuser interface {
	HTTPStatus() int
}

// PlanFetchError is returned when the caller's plan could not be read before
// generating an order.
type PlanFetchError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *PlanFetchError) Error() string { return e.Message }

func (e *PlanFetchError) Unwrap() error { return e.Err }

// RequestError is a failed generate or submit call reduced to a
// human readable message.
type RequestError struct {
	Op      string
	Message string
	Err     error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Err }

type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

func messageOf(err error, fallback string) string {
	var m backendMessager
	if errors.As(err, &m) && m.BackendMessage() != "" {
		return m.BackendMessage()
	}
	return fallback
}

func statusOf(err error) int {
	var s httpStatuser
	if errors.As(err, &s) {
		return s.HTTPStatus()
	}
	return 0
}
