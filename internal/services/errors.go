package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("checkout: validation failed")
	// ErrPayment matches every *PaymentError.
	ErrPayment = errors.New("checkout: payment method rejected")
	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("storefront: persistence failed")
)

// FieldError describes one rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports the fields that blocked a step transition. The
// session stays on Step.
type ValidationError struct {
	Step   domain.CheckoutStep
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldNames lists the rejected fields in report order.
func (e *ValidationError) FieldNames() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// PaymentError wraps a payment collaborator failure. Message is the
// collaborator's own text and is shown to the customer unchanged.
type PaymentError struct {
	Message string
	Code    string
	Err     error
}

func (e *PaymentError) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return ErrPayment.Error()
	}
	return e.Message
}

func (e *PaymentError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{ErrPayment}
	}
	return []error{ErrPayment, e.Err}
}

// PersistenceError reports a failed storage read or write. Retryable writes
// left the in-memory state untouched.
type PersistenceError struct {
	Op        string
	Key       string
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ErrPersistence.Error()
	}
	msg := ErrPersistence.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Op)
	}
	if e.Key != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Key)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PersistenceError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{ErrPersistence}
	}
	return []error{ErrPersistence, e.Err}
}

// IsRetryable reports whether err carries a retryable persistence failure.
func IsRetryable(err error) bool {
	var pErr *PersistenceError
	if errors.As(err, &pErr) {
		return pErr.Retryable
	}
	return false
}

var (
	ErrCartInvalidInput         = errors.New("cart service: invalid input")
	ErrCheckoutInvalidInput     = errors.New("checkout service: invalid input")
	ErrCheckoutNotStarted       = errors.New("checkout service: no active checkout")
	ErrCheckoutEmptyCart        = errors.New("checkout service: cart is empty")
	ErrCheckoutWrongStep        = errors.New("checkout service: operation not allowed on current step")
	ErrCheckoutStepLocked       = errors.New("checkout service: step not yet reachable")
	ErrCheckoutTransitionFailed = errors.New("checkout service: transition did not settle")
	ErrCheckoutPaymentPending   = errors.New("checkout service: payment submission in progress")
	ErrCheckoutNotReady         = errors.New("checkout service: checkout is not ready to confirm")
	ErrOrderInvalidInput        = errors.New("order service: invalid input")
	ErrOrderEmptyCart           = errors.New("order service: cart is empty")
	ErrOrderTotalsMismatch      = errors.New("order service: totals do not match cart")
	ErrOrderNotFound            = errors.New("order service: order not found")
	ErrOrderNumberExhausted     = errors.New("order service: could not allocate a unique order number")
)
