package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const maxNotesLength = 1000

// CheckoutSessionDeps configures a session.
type CheckoutSessionDeps struct {
	ID         string
	CustomerID string
	Payments   PaymentMethodCreator
	Clock      func() time.Time
}

// CheckoutSession is the three-step checkout wizard for one customer. Every
// step change goes through transition.
type CheckoutSession struct {
	id         string
	customerID string
	payments   PaymentMethodCreator
	now        func() time.Time

	mu             sync.Mutex
	current        domain.CheckoutStep
	completed      map[domain.CheckoutStep]bool
	shipping       domain.ShippingInfo
	billing        domain.BillingInfo
	payment        *domain.PaymentMethodRef
	stepErrors     map[domain.CheckoutStep]error
	notes          string
	paymentPending bool
	startedAt      time.Time
	updatedAt      time.Time
}

var errCheckoutPaymentsRequired = errors.New("checkout session: payment method creator is required")

// NewCheckoutSession starts a session on the shipping step.
func NewCheckoutSession(deps CheckoutSessionDeps) (*CheckoutSession, error) {
	if deps.Payments == nil {
		return nil, errCheckoutPaymentsRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock().UTC() }
	started := now()
	return &CheckoutSession{
		id:         strings.TrimSpace(deps.ID),
		customerID: strings.TrimSpace(deps.CustomerID),
		payments:   deps.Payments,
		now:        now,
		current:    domain.CheckoutStepShipping,
		completed:  make(map[domain.CheckoutStep]bool, 3),
		stepErrors: make(map[domain.CheckoutStep]error, 3),
		startedAt:  started,
		updatedAt:  started,
	}, nil
}

// CurrentStep returns the step the customer is on.
func (s *CheckoutSession) CurrentStep() domain.CheckoutStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// HighestCompleted returns the furthest completed step, or zero.
func (s *CheckoutSession) HighestCompleted() domain.CheckoutStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highestCompletedLocked()
}

// StepError returns the error recorded for step, if any.
func (s *CheckoutSession) StepError(step domain.CheckoutStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepErrors[step]
}

// UpdatedAt reports the last change to the session.
func (s *CheckoutSession) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// SubmitShipping validates info and, when valid, stores it and advances to
// the payment step. An invalid form leaves the stored info untouched.
func (s *CheckoutSession) SubmitShipping(info domain.ShippingInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paymentPending {
		return ErrCheckoutPaymentPending
	}
	if s.current != domain.CheckoutStepShipping {
		return ErrCheckoutWrongStep
	}

	info = normalizeShippingInfo(info)
	if fields := validateShippingInfo(info); len(fields) > 0 {
		vErr := &ValidationError{Step: domain.CheckoutStepShipping, Fields: fields}
		s.stepErrors[domain.CheckoutStepShipping] = vErr
		s.updatedAt = s.now()
		return vErr
	}

	s.shipping = info
	delete(s.stepErrors, domain.CheckoutStepShipping)
	s.completed[domain.CheckoutStepShipping] = true
	return s.transition(domain.CheckoutStepPayment)
}

// SubmitPayment asks the payment collaborator for a payment method and, on
// success, stores the reference and advances to confirmation. The session is
// unlocked while the collaborator runs; other mutations are refused meanwhile.
func (s *CheckoutSession) SubmitPayment(ctx context.Context, card domain.CardInput, billing domain.BillingInfo) error {
	s.mu.Lock()
	if s.paymentPending {
		s.mu.Unlock()
		return ErrCheckoutPaymentPending
	}
	if s.current != domain.CheckoutStepPayment {
		s.mu.Unlock()
		return ErrCheckoutWrongStep
	}
	billing = s.resolveBillingLocked(billing)
	if fields := validateBillingInfo(billing); len(fields) > 0 {
		vErr := &ValidationError{Step: domain.CheckoutStepPayment, Fields: fields}
		s.stepErrors[domain.CheckoutStepPayment] = vErr
		s.updatedAt = s.now()
		s.mu.Unlock()
		return vErr
	}
	s.paymentPending = true
	s.mu.Unlock()

	ref, err := s.payments.CreatePaymentMethod(ctx, card, billing)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentPending = false

	if err != nil {
		var pErr *PaymentError
		if !errors.As(err, &pErr) {
			pErr = &PaymentError{Message: err.Error(), Err: err}
			var coded interface{ DeclineCode() string }
			if errors.As(err, &coded) {
				pErr.Code = coded.DeclineCode()
			}
		}
		s.stepErrors[domain.CheckoutStepPayment] = pErr
		s.updatedAt = s.now()
		return pErr
	}
	if strings.TrimSpace(ref.ID) == "" {
		pErr := &PaymentError{Message: "payment provider returned no payment method"}
		s.stepErrors[domain.CheckoutStepPayment] = pErr
		s.updatedAt = s.now()
		return pErr
	}

	s.billing = billing
	s.payment = &ref
	delete(s.stepErrors, domain.CheckoutStepPayment)
	s.completed[domain.CheckoutStepPayment] = true
	return s.transition(domain.CheckoutStepConfirm)
}

// Back moves one step back. It is a no-op on the first step.
func (s *CheckoutSession) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paymentPending {
		return ErrCheckoutPaymentPending
	}
	if s.current <= domain.CheckoutStepShipping {
		return nil
	}
	return s.transition(s.current - 1)
}

// GoTo jumps to step when it is completed or is the first incomplete step.
func (s *CheckoutSession) GoTo(step domain.CheckoutStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paymentPending {
		return ErrCheckoutPaymentPending
	}
	if !step.Valid() {
		return fmt.Errorf("%w: unknown step %d", ErrCheckoutInvalidInput, int(step))
	}
	if step > s.highestCompletedLocked()+1 {
		return ErrCheckoutStepLocked
	}
	return s.transition(step)
}

// SetNotes stores free-form order notes. They are sanitised when the order is
// recorded.
func (s *CheckoutSession) SetNotes(notes string) error {
	notes = strings.TrimSpace(norm.NFKC.String(notes))
	if len([]rune(notes)) > maxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrCheckoutInvalidInput, maxNotesLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = notes
	s.updatedAt = s.now()
	return nil
}

// ReadyToConfirm reports whether the session is on the confirm step with
// shipping and payment both completed.
func (s *CheckoutSession) ReadyToConfirm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == domain.CheckoutStepConfirm &&
		s.completed[domain.CheckoutStepShipping] &&
		s.completed[domain.CheckoutStepPayment] &&
		s.payment != nil &&
		!s.paymentPending
}

// Snapshot returns a copy of the session for display and order recording.
func (s *CheckoutSession) Snapshot() domain.CheckoutSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := make([]domain.CheckoutStep, 0, len(s.completed))
	for step := domain.CheckoutStepShipping; step <= domain.CheckoutStepConfirm; step++ {
		if s.completed[step] {
			completed = append(completed, step)
		}
	}
	stepErrors := make(map[domain.CheckoutStep]string, len(s.stepErrors))
	for step, err := range s.stepErrors {
		stepErrors[step] = err.Error()
	}
	var payment *domain.PaymentMethodRef
	if s.payment != nil {
		ref := *s.payment
		payment = &ref
	}
	return domain.CheckoutSnapshot{
		ID:             s.id,
		CustomerID:     s.customerID,
		CurrentStep:    s.current,
		CompletedSteps: completed,
		Shipping:       s.shipping,
		Billing:        s.resolveBillingLocked(s.billing),
		PaymentMethod:  payment,
		StepErrors:     stepErrors,
		Notes:          s.notes,
		StartedAt:      s.startedAt,
		UpdatedAt:      s.updatedAt,
	}
}

// transition moves to target and confirms the session settled there with the
// step invariant intact. On failure the previous step is restored. Callers
// hold the session lock, so nothing can change the state between the move
// and the check.
func (s *CheckoutSession) transition(target domain.CheckoutStep) error {
	previous := s.current
	s.current = target
	if !s.settledLocked(target) {
		s.current = previous
		return fmt.Errorf("%w: %s -> %s", ErrCheckoutTransitionFailed, previous, target)
	}
	s.updatedAt = s.now()
	return nil
}

func (s *CheckoutSession) settledLocked(target domain.CheckoutStep) bool {
	return s.current == target &&
		s.current.Valid() &&
		s.current <= s.highestCompletedLocked()+1
}

func (s *CheckoutSession) highestCompletedLocked() domain.CheckoutStep {
	var highest domain.CheckoutStep
	for step := domain.CheckoutStepShipping; step <= domain.CheckoutStepConfirm; step++ {
		if !s.completed[step] {
			break
		}
		highest = step
	}
	return highest
}

// resolveBillingLocked fills billing from the shipping contact when the
// customer ticked same-as-shipping.
func (s *CheckoutSession) resolveBillingLocked(billing domain.BillingInfo) domain.BillingInfo {
	if !billing.SameAsShipping {
		billing.Name = strings.TrimSpace(norm.NFKC.String(billing.Name))
		billing.Email = strings.TrimSpace(billing.Email)
		billing.Address = normalizeAddress(billing.Address)
		return billing
	}
	return domain.BillingInfo{
		SameAsShipping: true,
		Name:           s.shipping.FullName(),
		Email:          s.shipping.Email,
		Address:        s.shipping.Address,
	}
}

func normalizeShippingInfo(info domain.ShippingInfo) domain.ShippingInfo {
	return domain.ShippingInfo{
		FirstName: strings.TrimSpace(norm.NFKC.String(info.FirstName)),
		LastName:  strings.TrimSpace(norm.NFKC.String(info.LastName)),
		Email:     strings.TrimSpace(norm.NFKC.String(info.Email)),
		Phone:     strings.TrimSpace(norm.NFKC.String(info.Phone)),
		Address:   normalizeAddress(info.Address),
	}
}

func normalizeAddress(addr domain.Address) domain.Address {
	return domain.Address{
		Line1:      strings.TrimSpace(norm.NFKC.String(addr.Line1)),
		Line2:      strings.TrimSpace(norm.NFKC.String(addr.Line2)),
		City:       strings.TrimSpace(norm.NFKC.String(addr.City)),
		State:      strings.TrimSpace(norm.NFKC.String(addr.State)),
		PostalCode: strings.TrimSpace(norm.NFKC.String(addr.PostalCode)),
		Country:    NormalizeCountry(norm.NFKC.String(addr.Country)),
	}
}

func validateShippingInfo(info domain.ShippingInfo) []FieldError {
	var fields []FieldError
	required := func(name, value string) {
		if value == "" {
			fields = append(fields, FieldError{Field: name, Message: "is required"})
		}
	}
	required("firstName", info.FirstName)
	required("lastName", info.LastName)
	required("email", info.Email)
	if info.Email != "" && !emailPattern.MatchString(info.Email) {
		fields = append(fields, FieldError{Field: "email", Message: "is not a valid email address"})
	}
	fields = append(fields, validateAddress("address", info.Address)...)
	return fields
}

func validateBillingInfo(billing domain.BillingInfo) []FieldError {
	if billing.SameAsShipping {
		return nil
	}
	var fields []FieldError
	if billing.Name == "" {
		fields = append(fields, FieldError{Field: "billing.name", Message: "is required"})
	}
	if billing.Email != "" && !emailPattern.MatchString(billing.Email) {
		fields = append(fields, FieldError{Field: "billing.email", Message: "is not a valid email address"})
	}
	return append(fields, validateAddress("billing.address", billing.Address)...)
}

func validateAddress(prefix string, addr domain.Address) []FieldError {
	var fields []FieldError
	if addr.Line1 == "" {
		fields = append(fields, FieldError{Field: prefix + ".line1", Message: "is required"})
	}
	if addr.City == "" {
		fields = append(fields, FieldError{Field: prefix + ".city", Message: "is required"})
	}
	if addr.PostalCode == "" {
		fields = append(fields, FieldError{Field: prefix + ".postalCode", Message: "is required"})
	}
	switch {
	case addr.Country == "":
		fields = append(fields, FieldError{Field: prefix + ".country", Message: "is required"})
	case !isCountryCode(addr.Country):
		fields = append(fields, FieldError{Field: prefix + ".country", Message: "is not a recognised country code"})
	}
	return fields
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return false
	}
	return region.IsCountry()
}
