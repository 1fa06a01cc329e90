package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

const defaultCheckoutSessionTTL = 2 * time.Hour

// CheckoutServiceDeps bundles the collaborators required to construct a checkout service.
type CheckoutServiceDeps struct {
	Carts       CartService
	Pricing     *PricingEngine
	Payments    PaymentMethodCreator
	Orders      *OrderRecorder
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Metrics     CheckoutMetrics
	SessionTTL  time.Duration
	IDGenerator func() string
}

type checkoutService struct {
	carts    CartService
	pricing  *PricingEngine
	payments PaymentMethodCreator
	orders   *OrderRecorder
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	metrics  CheckoutMetrics
	ttl      time.Duration
	newID    func() string

	mu       sync.Mutex
	sessions map[string]*CheckoutSession
}

var (
	errCheckoutCartsRequired    = errors.New("checkout service: cart service is required")
	errCheckoutPricingRequired  = errors.New("checkout service: pricing engine is required")
	errCheckoutPaymentsMissing  = errors.New("checkout service: payment method creator is required")
	errCheckoutRecorderRequired = errors.New("checkout service: order recorder is required")
)

// NewCheckoutService constructs the checkout orchestrator. Sessions live in
// memory and are discarded after SessionTTL of inactivity.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Pricing == nil {
		return nil, errCheckoutPricingRequired
	}
	if deps.Payments == nil {
		return nil, errCheckoutPaymentsMissing
	}
	if deps.Orders == nil {
		return nil, errCheckoutRecorderRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopCheckoutMetrics{}
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultCheckoutSessionTTL
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "chk_" + ulid.Make().String() }
	}

	return &checkoutService{
		carts:    deps.Carts,
		pricing:  deps.Pricing,
		payments: deps.Payments,
		orders:   deps.Orders,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		metrics:  metrics,
		ttl:      ttl,
		newID:    idGen,
		sessions: make(map[string]*CheckoutSession),
	}, nil
}

func (s *checkoutService) Start(ctx context.Context, customerID string) (CheckoutView, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return CheckoutView{}, ErrCheckoutInvalidInput
	}
	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		return CheckoutView{}, err
	}
	if len(cart.Lines) == 0 {
		return CheckoutView{}, ErrCheckoutEmptyCart
	}

	s.mu.Lock()
	s.sweepLocked()
	session, ok := s.sessions[customerID]
	if !ok {
		session, err = NewCheckoutSession(CheckoutSessionDeps{
			ID:         s.newID(),
			CustomerID: customerID,
			Payments:   s.payments,
			Clock:      s.clock,
		})
		if err != nil {
			s.mu.Unlock()
			return CheckoutView{}, err
		}
		s.sessions[customerID] = session
	}
	s.mu.Unlock()

	if !ok {
		s.logger(ctx, "checkout.started", map[string]any{
			"customerId": customerID,
			"sessionId":  session.id,
			"items":      cart.ItemCount,
		})
	}
	return s.view(ctx, session, cart), nil
}

func (s *checkoutService) Get(ctx context.Context, customerID string) (CheckoutView, error) {
	session, err := s.session(customerID)
	if err != nil {
		return CheckoutView{}, err
	}
	return s.currentView(ctx, customerID, session)
}

func (s *checkoutService) SubmitShipping(ctx context.Context, cmd SubmitShippingCommand) (CheckoutView, error) {
	session, err := s.session(cmd.CustomerID)
	if err != nil {
		return CheckoutView{}, err
	}
	if err := session.SubmitShipping(cmd.Shipping); err != nil {
		s.recordStepFailure(ctx, session, domain.CheckoutStepShipping, err)
		return s.viewWithError(ctx, cmd.CustomerID, session, err)
	}
	return s.currentView(ctx, cmd.CustomerID, session)
}

func (s *checkoutService) SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (CheckoutView, error) {
	session, err := s.session(cmd.CustomerID)
	if err != nil {
		return CheckoutView{}, err
	}
	if err := session.SubmitPayment(ctx, cmd.Card, cmd.Billing); err != nil {
		s.recordStepFailure(ctx, session, domain.CheckoutStepPayment, err)
		return s.viewWithError(ctx, cmd.CustomerID, session, err)
	}
	return s.currentView(ctx, cmd.CustomerID, session)
}

func (s *checkoutService) GoToStep(ctx context.Context, customerID string, step CheckoutStep) (CheckoutView, error) {
	session, err := s.session(customerID)
	if err != nil {
		return CheckoutView{}, err
	}
	if err := session.GoTo(step); err != nil {
		return s.viewWithError(ctx, customerID, session, err)
	}
	return s.currentView(ctx, customerID, session)
}

func (s *checkoutService) Back(ctx context.Context, customerID string) (CheckoutView, error) {
	session, err := s.session(customerID)
	if err != nil {
		return CheckoutView{}, err
	}
	if err := session.Back(); err != nil {
		return s.viewWithError(ctx, customerID, session, err)
	}
	return s.currentView(ctx, customerID, session)
}

func (s *checkoutService) UpdateNotes(ctx context.Context, customerID string, notes string) (CheckoutView, error) {
	session, err := s.session(customerID)
	if err != nil {
		return CheckoutView{}, err
	}
	if err := session.SetNotes(notes); err != nil {
		return s.viewWithError(ctx, customerID, session, err)
	}
	return s.currentView(ctx, customerID, session)
}

// Confirm prices the cart as it stands now and records the order. The
// session is discarded only once the order is recorded.
func (s *checkoutService) Confirm(ctx context.Context, customerID string) (Order, error) {
	session, err := s.session(customerID)
	if err != nil {
		return Order{}, err
	}
	if !session.ReadyToConfirm() {
		return Order{}, ErrCheckoutNotReady
	}

	var order Order
	err = s.carts.WithLedger(ctx, customerID, func(ledger *CartLedger) error {
		if ledger.IsEmpty() {
			return ErrOrderEmptyCart
		}
		snapshot := session.Snapshot()
		quote := s.pricing.Quote(ctx, ledger.Subtotal(), snapshot.Shipping.Address)
		recorded, finErr := s.orders.Finalize(ctx, ledger, session, quote.Totals)
		if finErr != nil {
			return finErr
		}
		order = recorded
		return nil
	})
	if err != nil {
		s.logger(ctx, "checkout.confirm_failed", map[string]any{
			"customerId": customerID,
			"sessionId":  session.id,
			"retryable":  IsRetryable(err),
			"error":      err.Error(),
		})
		return Order{}, err
	}

	s.mu.Lock()
	if current, ok := s.sessions[strings.TrimSpace(customerID)]; ok && current == session {
		delete(s.sessions, strings.TrimSpace(customerID))
	}
	s.mu.Unlock()
	return order, nil
}

func (s *checkoutService) Abandon(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return ErrCheckoutInvalidInput
	}
	s.mu.Lock()
	session, ok := s.sessions[customerID]
	delete(s.sessions, customerID)
	s.mu.Unlock()
	if !ok {
		return ErrCheckoutNotStarted
	}
	s.logger(ctx, "checkout.abandoned", map[string]any{
		"customerId": customerID,
		"sessionId":  session.id,
		"step":       session.CurrentStep().String(),
	})
	return nil
}

func (s *checkoutService) session(customerID string) (*CheckoutSession, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrCheckoutInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[customerID]
	if !ok {
		return nil, ErrCheckoutNotStarted
	}
	if s.expired(session) {
		delete(s.sessions, customerID)
		return nil, ErrCheckoutNotStarted
	}
	return session, nil
}

func (s *checkoutService) sweepLocked() {
	for customerID, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, customerID)
		}
	}
}

func (s *checkoutService) expired(session *CheckoutSession) bool {
	return s.clock().Sub(session.UpdatedAt()) > s.ttl
}

func (s *checkoutService) recordStepFailure(ctx context.Context, session *CheckoutSession, step CheckoutStep, err error) {
	var (
		vErr *ValidationError
		pErr *PaymentError
	)
	switch {
	case errors.As(err, &vErr):
		s.metrics.ValidationFailed(step.String())
		s.logger(ctx, "checkout.validation_failed", map[string]any{
			"sessionId": session.id,
			"step":      step.String(),
			"fields":    vErr.FieldNames(),
		})
	case errors.As(err, &pErr):
		s.metrics.PaymentFailed()
		s.logger(ctx, "checkout.payment_failed", map[string]any{
			"sessionId": session.id,
			"code":      pErr.Code,
			"error":     pErr.Error(),
		})
	}
}

func (s *checkoutService) currentView(ctx context.Context, customerID string, session *CheckoutSession) (CheckoutView, error) {
	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		return CheckoutView{}, err
	}
	return s.view(ctx, session, cart), nil
}

// viewWithError renders the session alongside the error that kept it in
// place so the caller can show both.
func (s *checkoutService) viewWithError(ctx context.Context, customerID string, session *CheckoutSession, cause error) (CheckoutView, error) {
	view, err := s.currentView(ctx, customerID, session)
	if err != nil {
		return CheckoutView{}, errors.Join(cause, err)
	}
	return view, cause
}

func (s *checkoutService) view(ctx context.Context, session *CheckoutSession, cart Cart) CheckoutView {
	snapshot := session.Snapshot()
	view := CheckoutView{Session: snapshot, Cart: cart}
	if country := snapshot.Shipping.Address.Country; country != "" {
		quote := s.pricing.Quote(ctx, cart.Subtotal, snapshot.Shipping.Address)
		view.Quote = &quote
	}
	return view
}
