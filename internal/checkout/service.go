package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/events"
	"github.com/noah-isme/backend-dansa/internal/payment"
)

// CustomerResolver maps an internal user to the gateway customer reference,
// provisioning one when the user has none yet. A guest resolves to "".
type CustomerResolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Service keeps at most one checkout machine per owner and bridges machine
// outcomes back to the basket: a successful payment consumes the basket.
// Machines live only between Start and a terminal outcome; Reset and a
// successful payment evict them, and read-only calls never allocate one.
type Service struct {
	Baskets   *basket.Service
	Gateway   payment.Provider
	Placer    OrderPlacer
	Events    *events.Bus
	Customers CustomerResolver
	Currency  string
	Logger    zerolog.Logger

	mu       sync.Mutex
	machines map[string]*Machine
}

// signInState answers a guest who reached an operation that needs an
// account. The basket is untouched; only checkout requires signing in.
func signInState() State {
	return State{Phase: PhaseError, Message: "Sign in to check out", ErrorCode: common.CodeUnauthorized}
}

func (s *Service) obtain(ownerID, userID, customerID string) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machines == nil {
		s.machines = make(map[string]*Machine)
	}
	m, ok := s.machines[ownerID]
	if !ok {
		m = NewMachine(MachineConfig{
			Gateway:    s.Gateway,
			Placer:     s.Placer,
			UserID:     userID,
			CustomerID: customerID,
			Currency:   s.Currency,
			Logger:     s.Logger,
		})
		s.machines[ownerID] = m
	}
	return m
}

func (s *Service) existing(ownerID string) (*Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[ownerID]
	return m, ok
}

func (s *Service) evict(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.machines, ownerID)
}

// Start begins a checkout from the owner's current basket. Checkout is for
// signed-in customers; guests keep their basket and are asked to sign in.
func (s *Service) Start(ctx context.Context, ownerID, userID string) (State, error) {
	if s == nil || s.Baskets == nil || s.Gateway == nil || s.Placer == nil {
		return State{}, errors.New("checkout: service not configured")
	}
	if userID == "" {
		return signInState(), nil
	}
	b, err := s.Baskets.Get(ctx, ownerID)
	if err != nil {
		return State{}, err
	}
	customerID := ""
	if s.Customers != nil {
		customerID, err = s.Customers.Resolve(ctx, userID)
		if err != nil {
			// saved cards become unavailable but the checkout itself works
			s.Logger.Warn().Err(err).Str("user", userID).Msg("checkout_customer_resolve_failed")
			customerID = ""
		}
	}
	return s.obtain(ownerID, userID, customerID).Initialize(ctx, b), nil
}

// State returns the owner's current checkout state without allocating a
// machine for owners that never started one.
func (s *Service) State(ownerID, userID string) State {
	if m, ok := s.existing(ownerID); ok {
		return m.State()
	}
	return State{Phase: PhaseInitial}
}

// NextStep advances the step counter.
func (s *Service) NextStep(ownerID, userID string) State {
	if m, ok := s.existing(ownerID); ok {
		return m.NextStep()
	}
	return State{Phase: PhaseInitial}
}

// PreviousStep moves the step counter back.
func (s *Service) PreviousStep(ownerID, userID string) State {
	if m, ok := s.existing(ownerID); ok {
		return m.PreviousStep()
	}
	return State{Phase: PhaseInitial}
}

// SelectPaymentMethod records the chosen method.
func (s *Service) SelectPaymentMethod(ownerID, userID, methodID string) State {
	if m, ok := s.existing(ownerID); ok {
		return m.SelectPaymentMethod(methodID)
	}
	return State{Phase: PhaseInitial}
}

// SetBillingAddress records the billing details.
func (s *Service) SetBillingAddress(ownerID, userID string, billing payment.BillingDetails) State {
	if m, ok := s.existing(ownerID); ok {
		return m.SetBillingAddress(billing)
	}
	return State{Phase: PhaseInitial}
}

// CreateCard tokenises a new card for the session.
func (s *Service) CreateCard(ctx context.Context, ownerID, userID string, card payment.Card, billing payment.BillingDetails, setAsDefault bool) (State, bool) {
	if userID == "" {
		return signInState(), false
	}
	m, ok := s.existing(ownerID)
	if !ok {
		return State{Phase: PhaseInitial}, false
	}
	created := m.CreatePaymentMethodFromCard(ctx, card, billing, setAsDefault)
	return m.State(), created
}

// Pay confirms the payment. On success the basket is consumed and the
// machine retired; the returned snapshot carries the order.
func (s *Service) Pay(ctx context.Context, ownerID, userID, methodID, methodType string) (State, bool) {
	if userID == "" {
		return signInState(), false
	}
	m, ok := s.existing(ownerID)
	if !ok {
		return State{Phase: PhaseInitial}, false
	}
	paid := m.ProcessPayment(ctx, methodID, methodType)
	state := m.State()
	if paid && state.Phase == PhaseSuccess {
		s.finish(ctx, ownerID, state)
	}
	return state, paid
}

// Complete3DS finishes a pending 3DS challenge. On success the basket is
// consumed and the machine retired.
func (s *Service) Complete3DS(ctx context.Context, ownerID, userID, clientSecret string) (State, bool) {
	if userID == "" {
		return signInState(), false
	}
	m, ok := s.existing(ownerID)
	if !ok {
		return State{Phase: PhaseInitial}, false
	}
	authenticated := m.Handle3DSAuthentication(ctx, clientSecret)
	state := m.State()
	if authenticated && state.Phase == PhaseSuccess {
		s.finish(ctx, ownerID, state)
	}
	return state, authenticated
}

// Reset abandons the owner's checkout and drops the machine.
func (s *Service) Reset(ownerID, userID string) State {
	m, ok := s.existing(ownerID)
	if !ok {
		return State{Phase: PhaseInitial}
	}
	state := m.Reset()
	s.evict(ownerID)
	return state
}

func (s *Service) finish(ctx context.Context, ownerID string, state State) {
	s.consumeBasket(ctx, ownerID, state)
	s.evict(ownerID)
}

func (s *Service) consumeBasket(ctx context.Context, ownerID string, state State) {
	if _, err := s.Baskets.Clear(ctx, ownerID); err != nil {
		s.Logger.Error().Err(err).Str("owner", ownerID).Msg("checkout_basket_clear_failed")
	}
	if s.Events != nil && state.Order != nil {
		if _, err := s.Events.Emit(ctx, events.TopicBasketCheckedOut, state.Order.ID.String(), map[string]any{
			"orderId":     state.Order.ID.String(),
			"chargeTotal": state.Order.ChargeTotal,
		}); err != nil {
			s.Logger.Error().Err(err).Msg("checkout_event_emit_failed")
		}
	}
}
