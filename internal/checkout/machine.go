// Package checkout drives one payment attempt per user through a small
// state machine: Initial -> Loading -> Loaded -> Processing -> Success or
// Error. Collaborator failures never escape as raw errors; they surface as
// the Error phase with a human message and an optional machine code.
package checkout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/obs"
	"github.com/noah-isme/backend-dansa/internal/order"
	"github.com/noah-isme/backend-dansa/internal/payment"
)

// Phase names a state of the checkout machine.
type Phase string

const (
	PhaseInitial    Phase = "initial"
	PhaseLoading    Phase = "loading"
	PhaseLoaded     Phase = "loaded"
	PhaseProcessing Phase = "processing"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

const (
	minStep = 1
	maxStep = 4
)

// Session is the substructure carried by the Loaded phase.
type Session struct {
	Basket           basket.Basket            `json:"basket"`
	AvailableMethods []payment.Method         `json:"availablePaymentMethods"`
	SelectedMethod   string                   `json:"selectedPaymentMethod,omitempty"`
	Billing          *payment.BillingDetails  `json:"billingAddress,omitempty"`
	Step             int                      `json:"currentStep"`
	ClientSecret     string                   `json:"clientSecret,omitempty"`
	Processing       bool                     `json:"isProcessing"`
}

// State is a snapshot of the machine, safe to hand to callers.
type State struct {
	Phase     Phase        `json:"phase"`
	Session   *Session     `json:"session,omitempty"`
	Order     *order.Order `json:"order,omitempty"`
	Message   string       `json:"message,omitempty"`
	ErrorCode string       `json:"errorCode,omitempty"`
}

// OrderPlacer records the order once the gateway confirms payment.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID string, b basket.Basket, paymentRef string) (order.Order, error)
}

// MachineConfig groups Machine dependencies. All of them are explicit; a
// machine never reaches for process-global state.
type MachineConfig struct {
	Gateway    payment.Provider
	Placer     OrderPlacer
	UserID     string
	CustomerID string
	Currency   string
	Logger     zerolog.Logger
}

// Machine is one user's checkout attempt. Operations may arrive on
// concurrent requests, so every public method holds the mutex.
type Machine struct {
	mu  sync.Mutex
	cfg MachineConfig

	state State
}

// NewMachine constructs a Machine in the Initial phase.
func NewMachine(cfg MachineConfig) *Machine {
	return &Machine{cfg: cfg, state: State{Phase: PhaseInitial}}
}

// State returns a snapshot of the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Machine) snapshot() State {
	out := m.state
	if m.state.Session != nil {
		session := *m.state.Session
		session.AvailableMethods = append([]payment.Method(nil), m.state.Session.AvailableMethods...)
		out.Session = &session
	}
	if m.state.Order != nil {
		o := *m.state.Order
		out.Order = &o
	}
	return out
}

func (m *Machine) transition(to Phase) {
	obs.ObserveCheckoutTransition(string(m.state.Phase), string(to))
	m.state.Phase = to
}

// toError moves to the Error phase. The session is kept so a renderable
// snapshot survives; code is empty for plain precondition messages.
func (m *Machine) toError(message, code string) {
	m.transition(PhaseError)
	m.state.Message = message
	m.state.ErrorCode = code
	m.state.Order = nil
}

// Initialize begins checkout from the given basket. An empty basket is a
// hard precondition failure, not something to retry.
func (m *Machine) Initialize(ctx context.Context, b basket.Basket) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.IsEmpty() {
		m.toError("Basket is empty", common.CodeBasketEmpty)
		return m.snapshot()
	}

	m.transition(PhaseLoading)
	m.state.Message = ""
	m.state.ErrorCode = ""

	methods, err := m.cfg.Gateway.ListPaymentMethods(ctx, m.cfg.CustomerID)
	if err != nil {
		m.cfg.Logger.Error().Err(err).Msg("checkout_load_payment_methods_failed")
		m.toError("Unable to load payment methods", "")
		return m.snapshot()
	}

	m.state.Session = &Session{
		Basket:           b,
		AvailableMethods: methods,
		Step:             minStep,
	}
	m.transition(PhaseLoaded)
	obs.ObserveBasketCharge(b.Totals.ChargeTotal)
	return m.snapshot()
}

// NextStep advances the step counter, clamped to the upper bound.
func (m *Machine) NextStep() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhaseLoaded && m.state.Session.Step < maxStep {
		m.state.Session.Step++
	}
	return m.snapshot()
}

// PreviousStep moves the step counter back, clamped to the lower bound.
func (m *Machine) PreviousStep() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhaseLoaded && m.state.Session.Step > minStep {
		m.state.Session.Step--
	}
	return m.snapshot()
}

// SelectPaymentMethod records the chosen method. Pure state update.
func (m *Machine) SelectPaymentMethod(methodID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhaseLoaded {
		m.state.Session.SelectedMethod = methodID
	}
	return m.snapshot()
}

// SetBillingAddress records the billing details. Pure state update.
func (m *Machine) SetBillingAddress(billing payment.BillingDetails) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhaseLoaded {
		m.state.Session.Billing = &billing
	}
	return m.snapshot()
}

// CreatePaymentMethodFromCard tokenises a new card with the gateway. Gateway
// rejections surface as the Error phase and a false return.
func (m *Machine) CreatePaymentMethodFromCard(ctx context.Context, card payment.Card, billing payment.BillingDetails, setAsDefault bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseLoaded {
		m.toError("No checkout in progress", "")
		return false
	}

	method, err := m.cfg.Gateway.CreatePaymentMethod(ctx, payment.CreateMethodRequest{
		CustomerID:   m.cfg.CustomerID,
		Card:         card,
		Billing:      billing,
		SetAsDefault: setAsDefault,
	})
	if err != nil {
		m.cfg.Logger.Warn().Err(err).Msg("checkout_create_payment_method_failed")
		m.toError("Unable to save card details", "")
		return false
	}

	m.state.Session.AvailableMethods = append(m.state.Session.AvailableMethods, method)
	m.state.Session.Billing = &billing
	return true
}

// ProcessPayment confirms the charge with the gateway. The basket is
// re-checked here because another flow could have cleared it since
// Initialize. Three gateway outcomes: immediate success, a 3DS challenge,
// or a decline.
func (m *Machine) ProcessPayment(ctx context.Context, methodID, methodType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseLoaded {
		m.toError("No checkout in progress", "")
		return false
	}
	session := m.state.Session
	if session.Basket.IsEmpty() {
		m.toError("Basket is empty", common.CodeBasketEmpty)
		return false
	}

	m.transition(PhaseProcessing)
	session.Processing = true

	result, err := m.cfg.Gateway.ConfirmPayment(ctx, payment.ConfirmRequest{
		CustomerID:     m.cfg.CustomerID,
		MethodID:       methodID,
		MethodType:     methodType,
		Amount:         session.Basket.Totals.ChargeTotal,
		Currency:       m.cfg.Currency,
		Reference:      session.Basket.ID,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		m.cfg.Logger.Error().Err(err).Msg("checkout_confirm_failed")
		session.Processing = false
		m.toError("Payment could not be processed", "")
		return false
	}
	obs.ObservePaymentConfirm(m.cfg.Gateway.Name(), string(result.Status))

	switch result.Status {
	case payment.StatusSucceeded:
		return m.completeOrder(ctx, result.PaymentID)
	case payment.StatusRequiresAction:
		session.ClientSecret = result.ClientSecret
		session.Processing = true
		session.Step = 3
		m.transition(PhaseLoaded)
		return true
	default:
		session.Processing = false
		m.toError(declineMessage(result), declineCode(result))
		return false
	}
}

// Handle3DSAuthentication completes a pending 3DS challenge. A user
// cancellation is not an error: the session returns to Loaded at the same
// step with the secret cleared and no error code.
func (m *Machine) Handle3DSAuthentication(ctx context.Context, clientSecret string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.state.Session
	if m.state.Phase != PhaseLoaded || session == nil || session.ClientSecret == "" || session.ClientSecret != clientSecret {
		m.toError("Invalid authentication state", "")
		return false
	}

	m.transition(PhaseProcessing)
	result, err := m.cfg.Gateway.HandleNextAction(ctx, clientSecret)
	if err != nil {
		m.cfg.Logger.Error().Err(err).Msg("checkout_3ds_failed")
		session.Processing = false
		m.toError("Payment authentication failed", "")
		return false
	}
	obs.ObservePaymentConfirm(m.cfg.Gateway.Name(), string(result.Status))

	switch result.Status {
	case payment.StatusSucceeded:
		return m.completeOrder(ctx, result.PaymentID)
	case payment.StatusCanceled:
		session.ClientSecret = ""
		session.Processing = false
		m.transition(PhaseLoaded)
		m.state.Message = ""
		m.state.ErrorCode = ""
		return false
	default:
		session.Processing = false
		m.toError(declineMessage(result), declineCode(result))
		return false
	}
}

// completeOrder is called with the mutex held after a confirmed payment.
func (m *Machine) completeOrder(ctx context.Context, paymentRef string) bool {
	session := m.state.Session
	placed, err := m.cfg.Placer.PlaceOrder(ctx, m.cfg.UserID, session.Basket, paymentRef)
	if err != nil {
		// the charge went through but recording failed; keep the reference
		// visible for support to reconcile
		m.cfg.Logger.Error().Err(err).Str("paymentRef", paymentRef).Msg("checkout_place_order_failed")
		m.toError("Payment was taken but the order could not be recorded", "")
		return false
	}
	session.ClientSecret = ""
	session.Processing = false
	m.state.Order = &placed
	m.state.Message = ""
	m.state.ErrorCode = ""
	m.transition(PhaseSuccess)
	return true
}

// Reset unconditionally returns the machine to Initial.
func (m *Machine) Reset() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(PhaseInitial)
	m.state = State{Phase: PhaseInitial}
	return m.snapshot()
}

func declineMessage(result payment.ConfirmResult) string {
	if result.Message != "" {
		return result.Message
	}
	return "Payment was declined"
}

func declineCode(result payment.ConfirmResult) string {
	if result.ErrorCode != "" {
		return result.ErrorCode
	}
	return common.CodeCardDeclined
}
