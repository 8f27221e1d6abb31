package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/catalog"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/order"
	"github.com/noah-isme/backend-dansa/internal/payment"
)

type scriptedGateway struct {
	methods          []payment.Method
	listErr          error
	createErr        error
	confirm          payment.ConfirmResult
	confirmErr       error
	nextAction       payment.ConfirmResult
	nextErr          error
	confirmHits      atomic.Int64
	lastListCustomer string
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) CreatePaymentMethod(_ context.Context, req payment.CreateMethodRequest) (payment.Method, error) {
	if g.createErr != nil {
		return payment.Method{}, g.createErr
	}
	return payment.Method{ID: "pm_new", Type: "card", Last4: "4242"}, nil
}

func (g *scriptedGateway) ListPaymentMethods(_ context.Context, customerID string) ([]payment.Method, error) {
	g.lastListCustomer = customerID
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.methods, nil
}

func (g *scriptedGateway) ConfirmPayment(_ context.Context, _ payment.ConfirmRequest) (payment.ConfirmResult, error) {
	g.confirmHits.Add(1)
	return g.confirm, g.confirmErr
}

func (g *scriptedGateway) HandleNextAction(_ context.Context, _ string) (payment.ConfirmResult, error) {
	return g.nextAction, g.nextErr
}

type stubPlacer struct {
	placed []order.Order
	err    error
}

func (p *stubPlacer) PlaceOrder(_ context.Context, userID string, b basket.Basket, paymentRef string) (order.Order, error) {
	if p.err != nil {
		return order.Order{}, p.err
	}
	o := order.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      order.StatusPaid,
		ChargeTotal: b.Totals.ChargeTotal,
		PayLater:    b.Totals.PayLater,
		PaymentRef:  paymentRef,
	}
	p.placed = append(p.placed, o)
	return o, nil
}

func testBasket() basket.Basket {
	b := basket.Basket{
		ID:       "bk_1",
		OwnerID:  "user-1",
		Currency: "gbp",
		Items: []basket.Item{
			{ItemID: "crs_1", Kind: catalog.KindStudio, Name: "Salsa Beginners", Price: 5000, FullPrice: 5000},
		},
	}
	b.Recompute()
	return b
}

func newMachine(gateway payment.Provider, placer OrderPlacer) *Machine {
	return NewMachine(MachineConfig{
		Gateway:  gateway,
		Placer:   placer,
		UserID:   "user-1",
		Currency: "gbp",
		Logger:   zerolog.Nop(),
	})
}

func loadedMachine(t *testing.T, gateway payment.Provider, placer OrderPlacer) *Machine {
	t.Helper()
	m := newMachine(gateway, placer)
	state := m.Initialize(context.Background(), testBasket())
	if state.Phase != PhaseLoaded {
		t.Fatalf("expected loaded, got %+v", state)
	}
	return m
}

func TestInitializeEmptyBasketIsHardPrecondition(t *testing.T) {
	gateway := &scriptedGateway{}
	m := newMachine(gateway, &stubPlacer{})

	var empty basket.Basket
	state := m.Initialize(context.Background(), empty)
	if state.Phase != PhaseError {
		t.Fatalf("expected error phase, got %s", state.Phase)
	}
	if state.Message != "Basket is empty" {
		t.Fatalf("unexpected message %q", state.Message)
	}
}

func TestInitializeLoadsPaymentMethods(t *testing.T) {
	gateway := &scriptedGateway{methods: []payment.Method{{ID: "pm_1", Type: "card"}}}
	m := newMachine(gateway, &stubPlacer{})

	state := m.Initialize(context.Background(), testBasket())
	if state.Phase != PhaseLoaded {
		t.Fatalf("expected loaded, got %+v", state)
	}
	if state.Session.Step != 1 {
		t.Fatalf("expected step 1, got %d", state.Session.Step)
	}
	if len(state.Session.AvailableMethods) != 1 {
		t.Fatalf("expected one method, got %d", len(state.Session.AvailableMethods))
	}
}

func TestInitializeGatewayFailureIsWrapped(t *testing.T) {
	gateway := &scriptedGateway{listErr: errors.New("connection reset")}
	m := newMachine(gateway, &stubPlacer{})

	state := m.Initialize(context.Background(), testBasket())
	if state.Phase != PhaseError {
		t.Fatalf("expected error phase, got %s", state.Phase)
	}
	if state.Message != "Unable to load payment methods" {
		t.Fatalf("raw error leaked: %q", state.Message)
	}
}

func TestStepClamping(t *testing.T) {
	m := loadedMachine(t, &scriptedGateway{}, &stubPlacer{})

	if state := m.PreviousStep(); state.Session.Step != 1 {
		t.Fatalf("previous below lower bound moved step to %d", state.Session.Step)
	}
	for i := 0; i < 10; i++ {
		m.NextStep()
	}
	if state := m.State(); state.Session.Step != 4 {
		t.Fatalf("next above upper bound moved step to %d", state.Session.Step)
	}
	if state := m.PreviousStep(); state.Session.Step != 3 {
		t.Fatalf("expected step 3, got %d", state.Session.Step)
	}
}

func TestSelectPaymentMethod(t *testing.T) {
	m := loadedMachine(t, &scriptedGateway{methods: []payment.Method{{ID: "pm_1"}}}, &stubPlacer{})
	state := m.SelectPaymentMethod("pm_1")
	if state.Session.SelectedMethod != "pm_1" {
		t.Fatalf("unexpected selection %q", state.Session.SelectedMethod)
	}
	if state.Phase != PhaseLoaded {
		t.Fatalf("selection must not change phase, got %s", state.Phase)
	}
}

func TestCreateCardAppendsMethod(t *testing.T) {
	m := loadedMachine(t, &scriptedGateway{methods: []payment.Method{{ID: "pm_1"}}}, &stubPlacer{})
	ok := m.CreatePaymentMethodFromCard(context.Background(), payment.Card{Number: "4242424242424242"}, payment.BillingDetails{Name: "Dana"}, false)
	if !ok {
		t.Fatal("expected create to succeed")
	}
	state := m.State()
	if len(state.Session.AvailableMethods) != 2 {
		t.Fatalf("expected method appended, got %d", len(state.Session.AvailableMethods))
	}
}

func TestCreateCardGatewayRejection(t *testing.T) {
	gateway := &scriptedGateway{createErr: errors.New("invalid card number")}
	m := loadedMachine(t, gateway, &stubPlacer{})
	ok := m.CreatePaymentMethodFromCard(context.Background(), payment.Card{Number: "1"}, payment.BillingDetails{}, false)
	if ok {
		t.Fatal("expected create to fail")
	}
	if state := m.State(); state.Phase != PhaseError {
		t.Fatalf("expected error phase, got %s", state.Phase)
	}
}

func TestProcessPaymentImmediateSuccess(t *testing.T) {
	gateway := &scriptedGateway{confirm: payment.ConfirmResult{Status: payment.StatusSucceeded, PaymentID: "pi_1"}}
	placer := &stubPlacer{}
	m := loadedMachine(t, gateway, placer)

	if !m.ProcessPayment(context.Background(), "pm_1", "card") {
		t.Fatal("expected payment to succeed")
	}
	state := m.State()
	if state.Phase != PhaseSuccess || state.Order == nil {
		t.Fatalf("expected success with order, got %+v", state)
	}
	if state.Order.PaymentRef != "pi_1" {
		t.Fatalf("unexpected payment ref %q", state.Order.PaymentRef)
	}
	if len(placer.placed) != 1 {
		t.Fatalf("expected one order placed, got %d", len(placer.placed))
	}
}

func TestProcessPaymentEmptyBasketNeverCallsGateway(t *testing.T) {
	gateway := &scriptedGateway{confirm: payment.ConfirmResult{Status: payment.StatusSucceeded}}
	m := loadedMachine(t, gateway, &stubPlacer{})

	// basket cleared by another flow after checkout started
	m.mu.Lock()
	m.state.Session.Basket.Items = nil
	m.mu.Unlock()

	if m.ProcessPayment(context.Background(), "pm_1", "card") {
		t.Fatal("expected payment to fail")
	}
	state := m.State()
	if state.Phase != PhaseError || state.Message != "Basket is empty" {
		t.Fatalf("expected empty basket error, got %+v", state)
	}
	if gateway.confirmHits.Load() != 0 {
		t.Fatal("gateway must not be called with an empty basket")
	}
}

func TestProcessPaymentRequiresAction(t *testing.T) {
	gateway := &scriptedGateway{confirm: payment.ConfirmResult{Status: payment.StatusRequiresAction, ClientSecret: "pi_1_secret_x"}}
	m := loadedMachine(t, gateway, &stubPlacer{})

	if !m.ProcessPayment(context.Background(), "pm_1", "card") {
		t.Fatal("requires_action should return true")
	}
	state := m.State()
	if state.Phase != PhaseLoaded {
		t.Fatalf("expected loaded, got %s", state.Phase)
	}
	if state.Session.ClientSecret != "pi_1_secret_x" || !state.Session.Processing {
		t.Fatalf("unexpected session: %+v", state.Session)
	}
	if state.Session.Step != 3 {
		t.Fatalf("expected step 3, got %d", state.Session.Step)
	}
}

func TestProcessPaymentDeclined(t *testing.T) {
	gateway := &scriptedGateway{confirm: payment.ConfirmResult{Status: payment.StatusFailed, ErrorCode: common.CodeCardDeclined, Message: "Your card was declined."}}
	m := loadedMachine(t, gateway, &stubPlacer{})

	if m.ProcessPayment(context.Background(), "pm_1", "card") {
		t.Fatal("declined payment should return false")
	}
	state := m.State()
	if state.Phase != PhaseError || state.ErrorCode != common.CodeCardDeclined {
		t.Fatalf("expected decline error, got %+v", state)
	}
}

func TestHandle3DSMismatchedSecret(t *testing.T) {
	gateway := &scriptedGateway{confirm: payment.ConfirmResult{Status: payment.StatusRequiresAction, ClientSecret: "pi_1_secret_x"}}
	m := loadedMachine(t, gateway, &stubPlacer{})
	m.ProcessPayment(context.Background(), "pm_1", "card")

	if m.Handle3DSAuthentication(context.Background(), "pi_other_secret") {
		t.Fatal("expected mismatched secret to fail")
	}
	state := m.State()
	if state.Phase != PhaseError || state.Message != "Invalid authentication state" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestHandle3DSAuthenticated(t *testing.T) {
	gateway := &scriptedGateway{
		confirm:    payment.ConfirmResult{Status: payment.StatusRequiresAction, ClientSecret: "pi_1_secret_x"},
		nextAction: payment.ConfirmResult{Status: payment.StatusSucceeded, PaymentID: "pi_1"},
	}
	placer := &stubPlacer{}
	m := loadedMachine(t, gateway, placer)
	m.ProcessPayment(context.Background(), "pm_1", "card")

	if !m.Handle3DSAuthentication(context.Background(), "pi_1_secret_x") {
		t.Fatal("expected 3DS completion to succeed")
	}
	state := m.State()
	if state.Phase != PhaseSuccess || state.Order == nil {
		t.Fatalf("expected success, got %+v", state)
	}
	if len(placer.placed) != 1 {
		t.Fatalf("expected one order, got %d", len(placer.placed))
	}
}

func TestHandle3DSGatewayFailure(t *testing.T) {
	gateway := &scriptedGateway{
		confirm:    payment.ConfirmResult{Status: payment.StatusRequiresAction, ClientSecret: "pi_1_secret_x"},
		nextAction: payment.ConfirmResult{Status: payment.StatusFailed, ErrorCode: "AUTHENTICATION_FAILED"},
	}
	m := loadedMachine(t, gateway, &stubPlacer{})
	m.ProcessPayment(context.Background(), "pm_1", "card")

	if m.Handle3DSAuthentication(context.Background(), "pi_1_secret_x") {
		t.Fatal("expected 3DS failure")
	}
	state := m.State()
	if state.Phase != PhaseError || state.ErrorCode != "AUTHENTICATION_FAILED" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestHandle3DSCancellationIsNotAnError(t *testing.T) {
	gateway := &scriptedGateway{
		confirm:    payment.ConfirmResult{Status: payment.StatusRequiresAction, ClientSecret: "pi_1_secret_x"},
		nextAction: payment.ConfirmResult{Status: payment.StatusCanceled},
	}
	m := loadedMachine(t, gateway, &stubPlacer{})
	m.ProcessPayment(context.Background(), "pm_1", "card")
	stepBefore := m.State().Session.Step

	if m.Handle3DSAuthentication(context.Background(), "pi_1_secret_x") {
		t.Fatal("cancellation returns false")
	}
	state := m.State()
	if state.Phase != PhaseLoaded {
		t.Fatalf("cancellation must return to loaded, got %s", state.Phase)
	}
	if state.ErrorCode != "" {
		t.Fatalf("cancellation must not set an error code, got %q", state.ErrorCode)
	}
	if state.Session.ClientSecret != "" || state.Session.Processing {
		t.Fatalf("session not cleaned up: %+v", state.Session)
	}
	if state.Session.Step != stepBefore {
		t.Fatalf("cancellation changed step: %d -> %d", stepBefore, state.Session.Step)
	}
}

func TestPlaceOrderFailureSurfacesError(t *testing.T) {
	gateway := &scriptedGateway{confirm: payment.ConfirmResult{Status: payment.StatusSucceeded, PaymentID: "pi_1"}}
	m := loadedMachine(t, gateway, &stubPlacer{err: errors.New("db down")})

	if m.ProcessPayment(context.Background(), "pm_1", "card") {
		t.Fatal("expected failure when order cannot be recorded")
	}
	if state := m.State(); state.Phase != PhaseError {
		t.Fatalf("expected error phase, got %s", state.Phase)
	}
}

func TestResetFromAnyState(t *testing.T) {
	gateway := &scriptedGateway{confirm: payment.ConfirmResult{Status: payment.StatusFailed}}
	m := loadedMachine(t, gateway, &stubPlacer{})
	m.ProcessPayment(context.Background(), "pm_1", "card")

	state := m.Reset()
	if state.Phase != PhaseInitial || state.Session != nil || state.ErrorCode != "" {
		t.Fatalf("expected pristine initial state, got %+v", state)
	}
}
