package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StubConfig scripts a StubProvider. Each scenario constructs its own; there
// is no process-global switch to flip.
type StubConfig struct {
	Methods []Method
	// Confirm decides the outcome per confirmation. Nil means always succeed.
	Confirm func(req ConfirmRequest) ConfirmResult
	// NextAction decides the 3DS completion outcome keyed by client secret.
	NextAction func(clientSecret string) ConfirmResult
	// Err, when set, is returned by every call.
	Err error
}

// StubProvider is an in-memory Provider for development and tests.
type StubProvider struct {
	Config StubConfig

	mu      sync.Mutex
	created []Method
}

var _ Provider = (*StubProvider)(nil)

func (s *StubProvider) Name() string { return "stub" }

func (s *StubProvider) CreatePaymentMethod(_ context.Context, req CreateMethodRequest) (Method, error) {
	if s.Config.Err != nil {
		return Method{}, s.Config.Err
	}
	last4 := req.Card.Number
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	m := Method{
		ID:       "pm_" + uuid.NewString(),
		Type:     "card",
		Brand:    "visa",
		Last4:    last4,
		ExpMonth: req.Card.ExpMonth,
		ExpYear:  req.Card.ExpYear,
		Default:  req.SetAsDefault,
	}
	s.mu.Lock()
	s.created = append(s.created, m)
	s.mu.Unlock()
	return m, nil
}

func (s *StubProvider) ListPaymentMethods(_ context.Context, _ string) ([]Method, error) {
	if s.Config.Err != nil {
		return nil, s.Config.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Method, 0, len(s.Config.Methods)+len(s.created))
	out = append(out, s.Config.Methods...)
	out = append(out, s.created...)
	return out, nil
}

func (s *StubProvider) ConfirmPayment(_ context.Context, req ConfirmRequest) (ConfirmResult, error) {
	if s.Config.Err != nil {
		return ConfirmResult{}, s.Config.Err
	}
	if s.Config.Confirm != nil {
		return s.Config.Confirm(req), nil
	}
	return ConfirmResult{Status: StatusSucceeded, PaymentID: fmt.Sprintf("pi_%s", uuid.NewString())}, nil
}

func (s *StubProvider) HandleNextAction(_ context.Context, clientSecret string) (ConfirmResult, error) {
	if s.Config.Err != nil {
		return ConfirmResult{}, s.Config.Err
	}
	if s.Config.NextAction != nil {
		return s.Config.NextAction(clientSecret), nil
	}
	return ConfirmResult{Status: StatusSucceeded, ClientSecret: clientSecret}, nil
}
