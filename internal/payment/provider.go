package payment

import (
	"context"

	"github.com/noah-isme/backend-dansa/internal/pricing"
)

// Status is the normalised outcome of a gateway operation.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusRequiresAction Status = "requires_action"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
)

// Card carries raw card details entered at checkout. They are forwarded to
// the gateway and never persisted.
type Card struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
}

// Address is the billing address attached to a payment method.
type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

// BillingDetails identify the payer.
type BillingDetails struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Address Address `json:"address"`
}

// Method is a stored payment method usable at checkout.
type Method struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"expMonth,omitempty"`
	ExpYear  int    `json:"expYear,omitempty"`
	Default  bool   `json:"default"`
}

// CreateMethodRequest opens a new payment method with the gateway.
type CreateMethodRequest struct {
	CustomerID   string
	Card         Card
	Billing      BillingDetails
	SetAsDefault bool
}

// ConfirmRequest asks the gateway to charge a method.
type ConfirmRequest struct {
	CustomerID     string
	MethodID       string
	MethodType     string
	Amount         pricing.Money
	Currency       string
	Reference      string
	IdempotencyKey string
}

// ConfirmResult is the gateway's answer to a confirmation or 3DS completion.
// ClientSecret is set only when Status is requires_action; ErrorCode carries
// the decline reason when Status is failed.
type ConfirmResult struct {
	Status       Status
	PaymentID    string
	ClientSecret string
	ErrorCode    string
	Message      string
}

// Provider abstracts the card gateway. Every operation returns a normalised
// result; errors are reserved for transport problems, declines travel in the
// result's Status and ErrorCode.
type Provider interface {
	Name() string
	CreatePaymentMethod(ctx context.Context, req CreateMethodRequest) (Method, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]Method, error)
	ConfirmPayment(ctx context.Context, req ConfirmRequest) (ConfirmResult, error)
	HandleNextAction(ctx context.Context, clientSecret string) (ConfirmResult, error)
}
