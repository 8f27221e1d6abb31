package payment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// CustomerStore persists the gateway customer reference for a user. An
// empty id means the user has not been provisioned yet.
type CustomerStore interface {
	PaymentCustomerID(ctx context.Context, userID string) (string, error)
	SetPaymentCustomerID(ctx context.Context, userID, customerID string) error
}

// CustomerDirectory supplies the email to register new gateway customers
// under. It may return "" when the user has no usable address.
type CustomerDirectory interface {
	EmailForUser(ctx context.Context, userID string) (string, error)
}

// CustomerCreator provisions a customer at the gateway.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
}

// Customers resolves the gateway customer for a user, provisioning one
// lazily on first checkout. Guests resolve to "" so customer-scoped
// gateway calls are skipped for them.
type Customers struct {
	Store   CustomerStore
	Gateway CustomerCreator
	Users   CustomerDirectory
	Logger  zerolog.Logger
}

// Resolve returns the stored customer id, creating and persisting one when
// the user has none. A failed persist still returns the fresh id so the
// payment can proceed; the mapping is retried on the next checkout.
func (c *Customers) Resolve(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	if c == nil || c.Store == nil || c.Gateway == nil {
		return "", nil
	}
	id, err := c.Store.PaymentCustomerID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("payment: look up customer: %w", err)
	}
	if id != "" {
		return id, nil
	}
	email := ""
	if c.Users != nil {
		email, err = c.Users.EmailForUser(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("payment: resolve customer email: %w", err)
		}
	}
	id, err = c.Gateway.CreateCustomer(ctx, email, userID)
	if err != nil {
		return "", fmt.Errorf("payment: create customer: %w", err)
	}
	if err := c.Store.SetPaymentCustomerID(ctx, userID, id); err != nil {
		c.Logger.Warn().Err(err).Str("user", userID).Msg("payment_customer_persist_failed")
	}
	return id, nil
}
