package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/events"
)

// Notifier is invoked after an order is recorded, outside the write path.
// The asynq email enqueuer satisfies this.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o Order) error
}

// Service records orders from successful payment confirmations.
type Service struct {
	Store    Store
	Events   *events.Bus
	Notifier Notifier
	Logger   zerolog.Logger
}

// PlaceOrder snapshots the basket into an immutable order. Event emission
// and notification failures are logged, never returned: the payment has
// already been taken, so the order must stand.
func (s *Service) PlaceOrder(ctx context.Context, userID string, b basket.Basket, paymentRef string) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order: service not configured")
	}
	if b.IsEmpty() {
		return Order{}, errors.New("order: basket is empty")
	}

	lines := make([]Line, 0, len(b.Items))
	for _, it := range b.Items {
		lines = append(lines, Line{
			ItemID:     it.ItemID,
			Kind:       string(it.Kind),
			Name:       it.Name,
			Price:      it.Price,
			FullPrice:  it.FullPrice,
			Taster:     it.Taster,
			PayDeposit: it.PayDeposit,
			AssignTo:   it.AssignTo,
			ChargeFrom: it.ChargeFrom,
		})
	}

	placed, err := s.Store.Insert(ctx, Order{
		UserID:      userID,
		Status:      StatusPaid,
		Currency:    b.Currency,
		ChargeTotal: b.Totals.ChargeTotal,
		PayLater:    b.Totals.PayLater,
		PromoCode:   b.PromoCode,
		PaymentRef:  paymentRef,
		Lines:       lines,
	})
	if err != nil {
		return Order{}, err
	}

	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, placed.ID.String(), placed); err != nil {
			s.Logger.Error().Err(err).Str("orderId", placed.ID.String()).Msg("order_event_emit_failed")
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.OrderConfirmed(ctx, placed); err != nil {
			s.Logger.Error().Err(err).Str("orderId", placed.ID.String()).Msg("order_confirmation_enqueue_failed")
		}
	}
	return placed, nil
}

// Get returns one of the user's orders.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order: service not configured")
	}
	return s.Store.Get(ctx, userID, id)
}

// List returns the user's order history.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("order: service not configured")
	}
	return s.Store.ListByUser(ctx, userID, limit, offset)
}
