package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/order"
)

// Enqueuer publishes order confirmation tasks. It satisfies order.Notifier so
// the order service never talks to asynq directly.
type Enqueuer struct {
	Client *asynq.Client
	Logger zerolog.Logger
}

// OrderConfirmed enqueues a confirmation email for the placed order.
func (e *Enqueuer) OrderConfirmed(ctx context.Context, o order.Order) error {
	if e == nil || e.Client == nil {
		return errors.New("notify: enqueuer not configured")
	}
	task, err := NewOrderConfirmationTask(OrderConfirmationPayload{
		OrderID:     o.ID.String(),
		UserID:      o.UserID,
		ChargeTotal: o.ChargeTotal,
		PayLater:    o.PayLater,
		Currency:    o.Currency,
	})
	if err != nil {
		return err
	}
	info, err := e.Client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("notify: enqueue order confirmation: %w", err)
	}
	e.Logger.Debug().Str("taskId", info.ID).Str("orderId", o.ID.String()).Msg("order_confirmation_enqueued")
	return nil
}
