package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/common"
)

// Directory resolves a user's current email address.
type Directory interface {
	EmailForUser(ctx context.Context, userID string) (string, error)
}

// Worker handles queued email tasks.
type Worker struct {
	Email  common.EmailSender
	Users  Directory
	Logger zerolog.Logger
}

// Mux registers the worker's task handlers.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskOrderConfirmation, w.HandleOrderConfirmation)
	return mux
}

// HandleOrderConfirmation sends the confirmation email for one order.
func (w *Worker) HandleOrderConfirmation(ctx context.Context, task *asynq.Task) error {
	var p OrderConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("notify: decode order confirmation: %w", err)
	}
	to, err := w.Users.EmailForUser(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("notify: resolve recipient for user %s: %w", p.UserID, err)
	}
	if to == "" {
		// the account was deleted between checkout and delivery
		w.Logger.Warn().Str("orderId", p.OrderID).Msg("order_confirmation_no_recipient")
		return nil
	}
	if err := w.Email.Send(to, orderConfirmationSubject, orderConfirmationBody(p)); err != nil {
		return fmt.Errorf("notify: send order confirmation: %w", err)
	}
	w.Logger.Info().Str("orderId", p.OrderID).Msg("order_confirmation_sent")
	return nil
}

const orderConfirmationSubject = "Your booking is confirmed"

func orderConfirmationBody(p OrderConfirmationPayload) string {
	body := fmt.Sprintf("<p>Thanks for booking with us!</p><p>Order reference: %s</p><p>Paid today: %s</p>",
		p.OrderID, formatAmount(p.ChargeTotal, p.Currency))
	if p.PayLater > 0 {
		body += fmt.Sprintf("<p>Remaining balance due at the studio: %s</p>", formatAmount(p.PayLater, p.Currency))
	}
	return body
}

func formatAmount(pence int64, currency string) string {
	symbol := "£"
	if currency != "" && currency != "gbp" {
		symbol = currency + " "
	}
	return fmt.Sprintf("%s%d.%02d", symbol, pence/100, pence%100)
}
