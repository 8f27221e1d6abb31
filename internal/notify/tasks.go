// Package notify turns domain outcomes into emails. Order confirmations go
// through an asynq queue so a slow mail provider never blocks the request
// path; event-driven emails fan out from the event bus directly.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-dansa/internal/pricing"
)

const TaskOrderConfirmation = "email:order_confirmation"

// OrderConfirmationPayload is the task body for a confirmation email. The
// recipient address is resolved by the worker at delivery time so a user who
// changes their email between checkout and delivery still gets the message.
type OrderConfirmationPayload struct {
	OrderID     string        `json:"orderId"`
	UserID      string        `json:"userId"`
	ChargeTotal pricing.Money `json:"chargeTotal"`
	PayLater    pricing.Money `json:"payLater"`
	Currency    string        `json:"currency"`
}

// NewOrderConfirmationTask builds the asynq task for the given payload.
func NewOrderConfirmationTask(p OrderConfirmationPayload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode order confirmation: %w", err)
	}
	return asynq.NewTask(TaskOrderConfirmation, body, asynq.MaxRetry(5)), nil
}
