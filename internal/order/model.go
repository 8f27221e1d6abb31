package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-dansa/internal/pricing"
)

// Orders are created only from a successful payment confirmation and are
// immutable afterwards, so PAID is the only status written.
const StatusPaid = "PAID"

// Line is the immutable snapshot of one basket item at checkout.
type Line struct {
	ItemID     string        `json:"itemId"`
	Kind       string        `json:"kind"`
	Name       string        `json:"name"`
	Price      pricing.Money `json:"price"`
	FullPrice  pricing.Money `json:"fullPrice"`
	Taster     bool          `json:"isTaster"`
	PayDeposit bool          `json:"payDeposit"`
	AssignTo   string        `json:"assignToUserId,omitempty"`
	ChargeFrom string        `json:"chargeFromDate,omitempty"`
}

// Order is the terminal artifact of a successful checkout.
type Order struct {
	ID          uuid.UUID     `json:"id"`
	UserID      string        `json:"userId"`
	Status      string        `json:"status"`
	Currency    string        `json:"currency"`
	ChargeTotal pricing.Money `json:"chargeTotal"`
	PayLater    pricing.Money `json:"payLater"`
	PromoCode   string        `json:"promoCode,omitempty"`
	PaymentRef  string        `json:"paymentRef"`
	Lines       []Line        `json:"lines"`
	CreatedAt   time.Time     `json:"createdAt"`
}
