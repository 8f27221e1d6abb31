package basket

import (
	"time"

	"github.com/noah-isme/backend-dansa/internal/catalog"
	"github.com/noah-isme/backend-dansa/internal/pricing"
)

// Item is one purchasable unit in the basket. Price is the amount charged
// now; for deposit bookings FullPrice keeps the undiscounted course price so
// the deferred remainder can be derived. TotalPrice is recomputed on every
// mutation, never read back stale.
type Item struct {
	ItemID        string         `json:"itemId"`
	Kind          catalog.Kind   `json:"kind"`
	Name          string         `json:"name"`
	Price         pricing.Money  `json:"price"`
	FullPrice     pricing.Money  `json:"fullPrice"`
	Discount      pricing.Money  `json:"discountValue"`
	PromoDiscount pricing.Money  `json:"promoCodeDiscountValue"`
	TotalPrice    pricing.Money  `json:"totalPrice"`
	Taster        bool           `json:"isTaster"`
	PayDeposit    bool           `json:"payDeposit"`
	AssignTo      string         `json:"assignToUserId,omitempty"`
	ChargeFrom    string         `json:"chargeFromDate,omitempty"`
}

// Credit is a named credit contributing to the basket's credit total. It is
// read-only once issued; whether it is spent is the basket-level UseCredit
// toggle, not a mutation of the credit itself.
type Credit struct {
	Name  string        `json:"name"`
	Value pricing.Money `json:"value"`
}

// Fee is a named charge. Optional fees count only when explicitly included.
type Fee struct {
	Name     string        `json:"name"`
	Value    pricing.Money `json:"value"`
	Optional bool          `json:"optional"`
	Included bool          `json:"included"`
}

// Basket holds one session's items, fees and credits plus derived totals.
type Basket struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"ownerId"`
	Items         []Item        `json:"items"`
	Credits       []Credit      `json:"credits"`
	Fees          []Fee         `json:"fees"`
	PromoCode     string        `json:"promoCode,omitempty"`
	PromoDiscount pricing.Money `json:"promoCodeDiscountValue"`
	UseCredit     bool          `json:"useCredit"`
	Currency      string        `json:"currency"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`

	Totals pricing.Summary `json:"totals"`
}

// OperationResult is the outcome of every mutating basket operation. It
// always carries a basket snapshot so the caller has something to render
// even on failure.
type OperationResult struct {
	Success   bool   `json:"success"`
	Basket    Basket `json:"basket"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// IsEmpty reports whether the basket holds no items.
func (b *Basket) IsEmpty() bool { return len(b.Items) == 0 }

// FindItem returns the index of the item with the given id and kind, or -1.
func (b *Basket) FindItem(itemID string, kind catalog.Kind) int {
	for i, it := range b.Items {
		if it.ItemID == itemID && it.Kind == kind {
			return i
		}
	}
	return -1
}

// CreditAvailable sums the basket's issued credits.
func (b *Basket) CreditAvailable() pricing.Money {
	var total pricing.Money
	for _, c := range b.Credits {
		total += c.Value
	}
	return total
}

// Recompute rebuilds every derived total from current membership and
// discount state. Called after each mutation so totals are never stale.
func (b *Basket) Recompute() {
	lines := make([]pricing.Line, 0, len(b.Items))
	for i := range b.Items {
		it := &b.Items[i]
		it.TotalPrice = pricing.LineTotal(pricing.Line{
			Price:         it.Price,
			Discount:      it.Discount,
			PromoDiscount: it.PromoDiscount,
		})
		lines = append(lines, pricing.Line{
			Price:         it.Price,
			FullPrice:     it.FullPrice,
			Discount:      it.Discount,
			PromoDiscount: it.PromoDiscount,
			Deposit:       it.PayDeposit,
		})
	}
	fees := make([]pricing.Fee, 0, len(b.Fees))
	for _, f := range b.Fees {
		fees = append(fees, pricing.Fee{Value: f.Value, Optional: f.Optional, Included: f.Included})
	}
	b.Totals = pricing.Compute(lines, fees, 0, b.PromoDiscount, b.CreditAvailable(), b.UseCredit)
}
