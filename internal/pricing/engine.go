package pricing

// Money represents a monetary value stored in minor units (pence).
type Money = int64

// Line describes a single basket line used for totals calculation. Price is
// the amount charged now; when Deposit is set, Price holds the deposit amount
// and FullPrice the undiscounted full course price, the difference being
// deferred.
type Line struct {
	Price         Money
	FullPrice     Money
	Discount      Money
	PromoDiscount Money
	Deposit       bool
}

// Fee describes a named charge attached to the basket. Optional fees count
// towards the total only when explicitly included by the caller.
type Fee struct {
	Value    Money
	Optional bool
	Included bool
}

// Summary aggregates every derived basket total.
type Summary struct {
	SubTotal      Money
	DiscountTotal Money
	PromoDiscount Money
	FeeTotal      Money
	CreditTotal   Money
	Total         Money
	ChargeTotal   Money
	PayLater      Money
}

// LineTotal returns the effective price of a single line after item-level
// discounts. Never negative.
func LineTotal(l Line) Money {
	total := l.Price - l.Discount - l.PromoDiscount
	if total < 0 {
		total = 0
	}
	return total
}

// Compute calculates basket totals. Discounts apply in a fixed order:
// item-level discounts (already folded into each LineTotal), then the
// basket-level discount and promo value, then credit last against the
// post-promo total. Credit is capped at the total so the charge amount can
// never go negative.
func Compute(lines []Line, fees []Fee, discount, promo, credit Money, useCredit bool) Summary {
	var subTotal Money
	var payLater Money
	for _, l := range lines {
		subTotal += LineTotal(l)
		if l.Deposit && l.FullPrice > l.Price {
			payLater += l.FullPrice - l.Price
		}
	}

	var feeTotal Money
	for _, f := range fees {
		if f.Value <= 0 {
			continue
		}
		if f.Optional && !f.Included {
			continue
		}
		feeTotal += f.Value
	}

	if discount < 0 {
		discount = 0
	}
	if promo < 0 {
		promo = 0
	}

	total := subTotal + feeTotal - discount - promo
	if total < 0 {
		total = 0
	}

	var creditApplied Money
	if useCredit && credit > 0 {
		creditApplied = credit
		if creditApplied > total {
			creditApplied = total
		}
	}

	charge := total - creditApplied
	if charge < 0 {
		charge = 0
	}

	return Summary{
		SubTotal:      subTotal,
		DiscountTotal: discount,
		PromoDiscount: promo,
		FeeTotal:      feeTotal,
		CreditTotal:   creditApplied,
		Total:         total,
		ChargeTotal:   charge,
		PayLater:      payLater,
	}
}
