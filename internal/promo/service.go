// Package promo applies promo codes and credit toggles against a basket.
// Code validation and discount pricing are the catalog's job; this engine
// trusts the returned values and only applies them, in a fixed precedence:
// item discounts first, then the basket-level promo value, then credit last
// against the post-promo total.
package promo

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/catalog"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/obs"
)

const creditName = "Account credit"

// Service drives promo and credit mutations through the basket service so
// they share the per-basket lock with add/remove.
type Service struct {
	Baskets *basket.Service
	Catalog catalog.Client
	Logger  zerolog.Logger
}

// ApplyCode validates the code upstream and applies the returned basket-level
// discount. Unknown or malformed codes leave the basket unchanged and report
// INVALID_PROMO on the result.
func (s *Service) ApplyCode(ctx context.Context, ownerID, code string) (basket.OperationResult, error) {
	if s == nil || s.Baskets == nil || s.Catalog == nil {
		return basket.OperationResult{}, errors.New("promo: service not configured")
	}
	code = strings.TrimSpace(code)
	return s.Baskets.Mutate(ctx, ownerID, func(b *basket.Basket) (basket.OperationResult, error) {
		if code == "" {
			obs.ObservePromoApply("invalid")
			return basket.OperationResult{Success: false, Message: "promo code is not valid", ErrorCode: common.CodeInvalidPromo}, nil
		}
		itemIDs := make([]string, 0, len(b.Items))
		for _, it := range b.Items {
			itemIDs = append(itemIDs, it.ItemID)
		}
		quote, err := s.Catalog.ValidatePromo(ctx, code, itemIDs)
		if err != nil {
			if errors.Is(err, catalog.ErrInvalidPromo) {
				obs.ObservePromoApply("invalid")
				return basket.OperationResult{Success: false, Message: "promo code is not valid", ErrorCode: common.CodeInvalidPromo}, nil
			}
			obs.ObservePromoApply("error")
			s.Logger.Error().Err(err).Str("code", code).Msg("promo_validate_failed")
			return basket.OperationResult{Success: false, Message: "unable to apply promo code right now", ErrorCode: common.CodeInternal}, nil
		}

		b.PromoCode = quote.Code
		b.PromoDiscount = quote.Discount
		obs.ObservePromoApply("ok")
		return basket.OperationResult{Success: true, Message: "promo code applied"}, nil
	})
}

// RemoveCode zeroes the promo value and recomputes totals. Applying then
// removing a code leaves totals identical to never having applied it.
func (s *Service) RemoveCode(ctx context.Context, ownerID string) (basket.OperationResult, error) {
	if s == nil || s.Baskets == nil {
		return basket.OperationResult{}, errors.New("promo: service not configured")
	}
	return s.Baskets.Mutate(ctx, ownerID, func(b *basket.Basket) (basket.OperationResult, error) {
		b.PromoCode = ""
		b.PromoDiscount = 0
		return basket.OperationResult{Success: true, Message: "promo code removed"}, nil
	})
}

// UseCredit toggles spending the account's credit balance against the basket.
// The applied amount is capped at the basket total; partial application is
// fine, a negative charge never is.
func (s *Service) UseCredit(ctx context.Context, ownerID string, use bool) (basket.OperationResult, error) {
	if s == nil || s.Baskets == nil || s.Catalog == nil {
		return basket.OperationResult{}, errors.New("promo: service not configured")
	}
	return s.Baskets.Mutate(ctx, ownerID, func(b *basket.Basket) (basket.OperationResult, error) {
		if !use {
			b.UseCredit = false
			b.Credits = nil
			return basket.OperationResult{Success: true, Message: "credit removed"}, nil
		}

		userID, ok := common.UserID(ctx)
		if !ok {
			return basket.OperationResult{Success: false, Message: "sign in to use credit", ErrorCode: common.CodeUnauthorized}, nil
		}
		balance, err := s.Catalog.CreditBalance(ctx, userID)
		if err != nil {
			s.Logger.Error().Err(err).Str("userId", userID).Msg("credit_balance_failed")
			return basket.OperationResult{Success: false, Message: "unable to check credit right now", ErrorCode: common.CodeInternal}, nil
		}
		if balance <= 0 {
			return basket.OperationResult{Success: false, Message: "no credit available", ErrorCode: common.CodeBadRequest}, nil
		}

		b.UseCredit = true
		b.Credits = []basket.Credit{{Name: creditName, Value: balance}}
		return basket.OperationResult{Success: true, Message: "credit applied"}, nil
	})
}
