package basket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/catalog"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/lock"
	"github.com/noah-isme/backend-dansa/internal/obs"
	"github.com/noah-isme/backend-dansa/internal/pricing"
)

const registrationFeeName = "Registration fee"

// Service owns basket mutations. Every read-modify-write runs under a
// per-basket Redis lock so overlapping requests against the same basket are
// serialised rather than lost.
type Service struct {
	Store           Store
	Catalog         catalog.Client
	Locker          lock.Locker
	LockTTL         time.Duration
	RegistrationFee pricing.Money
	Currency        string
	Logger          zerolog.Logger
	Now             func() time.Time
}

// AddItemInput carries the caller's intent for one new basket line.
type AddItemInput struct {
	ItemID     string
	Kind       catalog.Kind
	Taster     bool
	PayDeposit bool
	AssignTo   string
	ChargeFrom string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}

func (s *Service) newBasket(ownerID string) Basket {
	now := s.now()
	b := Basket{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Items:     []Item{},
		Credits:   []Credit{},
		Fees:      []Fee{},
		Currency:  s.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.Recompute()
	return b
}

// Get loads the owner's basket, creating an empty one when none exists.
func (s *Service) Get(ctx context.Context, ownerID string) (Basket, error) {
	if s == nil {
		return Basket{}, errors.New("basket: service not configured")
	}
	b, err := s.Store.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.newBasket(ownerID), nil
		}
		return Basket{}, err
	}
	b.Recompute()
	return b, nil
}

// Mutate serialises a read-modify-write of the owner's basket through the
// per-basket lock. fn mutates the basket in place and returns the result to
// report; the basket is recomputed and saved afterwards when the result is a
// success. The promo engine drives its basket updates through here too so
// every mutation path shares the same lock.
func (s *Service) Mutate(ctx context.Context, ownerID string, fn func(b *Basket) (OperationResult, error)) (OperationResult, error) {
	var result OperationResult
	err := s.Locker.WithLock(ctx, "basket:lock:"+ownerID, s.lockTTL(), func(ctx context.Context) error {
		b, err := s.Get(ctx, ownerID)
		if err != nil {
			return err
		}
		res, err := fn(&b)
		if err != nil {
			return err
		}
		b.Recompute()
		if res.Success {
			b.UpdatedAt = s.now()
			if err := s.Store.Save(ctx, b); err != nil {
				return err
			}
		}
		res.Basket = b
		result = res
		return nil
	})
	if err != nil {
		return OperationResult{}, err
	}
	return result, nil
}

// AddItem resolves the unit through the catalog and appends it. Capacity and
// pricing come from the catalog answer; its error codes pass through on the
// result rather than surfacing as transport failures.
func (s *Service) AddItem(ctx context.Context, ownerID string, in AddItemInput) (OperationResult, error) {
	if s == nil || s.Catalog == nil {
		return OperationResult{}, errors.New("basket: service not configured")
	}
	return s.Mutate(ctx, ownerID, func(b *Basket) (OperationResult, error) {
		if b.FindItem(in.ItemID, in.Kind) >= 0 {
			obs.ObserveBasketOp("add", "duplicate")
			return OperationResult{Success: false, Message: "course is already in your basket", ErrorCode: common.CodeConflict}, nil
		}

		resolved, err := s.Catalog.ResolveItem(ctx, catalog.ResolveRequest{
			ItemID:     in.ItemID,
			Kind:       in.Kind,
			Taster:     in.Taster,
			PayDeposit: in.PayDeposit,
		})
		if err != nil {
			return s.addFailure(in, err)
		}

		b.Items = append(b.Items, Item{
			ItemID:     resolved.ItemID,
			Kind:       resolved.Kind,
			Name:       resolved.Name,
			Price:      resolved.Price,
			FullPrice:  resolved.FullPrice,
			Discount:   resolved.Discount,
			Taster:     resolved.Taster,
			PayDeposit: resolved.Deposit,
			AssignTo:   in.AssignTo,
			ChargeFrom: in.ChargeFrom,
		})
		s.ensureRegistrationFee(b)

		obs.ObserveBasketOp("add", "ok")
		return OperationResult{Success: true, Message: "added to basket"}, nil
	})
}

func (s *Service) addFailure(in AddItemInput, err error) (OperationResult, error) {
	switch {
	case errors.Is(err, catalog.ErrCourseFull):
		obs.ObserveBasketOp("add", "course_full")
		return OperationResult{Success: false, Message: "this course is fully booked", ErrorCode: common.CodeCourseFull}, nil
	case errors.Is(err, catalog.ErrNotFound):
		obs.ObserveBasketOp("add", "not_found")
		return OperationResult{Success: false, Message: "course not found", ErrorCode: common.CodeNotFound}, nil
	default:
		obs.ObserveBasketOp("add", "error")
		s.Logger.Error().Err(err).Str("itemId", in.ItemID).Msg("basket_add_resolve_failed")
		return OperationResult{Success: false, Message: "unable to add to basket right now", ErrorCode: common.CodeInternal}, nil
	}
}

// ensureRegistrationFee attaches the school's one-off registration fee the
// first time a chargeable item enters the basket.
func (s *Service) ensureRegistrationFee(b *Basket) {
	if s.RegistrationFee <= 0 {
		return
	}
	for _, f := range b.Fees {
		if f.Name == registrationFeeName {
			return
		}
	}
	b.Fees = append(b.Fees, Fee{Name: registrationFeeName, Value: s.RegistrationFee})
}

// RemoveItem drops the item. A missing item is a failure result, not an error.
func (s *Service) RemoveItem(ctx context.Context, ownerID, itemID string, kind catalog.Kind) (OperationResult, error) {
	if s == nil {
		return OperationResult{}, errors.New("basket: service not configured")
	}
	return s.Mutate(ctx, ownerID, func(b *Basket) (OperationResult, error) {
		idx := b.FindItem(itemID, kind)
		if idx < 0 {
			obs.ObserveBasketOp("remove", "not_found")
			return OperationResult{Success: false, Message: "item is not in your basket", ErrorCode: common.CodeNotFound}, nil
		}
		b.Items = append(b.Items[:idx], b.Items[idx+1:]...)
		if b.IsEmpty() {
			b.Fees = nil
			b.PromoCode = ""
			b.PromoDiscount = 0
		}
		obs.ObserveBasketOp("remove", "ok")
		return OperationResult{Success: true, Message: "removed from basket"}, nil
	})
}

// SetFeeIncluded toggles an optional fee on or off. Mandatory fees cannot be
// excluded.
func (s *Service) SetFeeIncluded(ctx context.Context, ownerID, feeName string, included bool) (OperationResult, error) {
	if s == nil {
		return OperationResult{}, errors.New("basket: service not configured")
	}
	return s.Mutate(ctx, ownerID, func(b *Basket) (OperationResult, error) {
		for i := range b.Fees {
			if b.Fees[i].Name != feeName {
				continue
			}
			if !b.Fees[i].Optional {
				return OperationResult{Success: false, Message: "fee is mandatory", ErrorCode: common.CodeBadRequest}, nil
			}
			b.Fees[i].Included = included
			return OperationResult{Success: true, Message: "basket updated"}, nil
		}
		return OperationResult{Success: false, Message: "no such fee", ErrorCode: common.CodeNotFound}, nil
	})
}

// Clear destroys the owner's basket. Used on logout and explicit clears.
func (s *Service) Clear(ctx context.Context, ownerID string) (OperationResult, error) {
	if s == nil {
		return OperationResult{}, errors.New("basket: service not configured")
	}
	err := s.Locker.WithLock(ctx, "basket:lock:"+ownerID, s.lockTTL(), func(ctx context.Context) error {
		return s.Store.Delete(ctx, ownerID)
	})
	if err != nil {
		return OperationResult{}, fmt.Errorf("basket: clear: %w", err)
	}
	obs.ObserveBasketOp("clear", "ok")
	return OperationResult{Success: true, Basket: s.newBasket(ownerID), Message: "basket cleared"}, nil
}
