package promo

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/catalog"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/lock"
	"github.com/noah-isme/backend-dansa/internal/pricing"
)

func newTestServices(t *testing.T) (*Service, *basket.Service) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cat := &catalog.MockClient{Config: catalog.MockConfig{
		Courses: map[string]catalog.Course{
			"crs_salsa": {ID: "crs_salsa", Kind: catalog.KindStudio, Name: "Salsa Beginners", Price: 5000, Spaces: 5, Studio: &catalog.StudioInfo{Location: "Camden"}},
		},
		Promos:  map[string]pricing.Money{"DANCE250": 250},
		Credits: map[string]pricing.Money{"user-1": 100, "user-rich": 9000},
	}}
	baskets := &basket.Service{
		Store:    basket.Store{R: client, TTL: time.Hour},
		Catalog:  cat,
		Locker:   lock.Locker{R: client, RetryBackoff: time.Millisecond},
		Currency: "gbp",
		Logger:   zerolog.Nop(),
	}
	return &Service{Baskets: baskets, Catalog: cat, Logger: zerolog.Nop()}, baskets
}

func seedBasket(t *testing.T, baskets *basket.Service, owner string) {
	t.Helper()
	result, err := baskets.AddItem(context.Background(), owner, basket.AddItemInput{ItemID: "crs_salsa", Kind: catalog.KindStudio})
	if err != nil || !result.Success {
		t.Fatalf("seed basket: %v %+v", err, result)
	}
}

func TestApplyPromoThenCredit(t *testing.T) {
	svc, baskets := newTestServices(t)
	ctx := common.WithUserID(context.Background(), "user-1")
	seedBasket(t, baskets, "user-1")

	result, err := svc.ApplyCode(ctx, "user-1", "DANCE250")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Basket.Totals.Total != 4750 {
		t.Fatalf("expected total 4750, got %d", result.Basket.Totals.Total)
	}

	result, err = svc.UseCredit(ctx, "user-1", true)
	if err != nil {
		t.Fatalf("use credit: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	totals := result.Basket.Totals
	if totals.SubTotal != 5000 || totals.PromoDiscount != 250 || totals.Total != 4750 || totals.ChargeTotal != 4650 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestApplyInvalidPromoLeavesBasketUnchanged(t *testing.T) {
	svc, baskets := newTestServices(t)
	ctx := context.Background()
	seedBasket(t, baskets, "user-1")

	result, err := svc.ApplyCode(ctx, "user-1", "INVALID")
	if err != nil {
		t.Fatalf("apply returned transport error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
	if result.ErrorCode != common.CodeInvalidPromo {
		t.Fatalf("expected INVALID_PROMO, got %q", result.ErrorCode)
	}
	if result.Basket.Totals.Total != 5000 || result.Basket.PromoCode != "" {
		t.Fatalf("basket should be unchanged: %+v", result.Basket.Totals)
	}
}

func TestPromoRoundTripRestoresTotals(t *testing.T) {
	svc, baskets := newTestServices(t)
	ctx := context.Background()
	seedBasket(t, baskets, "user-1")

	before, err := baskets.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.ApplyCode(ctx, "user-1", "DANCE250"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	result, err := svc.RemoveCode(ctx, "user-1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if result.Basket.Totals != before.Totals {
		t.Fatalf("round trip changed totals: %+v vs %+v", result.Basket.Totals, before.Totals)
	}
	if result.Basket.PromoCode != "" || result.Basket.PromoDiscount != 0 {
		t.Fatalf("promo state not cleared: %+v", result.Basket)
	}
}

func TestCreditCappedAtTotal(t *testing.T) {
	svc, baskets := newTestServices(t)
	ctx := common.WithUserID(context.Background(), "user-rich")
	seedBasket(t, baskets, "user-rich")

	result, err := svc.UseCredit(ctx, "user-rich", true)
	if err != nil {
		t.Fatalf("use credit: %v", err)
	}
	totals := result.Basket.Totals
	if totals.CreditTotal != 5000 {
		t.Fatalf("expected credit capped at 5000, got %d", totals.CreditTotal)
	}
	if totals.ChargeTotal != 0 {
		t.Fatalf("expected zero charge, got %d", totals.ChargeTotal)
	}
}

func TestCreditToggleOff(t *testing.T) {
	svc, baskets := newTestServices(t)
	ctx := common.WithUserID(context.Background(), "user-1")
	seedBasket(t, baskets, "user-1")

	if _, err := svc.UseCredit(ctx, "user-1", true); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	result, err := svc.UseCredit(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if result.Basket.Totals.CreditTotal != 0 || result.Basket.Totals.ChargeTotal != 5000 {
		t.Fatalf("unexpected totals after toggle off: %+v", result.Basket.Totals)
	}
}

func TestCreditRequiresAuthenticatedUser(t *testing.T) {
	svc, baskets := newTestServices(t)
	seedBasket(t, baskets, "anon:guest-1")

	result, err := svc.UseCredit(context.Background(), "anon:guest-1", true)
	if err != nil {
		t.Fatalf("use credit: %v", err)
	}
	if result.Success || result.ErrorCode != common.CodeUnauthorized {
		t.Fatalf("expected unauthorized failure, got %+v", result)
	}
}
