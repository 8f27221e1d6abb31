package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/noah-isme/backend-dansa/internal/resilience"
)

func testHTTPClient() resilience.HTTPClient {
	return resilience.HTTPClient{
		Client:      &http.Client{Timeout: 2 * time.Second},
		Breaker:     resilience.NewBreaker(100, 1, time.Second),
		MaxAttempts: 1,
	}
}

func TestStripeConfirmPaymentSucceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("amount") != "4650" || r.PostForm.Get("currency") != "gbp" {
			t.Fatalf("unexpected form: %v", r.PostForm)
		}
		if r.Header.Get("Idempotency-Key") != "idem-1" {
			t.Fatalf("missing idempotency key")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pi_1", "status": "succeeded"})
	}))
	defer srv.Close()

	s := &Stripe{HTTP: testHTTPClient(), BaseURL: srv.URL, SecretKey: "sk_test"}
	result, err := s.ConfirmPayment(context.Background(), ConfirmRequest{
		MethodID: "pm_1", Amount: 4650, Currency: "gbp", IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Status != StatusSucceeded || result.PaymentID != "pi_1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStripeConfirmPaymentRequiresAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "pi_2", "status": "requires_action", "client_secret": "pi_2_secret_abc",
		})
	}))
	defer srv.Close()

	s := &Stripe{HTTP: testHTTPClient(), BaseURL: srv.URL, SecretKey: "sk_test"}
	result, err := s.ConfirmPayment(context.Background(), ConfirmRequest{MethodID: "pm_1", Amount: 100, Currency: "gbp"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Status != StatusRequiresAction || result.ClientSecret != "pi_2_secret_abc" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStripeConfirmPaymentDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":         "card_error",
				"code":         "card_declined",
				"decline_code": "card_declined",
				"message":      "Your card was declined.",
			},
		})
	}))
	defer srv.Close()

	s := &Stripe{HTTP: testHTTPClient(), BaseURL: srv.URL, SecretKey: "sk_test"}
	result, err := s.ConfirmPayment(context.Background(), ConfirmRequest{MethodID: "pm_1", Amount: 100, Currency: "gbp"})
	if err != nil {
		t.Fatalf("decline should not be a transport error: %v", err)
	}
	if result.Status != StatusFailed || result.ErrorCode != "CARD_DECLINED" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStripeHandleNextAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_2" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("client_secret") != "pi_2_secret_abc" {
			t.Fatalf("missing client secret query")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pi_2", "status": "succeeded"})
	}))
	defer srv.Close()

	s := &Stripe{HTTP: testHTTPClient(), BaseURL: srv.URL, SecretKey: "sk_test"}
	result, err := s.HandleNextAction(context.Background(), "pi_2_secret_abc")
	if err != nil {
		t.Fatalf("next action: %v", err)
	}
	if result.Status != StatusSucceeded {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestIntentIDFromSecret(t *testing.T) {
	if id, ok := intentIDFromSecret("pi_9_secret_xyz"); !ok || id != "pi_9" {
		t.Fatalf("unexpected parse: %q %v", id, ok)
	}
	if _, ok := intentIDFromSecret("garbage"); ok {
		t.Fatal("expected parse failure")
	}
}

func TestStubProviderCreateAndList(t *testing.T) {
	stub := &StubProvider{Config: StubConfig{Methods: []Method{{ID: "pm_seed", Type: "card"}}}}
	created, err := stub.CreatePaymentMethod(context.Background(), CreateMethodRequest{
		Card: Card{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Last4 != "4242" {
		t.Fatalf("unexpected method: %+v", created)
	}
	methods, err := stub.ListPaymentMethods(context.Background(), "cus_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(methods) != 2 {
		t.Fatalf("expected seeded plus created method, got %d", len(methods))
	}
}
