package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type memCustomerStore struct {
	ids     map[string]string
	setErr  error
	lookups int
}

func (m *memCustomerStore) PaymentCustomerID(_ context.Context, userID string) (string, error) {
	m.lookups++
	return m.ids[userID], nil
}

func (m *memCustomerStore) SetPaymentCustomerID(_ context.Context, userID, customerID string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.ids[userID] = customerID
	return nil
}

type stubCreator struct {
	id      string
	err     error
	created int
	email   string
}

func (c *stubCreator) CreateCustomer(_ context.Context, email, _ string) (string, error) {
	c.created++
	c.email = email
	return c.id, c.err
}

type stubEmails map[string]string

func (d stubEmails) EmailForUser(_ context.Context, userID string) (string, error) {
	return d[userID], nil
}

func TestCustomersResolveGuest(t *testing.T) {
	creator := &stubCreator{id: "cus_1"}
	c := &Customers{Store: &memCustomerStore{ids: map[string]string{}}, Gateway: creator, Logger: zerolog.Nop()}

	id, err := c.Resolve(context.Background(), "")
	if err != nil || id != "" {
		t.Fatalf("guest must resolve to empty, got id=%q err=%v", id, err)
	}
	if creator.created != 0 {
		t.Fatal("guest must not provision a customer")
	}
}

func TestCustomersResolveExisting(t *testing.T) {
	creator := &stubCreator{id: "cus_new"}
	store := &memCustomerStore{ids: map[string]string{"usr_1": "cus_kept"}}
	c := &Customers{Store: store, Gateway: creator, Logger: zerolog.Nop()}

	id, err := c.Resolve(context.Background(), "usr_1")
	if err != nil || id != "cus_kept" {
		t.Fatalf("expected stored id, got id=%q err=%v", id, err)
	}
	if creator.created != 0 {
		t.Fatal("stored mapping must not create another customer")
	}
}

func TestCustomersResolveProvisionsLazily(t *testing.T) {
	creator := &stubCreator{id: "cus_new"}
	store := &memCustomerStore{ids: map[string]string{}}
	c := &Customers{
		Store:   store,
		Gateway: creator,
		Users:   stubEmails{"usr_1": "dancer@example.com"},
		Logger:  zerolog.Nop(),
	}

	id, err := c.Resolve(context.Background(), "usr_1")
	if err != nil || id != "cus_new" {
		t.Fatalf("expected fresh customer, got id=%q err=%v", id, err)
	}
	if creator.email != "dancer@example.com" {
		t.Fatalf("expected registration under the user's email, got %q", creator.email)
	}
	if store.ids["usr_1"] != "cus_new" {
		t.Fatalf("mapping not persisted: %+v", store.ids)
	}

	// second resolve hits the stored mapping
	if _, err := c.Resolve(context.Background(), "usr_1"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if creator.created != 1 {
		t.Fatalf("expected a single provision, got %d", creator.created)
	}
}

func TestCustomersResolveSurvivesPersistFailure(t *testing.T) {
	creator := &stubCreator{id: "cus_new"}
	store := &memCustomerStore{ids: map[string]string{}, setErr: errors.New("db down")}
	c := &Customers{Store: store, Gateway: creator, Logger: zerolog.Nop()}

	// the id must still be usable for this checkout
	id, err := c.Resolve(context.Background(), "usr_1")
	if err != nil || id != "cus_new" {
		t.Fatalf("expected fresh id despite persist failure, got id=%q err=%v", id, err)
	}
}

func TestCustomersResolveGatewayFailure(t *testing.T) {
	creator := &stubCreator{err: errors.New("stripe down")}
	store := &memCustomerStore{ids: map[string]string{}}
	c := &Customers{Store: store, Gateway: creator, Logger: zerolog.Nop()}

	if _, err := c.Resolve(context.Background(), "usr_1"); err == nil {
		t.Fatal("expected gateway failure to surface")
	}
}

func TestStripeCreateCustomer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/customers" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("email") != "dancer@example.com" || r.PostForm.Get("metadata[user_id]") != "usr_1" {
			t.Fatalf("unexpected form: %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cus_42"})
	}))
	defer srv.Close()

	s := &Stripe{HTTP: testHTTPClient(), BaseURL: srv.URL, SecretKey: "sk_test"}
	id, err := s.CreateCustomer(context.Background(), "dancer@example.com", "usr_1")
	if err != nil || id != "cus_42" {
		t.Fatalf("create customer: id=%q err=%v", id, err)
	}
}
