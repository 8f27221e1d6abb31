package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/events"
)

type stubDirectory struct {
	emails map[string]string
	err    error
}

func (d stubDirectory) EmailForUser(_ context.Context, userID string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.emails[userID], nil
}

func confirmationTask(t *testing.T, p OrderConfirmationPayload) *asynq.Task {
	t.Helper()
	task, err := NewOrderConfirmationTask(p)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestHandleOrderConfirmation(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	w := &Worker{
		Email:  outbox,
		Users:  stubDirectory{emails: map[string]string{"user-1": "dana@example.com"}},
		Logger: zerolog.Nop(),
	}

	task := confirmationTask(t, OrderConfirmationPayload{
		OrderID:     "ord_1",
		UserID:      "user-1",
		ChargeTotal: 4650,
		PayLater:    2000,
		Currency:    "gbp",
	})
	if err := w.HandleOrderConfirmation(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outbox.Outbox) != 1 {
		t.Fatalf("expected one email, got %d", len(outbox.Outbox))
	}
	sent := outbox.Outbox[0]
	if sent.To != "dana@example.com" {
		t.Fatalf("unexpected recipient %q", sent.To)
	}
	if !strings.Contains(sent.HTML, "£46.50") {
		t.Fatalf("charge missing from body: %q", sent.HTML)
	}
	if !strings.Contains(sent.HTML, "£20.00") {
		t.Fatalf("pay later missing from body: %q", sent.HTML)
	}
}

func TestHandleOrderConfirmationNoPayLater(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	w := &Worker{
		Email:  outbox,
		Users:  stubDirectory{emails: map[string]string{"user-1": "dana@example.com"}},
		Logger: zerolog.Nop(),
	}

	task := confirmationTask(t, OrderConfirmationPayload{OrderID: "ord_1", UserID: "user-1", ChargeTotal: 5000, Currency: "gbp"})
	if err := w.HandleOrderConfirmation(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if strings.Contains(outbox.Outbox[0].HTML, "Remaining balance") {
		t.Fatalf("pay later section present for full payment: %q", outbox.Outbox[0].HTML)
	}
}

func TestHandleOrderConfirmationMissingRecipient(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	w := &Worker{Email: outbox, Users: stubDirectory{}, Logger: zerolog.Nop()}

	task := confirmationTask(t, OrderConfirmationPayload{OrderID: "ord_1", UserID: "gone"})
	if err := w.HandleOrderConfirmation(context.Background(), task); err != nil {
		t.Fatalf("missing recipient must not be retried: %v", err)
	}
	if len(outbox.Outbox) != 0 {
		t.Fatalf("no email expected, got %d", len(outbox.Outbox))
	}
}

func TestHandleOrderConfirmationDirectoryFailureIsRetryable(t *testing.T) {
	w := &Worker{
		Email:  &common.InMemoryEmail{},
		Users:  stubDirectory{err: errors.New("db down")},
		Logger: zerolog.Nop(),
	}
	task := confirmationTask(t, OrderConfirmationPayload{OrderID: "ord_1", UserID: "user-1"})
	if err := w.HandleOrderConfirmation(context.Background(), task); err == nil {
		t.Fatal("expected error so asynq retries the task")
	}
}

func TestEmailNotifierSendsForTopic(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: outbox, Enabled: true}

	payload, _ := json.Marshal(map[string]any{"email": "dana@example.com", "message": "See you in class."})
	err := n.Notify(context.Background(), events.DomainEvent{
		Topic:      events.TopicUserRegistered,
		Payload:    payload,
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(outbox.Outbox) != 1 || outbox.Outbox[0].Subject != "Welcome to the studio" {
		t.Fatalf("unexpected outbox: %+v", outbox.Outbox)
	}
}

func TestEmailNotifierSkipsWithoutRecipient(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: outbox, Enabled: true}

	payload, _ := json.Marshal(map[string]any{"orderId": "ord_1"})
	if err := n.Notify(context.Background(), events.DomainEvent{Topic: events.TopicOrderCreated, Payload: payload}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(outbox.Outbox) != 0 {
		t.Fatalf("no email expected, got %+v", outbox.Outbox)
	}
}

func TestEmailNotifierTopicToggle(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	n := EmailNotifier{Mail: outbox, Enabled: true, TopicToggles: map[string]bool{events.TopicPaymentFailed: false}}

	payload, _ := json.Marshal(map[string]any{"email": "dana@example.com"})
	if err := n.Notify(context.Background(), events.DomainEvent{Topic: events.TopicPaymentFailed, Payload: payload}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(outbox.Outbox) != 0 {
		t.Fatalf("toggled-off topic must not send, got %+v", outbox.Outbox)
	}
}
