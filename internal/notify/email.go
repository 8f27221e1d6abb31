package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/events"
)

// EmailNotifier sends transactional emails for selected event topics. It sits
// on the event bus, so emails that can be derived from an event payload need
// no extra plumbing in the emitting service.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	TopicToggles map[string]bool
}

// Notify implements events.Notifier.
func (n EmailNotifier) Notify(_ context.Context, event events.DomainEvent) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	return n.Mail.Send(to, subjectFor(event.Topic), bodyFor(event.Topic, payload, event.OccurredAt))
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "userEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicUserRegistered:
		return "Welcome to the studio"
	case events.TopicPaymentFailed:
		return "There was a problem with your payment"
	default:
		return fmt.Sprintf("Update: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Event %s at %s.", topic, occurred.Format(time.RFC3339))
	if orderID, ok := payload["orderId"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("\nOrder reference: %s", orderID)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "\n" + note
	}
	return summary
}
