package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-dansa/internal/resilience"
)

// Stripe talks to the Stripe REST API with form-encoded payloads through the
// resilient outbound client.
type Stripe struct {
	HTTP      resilience.HTTPClient
	BaseURL   string
	SecretKey string
}

// Name identifies the provider in logs and metrics.
func (s *Stripe) Name() string { return "stripe" }

type stripeCard struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

type stripeMethod struct {
	ID   string     `json:"id"`
	Type string     `json:"type"`
	Card stripeCard `json:"card"`
}

type stripeError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// apiError is a non-5xx Stripe error payload.
type apiError struct {
	Status int
	E      stripeError
}

func (e *apiError) Error() string {
	return fmt.Sprintf("stripe: %s (%s)", e.E.Message, e.E.Code)
}

type stripeIntent struct {
	ID               string       `json:"id"`
	Status           string       `json:"status"`
	ClientSecret     string       `json:"client_secret"`
	LastPaymentError *stripeError `json:"last_payment_error"`
}

// CreateCustomer provisions a Stripe customer so payment methods can be
// attached and reused across checkouts.
func (s *Stripe) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	form := url.Values{}
	if email != "" {
		form.Set("email", email)
	}
	if userID != "" {
		form.Set("metadata[user_id]", userID)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := s.post(ctx, "/v1/customers", form, "", &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreatePaymentMethod tokenises the card and attaches it to the customer.
func (s *Stripe) CreatePaymentMethod(ctx context.Context, req CreateMethodRequest) (Method, error) {
	form := url.Values{}
	form.Set("type", "card")
	form.Set("card[number]", req.Card.Number)
	form.Set("card[exp_month]", strconv.Itoa(req.Card.ExpMonth))
	form.Set("card[exp_year]", strconv.Itoa(req.Card.ExpYear))
	form.Set("card[cvc]", req.Card.CVC)
	form.Set("billing_details[name]", req.Billing.Name)
	form.Set("billing_details[email]", req.Billing.Email)
	form.Set("billing_details[address][line1]", req.Billing.Address.Line1)
	form.Set("billing_details[address][city]", req.Billing.Address.City)
	form.Set("billing_details[address][postal_code]", req.Billing.Address.Postcode)
	form.Set("billing_details[address][country]", req.Billing.Address.Country)

	var created stripeMethod
	if err := s.post(ctx, "/v1/payment_methods", form, "", &created); err != nil {
		return Method{}, err
	}

	if req.CustomerID != "" {
		attach := url.Values{}
		attach.Set("customer", req.CustomerID)
		if err := s.post(ctx, "/v1/payment_methods/"+created.ID+"/attach", attach, "", nil); err != nil {
			return Method{}, err
		}
		if req.SetAsDefault {
			def := url.Values{}
			def.Set("invoice_settings[default_payment_method]", created.ID)
			if err := s.post(ctx, "/v1/customers/"+req.CustomerID, def, "", nil); err != nil {
				return Method{}, err
			}
		}
	}

	return Method{
		ID:       created.ID,
		Type:     created.Type,
		Brand:    created.Card.Brand,
		Last4:    created.Card.Last4,
		ExpMonth: created.Card.ExpMonth,
		ExpYear:  created.Card.ExpYear,
		Default:  req.SetAsDefault,
	}, nil
}

// ListPaymentMethods returns the customer's stored card methods.
func (s *Stripe) ListPaymentMethods(ctx context.Context, customerID string) ([]Method, error) {
	if customerID == "" {
		return nil, nil
	}
	var out struct {
		Data []stripeMethod `json:"data"`
	}
	path := "/v1/customers/" + customerID + "/payment_methods?type=card"
	if err := s.get(ctx, path, &out); err != nil {
		return nil, err
	}
	methods := make([]Method, 0, len(out.Data))
	for _, m := range out.Data {
		methods = append(methods, Method{
			ID:       m.ID,
			Type:     m.Type,
			Brand:    m.Card.Brand,
			Last4:    m.Card.Last4,
			ExpMonth: m.Card.ExpMonth,
			ExpYear:  m.Card.ExpYear,
		})
	}
	return methods, nil
}

// ConfirmPayment opens and confirms a payment intent for the charge amount.
func (s *Stripe) ConfirmPayment(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", req.Currency)
	form.Set("payment_method", req.MethodID)
	form.Set("confirm", "true")
	if req.CustomerID != "" {
		form.Set("customer", req.CustomerID)
	}
	if req.Reference != "" {
		form.Set("metadata[reference]", req.Reference)
	}

	var intent stripeIntent
	if err := s.post(ctx, "/v1/payment_intents", form, req.IdempotencyKey, &intent); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.E.Type == "card_error" {
			// declines are an expected outcome, not a transport failure
			return ConfirmResult{
				Status:    StatusFailed,
				ErrorCode: strings.ToUpper(firstNonEmpty(apiErr.E.DeclineCode, apiErr.E.Code)),
				Message:   apiErr.E.Message,
			}, nil
		}
		return ConfirmResult{}, err
	}
	return resultFromIntent(intent), nil
}

// HandleNextAction re-fetches the intent after the 3DS challenge completed
// client side and reports the final outcome.
func (s *Stripe) HandleNextAction(ctx context.Context, clientSecret string) (ConfirmResult, error) {
	intentID, ok := intentIDFromSecret(clientSecret)
	if !ok {
		return ConfirmResult{}, errors.New("stripe: malformed client secret")
	}
	var intent stripeIntent
	path := "/v1/payment_intents/" + intentID + "?client_secret=" + url.QueryEscape(clientSecret)
	if err := s.get(ctx, path, &intent); err != nil {
		return ConfirmResult{}, err
	}
	return resultFromIntent(intent), nil
}

func resultFromIntent(intent stripeIntent) ConfirmResult {
	result := ConfirmResult{PaymentID: intent.ID, ClientSecret: intent.ClientSecret}
	switch intent.Status {
	case "succeeded":
		result.Status = StatusSucceeded
	case "requires_action", "requires_source_action":
		result.Status = StatusRequiresAction
	case "canceled":
		result.Status = StatusCanceled
	default:
		result.Status = StatusFailed
		if intent.LastPaymentError != nil {
			result.ErrorCode = strings.ToUpper(firstNonEmpty(intent.LastPaymentError.DeclineCode, intent.LastPaymentError.Code))
			result.Message = intent.LastPaymentError.Message
		}
	}
	return result
}

// intentIDFromSecret extracts "pi_..." from a "pi_..._secret_..." value.
func intentIDFromSecret(secret string) (string, bool) {
	idx := strings.Index(secret, "_secret_")
	if idx <= 0 {
		return "", false
	}
	return secret[:idx], true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *Stripe) post(ctx context.Context, path string, form url.Values, idempotencyKey string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("stripe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return s.send(ctx, req, dst)
}

func (s *Stripe) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("stripe: build request: %w", err)
	}
	return s.send(ctx, req, dst)
}

func (s *Stripe) send(ctx context.Context, req *http.Request, dst any) error {
	req.SetBasicAuth(s.SecretKey, "")
	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("stripe: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("stripe: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("stripe: upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error stripeError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			return &apiError{Status: resp.StatusCode, E: envelope.Error}
		}
		return fmt.Errorf("stripe: upstream status %d", resp.StatusCode)
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("stripe: decode response: %w", err)
	}
	return nil
}
