package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/payment"
)

// Handler wires the checkout machine to HTTP. Every endpoint answers with
// the current machine state so clients always have something to render.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

func (h *Handler) ids(r *http.Request) (ownerID, userID string, ok bool) {
	ownerID, ok = basket.OwnerID(r)
	if !ok {
		return "", "", false
	}
	userID, _ = common.UserID(r.Context())
	return ownerID, userID, true
}

// Start handles POST /v1/checkout.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	state, err := h.Svc.Start(r.Context(), ownerID, userID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to start checkout", nil)
		return
	}
	common.JSONData(w, http.StatusOK, state)
}

// State handles GET /v1/checkout.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	common.JSONData(w, http.StatusOK, h.Svc.State(ownerID, userID))
}

// NextStep handles POST /v1/checkout/steps/next.
func (h *Handler) NextStep(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	common.JSONData(w, http.StatusOK, h.Svc.NextStep(ownerID, userID))
}

// PreviousStep handles POST /v1/checkout/steps/previous.
func (h *Handler) PreviousStep(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	common.JSONData(w, http.StatusOK, h.Svc.PreviousStep(ownerID, userID))
}

// SelectMethod handles POST /v1/checkout/payment-method.
func (h *Handler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload struct {
		PaymentMethodID string `json:"paymentMethodId" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "payment method id is required", nil)
		return
	}
	common.JSONData(w, http.StatusOK, h.Svc.SelectPaymentMethod(ownerID, userID, payload.PaymentMethodID))
}

type billingPayload struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Line1    string `json:"line1" validate:"required"`
	Line2    string `json:"line2"`
	City     string `json:"city" validate:"required"`
	Postcode string `json:"postcode" validate:"required"`
	Country  string `json:"country" validate:"required,len=2"`
}

func (p billingPayload) billing() payment.BillingDetails {
	return payment.BillingDetails{
		Name:  p.Name,
		Email: p.Email,
		Address: payment.Address{
			Line1:    p.Line1,
			Line2:    p.Line2,
			City:     p.City,
			Postcode: p.Postcode,
			Country:  p.Country,
		},
	}
}

// SetBilling handles POST /v1/checkout/billing.
func (h *Handler) SetBilling(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload billingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid billing details", err.Error())
		return
	}
	common.JSONData(w, http.StatusOK, h.Svc.SetBillingAddress(ownerID, userID, payload.billing()))
}

// CreateCard handles POST /v1/checkout/payment-methods.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload struct {
		Number       string `json:"number" validate:"required"`
		ExpMonth     int    `json:"expMonth" validate:"required,min=1,max=12"`
		ExpYear      int    `json:"expYear" validate:"required"`
		CVC          string `json:"cvc" validate:"required"`
		SetAsDefault bool   `json:"setAsDefault"`
		billingPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid card payload", err.Error())
		return
	}
	card := payment.Card{Number: payload.Number, ExpMonth: payload.ExpMonth, ExpYear: payload.ExpYear, CVC: payload.CVC}
	state, created := h.Svc.CreateCard(r.Context(), ownerID, userID, card, payload.billing(), payload.SetAsDefault)
	common.JSONData(w, http.StatusOK, map[string]any{"created": created, "state": state})
}

// Pay handles POST /v1/checkout/pay.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload struct {
		PaymentMethodID   string `json:"paymentMethodId" validate:"required"`
		PaymentMethodType string `json:"paymentMethodType" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payment payload", err.Error())
		return
	}
	state, paid := h.Svc.Pay(r.Context(), ownerID, userID, payload.PaymentMethodID, payload.PaymentMethodType)
	common.JSONData(w, http.StatusOK, map[string]any{"paid": paid, "state": state})
}

// Complete3DS handles POST /v1/checkout/3ds.
func (h *Handler) Complete3DS(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload struct {
		ClientSecret string `json:"clientSecret" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "client secret is required", nil)
		return
	}
	state, authenticated := h.Svc.Complete3DS(r.Context(), ownerID, userID, payload.ClientSecret)
	common.JSONData(w, http.StatusOK, map[string]any{"authenticated": authenticated, "state": state})
}

// Reset handles DELETE /v1/checkout.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ownerID, userID, ok := h.ids(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	common.JSONData(w, http.StatusOK, h.Svc.Reset(ownerID, userID))
}
